package objstore

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a failure independently of the backend that produced it.
type Kind int

const (
	// Internal is any backend failure not covered by another kind.
	Internal Kind = iota
	// InvalidArgument is malformed input, caught before reaching a backend.
	InvalidArgument
	// NotFound means the referenced key or bucket does not exist.
	NotFound
	// PermissionDenied means the backend rejected the operation on access control grounds.
	PermissionDenied
	// TransportFailure means the channel failed or timed out before a reply arrived.
	TransportFailure
	// EmptyResponse means the channel succeeded but carried no reply where one was required.
	EmptyResponse
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case TransportFailure:
		return "transport failure"
	case EmptyResponse:
		return "empty response"
	}
	return "internal"
}

// Error is the error type returned by every layer of the storage stack.
type Error struct {
	Kind Kind
	// Op is the logical operation: read, write, delete, list, exists or presign.
	Op     string
	Bucket string
	Key    string
	// Msg is safe to show to remote callers.
	Msg string
	// Err is the underlying cause. It is never sent over the wire.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.scope())
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) scope() string {
	if e.Op == "" && e.Bucket == "" {
		return ""
	}
	s := e.Op
	if e.Bucket != "" {
		s += fmt.Sprintf(" bucket=%q", e.Bucket)
	}
	if e.Key != "" {
		s += fmt.Sprintf(" key=%q", e.Key)
	}
	return strings.TrimSpace(s) + ": "
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf creates an unscoped error; the dispatcher or client binding scopes it
// with the logical bucket and operation later.
func Errorf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// Scope attaches the operation, bucket and key to err. Errors that are not an
// *Error become TransportFailure when Unreachable, Internal otherwise.
func Scope(err error, op, bucket, key string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		kind := Internal
		if Unreachable(err) {
			kind = TransportFailure
		}
		return &Error{Kind: kind, Op: op, Bucket: bucket, Key: key, Err: err}
	}
	scoped := *e
	scoped.Op, scoped.Bucket, scoped.Key = op, bucket, key
	return &scoped
}

// KindOf returns the kind of the first *Error in err's chain, Internal when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func IsNotFound(err error) bool         { return err != nil && KindOf(err) == NotFound }
func IsPermissionDenied(err error) bool { return err != nil && KindOf(err) == PermissionDenied }
func IsInvalidArgument(err error) bool  { return err != nil && KindOf(err) == InvalidArgument }
func IsTransportFailure(err error) bool { return err != nil && KindOf(err) == TransportFailure }
func IsEmptyResponse(err error) bool    { return err != nil && KindOf(err) == EmptyResponse }

func (k Kind) code() codes.Code {
	switch k {
	case InvalidArgument:
		return codes.InvalidArgument
	case NotFound:
		return codes.NotFound
	case PermissionDenied:
		return codes.PermissionDenied
	case TransportFailure:
		return codes.Unavailable
	}
	return codes.Internal
}

// Unreachable reports whether err means the remote end could not be reached
// or did not answer in time.
func Unreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ToStatus converts err into a gRPC status error. Only the kind and public
// message cross the wire.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, "internal storage error")
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	return status.Error(e.Kind.code(), msg)
}

// FromRPC decodes an error returned by a StorageClient call.
func FromRPC(op, bucket, key string, err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Op: op, Bucket: bucket, Key: key, Err: err}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.Kind = TransportFailure
		return e
	}

	st, ok := status.FromError(err)
	if !ok {
		e.Kind = TransportFailure
		return e
	}
	// the status message is already part of err
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		e.Kind = TransportFailure
	case codes.InvalidArgument:
		e.Kind = InvalidArgument
	case codes.NotFound:
		e.Kind = NotFound
	case codes.PermissionDenied:
		e.Kind = PermissionDenied
	default:
		e.Kind = Internal
	}
	return e
}
