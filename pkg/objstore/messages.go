package objstore

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every request and response of the Storage service.
type Message interface {
	// AppendWire appends the protobuf encoding of the message to b.
	AppendWire(b []byte) []byte
	// UnmarshalWire replaces the message contents with the decoding of b.
	UnmarshalWire(b []byte) error
}

// Operation selects the HTTP verb a presigned URL authorizes.
type Operation int32

const (
	OperationRead  Operation = 0
	OperationWrite Operation = 1
)

func (o Operation) String() string {
	switch o {
	case OperationRead:
		return "READ"
	case OperationWrite:
		return "WRITE"
	}
	return "Operation(" + strconv.Itoa(int(o)) + ")"
}

// Method returns the HTTP verb embedded in URLs signed for o.
func (o Operation) Method() (string, error) {
	switch o {
	case OperationRead:
		return "GET", nil
	case OperationWrite:
		return "PUT", nil
	}
	return "", Errorf(InvalidArgument, nil, "unknown operation %s, supported operations are READ and WRITE", o)
}

// ParseOperation accepts the names produced by Operation.String.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "READ", "read":
		return OperationRead, nil
	case "WRITE", "write":
		return OperationWrite, nil
	}
	return 0, Errorf(InvalidArgument, nil, "unknown operation %q", s)
}

// CheckExpiry rejects presign lifetimes that are not a positive whole number
// of seconds. Backends sign with one second precision.
func CheckExpiry(expiry time.Duration) error {
	if expiry <= 0 {
		return Errorf(InvalidArgument, nil, "expiry must be positive, got %s", expiry)
	}
	if expiry%time.Second != 0 {
		return Errorf(InvalidArgument, nil, "expiry must be a whole number of seconds, got %s", expiry)
	}
	return nil
}

type StorageReadRequest struct {
	BucketName string
	Key        string
}

type StorageReadResponse struct {
	Body []byte
}

type StorageWriteRequest struct {
	BucketName string
	Key        string
	Body       []byte
}

type StorageWriteResponse struct{}

type StorageDeleteRequest struct {
	BucketName string
	Key        string
}

type StorageDeleteResponse struct{}

type StorageListBlobsRequest struct {
	BucketName string
	// Prefix restricts the listing to keys starting with it. Empty lists everything.
	Prefix string
}

type Blob struct {
	Key string
}

type StorageListBlobsResponse struct {
	Blobs []*Blob
}

type StorageExistsRequest struct {
	BucketName string
	Key        string
}

type StorageExistsResponse struct {
	Exists bool
}

type StoragePreSignUrlRequest struct {
	BucketName string
	Key        string
	Operation  Operation
	// Expiry is relative to the moment the backend signs the URL. It travels as a
	// google.protobuf.Duration.
	Expiry time.Duration
}

type StoragePreSignUrlResponse struct {
	Url string
}

func (m *StorageReadRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	return appendString(b, 2, m.Key)
}

func (m *StorageReadRequest) UnmarshalWire(b []byte) error {
	*m = StorageReadRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Key)
		}
		return 0
	})
}

func (m *StorageReadResponse) AppendWire(b []byte) []byte {
	return appendBytes(b, 1, m.Body)
}

func (m *StorageReadResponse) UnmarshalWire(b []byte) error {
	*m = StorageReadResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num == 1 {
			return consumeBytes(typ, v, &m.Body)
		}
		return 0
	})
}

func (m *StorageWriteRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	b = appendString(b, 2, m.Key)
	return appendBytes(b, 3, m.Body)
}

func (m *StorageWriteRequest) UnmarshalWire(b []byte) error {
	*m = StorageWriteRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Key)
		case 3:
			return consumeBytes(typ, v, &m.Body)
		}
		return 0
	})
}

func (m *StorageWriteResponse) AppendWire(b []byte) []byte { return b }

func (m *StorageWriteResponse) UnmarshalWire(b []byte) error {
	return consumeFields(b, skipAll)
}

func (m *StorageDeleteRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	return appendString(b, 2, m.Key)
}

func (m *StorageDeleteRequest) UnmarshalWire(b []byte) error {
	*m = StorageDeleteRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Key)
		}
		return 0
	})
}

func (m *StorageDeleteResponse) AppendWire(b []byte) []byte { return b }

func (m *StorageDeleteResponse) UnmarshalWire(b []byte) error {
	return consumeFields(b, skipAll)
}

func (m *StorageListBlobsRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	return appendString(b, 2, m.Prefix)
}

func (m *StorageListBlobsRequest) UnmarshalWire(b []byte) error {
	*m = StorageListBlobsRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Prefix)
		}
		return 0
	})
}

func (m *Blob) AppendWire(b []byte) []byte {
	return appendString(b, 1, m.Key)
}

func (m *Blob) UnmarshalWire(b []byte) error {
	*m = Blob{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num == 1 {
			return consumeString(typ, v, &m.Key)
		}
		return 0
	})
}

func (m *StorageListBlobsResponse) AppendWire(b []byte) []byte {
	for _, blob := range m.Blobs {
		if blob == nil {
			continue
		}
		// repeated message fields are written even when empty
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, blob.AppendWire(nil))
	}
	return b
}

func (m *StorageListBlobsResponse) UnmarshalWire(b []byte) error {
	*m = StorageListBlobsResponse{}
	var nested error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return 0
		}
		raw, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return n
		}
		blob := &Blob{}
		if err := blob.UnmarshalWire(raw); err != nil {
			nested = err
			return n
		}
		m.Blobs = append(m.Blobs, blob)
		return n
	})
	if err != nil {
		return err
	}
	return nested
}

func (m *StorageExistsRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	return appendString(b, 2, m.Key)
}

func (m *StorageExistsRequest) UnmarshalWire(b []byte) error {
	*m = StorageExistsRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Key)
		}
		return 0
	})
}

func (m *StorageExistsResponse) AppendWire(b []byte) []byte {
	if !m.Exists {
		return b
	}
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(true))
}

func (m *StorageExistsResponse) UnmarshalWire(b []byte) error {
	*m = StorageExistsResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num != 1 || typ != protowire.VarintType {
			return 0
		}
		x, n := protowire.ConsumeVarint(v)
		if n >= 0 {
			m.Exists = protowire.DecodeBool(x)
		}
		return n
	})
}

func (m *StoragePreSignUrlRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.BucketName)
	b = appendString(b, 2, m.Key)
	if m.Operation != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Operation)))
	}
	if m.Expiry != 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, appendDuration(nil, m.Expiry))
	}
	return b
}

func (m *StoragePreSignUrlRequest) UnmarshalWire(b []byte) error {
	*m = StoragePreSignUrlRequest{}
	var nested error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case 1:
			return consumeString(typ, v, &m.BucketName)
		case 2:
			return consumeString(typ, v, &m.Key)
		case 3:
			if typ != protowire.VarintType {
				return 0
			}
			x, n := protowire.ConsumeVarint(v)
			if n >= 0 {
				m.Operation = Operation(int32(x))
			}
			return n
		case 4:
			if typ != protowire.BytesType {
				return 0
			}
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n
			}
			m.Expiry, nested = consumeDuration(raw)
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return nested
}

func (m *StoragePreSignUrlResponse) AppendWire(b []byte) []byte {
	return appendString(b, 1, m.Url)
}

func (m *StoragePreSignUrlResponse) UnmarshalWire(b []byte) error {
	*m = StoragePreSignUrlResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num == 1 {
			return consumeString(typ, v, &m.Url)
		}
		return 0
	})
}

// consumeFields walks the fields of an encoded message. fn returns the number of
// bytes it consumed for the field value, 0 to have the field skipped, or a
// negative protowire error code.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "objstore: malformed tag")
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "objstore: malformed field %d", num)
		}
		b = b[m:]
	}
	return nil
}

func skipAll(protowire.Number, protowire.Type, []byte) int { return 0 }

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	s, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = s
	}
	return n
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		// the transport may reuse its receive buffer
		*dst = append([]byte{}, v...)
	}
	return n
}

// appendDuration encodes d as google.protobuf.Duration{seconds, nanos}.
func appendDuration(b []byte, d time.Duration) []byte {
	secs := int64(d / time.Second)
	nanos := int32(d % time.Second)
	if secs != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(secs))
	}
	if nanos != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(nanos)))
	}
	return b
}

func consumeDuration(b []byte) (time.Duration, error) {
	var secs, nanos int64
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if typ != protowire.VarintType || (num != 1 && num != 2) {
			return 0
		}
		x, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return n
		}
		if num == 1 {
			secs = int64(x)
		} else {
			nanos = int64(int32(x))
		}
		return n
	})
	if err != nil {
		return 0, err
	}
	if secs > math.MaxInt64/int64(time.Second) || secs < math.MinInt64/int64(time.Second) {
		return 0, errors.Errorf("objstore: duration of %d seconds is out of range", secs)
	}
	return time.Duration(secs)*time.Second + time.Duration(nanos), nil
}
