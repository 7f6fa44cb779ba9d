package storage

import (
	"context"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
)

const (
	opRead    = "read"
	opWrite   = "write"
	opDelete  = "delete"
	opList    = "list"
	opExists  = "exists"
	opPresign = "presign"
)

// DefaultPresignExpiry is used when PresignOptions leaves Expiry unset.
const DefaultPresignExpiry = 300 * time.Second

// Mode selects what a presigned URL allows.
type Mode int

const (
	// ModeDefault leaves the choice to the helper: read for GetDownloadURL,
	// write for GetUploadURL.
	ModeDefault Mode = iota
	ModeRead
	ModeWrite
)

// PresignOptions overrides the defaults of GetDownloadURL and GetUploadURL.
// Zero fields keep the default.
type PresignOptions struct {
	Mode   Mode
	Expiry time.Duration
}

func (o *PresignOptions) resolve(def objstore.Operation) (objstore.Operation, time.Duration, error) {
	op, expiry := def, DefaultPresignExpiry
	if o == nil {
		return op, expiry, nil
	}
	switch o.Mode {
	case ModeDefault:
	case ModeRead:
		op = objstore.OperationRead
	case ModeWrite:
		op = objstore.OperationWrite
	default:
		return 0, 0, objstore.Errorf(objstore.InvalidArgument, nil, "unknown presign mode %d", o.Mode)
	}
	if o.Expiry != 0 {
		if err := objstore.CheckExpiry(o.Expiry); err != nil {
			return 0, 0, err
		}
		expiry = o.Expiry
	}
	return op, expiry, nil
}

// Bucket is a handle on one logical bucket.
type Bucket struct {
	name   string
	client *Client
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) check(op, key string, needKey bool) error {
	if b.name == "" {
		return objstore.Scope(objstore.Errorf(objstore.InvalidArgument, nil, "bucket name must not be empty"), op, b.name, key)
	}
	if needKey && key == "" {
		return objstore.Scope(objstore.Errorf(objstore.InvalidArgument, nil, "key must not be empty"), op, b.name, key)
	}
	return nil
}

func (b *Bucket) emptyResponse(op, key string) error {
	return &objstore.Error{
		Kind:   objstore.EmptyResponse,
		Op:     op,
		Bucket: b.name,
		Key:    key,
		Msg:    "no response received",
	}
}

// Read returns the contents of key.
func (b *Bucket) Read(ctx context.Context, key string) ([]byte, error) {
	if err := b.check(opRead, key, true); err != nil {
		return nil, err
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	resp, err := b.client.rpc.Read(ctx, &objstore.StorageReadRequest{BucketName: b.name, Key: key})
	if err != nil {
		return nil, objstore.FromRPC(opRead, b.name, key, err)
	}
	if resp == nil {
		return nil, b.emptyResponse(opRead, key)
	}
	return resp.Body, nil
}

// Write stores data under key, replacing any existing blob. Empty data is
// allowed.
func (b *Bucket) Write(ctx context.Context, key string, data []byte) error {
	if err := b.check(opWrite, key, true); err != nil {
		return err
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	_, err := b.client.rpc.Write(ctx, &objstore.StorageWriteRequest{BucketName: b.name, Key: key, Body: data})
	if err != nil {
		return objstore.FromRPC(opWrite, b.name, key, err)
	}
	return nil
}

// Delete removes key. Deleting a key that does not exist succeeds.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := b.check(opDelete, key, true); err != nil {
		return err
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	_, err := b.client.rpc.Delete(ctx, &objstore.StorageDeleteRequest{BucketName: b.name, Key: key})
	if err != nil {
		return objstore.FromRPC(opDelete, b.name, key, err)
	}
	return nil
}

// List returns the keys starting with prefix, in the order the backend
// reports them. An empty prefix lists the whole bucket.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.check(opList, "", false); err != nil {
		return nil, err
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	resp, err := b.client.rpc.ListBlobs(ctx, &objstore.StorageListBlobsRequest{BucketName: b.name, Prefix: prefix})
	if err != nil {
		return nil, objstore.FromRPC(opList, b.name, "", err)
	}
	if resp == nil {
		return nil, b.emptyResponse(opList, "")
	}

	keys := make([]string, 0, len(resp.Blobs))
	for _, blob := range resp.Blobs {
		if blob != nil {
			keys = append(keys, blob.Key)
		}
	}
	return keys, nil
}

// Exists reports whether key is present. The server checks metadata only.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := b.check(opExists, key, true); err != nil {
		return false, err
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	resp, err := b.client.rpc.Exists(ctx, &objstore.StorageExistsRequest{BucketName: b.name, Key: key})
	if err != nil {
		return false, objstore.FromRPC(opExists, b.name, key, err)
	}
	if resp == nil {
		return false, b.emptyResponse(opExists, key)
	}
	return resp.Exists, nil
}

// PresignURL returns a URL granting op on key for expiry, counted from the
// moment the backend signs it.
func (b *Bucket) PresignURL(ctx context.Context, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	if err := b.check(opPresign, key, true); err != nil {
		return "", err
	}
	if err := objstore.CheckExpiry(expiry); err != nil {
		return "", objstore.Scope(err, opPresign, b.name, key)
	}
	if _, err := op.Method(); err != nil {
		return "", objstore.Scope(err, opPresign, b.name, key)
	}
	ctx, cancel := b.client.callContext(ctx)
	defer cancel()

	resp, err := b.client.rpc.PreSignUrl(ctx, &objstore.StoragePreSignUrlRequest{
		BucketName: b.name,
		Key:        key,
		Operation:  op,
		Expiry:     expiry,
	})
	if err != nil {
		return "", objstore.FromRPC(opPresign, b.name, key, err)
	}
	if resp == nil || resp.Url == "" {
		return "", b.emptyResponse(opPresign, key)
	}
	return resp.Url, nil
}

// GetDownloadURL presigns a read of key, valid for DefaultPresignExpiry
// unless opts says otherwise. opts may be nil.
func (b *Bucket) GetDownloadURL(ctx context.Context, key string, opts *PresignOptions) (string, error) {
	op, expiry, err := opts.resolve(objstore.OperationRead)
	if err != nil {
		return "", objstore.Scope(err, opPresign, b.name, key)
	}
	return b.PresignURL(ctx, key, op, expiry)
}

// GetUploadURL presigns a write of key, valid for DefaultPresignExpiry
// unless opts says otherwise. opts may be nil.
func (b *Bucket) GetUploadURL(ctx context.Context, key string, opts *PresignOptions) (string, error) {
	op, expiry, err := opts.resolve(objstore.OperationWrite)
	if err != nil {
		return "", objstore.Scope(err, opPresign, b.name, key)
	}
	return b.PresignURL(ctx, key, op, expiry)
}
