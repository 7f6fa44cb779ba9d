package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeRPC answers every call with the configured response and error, and
// records the last request.
type fakeRPC struct {
	err      error
	nilReply bool
	last     interface{}
	deadline time.Time
	url      string
}

func (f *fakeRPC) record(ctx context.Context, in interface{}) {
	f.last = in
	f.deadline, _ = ctx.Deadline()
}

func (f *fakeRPC) Read(ctx context.Context, in *objstore.StorageReadRequest, opts ...grpc.CallOption) (*objstore.StorageReadResponse, error) {
	f.record(ctx, in)
	if f.err != nil || f.nilReply {
		return nil, f.err
	}
	return &objstore.StorageReadResponse{Body: []byte("data")}, nil
}

func (f *fakeRPC) Write(ctx context.Context, in *objstore.StorageWriteRequest, opts ...grpc.CallOption) (*objstore.StorageWriteResponse, error) {
	f.record(ctx, in)
	if f.err != nil {
		return nil, f.err
	}
	return &objstore.StorageWriteResponse{}, nil
}

func (f *fakeRPC) Delete(ctx context.Context, in *objstore.StorageDeleteRequest, opts ...grpc.CallOption) (*objstore.StorageDeleteResponse, error) {
	f.record(ctx, in)
	if f.err != nil {
		return nil, f.err
	}
	return &objstore.StorageDeleteResponse{}, nil
}

func (f *fakeRPC) ListBlobs(ctx context.Context, in *objstore.StorageListBlobsRequest, opts ...grpc.CallOption) (*objstore.StorageListBlobsResponse, error) {
	f.record(ctx, in)
	if f.err != nil || f.nilReply {
		return nil, f.err
	}
	return &objstore.StorageListBlobsResponse{Blobs: []*objstore.Blob{{Key: "b"}, {Key: "a"}}}, nil
}

func (f *fakeRPC) Exists(ctx context.Context, in *objstore.StorageExistsRequest, opts ...grpc.CallOption) (*objstore.StorageExistsResponse, error) {
	f.record(ctx, in)
	if f.err != nil || f.nilReply {
		return nil, f.err
	}
	return &objstore.StorageExistsResponse{Exists: true}, nil
}

func (f *fakeRPC) PreSignUrl(ctx context.Context, in *objstore.StoragePreSignUrlRequest, opts ...grpc.CallOption) (*objstore.StoragePreSignUrlResponse, error) {
	f.record(ctx, in)
	if f.err != nil || f.nilReply {
		return nil, f.err
	}
	return &objstore.StoragePreSignUrlResponse{Url: f.url}, nil
}

func newTestBucket(cfg Config) (*Bucket, *fakeRPC) {
	fake := &fakeRPC{url: "https://example.test/signed"}
	return New(fake, cfg).Bucket("photos"), fake
}

func TestRequestsCarryBucketAndKey(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	data, err := b.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, &objstore.StorageReadRequest{BucketName: "photos", Key: "k1"}, fake.last)

	require.NoError(t, b.Write(ctx, "k2", nil))
	assert.Equal(t, &objstore.StorageWriteRequest{BucketName: "photos", Key: "k2"}, fake.last)

	require.NoError(t, b.Delete(ctx, "k3"))
	assert.Equal(t, &objstore.StorageDeleteRequest{BucketName: "photos", Key: "k3"}, fake.last)

	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys)

	exists, err := b.Exists(ctx, "k4")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEmptyKeyFailsBeforeCall(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	_, err := b.Read(ctx, "")
	assert.True(t, objstore.IsInvalidArgument(err))
	assert.Nil(t, fake.last)

	err = New(fake, Config{}).Bucket("").Write(ctx, "k", nil)
	assert.True(t, objstore.IsInvalidArgument(err))
	assert.Nil(t, fake.last)
}

func TestFailureShapesAreDistinct(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	// (a) a fault returned by the server
	fake.err = status.Error(codes.NotFound, "object does not exist")
	_, err := b.Read(ctx, "missing")
	assert.True(t, objstore.IsNotFound(err))

	// (b) the channel failed
	fake.err = status.Error(codes.Unavailable, "connection refused")
	_, err = b.Read(ctx, "k")
	assert.True(t, objstore.IsTransportFailure(err))

	// (c) success without a payload
	fake.err, fake.nilReply = nil, true
	_, err = b.Read(ctx, "k")
	assert.True(t, objstore.IsEmptyResponse(err))
	_, err = b.List(ctx, "")
	assert.True(t, objstore.IsEmptyResponse(err))
	_, err = b.Exists(ctx, "k")
	assert.True(t, objstore.IsEmptyResponse(err))

	var e *objstore.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "photos", e.Bucket)
	assert.Equal(t, "exists", e.Op)
}

func TestEmptyURLIsEmptyResponse(t *testing.T) {
	b, fake := newTestBucket(Config{})
	fake.url = ""

	_, err := b.GetDownloadURL(context.Background(), "k", nil)
	assert.True(t, objstore.IsEmptyResponse(err))
}

func TestCallTimeout(t *testing.T) {
	b, fake := newTestBucket(Config{CallTimeout: time.Minute})

	before := time.Now()
	_, err := b.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Minute), fake.deadline, 5*time.Second)

	// a caller deadline wins
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	_, err = b.Read(ctx, "k")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), fake.deadline, 5*time.Second)
}

func TestPresignDefaults(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	url, err := b.GetDownloadURL(ctx, "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/signed", url)
	assert.Equal(t, &objstore.StoragePreSignUrlRequest{
		BucketName: "photos", Key: "k", Operation: objstore.OperationRead, Expiry: 300 * time.Second,
	}, fake.last)

	_, err = b.GetUploadURL(ctx, "k", nil)
	require.NoError(t, err)
	assert.Equal(t, objstore.OperationWrite, fake.last.(*objstore.StoragePreSignUrlRequest).Operation)
	assert.Equal(t, DefaultPresignExpiry, fake.last.(*objstore.StoragePreSignUrlRequest).Expiry)
}

func TestPresignPartialOverride(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	_, err := b.GetDownloadURL(ctx, "k", &PresignOptions{Expiry: time.Hour})
	require.NoError(t, err)
	req := fake.last.(*objstore.StoragePreSignUrlRequest)
	assert.Equal(t, objstore.OperationRead, req.Operation)
	assert.Equal(t, time.Hour, req.Expiry)

	_, err = b.GetUploadURL(ctx, "k", &PresignOptions{Mode: ModeRead})
	require.NoError(t, err)
	req = fake.last.(*objstore.StoragePreSignUrlRequest)
	assert.Equal(t, objstore.OperationRead, req.Operation)
	assert.Equal(t, DefaultPresignExpiry, req.Expiry)
}

func TestPresignRejectsBadInput(t *testing.T) {
	b, fake := newTestBucket(Config{})
	ctx := context.Background()

	_, err := b.GetDownloadURL(ctx, "k", &PresignOptions{Expiry: -time.Second})
	assert.True(t, objstore.IsInvalidArgument(err))

	_, err = b.PresignURL(ctx, "k", objstore.OperationRead, 0)
	assert.True(t, objstore.IsInvalidArgument(err))

	// backends sign with one second precision, so these would be dead on issue
	_, err = b.PresignURL(ctx, "k", objstore.OperationRead, 500*time.Millisecond)
	assert.True(t, objstore.IsInvalidArgument(err))
	_, err = b.GetDownloadURL(ctx, "k", &PresignOptions{Expiry: 1500 * time.Millisecond})
	assert.True(t, objstore.IsInvalidArgument(err))

	_, err = b.PresignURL(ctx, "k", objstore.Operation(4), time.Minute)
	assert.True(t, objstore.IsInvalidArgument(err))

	_, err = b.GetUploadURL(ctx, "k", &PresignOptions{Mode: Mode(9)})
	assert.True(t, objstore.IsInvalidArgument(err))
	assert.Nil(t, fake.last)
}

func TestDialRequiresAddress(t *testing.T) {
	_, err := Dial(Config{})
	assert.Error(t, err)
}
