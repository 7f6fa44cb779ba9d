package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type presignCall struct {
	bucket, key string
	op          objstore.Operation
	expiry      time.Duration
}

// fakeService records calls and keeps blobs keyed by native bucket.
type fakeService struct {
	blobs    map[string][]byte
	listing  []string
	presigns []presignCall
	err      error
	// deleteErr is returned by Delete only
	deleteErr error
}

func newFakeService() *fakeService {
	return &fakeService{blobs: make(map[string][]byte)}
}

func (f *fakeService) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.blobs[bucket+"/"+key]
	if !ok {
		return nil, objstore.Errorf(objstore.NotFound, fmt.Errorf("ENOENT %s/%s", bucket, key), "object does not exist")
	}
	return data, nil
}

func (f *fakeService) Write(ctx context.Context, bucket, key string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.blobs[bucket+"/"+key] = body
	return nil
}

func (f *fakeService) Delete(ctx context.Context, bucket, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, bucket+"/"+key)
	return nil
}

func (f *fakeService) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listing, nil
}

func (f *fakeService) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.blobs[bucket+"/"+key]
	return ok, nil
}

func (f *fakeService) PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.presigns = append(f.presigns, presignCall{bucket, key, op, expiry})
	return "https://example.test/" + bucket + "/" + key, nil
}

var _ srk.BlobService = (*fakeService)(nil)

func newTestDispatcher() (*Dispatcher, *fakeService, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	fake := newFakeService()
	d := New(logger, &srk.Provider{Buckets: map[string]srk.BucketBinding{
		"photos": {Provider: "primary", Service: fake, NativeName: "prod-photos-7f3a"},
	}})
	return d, fake, hook
}

func code(err error) codes.Code {
	return status.Code(err)
}

func TestReadUsesNativeBucketName(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	fake.blobs["prod-photos-7f3a/cat.png"] = []byte("meow")

	resp, err := d.Read(context.Background(), &objstore.StorageReadRequest{BucketName: "photos", Key: "cat.png"})
	require.NoError(t, err)
	assert.Equal(t, []byte("meow"), resp.Body)
}

func TestReadMissingKeyHidesBackendCause(t *testing.T) {
	d, _, hook := newTestDispatcher()

	_, err := d.Read(context.Background(), &objstore.StorageReadRequest{BucketName: "photos", Key: "nope"})
	assert.Equal(t, codes.NotFound, code(err))
	assert.NotContains(t, status.Convert(err).Message(), "ENOENT")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "read", entry.Data["op"])
	assert.Equal(t, "photos", entry.Data["bucket"])
	assert.Equal(t, "nope", entry.Data["key"])
	assert.Equal(t, "not found", entry.Data["kind"])
}

func TestUnknownBucket(t *testing.T) {
	d, _, _ := newTestDispatcher()

	_, err := d.Write(context.Background(), &objstore.StorageWriteRequest{BucketName: "videos", Key: "k"})
	assert.Equal(t, codes.NotFound, code(err))
	assert.Contains(t, status.Convert(err).Message(), "videos")
}

func TestValidation(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx := context.Background()

	_, err := d.Read(ctx, &objstore.StorageReadRequest{BucketName: "photos"})
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = d.Exists(ctx, &objstore.StorageExistsRequest{Key: "k"})
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = d.Delete(ctx, &objstore.StorageDeleteRequest{BucketName: "photos", Key: "\xff\xfe"})
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestBackendFailureIsInternal(t *testing.T) {
	d, fake, hook := newTestDispatcher()
	fake.err = fmt.Errorf("connection to storage account reset")

	_, err := d.Write(context.Background(), &objstore.StorageWriteRequest{BucketName: "photos", Key: "k", Body: []byte("x")})
	assert.Equal(t, codes.Internal, code(err))
	assert.NotContains(t, status.Convert(err).Message(), "storage account")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestUnreachableBackendIsUnavailable(t *testing.T) {
	d, fake, hook := newTestDispatcher()

	for _, cause := range []error{
		objstore.Errorf(objstore.TransportFailure, &url.Error{Op: "Get", URL: "https://10.0.0.7/prod-photos-7f3a/k", Err: fmt.Errorf("connection refused")}, "s3 is unreachable"),
		&url.Error{Op: "Put", URL: "https://10.0.0.7/prod-photos-7f3a/k", Err: fmt.Errorf("no route to host")},
		context.DeadlineExceeded,
	} {
		fake.err = cause
		_, err := d.Read(context.Background(), &objstore.StorageReadRequest{BucketName: "photos", Key: "k"})
		assert.Equal(t, codes.Unavailable, code(err), "%v", cause)
		assert.NotContains(t, status.Convert(err).Message(), "10.0.0.7")
		assert.True(t, objstore.IsTransportFailure(objstore.FromRPC("read", "photos", "k", err)))

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "transport failure", entry.Data["kind"])
	}
}

func TestPermissionDeniedPassesThrough(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	fake.err = objstore.Errorf(objstore.PermissionDenied, fmt.Errorf("AccessDenied"), "access denied")

	_, err := d.Exists(context.Background(), &objstore.StorageExistsRequest{BucketName: "photos", Key: "k"})
	assert.Equal(t, codes.PermissionDenied, code(err))
	assert.Equal(t, "access denied", status.Convert(err).Message())
}

func TestDeleteNotFoundIsSuccess(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	fake.deleteErr = objstore.Errorf(objstore.NotFound, nil, "object does not exist")

	_, err := d.Delete(context.Background(), &objstore.StorageDeleteRequest{BucketName: "photos", Key: "gone"})
	assert.NoError(t, err)

	fake.deleteErr = objstore.Errorf(objstore.PermissionDenied, nil, "access denied")
	_, err = d.Delete(context.Background(), &objstore.StorageDeleteRequest{BucketName: "photos", Key: "gone"})
	assert.Equal(t, codes.PermissionDenied, code(err))
}

func TestListFiltersByPrefix(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	fake.listing = []string{"a/1", "a/2", "b/1"}

	resp, err := d.ListBlobs(context.Background(), &objstore.StorageListBlobsRequest{BucketName: "photos", Prefix: "a/"})
	require.NoError(t, err)
	require.Len(t, resp.Blobs, 2)
	assert.Equal(t, "a/1", resp.Blobs[0].Key)
	assert.Equal(t, "a/2", resp.Blobs[1].Key)

	fake.listing = nil
	resp, err = d.ListBlobs(context.Background(), &objstore.StorageListBlobsRequest{BucketName: "photos"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Blobs)
	assert.Empty(t, resp.Blobs)
}

func TestExists(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	fake.blobs["prod-photos-7f3a/k"] = nil

	resp, err := d.Exists(context.Background(), &objstore.StorageExistsRequest{BucketName: "photos", Key: "k"})
	require.NoError(t, err)
	assert.True(t, resp.Exists)

	resp, err = d.Exists(context.Background(), &objstore.StorageExistsRequest{BucketName: "photos", Key: "other"})
	require.NoError(t, err)
	assert.False(t, resp.Exists)
}

func TestPreSignPassesExpiryUnchanged(t *testing.T) {
	d, fake, hook := newTestDispatcher()
	expiry := 90 * time.Second

	resp, err := d.PreSignUrl(context.Background(), &objstore.StoragePreSignUrlRequest{
		BucketName: "photos",
		Key:        "k",
		Operation:  objstore.OperationWrite,
		Expiry:     expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/prod-photos-7f3a/k", resp.Url)
	require.Len(t, fake.presigns, 1)
	assert.Equal(t, presignCall{"prod-photos-7f3a", "k", objstore.OperationWrite, expiry}, fake.presigns[0])
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestPreSignValidation(t *testing.T) {
	d, fake, _ := newTestDispatcher()
	ctx := context.Background()

	for _, req := range []*objstore.StoragePreSignUrlRequest{
		{BucketName: "photos", Key: "k", Expiry: 0},
		{BucketName: "photos", Key: "k", Expiry: -time.Second},
		{BucketName: "photos", Key: "k", Expiry: 500 * time.Millisecond},
		{BucketName: "photos", Key: "k", Expiry: 1500 * time.Millisecond},
		{BucketName: "photos", Key: "k", Operation: objstore.Operation(5), Expiry: time.Minute},
		{BucketName: "photos", Expiry: time.Minute},
	} {
		_, err := d.PreSignUrl(ctx, req)
		assert.Equal(t, codes.InvalidArgument, code(err), "%+v", req)
	}
	assert.Empty(t, fake.presigns)
}
