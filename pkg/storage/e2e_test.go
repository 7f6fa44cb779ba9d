package storage_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/backend/local"
	"github.com/serverlessresearch/srkstore/pkg/dispatch"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/serverlessresearch/srkstore/pkg/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	client  *storage.Client
	clock   *clock
	gateway *httptest.Server
	stop    func()
}

// newHarness runs the storage server over an in-memory listener, with the
// logical bucket "photos" bound to the local backend.
func newHarness(t *testing.T) *harness {
	logger, _ := test.NewNullLogger()
	clk := &clock{now: time.Unix(1700000000, 0)}

	mux := http.NewServeMux()
	gateway := httptest.NewServer(mux)

	backend, err := local.New(logger, afero.NewMemMapFs(), local.Config{
		Root:    "/srv/objects",
		BaseURL: gateway.URL + "/local",
		Secret:  []byte("test-secret"),
		Now:     clk.Now,
	})
	require.NoError(t, err)
	mux.Handle(backend.MountPath()+"/", http.StripPrefix(backend.MountPath(), backend.Routes()))

	provider := &srk.Provider{Buckets: map[string]srk.BucketBinding{
		"photos": {Provider: "default", Service: backend, NativeName: "photos-native"},
	}}

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(objstore.ServerOptions()...)
	objstore.RegisterStorageServer(server, dispatch.New(logger, provider))
	go server.Serve(lis)

	client, err := storage.Dial(storage.Config{Address: "passthrough:///bufnet", CallTimeout: 5 * time.Second},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)

	h := &harness{client: client, clock: clk, gateway: gateway}
	h.stop = func() {
		client.Close()
		server.Stop()
		gateway.Close()
	}
	t.Cleanup(h.stop)
	return h
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()

	for _, body := range [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0, 1, 2, 255}, 4096)} {
		require.NoError(t, photos.Write(ctx, "k", body))
		got, err := photos.Read(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, len(body), len(got))
		assert.True(t, bytes.Equal(body, got))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()

	require.NoError(t, photos.Write(ctx, "gone", []byte("x")))
	require.NoError(t, photos.Delete(ctx, "gone"))
	require.NoError(t, photos.Delete(ctx, "gone"))
	require.NoError(t, photos.Delete(ctx, "never-written"))

	exists, err := photos.Exists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = photos.Read(ctx, "gone")
	assert.True(t, objstore.IsNotFound(err))
}

func TestListByPrefix(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()

	for _, k := range []string{"cats/1.png", "cats/2.png", "dogs/1.png"} {
		require.NoError(t, photos.Write(ctx, k, []byte(k)))
	}

	keys, err := photos.List(ctx, "cats/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cats/1.png", "cats/2.png"}, keys)

	keys, err = photos.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = photos.List(ctx, "birds/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestErrorsNameBucketAndOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Bucket("photos").Read(ctx, "missing.png")
	require.Error(t, err)
	assert.True(t, objstore.IsNotFound(err))
	assert.Contains(t, err.Error(), "photos")
	assert.Contains(t, err.Error(), "read")
	assert.Contains(t, err.Error(), "missing.png")

	err = h.client.Bucket("videos").Write(ctx, "a.mp4", []byte("x"))
	assert.True(t, objstore.IsNotFound(err))
	assert.Contains(t, err.Error(), "videos")
}

func TestPresignedDownloadHonoursExpiry(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()
	require.NoError(t, photos.Write(ctx, "cat.txt", []byte("meow")))

	url, err := photos.GetDownloadURL(ctx, "cat.txt", &storage.PresignOptions{Expiry: time.Minute})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, h.gateway.URL), url)

	h.clock.Advance(59 * time.Second)
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "meow", string(body))

	h.clock.Advance(time.Second)
	resp, err = http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPresignedUploadDefaultExpiry(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()

	url, err := photos.GetUploadURL(ctx, "upload.txt", nil)
	require.NoError(t, err)

	h.clock.Advance(storage.DefaultPresignExpiry - time.Second)
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader("uploaded"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := photos.Read(ctx, "upload.txt")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(got))

	// an upload URL does not grant reads
	resp, err = http.Get(strings.Replace(url, "/write/", "/read/", 1))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.clock.Advance(time.Second)
	req, err = http.NewRequest(http.MethodPut, url, strings.NewReader("late"))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.stop()

	_, err := h.client.Bucket("photos").Exists(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, objstore.IsTransportFailure(err), err.Error())
}

func TestConcurrentCallsShareOneClient(t *testing.T) {
	h := newHarness(t)
	photos := h.client.Bucket("photos")
	ctx := context.Background()

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("worker-%d/blob", i)
			body := bytes.Repeat([]byte{byte(i)}, 1024+i)

			if err := photos.Write(ctx, key, body); err != nil {
				errs <- err
				return
			}
			got, err := photos.Read(ctx, key)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(body, got) {
				errs <- fmt.Errorf("%s: read %d bytes, wrote %d", key, len(got), len(body))
				return
			}
			exists, err := photos.Exists(ctx, key)
			if err != nil {
				errs <- err
				return
			}
			if !exists {
				errs <- fmt.Errorf("%s: missing after write", key)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	keys, err := photos.List(ctx, "worker-")
	require.NoError(t, err)
	assert.Len(t, keys, workers)
}
