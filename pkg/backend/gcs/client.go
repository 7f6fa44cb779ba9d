package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// The interfaces below cover the parts of the Cloud Storage client the
// service calls, so that tests can substitute them.

type gcsClient interface {
	Bucket(name string) bucketHandle
	Close() error
}

type bucketHandle interface {
	Object(name string) objectHandle
	Objects(ctx context.Context, q *storage.Query) objectIterator
	SignedURL(object string, opts *storage.SignedURLOptions) (string, error)
}

type objectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context, contentType string) io.WriteCloser
	Delete(ctx context.Context) error
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
}

type objectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

type sdkClient struct{ c *storage.Client }

func (a sdkClient) Bucket(name string) bucketHandle { return sdkBucket{a.c.Bucket(name)} }
func (a sdkClient) Close() error                    { return a.c.Close() }

type sdkBucket struct{ b *storage.BucketHandle }

func (a sdkBucket) Object(name string) objectHandle { return sdkObject{a.b.Object(name)} }

func (a sdkBucket) Objects(ctx context.Context, q *storage.Query) objectIterator {
	return a.b.Objects(ctx, q)
}

func (a sdkBucket) SignedURL(object string, opts *storage.SignedURLOptions) (string, error) {
	return a.b.SignedURL(object, opts)
}

type sdkObject struct{ o *storage.ObjectHandle }

func (a sdkObject) NewReader(ctx context.Context) (io.ReadCloser, error) { return a.o.NewReader(ctx) }
func (a sdkObject) Delete(ctx context.Context) error                     { return a.o.Delete(ctx) }

func (a sdkObject) NewWriter(ctx context.Context, contentType string) io.WriteCloser {
	w := a.o.NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (a sdkObject) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return a.o.Attrs(ctx)
}
