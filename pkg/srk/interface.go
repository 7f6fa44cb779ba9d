// Standard interfaces and datatypes for the SRK storage project.
// Terms:
//   "service" : A specific implementation of object storage (e.g. S3, Azure Blob, GCS, local disk)
//   "provider" : A named, configured instance of a service. Buckets are bound to providers.
package srk

import (
	"context"
	"net/http"
	"time"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/sirupsen/logrus"
)

// Logger is what services log through. Any logrus logger or entry satisfies it.
type Logger = logrus.FieldLogger

// A provider aggregates the bucket bindings of a deployment. Bindings are
// resolved once, when the configuration is loaded, and never change after.
type Provider struct {
	Buckets map[string]BucketBinding
}

// BucketBinding ties a logical bucket name to the service that stores it.
type BucketBinding struct {
	// Provider is the configured provider name, for logging.
	Provider string
	Service  BlobService
	// NativeName is the bucket/container name as the backend knows it.
	NativeName string
}

// BlobService is implemented once per storage backend. Bucket arguments are
// always native names. Errors should be *objstore.Error values so that the
// dispatcher can report a meaningful kind; anything else is treated as Internal.
type BlobService interface {
	// Read returns the full contents of key. A missing key is objstore.NotFound.
	Read(ctx context.Context, bucket, key string) ([]byte, error)

	// Write stores body under key, fully replacing any previous blob.
	Write(ctx context.Context, bucket, key string, body []byte) error

	// Delete removes key. Deleting a missing key may succeed or return
	// objstore.NotFound; the dispatcher treats both as success.
	Delete(ctx context.Context, bucket, key string) error

	// List returns every key starting with prefix, exhausting any pagination
	// the backend applies.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Exists reports whether key is present using object metadata only.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// PreSignURL returns a URL authorizing op on exactly this bucket and key
	// until now+expiry, computed at signing time.
	PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error)
}

// Services that hold connections implement Closer. The manager calls Close on
// shutdown.
type Closer interface {
	Close() error
}

// Services that serve their own presigned URLs implement Gateway. The server
// mounts Routes at MountPath on its HTTP listener.
type Gateway interface {
	MountPath() string
	Routes() http.Handler
}
