// Package storage is the client binding for the SRK Object Storage API.
//
// A Client holds one multiplexed channel to the storage server and is safe
// for concurrent use. Buckets are cheap handles on top of it:
//
//	client, err := storage.Dial(storage.Config{Address: "localhost:9000"})
//	...
//	defer client.Close()
//	photos := client.Bucket("photos")
//	err = photos.Write(ctx, "cats/1.png", data)
//
// Every error returned by a Bucket is an *objstore.Error naming the bucket,
// the operation and, where there is one, the key.
package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const DefaultMaxMsgSize = 64 << 20

type Config struct {
	// Address of the storage server, host:port.
	Address string
	// TLS enables transport security. CAFile, when set, replaces the system
	// roots for verifying the server.
	TLS    bool
	CAFile string
	// CallTimeout bounds calls whose context carries no deadline. Zero means
	// no bound.
	CallTimeout time.Duration
	// MaxMsgSize limits the size of blobs that can be read or written.
	// Defaults to DefaultMaxMsgSize.
	MaxMsgSize int
}

type Client struct {
	rpc  objstore.StorageClient
	conn *grpc.ClientConn
	cfg  Config
}

// Dial creates the channel to cfg.Address. The connection is established
// lazily by the first call.
func Dial(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("storage server address is required")
	}
	maxMsgSize := cfg.MaxMsgSize
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMsgSize
	}

	creds := insecure.NewCredentials()
	if cfg.TLS {
		if cfg.CAFile != "" {
			var err error
			if creds, err = credentials.NewClientTLSFromFile(cfg.CAFile, ""); err != nil {
				return nil, errors.Wrapf(err, "failed to load CA certificate %s", cfg.CAFile)
			}
		} else {
			creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		}
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize)),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create channel to %s", cfg.Address)
	}
	c := New(objstore.NewStorageClient(conn), cfg)
	c.conn = conn
	return c, nil
}

// New wraps an existing StorageClient. Close is then a no-op.
func New(rpc objstore.StorageClient, cfg Config) *Client {
	return &Client{rpc: rpc, cfg: cfg}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Bucket returns a handle on the named logical bucket. No call is made.
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{name: name, client: c}
}

// callContext applies the configured call timeout unless ctx already has a
// deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}
