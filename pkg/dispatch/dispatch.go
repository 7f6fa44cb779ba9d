// Package dispatch serves the Storage API by routing each call to the backend
// bound to its bucket.
package dispatch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/sirupsen/logrus"
)

const (
	opRead    = "read"
	opWrite   = "write"
	opDelete  = "delete"
	opList    = "list"
	opExists  = "exists"
	opPresign = "presign"
)

// Dispatcher implements objstore.StorageServer. The bindings it is given are
// never modified, so calls run concurrently without locking.
type Dispatcher struct {
	objstore.UnimplementedStorageServer

	buckets map[string]srk.BucketBinding
	log     srk.Logger
}

func New(logger srk.Logger, provider *srk.Provider) *Dispatcher {
	buckets := make(map[string]srk.BucketBinding, len(provider.Buckets))
	for name, b := range provider.Buckets {
		buckets[name] = b
	}
	return &Dispatcher{buckets: buckets, log: logger}
}

func (d *Dispatcher) resolve(bucket string) (srk.BucketBinding, error) {
	if bucket == "" {
		return srk.BucketBinding{}, objstore.Errorf(objstore.InvalidArgument, nil, "bucket name must not be empty")
	}
	b, ok := d.buckets[bucket]
	if !ok || b.Service == nil {
		return srk.BucketBinding{}, objstore.Errorf(objstore.NotFound, nil, "bucket %q is not configured", bucket)
	}
	return b, nil
}

func validateKey(key string) error {
	if key == "" {
		return objstore.Errorf(objstore.InvalidArgument, nil, "key must not be empty")
	}
	if !utf8.ValidString(key) {
		return objstore.Errorf(objstore.InvalidArgument, nil, "key must be valid UTF-8")
	}
	return nil
}

// prepare validates the request and resolves its bucket.
func (d *Dispatcher) prepare(bucket, key string, needKey bool) (srk.BucketBinding, error) {
	if needKey {
		if err := validateKey(key); err != nil {
			return srk.BucketBinding{}, err
		}
	}
	return d.resolve(bucket)
}

// finish scopes err to the logical request, logs the outcome and converts
// the error for the wire.
func (d *Dispatcher) finish(op, bucket, key string, b srk.BucketBinding, err error) error {
	log := d.log.WithFields(logrus.Fields{
		"op":     op,
		"bucket": bucket,
	})
	if key != "" {
		log = log.WithField("key", key)
	}
	if b.Provider != "" {
		log = log.WithField("provider", b.Provider)
	}

	if err == nil {
		log.Debug("request completed")
		return nil
	}

	scoped := objstore.Scope(err, op, bucket, key)
	log = log.WithField("kind", scoped.Kind.String()).WithError(scoped)
	if scoped.Kind == objstore.Internal {
		log.Error("storage request failed")
	} else {
		log.Warn("storage request rejected")
	}
	return objstore.ToStatus(scoped)
}

func (d *Dispatcher) Read(ctx context.Context, req *objstore.StorageReadRequest) (*objstore.StorageReadResponse, error) {
	b, err := d.prepare(req.BucketName, req.Key, true)
	if err != nil {
		return nil, d.finish(opRead, req.BucketName, req.Key, b, err)
	}
	body, err := b.Service.Read(ctx, b.NativeName, req.Key)
	if err != nil {
		return nil, d.finish(opRead, req.BucketName, req.Key, b, err)
	}
	d.finish(opRead, req.BucketName, req.Key, b, nil)
	return &objstore.StorageReadResponse{Body: body}, nil
}

func (d *Dispatcher) Write(ctx context.Context, req *objstore.StorageWriteRequest) (*objstore.StorageWriteResponse, error) {
	b, err := d.prepare(req.BucketName, req.Key, true)
	if err == nil {
		err = b.Service.Write(ctx, b.NativeName, req.Key, req.Body)
	}
	if err := d.finish(opWrite, req.BucketName, req.Key, b, err); err != nil {
		return nil, err
	}
	return &objstore.StorageWriteResponse{}, nil
}

// Delete reports success for keys that do not exist.
func (d *Dispatcher) Delete(ctx context.Context, req *objstore.StorageDeleteRequest) (*objstore.StorageDeleteResponse, error) {
	b, err := d.prepare(req.BucketName, req.Key, true)
	if err == nil {
		err = b.Service.Delete(ctx, b.NativeName, req.Key)
		if objstore.IsNotFound(err) {
			err = nil
		}
	}
	if err := d.finish(opDelete, req.BucketName, req.Key, b, err); err != nil {
		return nil, err
	}
	return &objstore.StorageDeleteResponse{}, nil
}

func (d *Dispatcher) ListBlobs(ctx context.Context, req *objstore.StorageListBlobsRequest) (*objstore.StorageListBlobsResponse, error) {
	b, err := d.prepare(req.BucketName, "", false)
	if err != nil {
		return nil, d.finish(opList, req.BucketName, "", b, err)
	}
	keys, err := b.Service.List(ctx, b.NativeName, req.Prefix)
	if err != nil {
		return nil, d.finish(opList, req.BucketName, "", b, err)
	}

	resp := &objstore.StorageListBlobsResponse{Blobs: make([]*objstore.Blob, 0, len(keys))}
	for _, k := range keys {
		if strings.HasPrefix(k, req.Prefix) {
			resp.Blobs = append(resp.Blobs, &objstore.Blob{Key: k})
		}
	}
	d.finish(opList, req.BucketName, "", b, nil)
	return resp, nil
}

func (d *Dispatcher) Exists(ctx context.Context, req *objstore.StorageExistsRequest) (*objstore.StorageExistsResponse, error) {
	b, err := d.prepare(req.BucketName, req.Key, true)
	if err != nil {
		return nil, d.finish(opExists, req.BucketName, req.Key, b, err)
	}
	exists, err := b.Service.Exists(ctx, b.NativeName, req.Key)
	if err != nil {
		return nil, d.finish(opExists, req.BucketName, req.Key, b, err)
	}
	d.finish(opExists, req.BucketName, req.Key, b, nil)
	return &objstore.StorageExistsResponse{Exists: exists}, nil
}

// PreSignUrl passes the expiry to the backend unchanged; the backend computes
// the absolute expiration when it signs.
func (d *Dispatcher) PreSignUrl(ctx context.Context, req *objstore.StoragePreSignUrlRequest) (*objstore.StoragePreSignUrlResponse, error) {
	b, err := d.preparePresign(req)
	if err != nil {
		return nil, d.finish(opPresign, req.BucketName, req.Key, b, err)
	}
	url, err := b.Service.PreSignURL(ctx, b.NativeName, req.Key, req.Operation, req.Expiry)
	if err == nil && url == "" {
		err = objstore.Errorf(objstore.Internal, nil, "backend returned an empty url")
	}
	if err != nil {
		return nil, d.finish(opPresign, req.BucketName, req.Key, b, err)
	}
	d.finish(opPresign, req.BucketName, req.Key, b, nil)
	return &objstore.StoragePreSignUrlResponse{Url: url}, nil
}

func (d *Dispatcher) preparePresign(req *objstore.StoragePreSignUrlRequest) (srk.BucketBinding, error) {
	if _, err := req.Operation.Method(); err != nil {
		return srk.BucketBinding{}, err
	}
	if err := objstore.CheckExpiry(req.Expiry); err != nil {
		return srk.BucketBinding{}, err
	}
	return d.prepare(req.BucketName, req.Key, true)
}
