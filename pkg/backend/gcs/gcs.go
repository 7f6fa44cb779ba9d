// Google Cloud Storage. Implements the srk.BlobService interface.
package gcs

import (
	"context"
	"io/ioutil"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/spf13/viper"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcsStorage struct {
	client gcsClient
	// explicit signing identity; when empty the client derives one from its
	// credentials
	accessID   string
	privateKey []byte
	now        func() time.Time
	log        srk.Logger
}

// NewService creates a client from the "service.storage.gcs" section of the
// configuration. Without credentials-file the application default
// credentials are used.
func NewService(logger srk.Logger, config *viper.Viper) (*gcsStorage, error) {
	if config == nil {
		config = viper.New()
	}

	var opts []option.ClientOption
	if file := config.GetString("credentials-file"); file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, errors.Wrap(err, "failed to expand credentials path")
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if endpoint := config.GetString("endpoint"); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if config.GetBool("without-authentication") {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Cloud Storage client")
	}

	s := newStorage(logger, sdkClient{client})
	s.accessID = config.GetString("google-access-id")
	if keyFile := config.GetString("private-key-file"); keyFile != "" {
		path, err := homedir.Expand(keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to expand private key path")
		}
		if s.privateKey, err = ioutil.ReadFile(path); err != nil {
			return nil, errors.Wrapf(err, "failed to read signing key %s", path)
		}
	}
	return s, nil
}

func newStorage(logger srk.Logger, client gcsClient) *gcsStorage {
	return &gcsStorage{client: client, now: time.Now, log: logger}
}

func (s *gcsStorage) Close() error {
	return s.client.Close()
}

func errorHandler(err error, bucket string) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return objstore.Errorf(objstore.NotFound, err, "object does not exist")
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return objstore.Errorf(objstore.NotFound, err, "bucket does not exist")
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			return objstore.Errorf(objstore.PermissionDenied, err,
				"access denied, check that the server's service account has been granted access to bucket %q", bucket)
		case http.StatusNotFound:
			return objstore.Errorf(objstore.NotFound, err, "object does not exist")
		}
	}
	if objstore.Unreachable(err) {
		return objstore.Errorf(objstore.TransportFailure, err, "cloud storage is unreachable")
	}
	return objstore.Errorf(objstore.Internal, err, "cloud storage request failed")
}

func (s *gcsStorage) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, errorHandler(err, bucket)
	}
	defer reader.Close()

	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, errorHandler(err, bucket)
	}
	return data, nil
}

func (s *gcsStorage) Write(ctx context.Context, bucket, key string, body []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx, srk.DetectContentType(key, body))
	if _, err := writer.Write(body); err != nil {
		// cancelling the context aborts the upload
		return errorHandler(err, bucket)
	}
	if err := writer.Close(); err != nil {
		return errorHandler(err, bucket)
	}
	return nil
}

// Delete ignores objects that do not exist, matching the other backends.
func (s *gcsStorage) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errorHandler(err, bucket)
}

func (s *gcsStorage) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	q := &storage.Query{Prefix: prefix, Projection: storage.ProjectionNoACL}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, objstore.Errorf(objstore.Internal, err, "invalid list query")
	}

	it := s.client.Bucket(bucket).Objects(ctx, q)
	keys := []string{}
	for {
		obj, err := it.Next()
		if err == iterator.Done {
			return keys, nil
		}
		if err != nil {
			return nil, errorHandler(err, bucket)
		}
		keys = append(keys, obj.Name)
	}
}

func (s *gcsStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if err = errorHandler(err, bucket); objstore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *gcsStorage) PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	method, err := op.Method()
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        s.now().Add(expiry),
		GoogleAccessID: s.accessID,
		PrivateKey:     s.privateKey,
	}
	url, err := s.client.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return "", objstore.Errorf(objstore.Internal, err, "failed to sign %s url", op)
	}
	return url, nil
}
