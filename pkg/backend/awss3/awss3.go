// AWS S3 storage. Implements the srk.BlobService interface.
package awss3

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/spf13/viper"
)

const (
	// The SDK has no constants for these.
	errCodeNotFound     = "NotFound"
	errCodeAccessDenied = "AccessDenied"
	errCodeForbidden    = "Forbidden"
)

type s3Storage struct {
	client s3iface.S3API
	log    srk.Logger
}

// NewService builds a client from the "service.storage.s3" section of the
// configuration. Credentials come from the default AWS chain unless
// access-key-id and secret-access-key are set.
func NewService(logger srk.Logger, config *viper.Viper) (*s3Storage, error) {
	if config == nil {
		config = viper.New()
	}

	awsCfg := &aws.Config{}
	if region := config.GetString("region"); region != "" {
		awsCfg.Region = aws.String(region)
	}
	if endpoint := config.GetString("endpoint"); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
	}
	if config.GetBool("force-path-style") {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if id := config.GetString("access-key-id"); id != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			id,
			config.GetString("secret-access-key"),
			config.GetString("session-token"))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}
	return New(logger, s3.New(sess)), nil
}

// New wraps an existing client.
func New(logger srk.Logger, client s3iface.S3API) *s3Storage {
	return &s3Storage{client: client, log: logger}
}

func errorHandler(err error, bucket string) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		if objstore.Unreachable(err) {
			return objstore.Errorf(objstore.TransportFailure, err, "s3 is unreachable")
		}
		return objstore.Errorf(objstore.Internal, err, "s3 request failed")
	}
	switch aerr.Code() {
	case request.ErrCodeRequestError, request.CanceledErrorCode, request.ErrCodeResponseTimeout:
		return objstore.Errorf(objstore.TransportFailure, err, "s3 is unreachable")
	case s3.ErrCodeNoSuchKey, errCodeNotFound:
		return objstore.Errorf(objstore.NotFound, err, "object does not exist")
	case s3.ErrCodeNoSuchBucket:
		return objstore.Errorf(objstore.NotFound, err, "bucket does not exist")
	case errCodeAccessDenied, errCodeForbidden:
		return objstore.Errorf(objstore.PermissionDenied, err,
			"access denied, check that the server's AWS credentials grant access to bucket %q", bucket)
	}

	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) {
		switch rerr.StatusCode() {
		case http.StatusNotFound:
			return objstore.Errorf(objstore.NotFound, err, "object does not exist")
		case http.StatusForbidden:
			return objstore.Errorf(objstore.PermissionDenied, err,
				"access denied, check that the server's AWS credentials grant access to bucket %q", bucket)
		}
	}
	return objstore.Errorf(objstore.Internal, err, "s3 request failed")
}

func (s *s3Storage) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errorHandler(err, bucket)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, objstore.Errorf(objstore.Internal, err, "failed to read object body")
	}
	return data, nil
}

func (s *s3Storage) Write(ctx context.Context, bucket, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(srk.DetectContentType(key, body)),
	})
	if err != nil {
		return errorHandler(err, bucket)
	}
	return nil
}

// Delete succeeds on missing keys, as S3 itself does.
func (s *s3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errorHandler(err, bucket)
	}
	return nil
}

func (s *s3Storage) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	keys := []string{}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, errorHandler(err, bucket)
	}
	return keys, nil
}

// Exists only looks at object metadata.
func (s *s3Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = errorHandler(err, bucket); objstore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *s3Storage) PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	var req *request.Request
	switch op {
	case objstore.OperationRead:
		req, _ = s.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	case objstore.OperationWrite:
		req, _ = s.client.PutObjectRequest(&s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	default:
		return "", objstore.Errorf(objstore.InvalidArgument, nil, "requested operation %s is not supported for S3 urls", op)
	}

	url, err := req.Presign(expiry)
	if err != nil {
		return "", objstore.Errorf(objstore.Internal, err, "failed to sign %s url", op)
	}
	return url, nil
}
