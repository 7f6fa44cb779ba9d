// Azure Blob Storage. Implements the srk.BlobService interface.
//
// Buckets map to containers of a single storage account.
package azureblob

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/spf13/viper"
)

type azureStorage struct {
	client blobAPI
	now    func() time.Time
	log    srk.Logger
}

// NewService connects to the account named in the "service.storage.azblob"
// section of the configuration. With an account-key the shared key is used
// for requests and for signing; otherwise credentials come from
// azidentity.DefaultAzureCredential.
func NewService(logger srk.Logger, config *viper.Viper) (*azureStorage, error) {
	if config == nil {
		config = viper.New()
	}

	account := config.GetString("account-name")
	endpoint := config.GetString("endpoint")
	if endpoint == "" {
		if account == "" {
			return nil, errors.New("configuration setting 'account-name' or 'endpoint' is required")
		}
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}

	c := &sdkClient{}
	if key := config.GetString("account-key"); key != "" {
		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid storage account key")
		}
		client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Azure Blob client")
		}
		c.client, c.sharedKey = client, cred
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load Azure credentials")
		}
		client, err := azblob.NewClient(endpoint, cred, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Azure Blob client")
		}
		c.client = client
	}

	return newStorage(logger, c), nil
}

func newStorage(logger srk.Logger, client blobAPI) *azureStorage {
	return &azureStorage{client: client, now: time.Now, log: logger}
}

func errorHandler(err error, bucket string) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return objstore.Errorf(objstore.NotFound, err, "object does not exist")
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return objstore.Errorf(objstore.NotFound, err, "container does not exist")
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return objstore.Errorf(objstore.PermissionDenied, err,
			"access denied, check that the server's Azure identity has a Storage Blob Data role on container %q", bucket)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return objstore.Errorf(objstore.NotFound, err, "object does not exist")
		case http.StatusForbidden:
			return objstore.Errorf(objstore.PermissionDenied, err,
				"access denied, check that the server's Azure identity has a Storage Blob Data role on container %q", bucket)
		}
	}
	if objstore.Unreachable(err) {
		return objstore.Errorf(objstore.TransportFailure, err, "azure blob storage is unreachable")
	}
	return objstore.Errorf(objstore.Internal, err, "azure blob request failed")
}

func (s *azureStorage) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := s.client.Download(ctx, bucket, key)
	if err != nil {
		return nil, errorHandler(err, bucket)
	}
	return data, nil
}

func (s *azureStorage) Write(ctx context.Context, bucket, key string, body []byte) error {
	if err := s.client.Upload(ctx, bucket, key, body, srk.DetectContentType(key, body)); err != nil {
		return errorHandler(err, bucket)
	}
	return nil
}

// Delete treats a missing blob as already deleted.
func (s *azureStorage) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Delete(ctx, bucket, key)
	if err == nil || bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return errorHandler(err, bucket)
}

func (s *azureStorage) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys := []string{}
	var marker *string
	for {
		names, next, err := s.client.ListPage(ctx, bucket, prefix, marker)
		if err != nil {
			return nil, errorHandler(err, bucket)
		}
		keys = append(keys, names...)
		if next == nil || *next == "" {
			return keys, nil
		}
		marker = next
	}
}

func (s *azureStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	err := s.client.GetProperties(ctx, bucket, key)
	if err == nil {
		return true, nil
	}
	if err = errorHandler(err, bucket); objstore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *azureStorage) PreSignURL(ctx context.Context, bucket, key string, op objstore.Operation, expiry time.Duration) (string, error) {
	var perms sas.BlobPermissions
	switch op {
	case objstore.OperationRead:
		perms.Read = true
	case objstore.OperationWrite:
		perms.Create = true
		perms.Write = true
	default:
		return "", objstore.Errorf(objstore.InvalidArgument, nil, "requested operation %s is not supported for Azure urls", op)
	}

	url, err := s.client.SignURL(ctx, bucket, key, perms, s.now().Add(expiry))
	if err != nil {
		// fetching a user delegation key needs its own role assignment
		if denied := errorHandler(err, bucket); objstore.IsPermissionDenied(denied) {
			return "", denied
		}
		return "", objstore.Errorf(objstore.Internal, err, "failed to sign %s url", op)
	}
	return url, nil
}
