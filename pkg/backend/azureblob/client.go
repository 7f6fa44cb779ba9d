package azureblob

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
)

// blobAPI is the subset of Azure Blob Storage the service needs. Containers
// and blobs are addressed by name.
type blobAPI interface {
	Upload(ctx context.Context, container, name string, body []byte, contentType string) error
	Download(ctx context.Context, container, name string) ([]byte, error)
	Delete(ctx context.Context, container, name string) error
	// ListPage returns one page of blob names and the marker of the next page,
	// nil or empty when there is none.
	ListPage(ctx context.Context, container, prefix string, marker *string) ([]string, *string, error)
	GetProperties(ctx context.Context, container, name string) error
	SignURL(ctx context.Context, container, name string, perms sas.BlobPermissions, expiry time.Time) (string, error)
}

type sdkClient struct {
	client *azblob.Client
	// nil when authenticating with Azure AD; URLs are then signed with a
	// user delegation key
	sharedKey *azblob.SharedKeyCredential
}

func (c *sdkClient) blobClient(container, name string) *blob.Client {
	return c.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)
}

func (c *sdkClient) Upload(ctx context.Context, container, name string, body []byte, contentType string) error {
	_, err := c.client.UploadBuffer(ctx, container, name, body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	return err
}

func (c *sdkClient) Download(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ioutil.ReadAll(resp.Body)
}

func (c *sdkClient) Delete(ctx context.Context, container, name string) error {
	_, err := c.client.DeleteBlob(ctx, container, name, &azblob.DeleteBlobOptions{
		DeleteSnapshots: to.Ptr(azblob.DeleteSnapshotsOptionTypeInclude),
	})
	return err
}

func (c *sdkClient) ListPage(ctx context.Context, container, prefix string, marker *string) ([]string, *string, error) {
	opts := &azblob.ListBlobsFlatOptions{Marker: marker}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	pager := c.client.NewListBlobsFlatPager(container, opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, nil, err
	}

	var names []string
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, resp.NextMarker, nil
}

func (c *sdkClient) GetProperties(ctx context.Context, container, name string) error {
	_, err := c.blobClient(container, name).GetProperties(ctx, nil)
	return err
}

func (c *sdkClient) SignURL(ctx context.Context, container, name string, perms sas.BlobPermissions, expiry time.Time) (string, error) {
	// allow for clock skew between us and the storage account
	start := time.Now().UTC().Add(-5 * time.Minute)
	blobClient := c.blobClient(container, name)

	if c.sharedKey != nil {
		return blobClient.GetSASURL(perms, expiry, &blob.GetSASURLOptions{StartTime: &start})
	}

	cred, err := c.client.ServiceClient().GetUserDelegationCredential(ctx, service.KeyInfo{
		Start:  to.Ptr(start.Format(sas.TimeFormat)),
		Expiry: to.Ptr(expiry.UTC().Format(sas.TimeFormat)),
	}, nil)
	if err != nil {
		return "", err
	}

	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     start,
		ExpiryTime:    expiry.UTC(),
		Permissions:   perms.String(),
		ContainerName: container,
		BlobName:      name,
	}.SignWithUserDelegation(cred)
	if err != nil {
		return "", err
	}
	return blobClient.URL() + "?" + params.Encode(), nil
}
