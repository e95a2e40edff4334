package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

type azureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureStorage uploads documents as block blobs into container.
func NewAzureStorage(accountName, accountKey, container, prefix string) (DocumentStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}

	return &azureStorage{client: client, container: container, prefix: prefix}, nil
}

func (s *azureStorage) Store(ctx context.Context, doc Document) (string, error) {
	key := ObjectKey(s.prefix, doc)
	ct := contentType(doc)
	_, err := s.client.UploadBuffer(ctx, s.container, key, doc.Data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		Metadata: map[string]*string{
			"session_id": &doc.SessionID,
			"slot":       &doc.Slot,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return strings.TrimRight(s.client.URL(), "/") + "/" + s.container + "/" + key, nil
}

func (s *azureStorage) Name() string { return "azure" }

func (s *azureStorage) Close() error { return nil }
