package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

type gcsStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorage creates a store backed by Google Cloud Storage using
// application default credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (DocumentStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *gcsStorage) Store(ctx context.Context, doc Document) (string, error) {
	key := ObjectKey(s.prefix, doc)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(doc)
	w.Metadata = map[string]string{
		"session_id": doc.SessionID,
		"slot":       doc.Slot,
	}

	if _, err := w.Write(doc.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *gcsStorage) Name() string { return "gcs" }

func (s *gcsStorage) Close() error {
	return s.client.Close()
}
