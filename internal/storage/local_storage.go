package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type localStorage struct {
	root   string
	prefix string
}

// NewLocalStorage writes documents under root.
func NewLocalStorage(root, prefix string) (DocumentStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &localStorage{root: root, prefix: prefix}, nil
}

func (s *localStorage) Store(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(ObjectKey(s.prefix, doc)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create document directory: %w", err)
	}

	tmp := target + ".part"
	if err := os.WriteFile(tmp, doc.Data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize document: %w", err)
	}
	return "file://" + filepath.ToSlash(target), nil
}

func (s *localStorage) Name() string { return "local" }

func (s *localStorage) Close() error { return nil }
