// Package repository persists the outcome of completed capture sessions.
package repository

import (
	"context"
	"time"

	"github.com/anime-shed/id-capture-go/pkg/models"
)

// CaptureRepository defines the interface for capture record operations
type CaptureRepository interface {
	// Save stores a completed capture. ID and CompletedAt are filled in when empty.
	Save(ctx context.Context, record *CaptureRecord) error

	// Get retrieves a stored capture by id
	Get(ctx context.Context, id string) (*CaptureRecord, error)

	// ListByClientRef returns the newest captures for a client reference
	ListByClientRef(ctx context.Context, clientRef string, limit int) ([]*CaptureRecord, error)
}

// CaptureRecord is one completed capture session.
type CaptureRecord struct {
	ID          string                  `json:"id"`
	SessionID   string                  `json:"session_id"`
	Profile     string                  `json:"profile"`
	ClientRef   string                  `json:"client_ref,omitempty"`
	Mode        string                  `json:"mode"`
	Documents   []models.StoredDocument `json:"documents"`
	CompletedAt time.Time               `json:"completed_at"`
}

func (r *CaptureRecord) validate() error {
	if r == nil || r.SessionID == "" || r.Profile == "" {
		return ErrInvalidRecord
	}
	return nil
}
