// Package preview issues displayable references for in-memory image bytes,
// the server-side counterpart of a browser object URL. Every reference must
// be revoked once its bytes are discarded or replaced.
package preview

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrRevoked is returned when revoking an unknown or already revoked reference.
var ErrRevoked = errors.New("preview already revoked")

// Handle identifies a live preview.
type Handle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool { return h.ID == "" }

type entry struct {
	data        []byte
	contentType string
}

// Registry stores preview bytes until they are revoked.
type Registry struct {
	baseURL string

	mu      sync.RWMutex
	entries map[string]entry

	created atomic.Int64
	revoked atomic.Int64
}

// NewRegistry returns a registry whose URLs are rooted at baseURL (e.g. "/previews").
func NewRegistry(baseURL string) *Registry {
	return &Registry{
		baseURL: baseURL,
		entries: make(map[string]entry),
	}
}

// Create registers data and returns its handle.
func (r *Registry) Create(data []byte, contentType string) Handle {
	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = entry{data: data, contentType: contentType}
	r.mu.Unlock()
	r.created.Add(1)
	return Handle{ID: id, URL: r.baseURL + "/" + id}
}

// Get returns the bytes behind a live handle.
func (r *Registry) Get(id string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.data, e.contentType, ok
}

// Revoke drops a handle. A second revoke of the same id returns ErrRevoked.
func (r *Registry) Revoke(id string) error {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return ErrRevoked
	}
	r.revoked.Add(1)
	return nil
}

// Stats reports lifetime counters and the number of live previews.
type Stats struct {
	Created int64 `json:"created"`
	Revoked int64 `json:"revoked"`
	Live    int   `json:"live"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	live := len(r.entries)
	r.mu.RUnlock()
	return Stats{Created: r.created.Load(), Revoked: r.revoked.Load(), Live: live}
}
