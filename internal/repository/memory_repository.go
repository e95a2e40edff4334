package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCaptureRepository keeps records in process. Used when no database
// is configured.
type MemoryCaptureRepository struct {
	mu      sync.RWMutex
	records map[string]*CaptureRecord
}

// NewMemoryCaptureRepository returns an empty repository.
func NewMemoryCaptureRepository() *MemoryCaptureRepository {
	return &MemoryCaptureRepository{records: make(map[string]*CaptureRecord)}
}

func (r *MemoryCaptureRepository) Save(ctx context.Context, record *CaptureRecord) error {
	if err := record.validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now().UTC()
	}
	cp := *record
	r.mu.Lock()
	r.records[cp.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryCaptureRepository) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryCaptureRepository) ListByClientRef(ctx context.Context, clientRef string, limit int) ([]*CaptureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	var out []*CaptureRecord
	for _, rec := range r.records {
		if rec.ClientRef == clientRef {
			cp := *rec
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
