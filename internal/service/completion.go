package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/observer"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/internal/repository"
	"github.com/anime-shed/id-capture-go/internal/storage"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

// Complete hands every slot to the document store in parallel on the upload
// pool and finishes the session once all uploads succeed. A failed upload
// leaves the session at review so the client can retry.
func (s *captureService) Complete(ctx context.Context, id string) (*models.CompleteResponse, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	// Held across the uploads so nothing edits the slots being stored.
	e.mu.Lock()
	e.lastSeen = s.cfg.Now()
	mode := string(e.session.Snapshot().Mode)
	pending, err := e.session.Results()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if s.cfg.Store == nil {
		e.mu.Unlock()
		return nil, apperrors.NewInternalError("no document store configured", nil)
	}

	completedAt := s.cfg.Now().UTC()
	prof := e.session.Profile()
	docs, err := s.storeAll(ctx, e, prof.Slots, pending, completedAt)
	if err != nil {
		e.mu.Unlock()
		s.publish(e, observer.CaptureEvent{
			EventType:    observer.SessionCompleted,
			Mode:         mode,
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	images, err := e.session.Complete(ctx)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		img.Release()
	}

	s.mu.Lock()
	if s.sessions[id] == e {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	record := &repository.CaptureRecord{
		SessionID:   e.id,
		Profile:     prof.Name,
		ClientRef:   e.clientRef,
		Mode:        mode,
		Documents:   docs,
		CompletedAt: completedAt,
	}
	if err := s.cfg.Records.Save(ctx, record); err != nil {
		// Documents are already stored; the record is best effort.
		s.log.WithFields(logrus.Fields{"session_id": e.id, "error": err}).Error("Failed to save capture record")
	}

	s.publish(e, observer.CaptureEvent{
		EventType: observer.SessionCompleted,
		Mode:      mode,
		Duration:  completedAt.Sub(e.openedAt),
		Success:   true,
		Metadata:  map[string]interface{}{"documents": len(docs), "record_id": record.ID},
	})

	return &models.CompleteResponse{
		SessionID:   e.id,
		Profile:     prof.Name,
		ClientRef:   e.clientRef,
		CompletedAt: completedAt,
		Documents:   docs,
	}, nil
}

func (s *captureService) storeAll(ctx context.Context, e *sessionEntry, slots []string, images map[string]*preview.CapturedImage, at time.Time) ([]models.StoredDocument, error) {
	prof := e.session.Profile()
	docs := make([]models.StoredDocument, len(slots))
	errs := make([]error, len(slots))

	var wg sync.WaitGroup
	for i, slot := range slots {
		img := images[slot]
		doc := storage.Document{
			SessionID:   e.id,
			ClientRef:   e.clientRef,
			Profile:     prof.Name,
			Slot:        slot,
			Filename:    storage.SuggestedFilename(prof.Name, slot, at),
			ContentType: img.ContentType,
			Data:        img.Data,
		}
		job := func() {
			defer wg.Done()
			location, err := s.cfg.Store.Store(ctx, doc)
			if err != nil {
				errs[i] = err
				s.publish(e, observer.CaptureEvent{
					EventType:    observer.DocumentStoreFailed,
					Slot:         doc.Slot,
					ErrorMessage: err.Error(),
				})
				return
			}
			docs[i] = models.StoredDocument{
				Slot:        doc.Slot,
				Filename:    doc.Filename,
				ContentType: doc.ContentType,
				Size:        len(doc.Data),
				Location:    location,
			}
			s.publish(e, observer.CaptureEvent{
				EventType: observer.DocumentStored,
				Slot:      doc.Slot,
				Success:   true,
				Metadata:  map[string]interface{}{"location": location, "backend": s.cfg.Store.Name()},
			})
		}

		wg.Add(1)
		if !s.cfg.Uploads.Submit(job) {
			job()
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to store %s", slots[i]), err)
		}
	}
	return docs, nil
}
