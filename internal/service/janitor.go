package service

import (
	"context"
	"sync"
	"time"

	"github.com/anime-shed/id-capture-go/internal/logger"
)

// Janitor periodically closes capture sessions that have been idle longer
// than the session TTL, releasing their cameras and previews.
type Janitor struct {
	svc      CaptureService
	interval time.Duration

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor sweeps svc every interval.
func NewJanitor(svc CaptureService, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{svc: svc, interval: interval, done: make(chan struct{})}
}

// Start runs the sweep loop until ctx ends or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	log := logger.Component("janitor")

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := j.svc.ExpireIdle(now); n > 0 {
					log.WithField("expired", n).Info("Closed idle capture sessions")
				}
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.once.Do(func() {
		if j.cancel == nil {
			close(j.done)
			return
		}
		j.cancel()
		<-j.done
	})
}
