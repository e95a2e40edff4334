// Package observer fans capture lifecycle events out to logging, metrics and
// the message broker.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/logger"
)

// CaptureEvent represents one capture lifecycle event
type CaptureEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	SessionID    string                 `json:"session_id"`
	Profile      string                 `json:"profile"`
	ClientRef    string                 `json:"client_ref,omitempty"`
	Mode         string                 `json:"mode,omitempty"`
	Slot         string                 `json:"slot,omitempty"`
	Duration     time.Duration          `json:"duration,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType doubles as the broker routing key.
type EventType string

const (
	SessionOpened       EventType = "capture.opened"
	ModeSelected        EventType = "capture.mode_selected"
	SlotAccepted        EventType = "capture.slot_accepted"
	ModeSwitched        EventType = "capture.mode_switched"
	RetakeAll           EventType = "capture.retake_all"
	SessionCompleted    EventType = "capture.completed"
	SessionCancelled    EventType = "capture.cancelled"
	SessionExpired      EventType = "capture.expired"
	SourceFailed        EventType = "capture.source_failed"
	AutoCaptured        EventType = "camera.auto_captured"
	DetectorDegraded    EventType = "camera.detector_degraded"
	CameraFailed        EventType = "camera.failed"
	DocumentStored      EventType = "document.stored"
	DocumentStoreFailed EventType = "document.store_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event CaptureEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event CaptureEvent)
	Wait()
}

// LoggingObserver logs capture events
type LoggingObserver struct {
	log *logrus.Entry
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(log *logrus.Entry) Observer {
	if log == nil {
		log = logger.Component("events")
	}
	return &LoggingObserver{log: log}
}

// OnEvent handles capture events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"profile":    event.Profile,
		"success":    event.Success,
	}
	if event.Mode != "" {
		fields["mode"] = event.Mode
	}
	if event.Slot != "" {
		fields["slot"] = event.Slot
	}
	if event.Duration > 0 {
		fields["duration"] = event.Duration
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.log.WithFields(fields)
	switch event.EventType {
	case SessionCompleted:
		entry.Info("Capture session completed")
	case SessionCancelled, SessionExpired:
		entry.Info("Capture session closed without completing")
	case SourceFailed, CameraFailed:
		entry.Warn("Acquisition source failed")
	case DetectorDegraded:
		entry.Warn("Subject detector failed, treating frame as detected")
	case DocumentStoreFailed:
		entry.Error("Failed to store captured document")
	case SlotAccepted, AutoCaptured, DocumentStored:
		entry.Debug("Capture event occurred")
	default:
		entry.Info("Capture event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	inflight  sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event concurrently. The
// event's context cancellation is not propagated so a finished request does
// not abort delivery.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event CaptureEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, observer := range observers {
		p.inflight.Add(1)
		go func(obs Observer) {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Component("events").
						WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every notification delivered so far has been handled.
func (p *EventPublisher) Wait() {
	p.inflight.Wait()
}
