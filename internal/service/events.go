package service

import (
	"context"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/capture"
	"github.com/anime-shed/id-capture-go/internal/observer"
)

var sessionEventTypes = map[string]observer.EventType{
	capture.EventOpened:       observer.SessionOpened,
	capture.EventModeSelected: observer.ModeSelected,
	capture.EventSlotAccepted: observer.SlotAccepted,
	capture.EventModeSwitched: observer.ModeSwitched,
	capture.EventRetakeAll:    observer.RetakeAll,
	capture.EventCancelled:    observer.SessionCancelled,
	capture.EventSourceFailed: observer.SourceFailed,
}

var cameraEventTypes = map[string]observer.EventType{
	acquire.EventAutoCaptured:     observer.AutoCaptured,
	acquire.EventDetectorDegraded: observer.DetectorDegraded,
	acquire.EventCameraFailed:     observer.CameraFailed,
}

// sessionListener forwards coordinator events. Completion is published by
// the hand-off once documents are stored.
func (s *captureService) sessionListener(e *sessionEntry) capture.Listener {
	return func(ev capture.Event) {
		et, ok := sessionEventTypes[ev.Kind]
		if !ok {
			return
		}
		out := observer.CaptureEvent{
			EventType: et,
			Mode:      string(ev.Mode),
			Slot:      ev.Slot,
			Success:   ev.Err == nil,
		}
		if ev.Err != nil {
			out.ErrorMessage = ev.Err.Error()
		}
		s.publish(e, out)
	}
}

func (s *captureService) cameraListener(e *sessionEntry, slot string) func(string, map[string]any) {
	return func(name string, fields map[string]any) {
		et, ok := cameraEventTypes[name]
		if !ok {
			return
		}
		s.publish(e, observer.CaptureEvent{
			EventType: et,
			Mode:      string(capture.ModeCamera),
			Slot:      slot,
			Success:   et == observer.AutoCaptured,
			Metadata:  fields,
		})
	}
}

func (s *captureService) publish(e *sessionEntry, ev observer.CaptureEvent) {
	ev.SessionID = e.id
	ev.ClientRef = e.clientRef
	ev.Profile = e.session.Profile().Name
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.cfg.Now().UTC()
	}
	s.cfg.Events.NotifyObservers(context.Background(), ev)
}
