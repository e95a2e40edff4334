package observer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsObserver collects metrics from capture events
type MetricsObserver struct {
	events          *prometheus.CounterVec
	completed       *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	storeFailures   *prometheus.CounterVec

	mu                 sync.RWMutex
	totalSessions      int64
	completedSessions  int64
	abandonedSessions  int64
	autoCaptures       int64
	degradedDetections int64
	totalSessionTime   time.Duration
}

// NewMetricsObserver registers the capture collectors on reg. A nil reg uses
// the default prometheus registerer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsObserver{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_events_total",
				Help: "Total number of capture lifecycle events",
			},
			[]string{"type", "profile"},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_sessions_completed_total",
				Help: "Total number of capture sessions completed, by acquisition mode",
			},
			[]string{"profile", "mode"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capture_session_duration_seconds",
				Help:    "Time from session open to completion",
				Buckets: []float64{5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"profile"},
		),
		storeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_document_store_failures_total",
				Help: "Total number of documents that failed to upload",
			},
			[]string{"profile"},
		),
	}
}

// OnEvent handles capture events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	o.events.WithLabelValues(string(event.EventType), event.Profile).Inc()

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SessionOpened:
		o.totalSessions++
	case SessionCompleted:
		o.completedSessions++
		o.totalSessionTime += event.Duration
		o.completed.WithLabelValues(event.Profile, event.Mode).Inc()
		if event.Duration > 0 {
			o.sessionDuration.WithLabelValues(event.Profile).Observe(event.Duration.Seconds())
		}
	case SessionCancelled, SessionExpired:
		o.abandonedSessions++
	case AutoCaptured:
		o.autoCaptures++
	case DetectorDegraded:
		o.degradedDetections++
	case DocumentStoreFailed:
		o.storeFailures.WithLabelValues(event.Profile).Inc()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgSessionTime := time.Duration(0)
	if o.completedSessions > 0 {
		avgSessionTime = o.totalSessionTime / time.Duration(o.completedSessions)
	}

	return map[string]interface{}{
		"total_sessions":      o.totalSessions,
		"completed_sessions":  o.completedSessions,
		"abandoned_sessions":  o.abandonedSessions,
		"auto_captures":       o.autoCaptures,
		"degraded_detections": o.degradedDetections,
		"avg_session_time":    avgSessionTime,
	}
}
