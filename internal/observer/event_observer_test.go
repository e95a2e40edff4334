package observer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []CaptureEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event CaptureEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                         { return "panicky" }

func TestEventPublisher_NotifyAndUnsubscribe(t *testing.T) {
	pub := NewEventPublisher()
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}
	pub.Subscribe(a)
	pub.Subscribe(b)
	pub.Subscribe(panickingObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	pub.NotifyObservers(ctx, CaptureEvent{EventType: SessionOpened, SessionID: "s1"})
	cancel()
	pub.Wait()

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.False(t, a.events[0].Timestamp.IsZero(), "timestamp is filled in")

	pub.Unsubscribe(b)
	pub.NotifyObservers(context.Background(), CaptureEvent{EventType: SessionCancelled})
	pub.Wait()

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 1, b.count())
}

func TestLoggingObserver_AllTypes(t *testing.T) {
	obs := NewLoggingObserver(nil)
	for _, et := range []EventType{SessionOpened, SessionCompleted, SessionExpired, SourceFailed, DetectorDegraded, DocumentStoreFailed, AutoCaptured} {
		obs.OnEvent(context.Background(), CaptureEvent{
			EventType: et,
			SessionID: "s1",
			Slot:      "front",
			Metadata:  map[string]interface{}{"k": "v"},
		})
	}
	assert.Equal(t, "logging_observer", obs.GetObserverName())
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewMetricsObserver(reg)
	ctx := context.Background()

	obs.OnEvent(ctx, CaptureEvent{EventType: SessionOpened, Profile: "prc_id"})
	obs.OnEvent(ctx, CaptureEvent{EventType: SessionOpened, Profile: "prc_id"})
	obs.OnEvent(ctx, CaptureEvent{EventType: AutoCaptured, Profile: "prc_id"})
	obs.OnEvent(ctx, CaptureEvent{EventType: SessionCompleted, Profile: "prc_id", Mode: "camera", Duration: 40 * time.Second})
	obs.OnEvent(ctx, CaptureEvent{EventType: SessionCancelled, Profile: "prc_id"})
	obs.OnEvent(ctx, CaptureEvent{EventType: DocumentStoreFailed, Profile: "prc_id"})

	m := obs.GetMetrics()
	assert.Equal(t, int64(2), m["total_sessions"])
	assert.Equal(t, int64(1), m["completed_sessions"])
	assert.Equal(t, int64(1), m["abandoned_sessions"])
	assert.Equal(t, int64(1), m["auto_captures"])
	assert.Equal(t, 40*time.Second, m["avg_session_time"])

	assert.Equal(t, 2.0, testutil.ToFloat64(obs.events.WithLabelValues(string(SessionOpened), "prc_id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.completed.WithLabelValues("prc_id", "camera")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.storeFailures.WithLabelValues("prc_id")))
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func TestAMQPObserver_PublishesFilteredEvents(t *testing.T) {
	ch := &fakeChannel{}
	obs := NewAMQPObserver(ch, "capture.events", SessionCompleted)

	obs.OnEvent(context.Background(), CaptureEvent{EventType: SessionOpened, SessionID: "s1"})
	obs.OnEvent(context.Background(), CaptureEvent{
		EventType: SessionCompleted,
		SessionID: "s1",
		Profile:   "document",
		Metadata:  map[string]interface{}{"documents": 1},
	})

	require.Len(t, ch.published, 1)
	assert.Equal(t, "capture.completed", ch.keys[0])
	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "s1", msg.CorrelationId)

	var decoded CaptureEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "document", decoded.Profile)
	assert.Equal(t, SessionCompleted, decoded.EventType)
}

func TestAMQPObserver_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	obs := NewAMQPObserver(ch, "capture.events")

	err := obs.Publish(context.Background(), CaptureEvent{EventType: SessionCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")

	obs.OnEvent(context.Background(), CaptureEvent{EventType: SessionCompleted})
	assert.NoError(t, obs.Close())
}
