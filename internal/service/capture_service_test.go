package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/modal"
	"github.com/anime-shed/id-capture-go/internal/observer"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/internal/repository"
	"github.com/anime-shed/id-capture-go/internal/storage"
	"github.com/anime-shed/id-capture-go/internal/worker"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []observer.CaptureEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, ev observer.CaptureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) GetObserverName() string { return "recording" }

func (r *recordingObserver) types() map[observer.EventType]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[observer.EventType]int)
	for _, ev := range r.events {
		out[ev.EventType]++
	}
	return out
}

// flakyStore fails the first failures calls, then writes through to next.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	next     storage.DocumentStore
}

func (f *flakyStore) Store(ctx context.Context, doc storage.Document) (string, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return "", errors.New("bucket unavailable")
	}
	return f.next.Store(ctx, doc)
}
func (f *flakyStore) Name() string { return "flaky" }
func (f *flakyStore) Close() error { return nil }

type fixture struct {
	svc      CaptureService
	previews *preview.Registry
	records  *repository.MemoryCaptureRepository
	events   observer.Subject
	rec      *recordingObserver
	root     string
	guard    *modal.Guard
	now      *time.Time
}

func newFixture(t *testing.T, store storage.DocumentStore, tune ...func(*Config)) *fixture {
	t.Helper()
	root := t.TempDir()
	if store == nil {
		var err error
		store, err = storage.NewLocalStorage(root, "")
		require.NoError(t, err)
	}

	f := &fixture{
		previews: preview.NewRegistry("/previews"),
		records:  repository.NewMemoryCaptureRepository(),
		events:   observer.NewEventPublisher(),
		rec:      &recordingObserver{},
		root:     root,
		guard:    &modal.Guard{},
	}
	now := time.Unix(1700000000, 0)
	f.now = &now
	f.events.Subscribe(f.rec)

	cam := acquire.DefaultCameraConfig()
	cam.Interval = time.Millisecond
	cam.CapabilitySettle = time.Millisecond

	cfg := Config{
		Previews:   f.previews,
		Store:      store,
		Records:    f.records,
		Events:     f.events,
		Uploads:    worker.NewPool(2),
		Guard:      f.guard,
		Camera:     cam,
		SessionTTL: time.Minute,
		Now:        func() time.Time { return *f.now },
	}
	for _, fn := range tune {
		fn(&cfg)
	}
	f.svc = NewCaptureService(cfg)
	t.Cleanup(func() { _ = f.svc.Close() })
	return f
}

func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), shade, uint8(y % 256), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func f64(v float64) *float64 { return &v }

func TestCaptureService_UploadFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document", ClientRef: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, "intro", resp.Step)
	assert.True(t, resp.BackgroundLocked)
	id := resp.ID

	resp, err = f.svc.SetMode(ctx, id, models.ModeRequest{Mode: "upload"})
	require.NoError(t, err)
	assert.Equal(t, "capturing", resp.Step)
	require.NotNil(t, resp.Crop)
	assert.False(t, resp.Crop.HasSource)

	_, err = f.svc.AdjustCrop(ctx, id, models.CropRequest{Zoom: f64(2)})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNoSourceImage))

	resp, err = f.svc.Upload(ctx, id, "card.png", bytes.NewReader(pngBytes(t, 900, 600, 80)))
	require.NoError(t, err)
	require.NotNil(t, resp.Crop.SourcePreview)
	rawPreview := resp.Crop.SourcePreview.ID

	resp, err = f.svc.AdjustCrop(ctx, id, models.CropRequest{Zoom: f64(1.4), Rotation: f64(-10)})
	require.NoError(t, err)
	assert.InDelta(t, 1.4, resp.Crop.Zoom, 1e-9)
	assert.InDelta(t, 2.37, resp.Crop.RegionW/resp.Crop.RegionH, 1e-6)

	resp, err = f.svc.ConfirmCrop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "review", resp.Step)
	assert.True(t, resp.CanConfirm)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, 1200, resp.Slots[0].Width)
	assert.Equal(t, 506, resp.Slots[0].Height)
	_, _, err = f.svc.Preview(rawPreview)
	assert.Error(t, err, "raw upload preview is revoked after confirm")

	done, err := f.svc.Complete(ctx, id)
	require.NoError(t, err)
	require.Len(t, done.Documents, 1)
	doc := done.Documents[0]
	assert.Equal(t, "document_single_1700000000.jpg", doc.Filename)
	assert.True(t, strings.HasPrefix(doc.Location, "file://"))
	data, err := os.ReadFile(strings.TrimPrefix(doc.Location, "file://"))
	require.NoError(t, err)
	assert.Equal(t, doc.Size, len(data))

	recs, err := f.records.ListByClientRef(ctx, "cust-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "upload", recs[0].Mode)

	_, err = f.svc.Get(ctx, id)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.Equal(t, 0, f.previews.Stats().Live)
	assert.False(t, f.guard.Locked())

	f.events.Wait()
	types := f.rec.types()
	assert.Equal(t, 1, types[observer.SessionCompleted])
	assert.Equal(t, 1, types[observer.DocumentStored])
	assert.Equal(t, 1, types[observer.SlotAccepted])
}

func submitUntilTriggered(t *testing.T, svc CaptureService, id string, frame []byte) *models.FrameResponse {
	t.Helper()
	for i := 0; i < 20; i++ {
		time.Sleep(3 * time.Millisecond)
		res, err := svc.SubmitFrame(context.Background(), id, bytes.NewReader(frame))
		require.NoError(t, err)
		if res.Triggered {
			return res
		}
	}
	t.Fatal("auto-capture never triggered")
	return nil
}

func TestCaptureService_CameraFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "prc_id"})
	require.NoError(t, err)
	id := resp.ID

	resp, err = f.svc.SetMode(ctx, id, models.ModeRequest{
		Mode:   "camera",
		Camera: &models.CameraDeclaration{Torch: true},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Camera)
	assert.Equal(t, "searching", resp.Camera.State)

	frame := pngBytes(t, 320, 200, 30)
	res := submitUntilTriggered(t, f.svc, id, frame)
	assert.Equal(t, "previewing", res.State)
	require.NotNil(t, res.Preview)

	resp, err = f.svc.RetakeFrame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "searching", resp.Camera.State)
	_, _, err = f.svc.Preview(res.Preview.ID)
	assert.Error(t, err, "retake revokes the preview")

	submitUntilTriggered(t, f.svc, id, frame)
	resp, err = f.svc.AcceptFrame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SlotIndex)
	assert.True(t, resp.Slots[0].Filled)

	submitUntilTriggered(t, f.svc, id, frame)
	resp, err = f.svc.AcceptFrame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "review", resp.Step)

	done, err := f.svc.Complete(ctx, id)
	require.NoError(t, err)
	require.Len(t, done.Documents, 2)
	assert.Equal(t, "front", done.Documents[0].Slot)
	assert.Equal(t, "back", done.Documents[1].Slot)

	f.events.Wait()
	assert.Equal(t, 3, f.rec.types()[observer.AutoCaptured])
}

func TestCaptureService_SubmitFrameSkipsDecodeWhenEarly(t *testing.T) {
	f := newFixture(t, nil, func(cfg *Config) { cfg.Camera.Interval = time.Hour })
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document"})
	require.NoError(t, err)
	id := resp.ID
	_, err = f.svc.SetMode(ctx, id, models.ModeRequest{Mode: "camera"})
	require.NoError(t, err)

	first, err := f.svc.SubmitFrame(ctx, id, bytes.NewReader(pngBytes(t, 64, 48, 10)))
	require.NoError(t, err)
	assert.True(t, first.Analyzed)

	// Undecodable bytes are not an error while the cadence gate is closed.
	early, err := f.svc.SubmitFrame(ctx, id, strings.NewReader("not an image"))
	require.NoError(t, err)
	assert.False(t, early.Analyzed)
	assert.Equal(t, "searching", early.State)
}

func TestCaptureService_CameraControlsAndFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document"})
	require.NoError(t, err)
	id := resp.ID
	_, err = f.svc.SetMode(ctx, id, models.ModeRequest{Mode: "camera", Camera: &models.CameraDeclaration{Torch: true}})
	require.NoError(t, err)

	// Capabilities appear once the probe has settled.
	require.Eventually(t, func() bool {
		r, err := f.svc.Get(ctx, id)
		return err == nil && r.Camera != nil && r.Camera.Capabilities["torch"]
	}, time.Second, 5*time.Millisecond)

	resp, err = f.svc.CameraControls(ctx, id, models.CameraControlsRequest{Torch: boolPtr(true), Zoom: f64(2)})
	require.NoError(t, err)
	assert.Equal(t, true, resp.Camera.Pending["torch"])
	_, hasZoom := resp.Camera.Pending["zoom"]
	assert.False(t, hasZoom, "zoom was not declared")

	_, err = f.svc.Upload(ctx, id, "x.png", bytes.NewReader(pngBytes(t, 10, 10, 0)))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

	resp, err = f.svc.CameraFailure(ctx, id, models.CameraFailureRequest{Reason: "permission_denied"})
	require.NoError(t, err)
	assert.Equal(t, "failed", resp.Camera.State)
	assert.Equal(t, "capturing", resp.Step)
	assert.NotEmpty(t, resp.SourceError)

	resp, err = f.svc.SetMode(ctx, id, models.ModeRequest{Mode: "upload"})
	require.NoError(t, err)
	assert.Equal(t, "upload", resp.Mode)
	assert.Empty(t, resp.SourceError)
}

func boolPtr(v bool) *bool { return &v }

func TestCaptureService_CompleteRequiresAllSlots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "prc_id"})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, resp.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeIncompleteSession))

	_, err = f.svc.Get(ctx, resp.ID)
	assert.NoError(t, err, "failed completion keeps the session")
}

func TestCaptureService_StoreFailureKeepsSessionForRetry(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	store := &flakyStore{failures: 1, next: local}
	f := newFixture(t, store)
	ctx := context.Background()

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document"})
	require.NoError(t, err)
	id := resp.ID
	_, err = f.svc.SetMode(ctx, id, models.ModeRequest{Mode: "upload"})
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, id, "a.png", bytes.NewReader(pngBytes(t, 400, 300, 10)))
	require.NoError(t, err)
	_, err = f.svc.ConfirmCrop(ctx, id)
	require.NoError(t, err)
	live := f.previews.Stats().Live
	require.NotZero(t, live)

	_, err = f.svc.Complete(ctx, id)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err, "session survives a failed store")
	assert.Equal(t, "review", got.Step)
	assert.Equal(t, live, f.previews.Stats().Live, "captured images are kept")
	assert.True(t, f.guard.Locked())

	done, err := f.svc.Complete(ctx, id)
	require.NoError(t, err)
	require.Len(t, done.Documents, 1)
	assert.Equal(t, 0, f.previews.Stats().Live)
	assert.False(t, f.guard.Locked())

	_, err = f.svc.Get(ctx, id)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	f.events.Wait()
	types := f.rec.types()
	assert.Equal(t, 1, types[observer.DocumentStoreFailed])
	assert.Equal(t, 1, types[observer.DocumentStored])
	assert.Equal(t, 2, types[observer.SessionCompleted])
}

func TestCaptureService_CancelAndUnknown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "passport"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	resp, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "payslip"})
	require.NoError(t, err)
	_, err = f.svc.SetMode(ctx, resp.ID, models.ModeRequest{Mode: "upload"})
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, resp.ID, "p.png", bytes.NewReader(pngBytes(t, 300, 400, 0)))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, resp.ID))
	assert.Equal(t, 0, f.previews.Stats().Live)
	assert.False(t, f.guard.Locked())

	err = f.svc.Cancel(ctx, resp.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = f.svc.SetMode(ctx, "nope", models.ModeRequest{Mode: "upload"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	_, err = f.svc.SetMode(ctx, resp.ID, models.ModeRequest{Mode: "scanner"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestCaptureService_ExpireIdle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document"})
	require.NoError(t, err)
	_, err = f.svc.SetMode(ctx, stale.ID, models.ModeRequest{Mode: "camera"})
	require.NoError(t, err)

	*f.now = f.now.Add(45 * time.Second)
	fresh, err := f.svc.Open(ctx, models.OpenSessionRequest{Profile: "document"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.svc.ExpireIdle(f.now.Add(30*time.Second)))

	_, err = f.svc.Get(ctx, stale.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	_, err = f.svc.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	f.events.Wait()
	assert.Equal(t, 1, f.rec.types()[observer.SessionExpired])
}

type countingService struct {
	CaptureService
	mu    sync.Mutex
	calls int
}

func (c *countingService) ExpireIdle(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func (c *countingService) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestJanitor_SweepsUntilStopped(t *testing.T) {
	svc := &countingService{}
	j := NewJanitor(svc, 2*time.Millisecond)
	j.Start(context.Background())

	require.Eventually(t, func() bool { return svc.count() >= 2 }, time.Second, time.Millisecond)
	j.Stop()
	n := svc.count()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, svc.count())
	j.Stop()
}
