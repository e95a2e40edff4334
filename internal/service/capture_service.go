// Package service exposes capture sessions to the HTTP layer: it keeps the
// live sessions, builds acquisition sources for them and hands completed
// documents off to storage.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/analyzer"
	"github.com/anime-shed/id-capture-go/internal/capture"
	"github.com/anime-shed/id-capture-go/internal/detect"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/modal"
	"github.com/anime-shed/id-capture-go/internal/observer"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/internal/profile"
	"github.com/anime-shed/id-capture-go/internal/repository"
	"github.com/anime-shed/id-capture-go/internal/storage"
	"github.com/anime-shed/id-capture-go/internal/worker"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

// CaptureService defines the operations behind the HTTP routes.
type CaptureService interface {
	Profiles() []profile.Profile

	Open(ctx context.Context, req models.OpenSessionRequest) (*models.SessionResponse, error)
	Get(ctx context.Context, id string) (*models.SessionResponse, error)
	SetMode(ctx context.Context, id string, req models.ModeRequest) (*models.SessionResponse, error)
	RetakeAll(ctx context.Context, id string) (*models.SessionResponse, error)
	Complete(ctx context.Context, id string) (*models.CompleteResponse, error)
	Cancel(ctx context.Context, id string) error

	// Upload and crop
	Upload(ctx context.Context, id, filename string, r io.Reader) (*models.SessionResponse, error)
	AdjustCrop(ctx context.Context, id string, req models.CropRequest) (*models.SessionResponse, error)
	ConfirmCrop(ctx context.Context, id string) (*models.SessionResponse, error)

	// Camera auto-capture
	SubmitFrame(ctx context.Context, id string, r io.Reader) (*models.FrameResponse, error)
	RetakeFrame(ctx context.Context, id string) (*models.SessionResponse, error)
	AcceptFrame(ctx context.Context, id string) (*models.SessionResponse, error)
	CameraControls(ctx context.Context, id string, req models.CameraControlsRequest) (*models.SessionResponse, error)
	CameraFailure(ctx context.Context, id string, req models.CameraFailureRequest) (*models.SessionResponse, error)

	Preview(id string) ([]byte, string, error)
	ExpireIdle(now time.Time) int
	Close() error
}

// Config carries the collaborators and tuning of a captureService.
type Config struct {
	Profiles *profile.Catalog
	Previews *preview.Registry
	Store    storage.DocumentStore
	Records  repository.CaptureRepository
	Events   observer.Subject
	Uploads  *worker.Pool
	Detector detect.Detector
	Analyzer analyzer.QualityAnalyzer
	Guard    *modal.Guard

	Camera         acquire.CameraConfig
	MaxUploadBytes int64
	MaxFrameBytes  int64
	SessionTTL     time.Duration
	Now            func() time.Time
}

type sessionEntry struct {
	id        string
	clientRef string
	session   *capture.Session
	openedAt  time.Time

	// Serializes composite operations (read source, act, advance).
	mu       sync.Mutex
	declared acquire.DeclaredCapabilities
	lastSeen time.Time
}

type captureService struct {
	cfg Config
	log *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewCaptureService creates the service. Missing optional collaborators get
// in-process defaults.
func NewCaptureService(cfg Config) CaptureService {
	if cfg.Profiles == nil {
		cfg.Profiles = profile.Builtin()
	}
	if cfg.Previews == nil {
		cfg.Previews = preview.NewRegistry("/previews")
	}
	if cfg.Records == nil {
		cfg.Records = repository.NewMemoryCaptureRepository()
	}
	if cfg.Events == nil {
		cfg.Events = observer.NewEventPublisher()
	}
	if cfg.Uploads == nil {
		cfg.Uploads = worker.NewPool(2)
	}
	if cfg.Detector == nil {
		cfg.Detector = detect.Always
	}
	if cfg.Guard == nil {
		cfg.Guard = modal.Default()
	}
	if cfg.Camera.Interval <= 0 {
		cfg.Camera = acquire.DefaultCameraConfig()
	}
	if cfg.Camera.JPEGQuality <= 0 {
		cfg.Camera.JPEGQuality = imageio.DefaultJPEGQuality
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = acquire.DefaultMaxUploadBytes
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 8 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Uploads.Start()

	return &captureService{
		cfg:      cfg,
		log:      logger.Component("capture_service"),
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *captureService) Profiles() []profile.Profile {
	return s.cfg.Profiles.List()
}

func (s *captureService) Open(ctx context.Context, req models.OpenSessionRequest) (*models.SessionResponse, error) {
	p, ok := s.cfg.Profiles.Get(req.Profile)
	if !ok {
		return nil, apperrors.NewNotFoundError("unknown capture profile", nil)
	}

	now := s.cfg.Now()
	e := &sessionEntry{
		id:        uuid.NewString(),
		clientRef: req.ClientRef,
		openedAt:  now,
		lastSeen:  now,
	}
	e.session = capture.NewSession(p, s.sourceFactory(e),
		capture.WithGuard(s.cfg.Guard),
		capture.WithListener(s.sessionListener(e)),
	)
	if err := e.session.Open(ctx, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[e.id] = e
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"session_id": e.id, "profile": p.Name}).Info("Capture session opened")
	return s.render(e, nil), nil
}

func (s *captureService) Get(ctx context.Context, id string) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		return s.render(e, nil), nil
	})
}

func (s *captureService) SetMode(ctx context.Context, id string, req models.ModeRequest) (*models.SessionResponse, error) {
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		if d := req.Camera; d != nil {
			e.declared = acquire.DeclaredCapabilities{
				Torch:   d.Torch,
				Zoom:    d.Zoom,
				ZoomMin: d.ZoomMin,
				ZoomMax: d.ZoomMax,
				Focus:   d.Focus,
			}
		}
		if e.session.Snapshot().Step == capture.StepIntro {
			err = e.session.SelectMode(ctx, mode)
		} else {
			err = e.session.SwitchMode(ctx, mode)
		}
		if err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) RetakeAll(ctx context.Context, id string) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		if err := e.session.RetakeAll(ctx); err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) Cancel(ctx context.Context, id string) error {
	e, err := s.take(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Cancel(ctx)
}

func (s *captureService) Upload(ctx context.Context, id, filename string, r io.Reader) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		up, err := uploadSource(e)
		if err != nil {
			return nil, err
		}
		if err := up.PickFile(ctx, filename, r); err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) AdjustCrop(ctx context.Context, id string, req models.CropRequest) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		up, err := uploadSource(e)
		if err != nil {
			return nil, err
		}
		engine := up.Engine()
		if !engine.CanEdit() {
			return nil, apperrors.NewNoSourceImageError()
		}
		if req.Reset {
			engine.ResetToDefaults()
		}
		if req.Zoom != nil {
			engine.SetZoom(*req.Zoom)
		}
		if req.Rotation != nil {
			engine.SetRotation(*req.Rotation)
		}
		if req.PanX != nil || req.PanY != nil {
			var dx, dy float64
			if req.PanX != nil {
				dx = *req.PanX
			}
			if req.PanY != nil {
				dy = *req.PanY
			}
			engine.Pan(dx, dy)
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) ConfirmCrop(ctx context.Context, id string) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		up, err := uploadSource(e)
		if err != nil {
			return nil, err
		}
		slot := e.session.CurrentSlot()
		img, err := up.Confirm(ctx)
		if err != nil {
			return nil, err
		}
		img.Filename = up.Filename()
		if err := s.advance(ctx, e, slot, img); err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) SubmitFrame(ctx context.Context, id string, r io.Reader) (*models.FrameResponse, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	// Frames are decoded outside the session lock; Analyze drops overlapping cycles itself.
	cam, err := cameraSource(e)
	if err != nil {
		return nil, err
	}
	var res acquire.FrameResult
	if cam.Ready() {
		decoded, _, err := decodeFrame(r, s.cfg.MaxFrameBytes)
		if err != nil {
			return nil, err
		}
		if res, err = cam.Analyze(ctx, decoded.Image); err != nil {
			return nil, err
		}
	} else {
		// Too early or not searching; the frame is not worth decoding.
		res = cam.Status()
	}
	s.touch(e)

	out := &models.FrameResponse{
		Analyzed:    res.Analyzed,
		Stable:      res.Stable,
		Detected:    res.Detected,
		StableCount: res.StableCount,
		Triggered:   res.Triggered,
		State:       string(res.State),
	}
	if img := cam.Preview(); img != nil {
		out.Preview = previewView(img.Preview)
	}
	return out, nil
}

func (s *captureService) RetakeFrame(ctx context.Context, id string) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		cam, err := cameraSource(e)
		if err != nil {
			return nil, err
		}
		if err := cam.Retake(); err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) AcceptFrame(ctx context.Context, id string) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		cam, err := cameraSource(e)
		if err != nil {
			return nil, err
		}
		slot := e.session.CurrentSlot()
		img, err := cam.Accept()
		if err != nil {
			return nil, err
		}
		if err := s.advance(ctx, e, slot, img); err != nil {
			return nil, err
		}
		return s.render(e, nil), nil
	})
}

func (s *captureService) CameraControls(ctx context.Context, id string, req models.CameraControlsRequest) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		cam, err := cameraSource(e)
		if err != nil {
			return nil, err
		}
		if req.Torch != nil {
			cam.SetTorch(ctx, *req.Torch)
		}
		if req.Zoom != nil {
			cam.SetZoom(ctx, *req.Zoom)
		}
		if req.FocusX != nil && req.FocusY != nil {
			cam.FocusAt(ctx, *req.FocusX, *req.FocusY, req.ViewW, req.ViewH)
		}
		var pending map[string]any
		if ps, ok := cam.Stream().(*acquire.PushStream); ok {
			pending = ps.Pending()
		}
		return s.render(e, pending), nil
	})
}

func (s *captureService) CameraFailure(ctx context.Context, id string, req models.CameraFailureRequest) (*models.SessionResponse, error) {
	return s.with(id, func(e *sessionEntry) (*models.SessionResponse, error) {
		cam, err := cameraSource(e)
		if err != nil {
			return nil, err
		}
		// The failure is recorded on the source; the session stays on the
		// slot so the client can offer switching to upload.
		_ = cam.ReportFailure(req.Reason, req.Message)
		return s.render(e, nil), nil
	})
}

func (s *captureService) Preview(id string) ([]byte, string, error) {
	data, ct, ok := s.cfg.Previews.Get(id)
	if !ok {
		return nil, "", apperrors.NewNotFoundError("preview not found", nil)
	}
	return data, ct, nil
}

// ExpireIdle cancels sessions idle for longer than the session TTL and
// returns how many were closed.
func (s *captureService) ExpireIdle(now time.Time) int {
	if s.cfg.SessionTTL <= 0 {
		return 0
	}
	var expired []*sessionEntry
	s.mu.Lock()
	for id, e := range s.sessions {
		// A session busy with a request is not idle.
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastSeen)
		e.mu.Unlock()
		if idle > s.cfg.SessionTTL {
			expired = append(expired, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.mu.Lock()
		_ = e.session.Close()
		e.mu.Unlock()
		s.publish(e, observer.CaptureEvent{EventType: observer.SessionExpired})
		s.log.WithField("session_id", e.id).Info("Expired idle capture session")
	}
	return len(expired)
}

// Close cancels every live session and drains pending uploads.
func (s *captureService) Close() error {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		_ = e.session.Close()
		e.mu.Unlock()
	}
	s.cfg.Uploads.Close()
	s.cfg.Events.Wait()
	return nil
}

// advance moves img into slot. If the session did not take the image it is
// released here. A failure to open the next slot's source leaves the image
// accepted and is reported through the session view.
func (s *captureService) advance(ctx context.Context, e *sessionEntry, slot string, img *preview.CapturedImage) error {
	err := e.session.Advance(ctx, slot, img)
	if err == nil {
		return nil
	}
	for _, st := range e.session.Snapshot().Slots {
		if st.Name == slot && st.Image == img {
			s.log.WithFields(logrus.Fields{"session_id": e.id, "error": err}).Warn("Next acquisition source unavailable")
			return nil
		}
	}
	img.Release()
	return err
}

func (s *captureService) with(id string, fn func(e *sessionEntry) (*models.SessionResponse, error)) (*models.SessionResponse, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = s.cfg.Now()
	return fn(e)
}

func (s *captureService) lookup(id string) (*sessionEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("capture session not found", nil)
	}
	return e, nil
}

func (s *captureService) take(id string) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("capture session not found", nil)
	}
	delete(s.sessions, id)
	return e, nil
}

func (s *captureService) touch(e *sessionEntry) {
	e.mu.Lock()
	e.lastSeen = s.cfg.Now()
	e.mu.Unlock()
}

func uploadSource(e *sessionEntry) (*acquire.UploadSource, error) {
	src, ok := e.session.Source().(*acquire.UploadSource)
	if !ok || src == nil {
		return nil, apperrors.NewInvalidTransitionError("upload", currentState(e))
	}
	return src, nil
}

func cameraSource(e *sessionEntry) (*acquire.CameraSource, error) {
	src, ok := e.session.Source().(*acquire.CameraSource)
	if !ok || src == nil {
		return nil, apperrors.NewInvalidTransitionError("camera", currentState(e))
	}
	return src, nil
}

func currentState(e *sessionEntry) string {
	v := e.session.Snapshot()
	if v.Step != capture.StepCapturing {
		return string(v.Step)
	}
	return string(v.Mode)
}
