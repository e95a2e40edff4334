package acquire

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anime-shed/id-capture-go/internal/analyzer"
	"github.com/anime-shed/id-capture-go/internal/detect"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/preview"
)

// CameraState is the auto-capture state for one slot.
type CameraState string

const (
	StateSearching  CameraState = "searching"
	StateCapturing  CameraState = "capturing"
	StatePreviewing CameraState = "previewing"
	StateAccepted   CameraState = "accepted"
	StateFailed     CameraState = "failed"
	StateClosed     CameraState = "closed"
)

// Camera events reported through CameraConfig.OnEvent.
const (
	EventDetectorDegraded = "detector_degraded"
	EventAutoCaptured     = "auto_captured"
	EventCameraFailed     = "camera_failed"
)

// CameraConfig tunes the auto-capture loop.
type CameraConfig struct {
	Interval             time.Duration
	StableFramesRequired int
	MotionPixelThreshold int
	MotionChangeLimit    int
	CapabilitySettle     time.Duration
	JPEGQuality          int

	Detector detect.Detector
	Analyzer analyzer.QualityAnalyzer
	Previews *preview.Registry
	OnEvent  func(name string, fields map[string]any)
}

// DefaultCameraConfig returns a 300ms cadence with a four-frame streak.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Interval:             300 * time.Millisecond,
		StableFramesRequired: DefaultStableFrames,
		MotionPixelThreshold: DefaultPixelThreshold,
		MotionChangeLimit:    DefaultChangeLimit,
		CapabilitySettle:     500 * time.Millisecond,
		JPEGQuality:          imageio.DefaultJPEGQuality,
	}
}

// FrameResult describes one analysis attempt.
type FrameResult struct {
	Analyzed    bool        `json:"analyzed"`
	Stable      bool        `json:"stable"`
	Detected    bool        `json:"detected"`
	StableCount int         `json:"stable_count"`
	Triggered   bool        `json:"triggered"`
	State       CameraState `json:"state"`
}

// CameraSource runs auto-capture over an open stream.
type CameraSource struct {
	cfg     CameraConfig
	stream  Stream
	limiter *rate.Limiter
	log     *logrus.Entry

	// Held for the duration of one analysis cycle.
	cycle sync.Mutex

	mu      sync.Mutex
	state   CameraState
	motion  *MotionDetector
	auto    *AutoCapture
	preview *preview.CapturedImage
	caps    Capabilities
	failure error

	probeCancel context.CancelFunc
	closeOnce   sync.Once
}

// OpenCamera opens a stream from cam and starts probing its capabilities.
// A refused permission is reported as a PermissionDeniedError.
func OpenCamera(ctx context.Context, cam Camera, constraints Constraints, cfg CameraConfig) (*CameraSource, error) {
	stream, err := cam.Open(ctx, constraints)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, apperrors.NewPermissionDeniedError("Camera access was denied. Allow camera access or upload a photo instead.", err)
		}
		return nil, apperrors.NewProcessingError("failed to open camera", err)
	}
	src := NewCameraSource(stream, cfg)
	src.StartProbe()
	return src, nil
}

// NewCameraSource wraps an already open stream.
func NewCameraSource(stream Stream, cfg CameraConfig) *CameraSource {
	def := DefaultCameraConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	return &CameraSource{
		cfg:     cfg,
		stream:  stream,
		limiter: rate.NewLimiter(rate.Every(minFrameGap(cfg.Interval)), 1),
		log:     logger.Component("camera"),
		state:   StateSearching,
		motion:  NewMotionDetector(cfg.MotionPixelThreshold, cfg.MotionChangeLimit),
		auto:    NewAutoCapture(cfg.StableFramesRequired),
	}
}

// minFrameGap is the shortest spacing between analyzed pushed frames. A
// client sending at the nominal interval has up to a quarter of it as jitter.
func minFrameGap(interval time.Duration) time.Duration {
	return interval * 3 / 4
}

// Stream returns the underlying stream.
func (c *CameraSource) Stream() Stream { return c.stream }

// StartProbe probes capabilities in the background after the settle delay.
func (c *CameraSource) StartProbe() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.probeCancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		caps, err := ProbeCapabilities(ctx, c.stream, c.cfg.CapabilitySettle)
		if err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).Warn("Capability probe failed")
			}
			return
		}
		c.mu.Lock()
		c.caps = caps
		c.mu.Unlock()
		c.log.WithField("capabilities", caps.Names()).Debug("Camera capabilities probed")
	}()
}

// Ready reports whether a frame pushed now would be analyzed. It does not
// consume the cadence budget, so callers can skip decoding frames Analyze
// would drop.
func (c *CameraSource) Ready() bool {
	return c.State() == StateSearching && c.limiter.Tokens() >= 1
}

// Status describes the source without analyzing anything.
func (c *CameraSource) Status() FrameResult {
	return c.skipped()
}

// Analyze runs one cycle on a pushed frame. Overlapping calls and calls
// well ahead of the configured interval are dropped.
func (c *CameraSource) Analyze(ctx context.Context, frame image.Image) (FrameResult, error) {
	if !c.cycle.TryLock() {
		return c.skipped(), nil
	}
	defer c.cycle.Unlock()

	if ps, ok := c.stream.(*PushStream); ok {
		if err := ps.Push(frame); err != nil {
			return c.skipped(), nil
		}
	}
	if c.State() != StateSearching || !c.limiter.Allow() {
		return c.skipped(), nil
	}
	return c.analyzeLocked(ctx, frame)
}

// Run polls a FrameSource at the configured interval until a capture is
// triggered, the frames run out (io.EOF) or ctx ends. It returns the
// previewed image, still owned by the source until Accept.
func (c *CameraSource) Run(ctx context.Context) (*preview.CapturedImage, error) {
	frames, ok := c.stream.(FrameSource)
	if !ok {
		return nil, apperrors.NewValidationError("stream does not provide frames", nil)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		state := c.State()
		switch state {
		case StatePreviewing:
			return c.Preview(), nil
		case StateClosed, StateFailed, StateAccepted:
			return nil, apperrors.NewInvalidTransitionError("run", string(state))
		}

		frame, err := frames.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		c.cycle.Lock()
		res, err := c.analyzeLocked(ctx, frame)
		c.cycle.Unlock()
		if err != nil {
			return nil, err
		}
		if res.Triggered {
			return c.Preview(), nil
		}
	}
}

func (c *CameraSource) analyzeLocked(ctx context.Context, frame image.Image) (FrameResult, error) {
	c.mu.Lock()
	stable := c.motion.Stable(frame)
	c.mu.Unlock()

	detected := c.detect(ctx, frame)

	c.mu.Lock()
	if c.state != StateSearching {
		c.mu.Unlock()
		return c.skipped(), nil
	}
	triggered := c.auto.Observe(stable, detected)
	res := FrameResult{
		Analyzed:    true,
		Stable:      stable,
		Detected:    detected,
		StableCount: c.auto.Count(),
		Triggered:   triggered,
	}
	if triggered {
		c.state = StateCapturing
	}
	res.State = c.state
	c.mu.Unlock()

	if !triggered {
		return res, nil
	}

	img, err := c.capture(ctx)
	c.mu.Lock()
	if c.state != StateCapturing {
		// Closed while the snapshot was in flight.
		img.Release()
		res.State = c.state
		c.mu.Unlock()
		return res, nil
	}
	if err != nil {
		c.state = StateSearching
		c.auto.Reset()
		c.motion.Reset()
		res.Triggered = false
		res.State = c.state
		c.mu.Unlock()
		c.log.WithError(err).Warn("Auto-capture snapshot failed")
		return res, err
	}
	c.preview = img
	c.state = StatePreviewing
	res.State = c.state
	c.mu.Unlock()

	c.emit(EventAutoCaptured, map[string]any{"width": img.Width, "height": img.Height})
	return res, nil
}

func (c *CameraSource) detect(ctx context.Context, frame image.Image) bool {
	if c.cfg.Detector == nil {
		return true
	}
	ok, err := c.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		c.log.WithError(err).Warn("Subject detector failed, treating frame as detected")
		c.emit(EventDetectorDegraded, map[string]any{"error": err.Error()})
		return true
	}
	return ok
}

func (c *CameraSource) capture(ctx context.Context) (*preview.CapturedImage, error) {
	still, err := c.stream.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to capture still", err)
	}
	data, err := imageio.EncodeJPEG(still, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	b := still.Bounds()
	img := preview.NewCapturedImage(c.cfg.Previews, data, b.Dx(), b.Dy(), preview.OriginCamera)
	if c.cfg.Analyzer != nil {
		img.Quality = c.cfg.Analyzer.Analyze(still)
	}
	return img, nil
}

func (c *CameraSource) skipped() FrameResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FrameResult{StableCount: c.auto.Count(), State: c.state}
}

// Retake discards the previewed image and resumes searching.
func (c *CameraSource) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewing {
		return apperrors.NewInvalidTransitionError("retake", string(c.state))
	}
	c.preview.Release()
	c.preview = nil
	c.auto.Reset()
	c.motion.Reset()
	c.state = StateSearching
	return nil
}

// Accept hands the previewed image to the caller, who becomes its owner.
func (c *CameraSource) Accept() (*preview.CapturedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewing {
		return nil, apperrors.NewInvalidTransitionError("accept", string(c.state))
	}
	img := c.preview
	c.preview = nil
	c.state = StateAccepted
	return img, nil
}

// ReportFailure marks the camera as unusable for this slot. A
// "permission_denied" reason yields a PermissionDeniedError.
func (c *CameraSource) ReportFailure(reason, message string) error {
	var err *apperrors.AppError
	if reason == "permission_denied" {
		err = apperrors.NewPermissionDeniedError("Camera access was denied. Allow camera access or upload a photo instead.", nil)
	} else {
		err = apperrors.NewProcessingError("The camera could not be started", errors.New(reason+": "+message))
	}

	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateFailed
		c.failure = err
		c.preview.Release()
		c.preview = nil
	}
	c.mu.Unlock()

	c.emit(EventCameraFailed, map[string]any{"reason": reason})
	return err
}

// SetTorch toggles the light if supported. It reports whether the request
// was applied; failures are logged and swallowed.
func (c *CameraSource) SetTorch(ctx context.Context, on bool) bool {
	torch := c.Capabilities().Torch
	if torch == nil {
		c.log.Debug("Torch not supported")
		return false
	}
	if err := torch.SetTorch(ctx, on); err != nil {
		c.log.WithError(err).Warn("Torch request failed")
		return false
	}
	return true
}

// SetZoom sets the zoom level clamped to the supported range.
func (c *CameraSource) SetZoom(ctx context.Context, level float64) bool {
	zoom := c.Capabilities().Zoom
	if zoom == nil {
		c.log.Debug("Zoom not supported")
		return false
	}
	lo, hi := zoom.ZoomRange()
	if level < lo {
		level = lo
	}
	if level > hi {
		level = hi
	}
	if err := zoom.SetZoom(ctx, level); err != nil {
		c.log.WithError(err).Warn("Zoom request failed")
		return false
	}
	return true
}

// FocusAt focuses on a tap at (tapX, tapY) inside a viewW×viewH view.
func (c *CameraSource) FocusAt(ctx context.Context, tapX, tapY, viewW, viewH float64) bool {
	focus := c.Capabilities().Focus
	if focus == nil {
		c.log.Debug("Tap to focus not supported")
		return false
	}
	x, y, ok := tapToFocusPoint(tapX, tapY, viewW, viewH)
	if !ok {
		c.log.WithFields(logrus.Fields{"x": tapX, "y": tapY}).Debug("Focus tap outside view")
		return false
	}
	if err := focus.FocusAt(ctx, x, y); err != nil {
		c.log.WithError(err).Warn("Focus request failed")
		return false
	}
	return true
}

// Capabilities returns the probed controls; empty until the probe finishes.
func (c *CameraSource) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

func (c *CameraSource) State() CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Preview returns the image awaiting retake or accept, if any.
func (c *CameraSource) Preview() *preview.CapturedImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// StableCount returns the current streak length.
func (c *CameraSource) StableCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto.Count()
}

// Required returns the streak length that triggers a capture.
func (c *CameraSource) Required() int { return c.auto.Required() }

// Failure returns the error recorded by ReportFailure.
func (c *CameraSource) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Close stops probing, releases any unaccepted preview and closes the
// stream. It is safe to call more than once.
func (c *CameraSource) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.probeCancel != nil {
			c.probeCancel()
		}
		c.preview.Release()
		c.preview = nil
		c.state = StateClosed
		c.mu.Unlock()
		err = c.stream.Close()
	})
	return err
}

func (c *CameraSource) emit(name string, fields map[string]any) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(name, fields)
	}
}
