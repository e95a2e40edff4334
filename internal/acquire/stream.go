package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/anime-shed/id-capture-go/internal/imageio"
)

// ErrPermissionDenied is returned (possibly wrapped) by a Camera whose user
// or platform refused access.
var ErrPermissionDenied = errors.New("camera permission denied")

// ErrNoFrame is returned by Snapshot before any frame is available.
var ErrNoFrame = errors.New("no frame available")

// ErrStreamClosed is returned by a stream after Close.
var ErrStreamClosed = errors.New("stream closed")

// Constraints are the preferences passed when opening a camera.
type Constraints struct {
	FacingMode  string
	IdealWidth  int
	IdealHeight int
}

// DefaultConstraints prefers the rear camera at 1080p.
func DefaultConstraints() Constraints {
	return Constraints{FacingMode: "environment", IdealWidth: 1920, IdealHeight: 1080}
}

// Camera opens live streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open camera stream.
type Stream interface {
	// Snapshot grabs a still at the stream's native resolution.
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// FrameSource is a Stream that can be polled for analysis frames.
type FrameSource interface {
	Stream
	NextFrame(ctx context.Context) (image.Image, error)
}

// CameraFunc adapts a function to Camera.
type CameraFunc func(ctx context.Context, c Constraints) (Stream, error)

func (f CameraFunc) Open(ctx context.Context, c Constraints) (Stream, error) { return f(ctx, c) }

// DeclaredCapabilities is what a remote client says its camera supports.
type DeclaredCapabilities struct {
	Torch   bool
	Zoom    bool
	ZoomMin float64
	ZoomMax float64
	Focus   bool
}

// PushStream is fed frames by a remote client. Control requests are recorded
// as pending constraints for the client to apply.
type PushStream struct {
	declared DeclaredCapabilities

	mu      sync.Mutex
	latest  image.Image
	closed  bool
	pending map[string]any
}

// NewPushStream creates a stream for a client with the declared controls.
func NewPushStream(declared DeclaredCapabilities) *PushStream {
	return &PushStream{declared: declared, pending: make(map[string]any)}
}

// Push replaces the latest frame.
func (p *PushStream) Push(frame image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStreamClosed
	}
	p.latest = frame
	return nil
}

func (p *PushStream) Snapshot(ctx context.Context) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrStreamClosed
	}
	if p.latest == nil {
		return nil, ErrNoFrame
	}
	return p.latest, nil
}

func (p *PushStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.latest = nil
	return nil
}

// Capabilities exposes the controls the client declared.
func (p *PushStream) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	if p.declared.Torch {
		caps.Torch = pushTorch{p}
	}
	if p.declared.Zoom {
		caps.Zoom = pushZoom{p}
	}
	if p.declared.Focus {
		caps.Focus = pushFocus{p}
	}
	return caps, nil
}

// Pending returns and clears the constraints awaiting the client.
func (p *PushStream) Pending() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	p.pending = make(map[string]any)
	return out
}

func (p *PushStream) setPending(key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStreamClosed
	}
	p.pending[key] = v
	return nil
}

type pushTorch struct{ p *PushStream }

func (t pushTorch) SetTorch(ctx context.Context, on bool) error { return t.p.setPending("torch", on) }

type pushZoom struct{ p *PushStream }

func (z pushZoom) ZoomRange() (float64, float64) {
	lo, hi := z.p.declared.ZoomMin, z.p.declared.ZoomMax
	if hi <= lo {
		return 1, 1
	}
	return lo, hi
}

func (z pushZoom) SetZoom(ctx context.Context, level float64) error {
	return z.p.setPending("zoom", level)
}

type pushFocus struct{ p *PushStream }

func (f pushFocus) FocusAt(ctx context.Context, x, y float64) error {
	return f.p.setPending("focus", map[string]float64{"x": x, "y": y})
}

// FileSequenceStream replays still images from a directory in name order.
// It is used for offline testing of the auto-capture loop.
type FileSequenceStream struct {
	files []string

	mu     sync.Mutex
	next   int
	last   image.Image
	closed bool
}

// NewFileSequenceStream lists jpg, jpeg, png and webp files under dir.
func NewFileSequenceStream(dir string) (*FileSequenceStream, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	sort.Strings(files)
	return &FileSequenceStream{files: files}, nil
}

// Len returns the number of frames.
func (s *FileSequenceStream) Len() int { return len(s.files) }

// NextFrame decodes the next file. io.EOF marks the end of the sequence.
func (s *FileSequenceStream) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
	}
	dec, err := imageio.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", path, err)
	}
	s.last = dec.Image
	return dec.Image, nil
}

func (s *FileSequenceStream) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.last == nil {
		return nil, ErrNoFrame
	}
	return s.last, nil
}

func (s *FileSequenceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.last = nil
	return nil
}
