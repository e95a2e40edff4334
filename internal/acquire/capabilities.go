package acquire

import (
	"context"
	"time"
)

// TorchControl switches the camera light.
type TorchControl interface {
	SetTorch(ctx context.Context, on bool) error
}

// ZoomControl drives optical or sensor zoom within a range.
type ZoomControl interface {
	ZoomRange() (min, max float64)
	SetZoom(ctx context.Context, level float64) error
}

// FocusControl focuses on a point given in normalized [0,1] coordinates.
type FocusControl interface {
	FocusAt(ctx context.Context, x, y float64) error
}

// Capabilities lists the optional controls a stream supports. A nil field
// means unsupported.
type Capabilities struct {
	Torch TorchControl
	Zoom  ZoomControl
	Focus FocusControl
}

// Names reports which capabilities are present.
func (c Capabilities) Names() map[string]bool {
	return map[string]bool{
		"torch": c.Torch != nil,
		"zoom":  c.Zoom != nil,
		"focus": c.Focus != nil,
	}
}

// CapabilityProber is implemented by streams that can report their controls.
type CapabilityProber interface {
	Capabilities(ctx context.Context) (Capabilities, error)
}

// ProbeCapabilities waits settle for the stream to start, then asks it for
// its controls. Streams that cannot report anything yield empty capabilities.
func ProbeCapabilities(ctx context.Context, stream Stream, settle time.Duration) (Capabilities, error) {
	if settle > 0 {
		timer := time.NewTimer(settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Capabilities{}, ctx.Err()
		case <-timer.C:
		}
	}
	prober, ok := stream.(CapabilityProber)
	if !ok {
		return Capabilities{}, nil
	}
	return prober.Capabilities(ctx)
}

// tapToFocusPoint converts a tap in view pixels to normalized coordinates.
func tapToFocusPoint(tapX, tapY, viewW, viewH float64) (float64, float64, bool) {
	if viewW <= 0 || viewH <= 0 {
		return 0, 0, false
	}
	x := tapX / viewW
	y := tapY / viewH
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return 0, 0, false
	}
	return x, y, true
}
