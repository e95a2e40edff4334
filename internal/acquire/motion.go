package acquire

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Motion defaults for the stability check.
const (
	SampleWidth           = 160
	SampleHeight          = 90
	SampleStride          = 4
	DefaultPixelThreshold = 50
	DefaultChangeLimit    = 10
)

// MotionDetector compares each frame with the previous one at low
// resolution. Only the last sample is kept.
type MotionDetector struct {
	pixelThreshold int
	changeLimit    int
	prev           *image.RGBA
}

// NewMotionDetector creates a detector. Non-positive arguments use defaults.
func NewMotionDetector(pixelThreshold, changeLimit int) *MotionDetector {
	if pixelThreshold <= 0 {
		pixelThreshold = DefaultPixelThreshold
	}
	if changeLimit <= 0 {
		changeLimit = DefaultChangeLimit
	}
	return &MotionDetector{pixelThreshold: pixelThreshold, changeLimit: changeLimit}
}

// Stable reports whether frame differs from the previous frame in fewer than
// changeLimit sampled pixels. The first frame after a reset is never stable.
func (m *MotionDetector) Stable(frame image.Image) bool {
	sample := downsample(frame)
	prev := m.prev
	m.prev = sample
	if prev == nil {
		return false
	}
	return countChanges(prev, sample, m.pixelThreshold) < m.changeLimit
}

// Reset forgets the previous sample.
func (m *MotionDetector) Reset() {
	m.prev = nil
}

func downsample(frame image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, SampleWidth, SampleHeight))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)
	return dst
}

// countChanges walks every SampleStride-th pixel and counts those where any
// RGB channel moved by more than threshold.
func countChanges(a, b *image.RGBA, threshold int) int {
	changes := 0
	for i := 0; i+3 < len(a.Pix) && i+3 < len(b.Pix); i += 4 * SampleStride {
		for c := 0; c < 3; c++ {
			d := int(a.Pix[i+c]) - int(b.Pix[i+c])
			if d < 0 {
				d = -d
			}
			if d > threshold {
				changes++
				break
			}
		}
	}
	return changes
}
