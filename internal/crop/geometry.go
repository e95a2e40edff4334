package crop

import "math"

const (
	MinZoom     = 1.0
	MaxZoom     = 3.0
	MinRotation = -180.0
	MaxRotation = 180.0
)

// Region is a crop rectangle in rotated-canvas pixel space.
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the midpoint of r.
func (r Region) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Ratio returns W/H.
func (r Region) Ratio() float64 {
	if r.H == 0 {
		return 0
	}
	return r.W / r.H
}

// rotatedCanvas returns the bounding box of a w×h image rotated by deg.
func rotatedCanvas(w, h, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	return w*cos + h*sin, w*sin + h*cos
}

// fitRegionSize returns the largest ratio-preserving size that fits a
// canvasW×canvasH box, divided by zoom.
func fitRegionSize(canvasW, canvasH, ratio, zoom float64) (float64, float64) {
	var h float64
	if canvasW/canvasH > ratio {
		h = canvasH
	} else {
		h = canvasW / ratio
	}
	h /= zoom
	return h * ratio, h
}

// placeRegion centers a w×h region on (cx, cy), clamped inside the canvas.
func placeRegion(canvasW, canvasH, w, h, cx, cy float64) Region {
	cx = clamp(cx, w/2, canvasW-w/2)
	cy = clamp(cy, h/2, canvasH-h/2)
	return Region{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
