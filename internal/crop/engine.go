// Package crop implements the interactive crop editor used on the upload
// path: zoom, rotate and pan a fixed-ratio region over a decoded image, then
// render it to a fixed-size JPEG.
package crop

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/analyzer"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/preview"
)

// State is a read-only view of the editor.
type State struct {
	HasSource   bool    `json:"has_source"`
	Zoom        float64 `json:"zoom"`
	Rotation    float64 `json:"rotation"`
	Region      Region  `json:"region"`
	AspectRatio float64 `json:"aspect_ratio"`
	CanvasW     float64 `json:"canvas_w"`
	CanvasH     float64 `json:"canvas_h"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithAnalyzer attaches quality hints to confirmed images.
func WithAnalyzer(qa analyzer.QualityAnalyzer) Option {
	return func(e *Engine) { e.analyzer = qa }
}

// WithJPEGQuality overrides the output JPEG quality.
func WithJPEGQuality(q int) Option {
	return func(e *Engine) { e.quality = q }
}

// WithBackground sets the fill used for canvas corners exposed by rotation.
func WithBackground(c color.Color) Option {
	return func(e *Engine) { e.background = c }
}

// Engine holds the crop state for one source image.
type Engine struct {
	ratio      float64
	outW, outH int
	previews   *preview.Registry
	analyzer   analyzer.QualityAnalyzer
	quality    int
	background color.Color
	log        *logrus.Entry

	mu       sync.Mutex
	source   image.Image
	zoom     float64
	rotation float64
	region   Region
}

// NewEngine creates an editor locked to aspectRatio whose output is
// outputWidth × round(outputWidth/aspectRatio) pixels.
func NewEngine(aspectRatio float64, outputWidth int, previews *preview.Registry, opts ...Option) (*Engine, error) {
	if !validNumber(aspectRatio) || aspectRatio <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid aspect ratio %v", aspectRatio), nil)
	}
	if outputWidth <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid output width %d", outputWidth), nil)
	}
	outH := int(math.Round(float64(outputWidth) / aspectRatio))
	if outH < 1 {
		outH = 1
	}
	e := &Engine{
		ratio:      aspectRatio,
		outW:       outputWidth,
		outH:       outH,
		previews:   previews,
		quality:    imageio.DefaultJPEGQuality,
		background: color.White,
		zoom:       MinZoom,
		log:        logger.Component("crop"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AspectRatio returns the fixed region ratio.
func (e *Engine) AspectRatio() float64 { return e.ratio }

// OutputSize returns the rendered dimensions.
func (e *Engine) OutputSize() (int, int) { return e.outW, e.outH }

// Load replaces the source and resets zoom, rotation and region.
func (e *Engine) Load(img image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if img == nil || img.Bounds().Empty() {
		img = nil
	}
	e.source = img
	e.resetLocked()
}

// Clear discards the source and crop state.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = nil
	e.zoom, e.rotation, e.region = MinZoom, 0, Region{}
}

// CanEdit reports whether a source is loaded.
func (e *Engine) CanEdit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source != nil
}

// SetZoom clamps v to [1,3] and rescales the region about its center.
// Without a source it does nothing.
func (e *Engine) SetZoom(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil || !validNumber(v) {
		return
	}
	e.zoom = clamp(v, MinZoom, MaxZoom)
	e.refitLocked()
}

// SetRotation clamps deg to [-180,180] (clockwise positive). Without a
// source it does nothing.
func (e *Engine) SetRotation(deg float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil || !validNumber(deg) {
		return
	}
	oldW, oldH := e.canvasLocked()
	cx, cy := e.region.Center()
	offX, offY := cx-oldW/2, cy-oldH/2

	e.rotation = clamp(deg, MinRotation, MaxRotation)

	newW, newH := e.canvasLocked()
	w, h := fitRegionSize(newW, newH, e.ratio, e.zoom)
	e.region = placeRegion(newW, newH, w, h, newW/2+offX, newH/2+offY)
}

// RotationLabel is the rotation rounded to whole degrees.
func (e *Engine) RotationLabel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(math.Round(e.rotation))
}

// Pan moves the region by (dx, dy) canvas pixels, clamped to the canvas.
func (e *Engine) Pan(dx, dy float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil || !validNumber(dx) || !validNumber(dy) {
		return
	}
	cw, ch := e.canvasLocked()
	cx, cy := e.region.Center()
	e.region = placeRegion(cw, ch, e.region.W, e.region.H, cx+dx, cy+dy)
}

// ResetToDefaults restores zoom 1, rotation 0 and a centered region while
// keeping the source.
func (e *Engine) ResetToDefaults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil {
		return
	}
	e.resetLocked()
}

// State returns a snapshot of the editor.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		HasSource:   e.source != nil,
		Zoom:        e.zoom,
		Rotation:    e.rotation,
		Region:      e.region,
		AspectRatio: e.ratio,
	}
	if e.source != nil {
		s.CanvasW, s.CanvasH = e.canvasLocked()
	}
	return s
}

// Confirm renders the region to a fixed-size JPEG and registers its preview.
// The crop state is discarded on success.
func (e *Engine) Confirm(ctx context.Context) (*preview.CapturedImage, error) {
	e.mu.Lock()
	src, rotation, region := e.source, e.rotation, e.region
	e.mu.Unlock()

	if src == nil {
		return nil, apperrors.NewNoSourceImageError()
	}

	out, err := e.render(ctx, src, rotation, region)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("crop cancelled", err)
	}

	data, err := imageio.EncodeJPEG(out, e.quality)
	if err != nil {
		return nil, err
	}

	img := preview.NewCapturedImage(e.previews, data, e.outW, e.outH, preview.OriginCrop)
	if e.analyzer != nil {
		img.Quality = e.analyzer.Analyze(out)
	}

	e.mu.Lock()
	if e.source == src {
		e.source = nil
		e.zoom, e.rotation, e.region = MinZoom, 0, Region{}
	}
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"rotation": rotation,
		"region":   region,
		"width":    e.outW,
		"height":   e.outH,
		"bytes":    len(data),
	}).Debug("Crop confirmed")

	return img, nil
}

func (e *Engine) render(ctx context.Context, src image.Image, rotation float64, region Region) (image.Image, error) {
	canvas := src
	srcW, srcH := float64(src.Bounds().Dx()), float64(src.Bounds().Dy())
	cw, ch := rotatedCanvas(srcW, srcH, rotation)
	if rotation != 0 {
		// imaging rotates counter-clockwise.
		canvas = imaging.Rotate(src, -rotation, e.background)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("crop cancelled", err)
	}

	// imaging rounds the canvas size; scale the region onto the real one.
	b := canvas.Bounds()
	sx, sy := float64(b.Dx())/cw, float64(b.Dy())/ch
	x0, x1 := pixelSpan(b.Min.X, b.Max.X, region.X*sx, (region.X+region.W)*sx)
	y0, y1 := pixelSpan(b.Min.Y, b.Max.Y, region.Y*sy, (region.Y+region.H)*sy)
	rect := image.Rect(x0, y0, x1, y1).Intersect(b)
	if rect.Empty() {
		return nil, apperrors.NewProcessingError("crop region is empty", nil)
	}

	cropped := imaging.Crop(canvas, rect)
	return imaging.Resize(cropped, e.outW, e.outH, imaging.Lanczos), nil
}

// pixelSpan rounds [from, to) (offsets from lo) to whole pixels inside
// [lo, hi). Spans thinner than a pixel keep the pixel under their centre.
func pixelSpan(lo, hi int, from, to float64) (int, int) {
	a := lo + int(math.Round(from))
	z := lo + int(math.Round(to))
	if z-a >= 1 || hi <= lo {
		return a, z
	}
	a = lo + int(math.Floor((from+to)/2))
	if a < lo {
		a = lo
	}
	if a > hi-1 {
		a = hi - 1
	}
	return a, a + 1
}

func (e *Engine) resetLocked() {
	e.zoom = MinZoom
	e.rotation = 0
	if e.source == nil {
		e.region = Region{}
		return
	}
	cw, ch := e.canvasLocked()
	w, h := fitRegionSize(cw, ch, e.ratio, e.zoom)
	e.region = placeRegion(cw, ch, w, h, cw/2, ch/2)
}

func (e *Engine) refitLocked() {
	cw, ch := e.canvasLocked()
	cx, cy := e.region.Center()
	w, h := fitRegionSize(cw, ch, e.ratio, e.zoom)
	e.region = placeRegion(cw, ch, w, h, cx, cy)
}

func (e *Engine) canvasLocked() (float64, float64) {
	b := e.source.Bounds()
	return rotatedCanvas(float64(b.Dx()), float64(b.Dy()), e.rotation)
}
