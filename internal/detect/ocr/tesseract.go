//go:build cgo

// Package ocr provides a tesseract-backed text presence detector. It needs
// cgo and the tesseract libraries at build time.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/detect"
	"github.com/anime-shed/id-capture-go/internal/logger"
)

// TextConfig configures the text-presence detector.
type TextConfig struct {
	Language string
	// Minimum per-word confidence (0-100).
	MinConfidence float64
	// Minimum number of confident words for a positive result.
	MinWords int
	// Optional keywords; when set, at least one must be recognized.
	Keywords []string
	// Frames are downscaled to this width before recognition.
	MaxWidth int
}

// DefaultTextConfig returns settings tuned for ID cards held close to the camera.
func DefaultTextConfig() TextConfig {
	return TextConfig{
		Language:      "eng",
		MinConfidence: 60,
		MinWords:      3,
		MaxWidth:      960,
	}
}

// TextPresenceDetector treats a frame as containing a document when
// tesseract finds enough confident words in it.
type TextPresenceDetector struct {
	cfg     TextConfig
	matcher *detect.KeywordMatcher
	log     *logrus.Entry

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTextPresenceDetector creates a detector with its own tesseract client.
func NewTextPresenceDetector(cfg TextConfig) (*TextPresenceDetector, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 1
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract language %q: %w", cfg.Language, err)
	}
	return &TextPresenceDetector{
		cfg:     cfg,
		matcher: detect.NewKeywordMatcher(cfg.Keywords, 0.25),
		log:     logger.Component("detect"),
		client:  client,
	}, nil
}

// Detect runs word-level recognition on img.
func (d *TextPresenceDetector) Detect(ctx context.Context, img image.Image) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if d.cfg.MaxWidth > 0 && img.Bounds().Dx() > d.cfg.MaxWidth {
		img = imaging.Resize(img, d.cfg.MaxWidth, 0, imaging.Linear)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Grayscale(img), imaging.PNG); err != nil {
		return false, fmt.Errorf("failed to encode frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return false, fmt.Errorf("detector closed")
	}
	if err := d.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return false, fmt.Errorf("failed to load frame: %w", err)
	}
	boxes, err := d.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return false, fmt.Errorf("text recognition failed: %w", err)
	}

	var words []string
	for _, b := range boxes {
		if b.Confidence >= d.cfg.MinConfidence && len(detect.NormalizeWord(b.Word)) >= 2 {
			words = append(words, b.Word)
		}
	}
	keyword, ok := d.matcher.Accept(words, d.cfg.MinWords)
	if ok && keyword != "" {
		d.log.WithField("keyword", keyword).Debug("Document keyword recognized")
	}
	return ok, nil
}

var _ detect.Detector = (*TextPresenceDetector)(nil)

// Close releases the tesseract client.
func (d *TextPresenceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
