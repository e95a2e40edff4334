package analyzer

import "github.com/anime-shed/id-capture-go/pkg/validation"

// Options configures quality analysis of captured images
type Options struct {
	// Images wider than this are downscaled before measuring.
	MaxAnalysisWidth int

	Thresholds validation.QualityThresholds
}

// DefaultOptions returns default analysis options
func DefaultOptions() Options {
	return Options{
		MaxAnalysisWidth: 1000,
		Thresholds:       validation.DefaultQualityThresholds(),
	}
}

// WithBlurThreshold sets the minimum Laplacian variance for a sharp image
func (opts Options) WithBlurThreshold(minVariance float64) Options {
	opts.Thresholds.MinLaplacianVariance = minVariance
	return opts
}

// WithBrightnessRange sets the accepted mean gray level range
func (opts Options) WithBrightnessRange(min, max float64) Options {
	opts.Thresholds.MinBrightness = min
	opts.Thresholds.MaxBrightness = max
	return opts
}

// WithMinResolution sets the smallest image that does not get a resolution hint
func (opts Options) WithMinResolution(width, height int) Options {
	opts.Thresholds.MinWidth = width
	opts.Thresholds.MinHeight = height
	return opts
}

// WithMaxAnalysisWidth bounds the work done per image
func (opts Options) WithMaxAnalysisWidth(width int) Options {
	opts.MaxAnalysisWidth = width
	return opts
}
