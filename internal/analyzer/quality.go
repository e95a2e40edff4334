// Package analyzer measures sharpness and exposure of captured images and
// turns them into advisory hints.
package analyzer

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/anime-shed/id-capture-go/pkg/models"
	"github.com/anime-shed/id-capture-go/pkg/validation"
)

// QualityAnalyzer produces a QualityReport for a finalized image
type QualityAnalyzer interface {
	Analyze(img image.Image) *models.QualityReport
}

type qualityAnalyzer struct {
	opts      Options
	calc      MetricsCalculator
	validator *validation.QualityValidator
}

// NewQualityAnalyzer creates a quality analyzer with the given options
func NewQualityAnalyzer(opts Options) QualityAnalyzer {
	return &qualityAnalyzer{
		opts:      opts,
		calc:      NewMetricsCalculator(),
		validator: validation.NewQualityValidatorWithThresholds(opts.Thresholds),
	}
}

func (qa *qualityAnalyzer) Analyze(img image.Image) *models.QualityReport {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	report := &models.QualityReport{Width: bounds.Dx(), Height: bounds.Dy()}
	if report.Width == 0 || report.Height == 0 {
		return report
	}

	work := img
	if qa.opts.MaxAnalysisWidth > 0 && report.Width > qa.opts.MaxAnalysisWidth {
		work = imaging.Resize(img, qa.opts.MaxAnalysisWidth, 0, imaging.Box)
	}
	gray := toGray(work)

	report.LaplacianVariance = qa.calc.LaplacianVariance(gray)
	report.Brightness = qa.calc.Brightness(gray)
	report.AvgLuminance = qa.calc.AverageLuminance(work)
	report.Issues = qa.validator.Validate(validation.ImageQualityMetrics{
		Width:        report.Width,
		Height:       report.Height,
		LaplacianVar: report.LaplacianVariance,
		Brightness:   report.Brightness,
		AvgLuminance: report.AvgLuminance,
	})
	return report
}

func toGray(img image.Image) *image.Gray {
	g := imaging.Grayscale(img)
	b := g.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Pix[gray.PixOffset(x, y)] = g.Pix[g.PixOffset(x, y)]
		}
	}
	return gray
}
