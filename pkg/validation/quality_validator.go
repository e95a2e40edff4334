package validation

import (
	"github.com/anime-shed/id-capture-go/pkg/models"
)

// QualityThresholds defines configurable thresholds for capture quality hints
type QualityThresholds struct {
	// Sharpness thresholds
	MinLaplacianVariance float64
	MaxLaplacianVariance float64

	// Brightness thresholds (0-255 gray mean)
	MinBrightness float64
	MaxBrightness float64

	// Luminance thresholds
	MinLuminance float64
	MaxLuminance float64

	// Resolution thresholds
	MinWidth  int
	MinHeight int
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 100.0,
		MaxLaplacianVariance: 4000.0,
		MinBrightness:        60.0,
		MaxBrightness:        230.0,
		MinLuminance:         0.15,
		MaxLuminance:         0.95,
		MinWidth:             600,
		MinHeight:            300,
	}
}

// QualityValidator turns raw image metrics into user-facing hints
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// Thresholds returns the active thresholds.
func (qv *QualityValidator) Thresholds() QualityThresholds {
	return qv.thresholds
}

// ImageQualityMetrics represents the metrics needed for quality validation
type ImageQualityMetrics struct {
	Width        int
	Height       int
	LaplacianVar float64
	Brightness   float64
	AvgLuminance float64
}

// Validate returns the hints for one captured image.
func (qv *QualityValidator) Validate(metrics ImageQualityMetrics) []models.QualityIssue {
	var issues []models.QualityIssue

	// 1. Blurriness
	if metrics.LaplacianVar <= qv.thresholds.MinLaplacianVariance {
		issues = append(issues, models.QualityIssue{
			Type:        "blurriness",
			Message:     "Image is blurry. Please hold the camera steady and try again.",
			Severity:    "error",
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	} else if metrics.LaplacianVar >= qv.thresholds.MaxLaplacianVariance {
		issues = append(issues, models.QualityIssue{
			Type:        "over_sharpening",
			Message:     "Image has too much noise or artificial sharpening. Use natural lighting and avoid digital zoom.",
			Severity:    "warning",
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MaxLaplacianVariance,
		})
	}

	// 2. Brightness
	if metrics.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, models.QualityIssue{
			Type:        "too_dark",
			Message:     "Image is too dark. Take the photo in more light.",
			Severity:    "error",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if metrics.Brightness > qv.thresholds.MaxBrightness {
		issues = append(issues, models.QualityIssue{
			Type:        "too_bright",
			Message:     "Image is too bright. Avoid strong sunlight or flash.",
			Severity:    "error",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	// 3. Average luminance
	if metrics.AvgLuminance <= qv.thresholds.MinLuminance {
		issues = append(issues, models.QualityIssue{
			Type:        "low_luminance",
			Message:     "Image is very dull. Use more light.",
			Severity:    "warning",
			ActualValue: metrics.AvgLuminance,
			Threshold:   qv.thresholds.MinLuminance,
		})
	} else if metrics.AvgLuminance >= qv.thresholds.MaxLuminance {
		issues = append(issues, models.QualityIssue{
			Type:        "high_luminance",
			Message:     "Image has too much light. Move to a less bright area.",
			Severity:    "warning",
			ActualValue: metrics.AvgLuminance,
			Threshold:   qv.thresholds.MaxLuminance,
		})
	}

	// 4. Resolution
	if metrics.Width < qv.thresholds.MinWidth || metrics.Height < qv.thresholds.MinHeight {
		issues = append(issues, models.QualityIssue{
			Type:        "low_resolution",
			Message:     "Image is too small or unclear. Please take a clearer photo.",
			Severity:    "warning",
			ActualValue: float64(metrics.Width * metrics.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to simple messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []models.QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func (qv *QualityValidator) HasCriticalIssues(issues []models.QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
