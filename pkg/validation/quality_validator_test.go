package validation

import (
	"testing"
)

func TestNewQualityValidator(t *testing.T) {
	validator := NewQualityValidator()
	if validator == nil {
		t.Fatal("Expected non-nil quality validator")
	}

	expected := DefaultQualityThresholds().MinLaplacianVariance
	if validator.Thresholds().MinLaplacianVariance != expected {
		t.Errorf("Expected MinLaplacianVariance to be %f, got %f", expected, validator.Thresholds().MinLaplacianVariance)
	}
}

func TestNewQualityValidatorWithThresholds(t *testing.T) {
	custom := QualityThresholds{
		MinLaplacianVariance: 500.0,
		MinBrightness:        100.0,
		MaxBrightness:        200.0,
	}

	validator := NewQualityValidatorWithThresholds(custom)
	if validator.Thresholds().MinLaplacianVariance != 500.0 {
		t.Errorf("Expected custom MinLaplacianVariance to be 500.0, got %f", validator.Thresholds().MinLaplacianVariance)
	}
}

func TestValidate(t *testing.T) {
	good := ImageQualityMetrics{
		Width:        1200,
		Height:       757,
		LaplacianVar: 900.0,
		Brightness:   140.0,
		AvgLuminance: 0.5,
	}

	tests := []struct {
		name      string
		mutate    func(m *ImageQualityMetrics)
		wantType  string
		wantError bool
	}{
		{"sharp and well lit", func(m *ImageQualityMetrics) {}, "", false},
		{"blurry", func(m *ImageQualityMetrics) { m.LaplacianVar = 50 }, "blurriness", true},
		{"noisy", func(m *ImageQualityMetrics) { m.LaplacianVar = 5000 }, "over_sharpening", false},
		{"dark", func(m *ImageQualityMetrics) { m.Brightness = 20 }, "too_dark", true},
		{"bright", func(m *ImageQualityMetrics) { m.Brightness = 250 }, "too_bright", true},
		{"dull", func(m *ImageQualityMetrics) { m.AvgLuminance = 0.1 }, "low_luminance", false},
		{"tiny", func(m *ImageQualityMetrics) { m.Width, m.Height = 320, 200 }, "low_resolution", false},
	}

	validator := NewQualityValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := good
			tt.mutate(&m)
			issues := validator.Validate(m)

			if tt.wantType == "" {
				if len(issues) != 0 {
					t.Errorf("Expected no issues, got %v", issues)
				}
				return
			}

			found := false
			for _, issue := range issues {
				if issue.Type == tt.wantType {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected %s issue, got %v", tt.wantType, issues)
			}
			if validator.HasCriticalIssues(issues) != tt.wantError {
				t.Errorf("HasCriticalIssues = %v, want %v", !tt.wantError, tt.wantError)
			}
		})
	}
}

func TestConvertIssuesToMessages(t *testing.T) {
	validator := NewQualityValidator()
	issues := validator.Validate(ImageQualityMetrics{LaplacianVar: 10, Brightness: 140, AvgLuminance: 0.5, Width: 1200, Height: 800})
	messages := validator.ConvertIssuesToMessages(issues)
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0] != "Image is blurry. Please hold the camera steady and try again." {
		t.Errorf("Unexpected message %q", messages[0])
	}
}
