package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ANALYSIS_INTERVAL", "")
	t.Setenv("STABLE_FRAMES_REQUIRED", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.AnalysisInterval != 300*time.Millisecond {
		t.Errorf("Expected 300ms analysis interval, got %s", cfg.AnalysisInterval)
	}
	if cfg.StableFramesRequired != 4 {
		t.Errorf("Expected 4 stable frames, got %d", cfg.StableFramesRequired)
	}
	if cfg.MotionPixelThreshold != 50 || cfg.MotionChangeLimit != 10 {
		t.Errorf("Unexpected motion defaults: %d/%d", cfg.MotionPixelThreshold, cfg.MotionChangeLimit)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ANALYSIS_INTERVAL", "150ms")
	t.Setenv("DETECTOR", "Tesseract")
	t.Setenv("DETECTOR_KEYWORDS", "REPUBLIC, PROFESSIONAL ,,LICENSE")
	t.Setenv("S3_USE_PATH_STYLE", "false")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ServerAddress() != "0.0.0.0:9090" {
		t.Errorf("Unexpected address %s", cfg.ServerAddress())
	}
	if cfg.AnalysisInterval != 150*time.Millisecond {
		t.Errorf("Expected 150ms, got %s", cfg.AnalysisInterval)
	}
	if cfg.Detector != "tesseract" {
		t.Errorf("Expected detector to be lowercased, got %s", cfg.Detector)
	}
	if len(cfg.DetectorKeywords) != 3 || cfg.DetectorKeywords[1] != "PROFESSIONAL" {
		t.Errorf("Unexpected keywords %v", cfg.DetectorKeywords)
	}
	if cfg.S3UsePathStyle {
		t.Error("Expected S3_USE_PATH_STYLE=false to be honored")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric port", "PORT", "http"},
		{"port out of range", "PORT", "70000"},
		{"zero stable frames", "STABLE_FRAMES_REQUIRED", "0"},
		{"pixel threshold too large", "MOTION_PIXEL_THRESHOLD", "300"},
		{"confidence above one", "DETECTOR_CONFIDENCE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
