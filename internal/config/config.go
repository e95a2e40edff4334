package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration. Capture tuning defaults follow the
// auto-capture contract: 300ms cadence, 4 stable frames, 50/255 pixel delta, <10 changes.
type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Capture
	ProfilesFile         string
	SessionTTL           time.Duration
	JanitorInterval      time.Duration
	AnalysisInterval     time.Duration
	StableFramesRequired int
	MotionPixelThreshold int
	MotionChangeLimit    int
	CapabilitySettle     time.Duration
	PreviewBaseURL       string

	// Subject detection
	Detector           string
	DetectorConfidence float64
	DetectorLanguage   string
	DetectorKeywords   []string

	// Document store
	StorageType       string
	LocalStorageDir   string
	UploadEndpoint    string
	UploadHosts       []string
	UploadRequireTLS  bool
	AzureAccountName  string
	AzureAccountKey   string
	AzureContainer    string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3UsePathStyle    bool
	GCSBucket         string
	StoragePrefix     string
	UploadWorkers     int

	// Records and events
	DatabaseURL    string
	RabbitURL      string
	RabbitExchange string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 15*1024*1024), // 15MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		ProfilesFile:         os.Getenv("PROFILES_FILE"),
		SessionTTL:           parseDurationOrDefault("SESSION_TTL", 30*time.Minute),
		JanitorInterval:      parseDurationOrDefault("JANITOR_INTERVAL", time.Minute),
		AnalysisInterval:     parseDurationOrDefault("ANALYSIS_INTERVAL", 300*time.Millisecond),
		StableFramesRequired: int(parseIntOrDefault("STABLE_FRAMES_REQUIRED", 4)),
		MotionPixelThreshold: int(parseIntOrDefault("MOTION_PIXEL_THRESHOLD", 50)),
		MotionChangeLimit:    int(parseIntOrDefault("MOTION_CHANGE_LIMIT", 10)),
		CapabilitySettle:     parseDurationOrDefault("CAPABILITY_SETTLE", 500*time.Millisecond),
		PreviewBaseURL:       strings.TrimRight(getEnvOrDefault("PREVIEW_BASE_URL", "/previews"), "/"),

		Detector:           strings.ToLower(getEnvOrDefault("DETECTOR", "none")),
		DetectorConfidence: parseFloatOrDefault("DETECTOR_CONFIDENCE", 0.6),
		DetectorLanguage:   getEnvOrDefault("DETECTOR_LANGUAGE", "eng"),
		DetectorKeywords:   parseListOrDefault("DETECTOR_KEYWORDS", nil),

		StorageType:       strings.ToLower(getEnvOrDefault("STORAGE_TYPE", "local")),
		LocalStorageDir:   getEnvOrDefault("LOCAL_STORAGE_DIR", "./data/documents"),
		UploadEndpoint:    os.Getenv("DOCUMENT_UPLOAD_URL"),
		UploadHosts:       parseListOrDefault("DOCUMENT_UPLOAD_HOSTS", nil),
		UploadRequireTLS:  parseBoolOrDefault("DOCUMENT_UPLOAD_REQUIRE_TLS", true),
		AzureAccountName:  os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:   os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:    getEnvOrDefault("AZURE_STORAGE_CONTAINER", "documents"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Bucket:          getEnvOrDefault("S3_BUCKET", "documents"),
		S3UsePathStyle:    parseBoolOrDefault("S3_USE_PATH_STYLE", true),
		GCSBucket:         os.Getenv("GCS_BUCKET"),
		StoragePrefix:     getEnvOrDefault("STORAGE_PREFIX", "captures/"),
		UploadWorkers:     int(parseIntOrDefault("UPLOAD_WORKERS", 2)),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getEnvOrDefault("RABBIT_EXCHANGE", "capture.events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.SessionTTL <= 0 || c.AnalysisInterval <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, session=%s, analysis=%s)",
			c.RequestTimeout, c.SessionTTL, c.AnalysisInterval)
	}
	if c.StableFramesRequired < 1 {
		return fmt.Errorf("STABLE_FRAMES_REQUIRED must be >= 1 (got %d)", c.StableFramesRequired)
	}
	if c.MotionPixelThreshold < 0 || c.MotionPixelThreshold > 255 {
		return fmt.Errorf("MOTION_PIXEL_THRESHOLD must be within 0..255 (got %d)", c.MotionPixelThreshold)
	}
	if c.DetectorConfidence < 0 || c.DetectorConfidence > 1 {
		return fmt.Errorf("DETECTOR_CONFIDENCE must be within 0..1 (got %g)", c.DetectorConfidence)
	}
	if c.UploadWorkers < 1 {
		return fmt.Errorf("UPLOAD_WORKERS must be >= 1 (got %d)", c.UploadWorkers)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
