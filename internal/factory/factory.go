// Package factory picks document store and subject detector implementations
// from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/detect"
	"github.com/anime-shed/id-capture-go/internal/storage"
	"github.com/anime-shed/id-capture-go/pkg/validation"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// LocalStorage writes documents to the local file system
	LocalStorage StorageType = "local"
	// HTTPStorage posts documents to an upload endpoint
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
	// S3Storage for S3 and S3-compatible object stores
	S3Storage StorageType = "s3"
	// GCSStorage for Google Cloud Storage
	GCSStorage StorageType = "gcs"
)

// DetectorType represents different subject detectors
type DetectorType string

const (
	// NoDetector treats every frame as containing the subject
	NoDetector DetectorType = "none"
	// TesseractDetector requires readable text in the frame
	TesseractDetector DetectorType = "tesseract"
)

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(ctx context.Context, storageType StorageType) (storage.DocumentStore, error)
}

// DetectorFactory creates subject detectors
type DetectorFactory interface {
	CreateDetector(detectorType DetectorType) (detect.Detector, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(ctx context.Context, storageType StorageType) (storage.DocumentStore, error) {
	cfg := f.cfg
	switch storageType {
	case LocalStorage:
		return storage.NewLocalStorage(cfg.LocalStorageDir, cfg.StoragePrefix)
	case HTTPStorage:
		endpoint := validation.NewEndpointValidator().
			WithAllowedHosts(cfg.UploadHosts...).
			WithRequireTLS(cfg.UploadRequireTLS)
		if err := endpoint.Validate(cfg.UploadEndpoint); err != nil {
			return nil, fmt.Errorf("invalid DOCUMENT_UPLOAD_URL: %w", err)
		}
		uploader, err := storage.NewHTTPDocumentUploader(cfg.UploadEndpoint)
		if err != nil {
			return nil, err
		}
		return uploader, nil
	case AzureStorage:
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
		return storage.NewAzureStorage(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureContainer, cfg.StoragePrefix)
	case S3Storage:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.StoragePrefix,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	case GCSStorage:
		return storage.NewGCSStorage(ctx, cfg.GCSBucket, cfg.StoragePrefix)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// detectorFactory implements DetectorFactory
type detectorFactory struct {
	cfg *config.Config
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config) DetectorFactory {
	return &detectorFactory{cfg: cfg}
}

// CreateDetector creates a detector based on the specified type. Detectors
// holding native resources also implement io.Closer.
func (f *detectorFactory) CreateDetector(detectorType DetectorType) (detect.Detector, error) {
	switch detectorType {
	case NoDetector, "":
		return detect.Always, nil
	case TesseractDetector:
		return newTesseractDetector(f.cfg)
	default:
		return nil, fmt.Errorf("unsupported detector type: %s", detectorType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory  StorageFactory
	DetectorFactory DetectorFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:  NewStorageFactory(cfg),
		DetectorFactory: NewDetectorFactory(cfg),
	}
}
