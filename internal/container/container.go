// Package container builds the capture service dependency graph from configuration.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/analyzer"
	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/detect"
	"github.com/anime-shed/id-capture-go/internal/factory"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/observer"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/internal/profile"
	"github.com/anime-shed/id-capture-go/internal/repository"
	"github.com/anime-shed/id-capture-go/internal/service"
	"github.com/anime-shed/id-capture-go/internal/storage"
	"github.com/anime-shed/id-capture-go/internal/transport"
	"github.com/anime-shed/id-capture-go/internal/worker"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	store    storage.DocumentStore
	detector detect.Detector
	db       *sql.DB
	amqp     *observer.AMQPObserver
	events   observer.Subject
	service  service.CaptureService
	janitor  *service.Janitor
	handler  http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.Component("container")
	c := &Container{config: cfg}

	profiles, err := profile.Load(cfg.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	components := factory.NewComponentFactory(cfg)
	c.store, err = components.StorageFactory.CreateStorage(ctx, factory.StorageType(cfg.StorageType))
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	c.detector, err = components.DetectorFactory.CreateDetector(factory.DetectorType(cfg.Detector))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	var records repository.CaptureRepository
	if cfg.DatabaseURL != "" {
		c.db, err = repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		pg := repository.NewPostgresCaptureRepository(c.db)
		if err := pg.EnsureSchema(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to prepare capture records: %w", err)
		}
		records = pg
	} else {
		log.Warn("DATABASE_URL not set, capture records are kept in memory")
		records = repository.NewMemoryCaptureRepository()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c.events = observer.NewEventPublisher()
	c.events.Subscribe(observer.NewLoggingObserver(nil))
	c.events.Subscribe(observer.NewMetricsObserver(reg))
	if cfg.RabbitURL != "" {
		c.amqp, err = observer.DialAMQP(cfg.RabbitURL, cfg.RabbitExchange,
			observer.SessionCompleted,
			observer.SessionCancelled,
			observer.SessionExpired,
			observer.DocumentStoreFailed,
		)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		c.events.Subscribe(c.amqp)
	}

	camera := acquire.DefaultCameraConfig()
	camera.Interval = cfg.AnalysisInterval
	camera.StableFramesRequired = cfg.StableFramesRequired
	camera.MotionPixelThreshold = cfg.MotionPixelThreshold
	camera.MotionChangeLimit = cfg.MotionChangeLimit
	camera.CapabilitySettle = cfg.CapabilitySettle

	c.service = service.NewCaptureService(service.Config{
		Profiles:       profiles,
		Previews:       preview.NewRegistry(cfg.PreviewBaseURL),
		Store:          c.store,
		Records:        records,
		Events:         c.events,
		Uploads:        worker.NewPool(cfg.UploadWorkers),
		Detector:       c.detector,
		Analyzer:       analyzer.NewQualityAnalyzer(analyzer.DefaultOptions()),
		Camera:         camera,
		MaxUploadBytes: cfg.MaxRequestBodySize,
		SessionTTL:     cfg.SessionTTL,
	})
	c.janitor = service.NewJanitor(c.service, cfg.JanitorInterval)

	c.handler = transport.NewHandler(c.service, transport.Options{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RequestTimeout:     cfg.RequestTimeout,
		Gatherer:           reg,
	})

	log.WithFields(logrus.Fields{
		"storage":  c.store.Name(),
		"detector": cfg.Detector,
		"profiles": len(profiles.List()),
		"rabbitmq": c.amqp != nil,
		"postgres": c.db != nil,
	}).Info("Capture service wired")
	return c, nil
}

// Start launches background maintenance.
func (c *Container) Start(ctx context.Context) {
	c.janitor.Start(ctx)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close stops background work and releases external resources. It tolerates
// a partially built container.
func (c *Container) Close() {
	log := logger.Component("container")
	if c.janitor != nil {
		c.janitor.Stop()
	}
	if c.service != nil {
		_ = c.service.Close()
	}
	if c.amqp != nil {
		if err := c.amqp.Close(); err != nil {
			log.WithError(err).Warn("Failed to close message broker connection")
		}
	}
	if closer, ok := c.detector.(io.Closer); ok {
		_ = closer.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close document store")
		}
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}
