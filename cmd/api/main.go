package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/config"
	"github.com/anime-shed/id-capture-go/internal/container"
	"github.com/anime-shed/id-capture-go/internal/logger"
)

func main() {
	log := logger.Component("api")

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	logger.SetLevel(cfg.LogLevel)
	if logger.ParseLevel(cfg.LogLevel) < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize dependency injection container
	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize container")
	}
	c.Start(ctx)

	// Uploads and frame posts share the request timeout; writes get extra
	// room for completion hand-off to storage.
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"address": cfg.ServerAddress(),
			"timeout": cfg.RequestTimeout,
			"storage": cfg.StorageType,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-errCh:
		log.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	c.Close()

	log.Info("Server exited")
}
