// Package transport exposes capture sessions over HTTP for browser clients.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/service"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

const version = "1.0.0"

// Options tunes the HTTP layer.
type Options struct {
	MaxRequestBodySize int64
	RequestTimeout     time.Duration
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

type handler struct {
	svc  service.CaptureService
	opts Options
	log  *logrus.Entry
}

// NewHandler builds the gin engine serving the capture API.
func NewHandler(svc service.CaptureService, opts Options) http.Handler {
	h := &handler{svc: svc, opts: opts, log: logger.Component("transport")}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(h.log),
		requestSizeLimiter(opts.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/profiles", h.listProfiles)
	r.GET("/previews/:id", h.getPreview)

	sessions := r.Group("/sessions")
	sessions.POST("", h.openSession)
	sessions.GET("/:id", h.getSession)
	sessions.DELETE("/:id", h.cancelSession)
	sessions.POST("/:id/mode", h.setMode)
	sessions.POST("/:id/retake", h.retakeAll)
	sessions.POST("/:id/complete", h.complete)

	sessions.POST("/:id/upload", h.upload)
	sessions.POST("/:id/crop", h.adjustCrop)
	sessions.POST("/:id/crop/confirm", h.confirmCrop)

	sessions.POST("/:id/camera/frames", h.submitFrame)
	sessions.POST("/:id/camera/retake", h.retakeFrame)
	sessions.POST("/:id/camera/accept", h.acceptFrame)
	sessions.POST("/:id/camera/controls", h.cameraControls)
	sessions.POST("/:id/camera/failure", h.cameraFailure)

	return r
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.opts.RequestTimeout)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) listProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.svc.Profiles()})
}

func (h *handler) getPreview(c *gin.Context) {
	data, contentType, err := h.svc.Preview(c.Param("id"))
	if err != nil {
		respondAppError(c, "preview unavailable", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, data)
}

func (h *handler) openSession(c *gin.Context) {
	var req models.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.Open(ctx, req)
	if err != nil {
		respondAppError(c, "failed to open session", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handler) getSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to load session")(h.svc.Get(ctx, c.Param("id")))
}

func (h *handler) cancelSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := h.svc.Cancel(ctx, c.Param("id")); err != nil {
		respondAppError(c, "failed to cancel session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) setMode(c *gin.Context) {
	var req models.ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to select mode")(h.svc.SetMode(ctx, c.Param("id"), req))
}

func (h *handler) retakeAll(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to restart capture")(h.svc.RetakeAll(ctx, c.Param("id")))
}

func (h *handler) complete(c *gin.Context) {
	start := time.Now()
	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.Complete(ctx, c.Param("id"))
	if err != nil {
		respondAppError(c, "failed to complete session", err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"session_id":         resp.SessionID,
		"profile":            resp.Profile,
		"documents":          len(resp.Documents),
		"processing_time_ms": time.Since(start).Milliseconds(),
	}).Info("Capture session completed")
	c.JSON(http.StatusOK, resp)
}

func (h *handler) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "missing file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "unreadable file", err)
		return
	}
	defer f.Close()

	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to load image")(h.svc.Upload(ctx, c.Param("id"), fh.Filename, f))
}

func (h *handler) adjustCrop(c *gin.Context) {
	var req models.CropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to adjust crop")(h.svc.AdjustCrop(ctx, c.Param("id"), req))
}

func (h *handler) confirmCrop(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to confirm crop")(h.svc.ConfirmCrop(ctx, c.Param("id")))
}

func (h *handler) submitFrame(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.SubmitFrame(ctx, c.Param("id"), c.Request.Body)
	if err != nil {
		respondAppError(c, "failed to analyze frame", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) retakeFrame(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to retake")(h.svc.RetakeFrame(ctx, c.Param("id")))
}

func (h *handler) acceptFrame(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to accept capture")(h.svc.AcceptFrame(ctx, c.Param("id")))
}

func (h *handler) cameraControls(c *gin.Context) {
	var req models.CameraControlsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to apply camera controls")(h.svc.CameraControls(ctx, c.Param("id"), req))
}

func (h *handler) cameraFailure(c *gin.Context) {
	var req models.CameraFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	h.session(c, "failed to report camera failure")(h.svc.CameraFailure(ctx, c.Param("id"), req))
}

// session returns a responder writing a session view or the error.
func (h *handler) session(c *gin.Context, message string) func(*models.SessionResponse, error) {
	return func(resp *models.SessionResponse, err error) {
		if err != nil {
			respondAppError(c, message, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Middleware and helper functions
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError reports err with the status its type maps to. User-facing
// errors carry their own message; everything else gets message.
func respondAppError(c *gin.Context, message string, err error) {
	code := determineStatusCode(err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.UserFacing() {
		message = appErr.Message
	}
	respondError(c, code, message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	resp := models.ErrorResponse{Error: http.StatusText(code), Message: message}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) && err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	c.AbortWithStatusJSON(code, resp)
}
