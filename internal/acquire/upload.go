// Package acquire produces captured images for a slot, either from a picked
// file refined in the crop editor or from a live camera with auto-capture.
package acquire

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/crop"
	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/imageio"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/preview"
)

// DefaultMaxUploadBytes bounds a picked file.
const DefaultMaxUploadBytes = 20 << 20

// UploadSource loads a picked file into a crop engine.
type UploadSource struct {
	engine   *crop.Engine
	previews *preview.Registry
	maxBytes int64
	log      *logrus.Entry

	mu          sync.Mutex
	raw         preview.Handle
	filename    string
	contentType string
	closed      bool
}

// NewUploadSource creates a source feeding engine.
func NewUploadSource(engine *crop.Engine, previews *preview.Registry, maxBytes int64) *UploadSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadSource{
		engine:   engine,
		previews: previews,
		maxBytes: maxBytes,
		log:      logger.Component("upload"),
	}
}

// PickFile decodes r and loads it into the crop engine, replacing any
// previous pick. A nil reader is a cancelled picker and changes nothing.
// Undecodable input leaves the current state untouched.
func (u *UploadSource) PickFile(ctx context.Context, name string, r io.Reader) error {
	if r == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewTimeoutError("upload cancelled", err)
	}

	dec, data, err := imageio.ReadAndDecode(r, u.maxBytes)
	if err != nil {
		u.log.WithFields(logrus.Fields{"filename": name, "error": err}).Warn("Rejected picked file")
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return apperrors.NewInvalidTransitionError("pick_file", "closed")
	}
	u.revokeRawLocked()
	if u.previews != nil {
		u.raw = u.previews.Create(data, dec.ContentType)
	}
	u.filename = name
	u.contentType = dec.ContentType
	u.engine.Load(dec.Image)

	u.log.WithFields(logrus.Fields{
		"filename":     name,
		"content_type": dec.ContentType,
		"width":        dec.Width,
		"height":       dec.Height,
	}).Debug("Picked file loaded")
	return nil
}

// Engine exposes the crop controls.
func (u *UploadSource) Engine() *crop.Engine { return u.engine }

// SourcePreview is the preview of the picked file before cropping.
func (u *UploadSource) SourcePreview() preview.Handle {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.raw
}

// Filename is the name of the last picked file.
func (u *UploadSource) Filename() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.filename
}

// Confirm renders the crop. On success the picked file is discarded.
func (u *UploadSource) Confirm(ctx context.Context) (*preview.CapturedImage, error) {
	img, err := u.engine.Confirm(ctx)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.revokeRawLocked()
	u.mu.Unlock()
	return img, nil
}

// Close discards the picked file and the crop state.
func (u *UploadSource) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	u.revokeRawLocked()
	u.engine.Clear()
	return nil
}

func (u *UploadSource) revokeRawLocked() {
	if u.raw.IsZero() || u.previews == nil {
		return
	}
	if err := u.previews.Revoke(u.raw.ID); err != nil {
		u.log.WithError(err).Error("Source preview revoked twice")
	}
	u.raw = preview.Handle{}
}
