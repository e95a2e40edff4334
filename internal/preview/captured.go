package preview

import (
	"sync"

	"github.com/anime-shed/id-capture-go/pkg/models"
)

// Origin records which path produced a captured image.
type Origin string

const (
	OriginCrop   Origin = "crop"
	OriginCamera Origin = "camera"
)

// Valid reports whether o is one of the two accepted producers.
func (o Origin) Valid() bool {
	return o == OriginCrop || o == OriginCamera
}

// CapturedImage is a finalized JPEG accepted (or about to be accepted) into a slot.
// Its preview lives exactly as long as Data.
type CapturedImage struct {
	Data        []byte
	ContentType string
	Filename    string
	Width       int
	Height      int
	Origin      Origin
	Preview     Handle
	Quality     *models.QualityReport

	registry *Registry
	once     sync.Once
	released bool
	mu       sync.Mutex
}

// NewCapturedImage wraps encoded bytes and registers their preview.
func NewCapturedImage(reg *Registry, data []byte, width, height int, origin Origin) *CapturedImage {
	img := &CapturedImage{
		Data:        data,
		ContentType: "image/jpeg",
		Width:       width,
		Height:      height,
		Origin:      origin,
		registry:    reg,
	}
	if reg != nil {
		img.Preview = reg.Create(data, img.ContentType)
	}
	return img
}

// Release revokes the preview. Safe to call repeatedly and on nil.
func (c *CapturedImage) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.registry != nil && !c.Preview.IsZero() {
			_ = c.registry.Revoke(c.Preview.ID)
		}
		c.mu.Lock()
		c.released = true
		c.mu.Unlock()
	})
}

// Released reports whether Release has run.
func (c *CapturedImage) Released() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
