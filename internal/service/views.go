package service

import (
	"github.com/anime-shed/id-capture-go/internal/acquire"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/pkg/models"
)

// render builds the JSON view of e. Callers hold e.mu.
func (s *captureService) render(e *sessionEntry, pending map[string]any) *models.SessionResponse {
	v := e.session.Snapshot()
	resp := &models.SessionResponse{
		ID:               e.id,
		Profile:          v.Profile.Name,
		Title:            v.Profile.Title,
		Mode:             string(v.Mode),
		Step:             string(v.Step),
		SlotIndex:        v.SlotIndex,
		CanConfirm:       v.CanConfirm,
		BackgroundLocked: v.BackgroundLocked,
	}
	if v.SourceErr != nil {
		resp.SourceError = v.SourceErr.Error()
	}
	for _, slot := range v.Slots {
		sv := models.SlotView{Name: slot.Name, Filled: slot.Image != nil}
		if img := slot.Image; img != nil {
			sv.Preview = previewView(img.Preview)
			sv.Width = img.Width
			sv.Height = img.Height
			sv.Quality = img.Quality
		}
		resp.Slots = append(resp.Slots, sv)
	}

	switch src := e.session.Source().(type) {
	case *acquire.UploadSource:
		st := src.Engine().State()
		resp.Crop = &models.CropView{
			HasSource:     st.HasSource,
			Zoom:          st.Zoom,
			Rotation:      st.Rotation,
			RotationLabel: src.Engine().RotationLabel(),
			RegionX:       st.Region.X,
			RegionY:       st.Region.Y,
			RegionW:       st.Region.W,
			RegionH:       st.Region.H,
			AspectRatio:   st.AspectRatio,
			SourcePreview: previewView(src.SourcePreview()),
		}
	case *acquire.CameraSource:
		cv := &models.CameraView{
			State:        string(src.State()),
			StableCount:  src.StableCount(),
			Required:     src.Required(),
			Capabilities: src.Capabilities().Names(),
			Pending:      pending,
		}
		if img := src.Preview(); img != nil {
			cv.Preview = previewView(img.Preview)
		}
		if err := src.Failure(); err != nil {
			resp.SourceError = err.Error()
		}
		resp.Camera = cv
	}
	return resp
}

func previewView(h preview.Handle) *models.PreviewView {
	if h.IsZero() {
		return nil
	}
	return &models.PreviewView{ID: h.ID, URL: h.URL}
}
