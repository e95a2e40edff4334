package models

import "time"

// OpenSessionRequest starts a capture session for a profile.
type OpenSessionRequest struct {
	Profile   string `json:"profile" binding:"required"`
	ClientRef string `json:"client_ref,omitempty"`
}

// ModeRequest selects or switches the acquisition mode. Camera clients
// declare the controls their device exposes.
type ModeRequest struct {
	Mode   string             `json:"mode" binding:"required,oneof=upload camera"`
	Camera *CameraDeclaration `json:"camera,omitempty"`
}

// CameraDeclaration lists the controls a browser camera track supports.
type CameraDeclaration struct {
	Torch   bool    `json:"torch,omitempty"`
	Zoom    bool    `json:"zoom,omitempty"`
	ZoomMin float64 `json:"zoom_min,omitempty"`
	ZoomMax float64 `json:"zoom_max,omitempty"`
	Focus   bool    `json:"focus,omitempty"`
}

// CropRequest adjusts the crop editor. Nil fields are left untouched.
type CropRequest struct {
	Zoom     *float64 `json:"zoom,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	PanX     *float64 `json:"pan_x,omitempty"`
	PanY     *float64 `json:"pan_y,omitempty"`
	Reset    bool     `json:"reset,omitempty"`
}

// CameraControlsRequest carries best-effort torch, zoom and focus requests.
type CameraControlsRequest struct {
	Torch  *bool    `json:"torch,omitempty"`
	Zoom   *float64 `json:"zoom,omitempty"`
	FocusX *float64 `json:"focus_x,omitempty"`
	FocusY *float64 `json:"focus_y,omitempty"`
	ViewW  float64  `json:"view_w,omitempty"`
	ViewH  float64  `json:"view_h,omitempty"`
}

// CameraFailureRequest reports a client-side camera failure.
type CameraFailureRequest struct {
	Reason  string `json:"reason" binding:"required"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// PreviewView points at a displayable preview.
type PreviewView struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SlotView describes one slot of a session.
type SlotView struct {
	Name    string         `json:"name"`
	Filled  bool           `json:"filled"`
	Preview *PreviewView   `json:"preview,omitempty"`
	Width   int            `json:"width,omitempty"`
	Height  int            `json:"height,omitempty"`
	Quality *QualityReport `json:"quality,omitempty"`
}

// CropView is the current crop editor state.
type CropView struct {
	HasSource     bool         `json:"has_source"`
	Zoom          float64      `json:"zoom"`
	Rotation      float64      `json:"rotation"`
	RotationLabel int          `json:"rotation_label"`
	RegionX       float64      `json:"region_x"`
	RegionY       float64      `json:"region_y"`
	RegionW       float64      `json:"region_w"`
	RegionH       float64      `json:"region_h"`
	AspectRatio   float64      `json:"aspect_ratio"`
	SourcePreview *PreviewView `json:"source_preview,omitempty"`
}

// CameraView is the current auto-capture state.
type CameraView struct {
	State        string          `json:"state"`
	StableCount  int             `json:"stable_count"`
	Required     int             `json:"required"`
	Preview      *PreviewView    `json:"preview,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	Pending      map[string]any  `json:"pending_constraints,omitempty"`
}

// SessionResponse is the JSON rendering of a capture session.
type SessionResponse struct {
	ID               string      `json:"id"`
	Profile          string      `json:"profile"`
	Title            string      `json:"title"`
	Mode             string      `json:"mode"`
	Step             string      `json:"step"`
	SlotIndex        int         `json:"slot_index"`
	Slots            []SlotView  `json:"slots"`
	CanConfirm       bool        `json:"can_confirm"`
	BackgroundLocked bool        `json:"background_locked"`
	SourceError      string      `json:"source_error,omitempty"`
	Crop             *CropView   `json:"crop,omitempty"`
	Camera           *CameraView `json:"camera,omitempty"`
}

// StoredDocument is one uploaded slot after completion.
type StoredDocument struct {
	Slot        string `json:"slot"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Location    string `json:"location"`
}

// CompleteResponse is returned once every slot has been handed off.
type CompleteResponse struct {
	SessionID   string           `json:"session_id"`
	Profile     string           `json:"profile"`
	ClientRef   string           `json:"client_ref,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
	Documents   []StoredDocument `json:"documents"`
}

// FrameResponse reports the outcome of one camera analysis cycle.
type FrameResponse struct {
	Analyzed    bool         `json:"analyzed"`
	Stable      bool         `json:"stable"`
	Detected    bool         `json:"detected"`
	StableCount int          `json:"stable_count"`
	Triggered   bool         `json:"triggered"`
	State       string       `json:"state"`
	Preview     *PreviewView `json:"preview,omitempty"`
}
