// Package capture coordinates a document capture session: which slot is
// being filled, by which acquisition mode, and when the set is complete.
package capture

import "fmt"

// Mode selects how images are acquired.
type Mode string

const (
	ModeUnset  Mode = ""
	ModeUpload Mode = "upload"
	ModeCamera Mode = "camera"
)

// Valid reports whether m is a selectable mode.
func (m Mode) Valid() bool {
	return m == ModeUpload || m == ModeCamera
}

// ParseMode converts a wire value to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return ModeUnset, fmt.Errorf("unknown capture mode %q", s)
	}
	return m, nil
}

// Step is the coarse position in the wizard.
type Step string

const (
	StepIntro     Step = "intro"
	StepCapturing Step = "capturing"
	StepReview    Step = "review"
)

// Event kinds delivered to a Listener.
const (
	EventOpened       = "opened"
	EventModeSelected = "mode_selected"
	EventSlotAccepted = "slot_accepted"
	EventModeSwitched = "mode_switched"
	EventRetakeAll    = "retake_all"
	EventCompleted    = "completed"
	EventCancelled    = "cancelled"
	EventSourceFailed = "source_failed"
)

// Event describes a state change of a session.
type Event struct {
	Kind    string
	Profile string
	Mode    Mode
	Step    Step
	Slot    string
	Err     error
}

// Listener receives session events. It is called without the session lock held.
type Listener func(Event)
