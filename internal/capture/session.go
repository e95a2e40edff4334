package capture

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
	"github.com/anime-shed/id-capture-go/internal/logger"
	"github.com/anime-shed/id-capture-go/internal/modal"
	"github.com/anime-shed/id-capture-go/internal/preview"
	"github.com/anime-shed/id-capture-go/internal/profile"
)

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithGuard uses g instead of the process-wide modal guard.
func WithGuard(g *modal.Guard) SessionOption {
	return func(s *Session) { s.guard = g }
}

// WithListener registers a listener for session events.
func WithListener(l Listener) SessionOption {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// SlotState is one slot in a SessionView.
type SlotState struct {
	Name  string
	Image *preview.CapturedImage
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	Profile          profile.Profile
	Open             bool
	Mode             Mode
	Step             Step
	SlotIndex        int
	CurrentSlot      string
	Slots            []SlotState
	CanConfirm       bool
	BackgroundLocked bool
	SourceErr        error
}

// Session drives one capture wizard. All methods are safe for concurrent use.
type Session struct {
	profile   profile.Profile
	factory   SourceFactory
	guard     *modal.Guard
	listeners []Listener
	log       *logrus.Entry

	mu        sync.Mutex
	open      bool
	mode      Mode
	step      Step
	index     int
	results   map[string]*preview.CapturedImage
	source    Source
	sourceErr error
	hold      *modal.Handle
}

// NewSession creates a closed session for p.
func NewSession(p profile.Profile, factory SourceFactory, opts ...SessionOption) *Session {
	s := &Session{
		profile: p,
		factory: factory,
		guard:   modal.Default(),
		log:     logger.Component("capture").WithField("profile", p.Name),
		step:    StepIntro,
		results: make(map[string]*preview.CapturedImage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the session's profile.
func (s *Session) Profile() profile.Profile { return s.profile }

// Open begins the session, optionally seeded with previously accepted
// images. A fully seeded session resumes at review; otherwise only the empty
// slots are captured once a mode is selected. The session takes ownership of
// initial.
func (s *Session) Open(ctx context.Context, initial map[string]*preview.CapturedImage) error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return apperrors.NewInvalidTransitionError("open", "open")
	}
	for slot := range initial {
		if !s.profile.HasSlot(slot) {
			s.mu.Unlock()
			return apperrors.NewInvalidSlotError(slot)
		}
	}

	s.open = true
	s.hold = s.guard.Acquire()
	s.mode = ModeUnset
	s.index = 0
	s.results = make(map[string]*preview.CapturedImage, len(s.profile.Slots))
	for slot, img := range initial {
		if img != nil {
			s.results[slot] = img
		}
	}
	s.step = StepIntro
	if s.allFilledLocked() {
		s.step = StepReview
	}
	ev := s.eventLocked(EventOpened, "")
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

// SelectMode leaves the intro and starts capturing the first empty slot.
// Seeded images are kept.
func (s *Session) SelectMode(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	if err := s.requireLocked("select_mode", StepIntro); err != nil {
		s.mu.Unlock()
		return err
	}
	if !mode.Valid() {
		s.mu.Unlock()
		return apperrors.NewValidationError("unknown capture mode", nil)
	}
	s.mode = mode
	var err error
	if next := s.nextEmptyLocked(0); next >= 0 {
		err = s.enterCapturingLocked(ctx, next)
	} else {
		s.step = StepReview
	}
	events := []Event{s.eventLocked(EventModeSelected, "")}
	if err != nil {
		events = append(events, s.failedEventLocked(err))
	}
	s.mu.Unlock()

	s.notify(events...)
	return err
}

// Advance records img as the accepted image for slot, which must be the slot
// currently being captured. On error the caller keeps ownership of img.
func (s *Session) Advance(ctx context.Context, slot string, img *preview.CapturedImage) error {
	s.mu.Lock()
	if err := s.requireLocked("advance", StepCapturing); err != nil {
		s.mu.Unlock()
		return err
	}
	if expected := s.profile.Slots[s.index]; expected != slot {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"slot": slot, "expected": expected}).Error("Advance for a slot that is not being captured")
		return apperrors.NewInvalidSlotError(slot)
	}
	if img == nil || !img.Origin.Valid() || len(img.Data) == 0 {
		s.mu.Unlock()
		return apperrors.NewValidationError("captured image must come from the crop editor or the camera", nil)
	}

	if prev := s.results[slot]; prev != nil && prev != img {
		prev.Release()
	}
	s.results[slot] = img
	s.closeSourceLocked()

	events := []Event{s.eventLocked(EventSlotAccepted, slot)}
	var err error
	if next := s.nextEmptyLocked(s.index + 1); next >= 0 {
		err = s.enterCapturingLocked(ctx, next)
		if err != nil {
			events = append(events, s.failedEventLocked(err))
		}
	} else {
		s.step = StepReview
	}
	s.mu.Unlock()

	s.notify(events...)
	return err
}

// SwitchMode discards every result and restarts at the first slot in mode.
func (s *Session) SwitchMode(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	if err := s.requireLocked("switch_mode", StepCapturing, StepReview); err != nil {
		s.mu.Unlock()
		return err
	}
	if !mode.Valid() {
		s.mu.Unlock()
		return apperrors.NewValidationError("unknown capture mode", nil)
	}
	s.closeSourceLocked()
	s.clearResultsLocked()
	s.mode = mode
	err := s.enterCapturingLocked(ctx, 0)
	events := []Event{s.eventLocked(EventModeSwitched, "")}
	if err != nil {
		events = append(events, s.failedEventLocked(err))
	}
	s.mu.Unlock()

	s.notify(events...)
	return err
}

// RetakeAll discards every result and restarts at the first slot in the
// same mode.
func (s *Session) RetakeAll(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireLocked("retake_all", StepReview); err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearResultsLocked()
	err := s.enterCapturingLocked(ctx, 0)
	events := []Event{s.eventLocked(EventRetakeAll, "")}
	if err != nil {
		events = append(events, s.failedEventLocked(err))
	}
	s.mu.Unlock()

	s.notify(events...)
	return err
}

// Complete hands every accepted image to the caller and resets the session.
// It fails with IncompleteSessionError while any slot is empty.
func (s *Session) Complete(ctx context.Context) (map[string]*preview.CapturedImage, error) {
	s.mu.Lock()
	if err := s.completableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	out := s.results
	s.results = make(map[string]*preview.CapturedImage)
	ev := s.eventLocked(EventCompleted, "")
	s.resetLocked()
	s.mu.Unlock()

	s.notify(ev)
	return out, nil
}

// Results returns a copy of the captured images without changing state. It
// fails the same way Complete does.
func (s *Session) Results() (map[string]*preview.CapturedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.completableLocked(); err != nil {
		return nil, err
	}
	out := make(map[string]*preview.CapturedImage, len(s.results))
	for slot, img := range s.results {
		out[slot] = img
	}
	return out, nil
}

// Cancel discards everything and resets the session. Cancelling a closed
// session does nothing.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	ev := s.eventLocked(EventCancelled, "")
	s.clearResultsLocked()
	s.resetLocked()
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

// Close is the teardown path; it behaves like Cancel and is idempotent.
func (s *Session) Close() error {
	return s.Cancel(context.Background())
}

// CanConfirm reports whether every slot holds an image.
func (s *Session) CanConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allFilledLocked()
}

// Source returns the source open for the current slot, or nil.
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// CurrentSlot returns the slot being captured, or "" outside capturing.
func (s *Session) CurrentSlot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSlot()
}

// Snapshot returns a read-only view.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := SessionView{
		Profile:          s.profile,
		Open:             s.open,
		Mode:             s.mode,
		Step:             s.step,
		SlotIndex:        s.index,
		CurrentSlot:      s.currentSlot(),
		CanConfirm:       s.allFilledLocked(),
		BackgroundLocked: s.guard.Locked(),
		SourceErr:        s.sourceErr,
	}
	for _, name := range s.profile.Slots {
		v.Slots = append(v.Slots, SlotState{Name: name, Image: s.results[name]})
	}
	return v
}

func (s *Session) enterCapturingLocked(ctx context.Context, index int) error {
	s.closeSourceLocked()
	s.step = StepCapturing
	s.index = index
	s.sourceErr = nil

	slot := s.profile.Slots[index]
	if s.factory == nil {
		return nil
	}
	src, err := s.factory.Open(ctx, s.mode, slot)
	if err != nil {
		s.sourceErr = err
		s.log.WithFields(logrus.Fields{"slot": slot, "mode": s.mode, "error": err}).Warn("Failed to open acquisition source")
		return err
	}
	s.source = src
	return nil
}

func (s *Session) closeSourceLocked() {
	if s.source == nil {
		return
	}
	if err := s.source.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close acquisition source")
	}
	s.source = nil
}

func (s *Session) clearResultsLocked() {
	for slot, img := range s.results {
		img.Release()
		delete(s.results, slot)
	}
}

func (s *Session) resetLocked() {
	s.closeSourceLocked()
	s.open = false
	s.mode = ModeUnset
	s.step = StepIntro
	s.index = 0
	s.sourceErr = nil
	s.hold.Release()
	s.hold = nil
}

func (s *Session) requireLocked(op string, steps ...Step) error {
	if !s.open {
		return apperrors.NewInvalidTransitionError(op, "closed")
	}
	for _, st := range steps {
		if s.step == st {
			return nil
		}
	}
	return apperrors.NewInvalidTransitionError(op, string(s.step))
}

func (s *Session) completableLocked() error {
	if !s.open {
		return apperrors.NewInvalidTransitionError("complete", "closed")
	}
	if missing := s.missingLocked(); len(missing) > 0 {
		return apperrors.NewIncompleteSessionError(missing)
	}
	return nil
}

func (s *Session) allFilledLocked() bool {
	return len(s.missingLocked()) == 0
}

func (s *Session) missingLocked() []string {
	var missing []string
	for _, slot := range s.profile.Slots {
		if s.results[slot] == nil {
			missing = append(missing, slot)
		}
	}
	return missing
}

// nextEmptyLocked returns the index of the first empty slot at or after
// from, or -1.
func (s *Session) nextEmptyLocked(from int) int {
	for i := from; i < len(s.profile.Slots); i++ {
		if s.results[s.profile.Slots[i]] == nil {
			return i
		}
	}
	return -1
}

func (s *Session) currentSlot() string {
	if s.step != StepCapturing {
		return ""
	}
	return s.profile.Slots[s.index]
}

func (s *Session) eventLocked(kind, slot string) Event {
	return Event{Kind: kind, Profile: s.profile.Name, Mode: s.mode, Step: s.step, Slot: slot}
}

func (s *Session) failedEventLocked(err error) Event {
	ev := s.eventLocked(EventSourceFailed, s.currentSlot())
	ev.Err = err
	return ev
}

func (s *Session) notify(events ...Event) {
	for _, ev := range events {
		for _, l := range s.listeners {
			l(ev)
		}
	}
}
