package acquire

// DefaultStableFrames is the streak of stable, detected cycles that triggers
// a capture.
const DefaultStableFrames = 4

// AutoCapture counts consecutive good analysis cycles. It fires once per
// streak and stays fired until Reset.
type AutoCapture struct {
	required  int
	count     int
	triggered bool
}

// NewAutoCapture creates a counter requiring the given streak length.
func NewAutoCapture(required int) *AutoCapture {
	if required <= 0 {
		required = DefaultStableFrames
	}
	return &AutoCapture{required: required}
}

// Observe records one cycle and reports whether it completes the streak.
func (a *AutoCapture) Observe(stable, detected bool) bool {
	if a.triggered {
		return false
	}
	if !stable || !detected {
		a.count = 0
		return false
	}
	a.count++
	if a.count >= a.required {
		a.triggered = true
		return true
	}
	return false
}

// Reset clears the streak and re-arms the trigger.
func (a *AutoCapture) Reset() {
	a.count = 0
	a.triggered = false
}

func (a *AutoCapture) Count() int      { return a.count }
func (a *AutoCapture) Required() int   { return a.required }
func (a *AutoCapture) Triggered() bool { return a.triggered }
