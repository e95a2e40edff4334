// Package modal tracks whether any capture dialog currently holds the
// background interaction lock. Dialogs may stack; the lock is released when
// the last holder lets go.
package modal

import "sync"

// Guard is a reference-counted lock. The zero value is ready to use.
type Guard struct {
	mu       sync.Mutex
	holders  int
	onLock   []func()
	onUnlock []func()
}

var defaultGuard = &Guard{}

// Default returns the process-wide guard.
func Default() *Guard { return defaultGuard }

// OnChange registers callbacks fired on 0→1 and 1→0 transitions.
func (g *Guard) OnChange(lock, unlock func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lock != nil {
		g.onLock = append(g.onLock, lock)
	}
	if unlock != nil {
		g.onUnlock = append(g.onUnlock, unlock)
	}
}

// Acquire takes one hold on the lock. The returned Handle must be released on
// every exit path; releasing it more than once has no effect.
func (g *Guard) Acquire() *Handle {
	g.mu.Lock()
	g.holders++
	var fire []func()
	if g.holders == 1 {
		fire = append(fire, g.onLock...)
	}
	g.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return &Handle{guard: g}
}

// Locked reports whether at least one handle is outstanding.
func (g *Guard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders > 0
}

// Holders returns the number of outstanding handles.
func (g *Guard) Holders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders
}

func (g *Guard) release() {
	g.mu.Lock()
	g.holders--
	var fire []func()
	if g.holders == 0 {
		fire = append(fire, g.onUnlock...)
	}
	g.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Handle is one hold on a Guard.
type Handle struct {
	guard *Guard
	once  sync.Once
}

// Release drops the hold exactly once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(h.guard.release)
}
