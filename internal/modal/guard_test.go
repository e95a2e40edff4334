package modal

import (
	"sync"
	"testing"
)

func TestGuard_ReleaseExactlyOnce(t *testing.T) {
	g := &Guard{}
	var locks, unlocks int
	g.OnChange(func() { locks++ }, func() { unlocks++ })

	h := g.Acquire()
	if !g.Locked() {
		t.Fatal("Expected guard to be locked after Acquire")
	}
	h.Release()
	h.Release()
	h.Release()

	if g.Locked() {
		t.Error("Expected guard to be unlocked")
	}
	if g.Holders() != 0 {
		t.Errorf("Expected 0 holders, got %d", g.Holders())
	}
	if locks != 1 || unlocks != 1 {
		t.Errorf("Expected one lock and one unlock, got %d/%d", locks, unlocks)
	}
}

func TestGuard_Stacked(t *testing.T) {
	g := &Guard{}
	var unlocks int
	g.OnChange(nil, func() { unlocks++ })

	outer := g.Acquire()
	inner := g.Acquire()
	inner.Release()
	if !g.Locked() {
		t.Error("Expected guard to stay locked while outer dialog is open")
	}
	if unlocks != 0 {
		t.Error("Expected no unlock while a holder remains")
	}
	outer.Release()
	if g.Locked() || unlocks != 1 {
		t.Errorf("Expected final unlock, locked=%v unlocks=%d", g.Locked(), unlocks)
	}
}

func TestGuard_ConcurrentHolders(t *testing.T) {
	g := &Guard{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := g.Acquire()
			h.Release()
			h.Release()
		}()
	}
	wg.Wait()
	if g.Holders() != 0 {
		t.Errorf("Expected 0 holders, got %d", g.Holders())
	}
}

func TestHandle_NilRelease(t *testing.T) {
	var h *Handle
	h.Release()
}
