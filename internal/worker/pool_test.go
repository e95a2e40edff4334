package worker

import (
	"sync"
	"testing"
)

func TestNewPool_ZeroWorkers(t *testing.T) {
	pool := NewPool(0)
	if pool == nil {
		t.Fatal("Expected non-nil Pool")
	}
	if pool.GetStats().Workers <= 0 {
		t.Error("Expected worker count to default to the CPU count")
	}
}

func TestPool_Submit(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		})
	}

	pool.Wait()

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestPool_StartOnce(t *testing.T) {
	pool := NewPool(2)

	pool.Start()
	pool.Start()

	defer pool.Close()

	var executed bool
	pool.Submit(func() {
		executed = true
	})

	pool.Wait()

	if !executed {
		t.Error("Expected job to be executed")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	var executed bool
	if !pool.Submit(func() { executed = true }) {
		t.Fatal("Expected submit to succeed before close")
	}
	pool.Close()
	pool.Close()

	if !executed {
		t.Error("Expected queued job to run before close returned")
	}
	if pool.Submit(func() {}) {
		t.Error("Expected submit to fail after close")
	}
}

func TestPool_AtomicCounters(t *testing.T) {
	pool := NewPool(4)
	pool.Start()
	defer pool.Close()

	const numJobs = 20
	successCount := 0
	for i := 0; i < numJobs; i++ {
		if pool.Submit(func() {
			for j := 0; j < 1000; j++ {
				_ = j * j
			}
		}) {
			successCount++
		}
	}

	pool.Wait()

	stats := pool.GetStats()
	if stats.TotalJobs != int64(successCount) {
		t.Errorf("Expected %d total jobs, got %d", successCount, stats.TotalJobs)
	}
	if stats.CompletedJobs != int64(successCount) {
		t.Errorf("Expected %d completed jobs, got %d", successCount, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", stats.ActiveWorkers)
	}
}

func TestPool_ConcurrentStatsAccess(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		pool.Submit(func() {
			for j := 0; j < 5000; j++ {
				_ = j * j
			}
		})
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = pool.GetStats()
			}
		}()
	}

	wg.Wait()
	pool.Wait()

	if got := pool.GetStats().TotalJobs; got != 20 {
		t.Errorf("Expected 20 total jobs, got %d", got)
	}
}
