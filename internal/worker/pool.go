// Package worker runs background jobs such as document uploads on a fixed
// set of goroutines.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time view of pool activity
type Stats struct {
	Workers       int   `json:"workers"`
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
	QueuedJobs    int   `json:"queued_jobs"`
}

// Pool manages concurrent jobs
type Pool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	workerWG sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// NewPool creates a new pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.workerWG.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.workerWG.Done()
	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	p.activeWorkers.Add(1)
	defer func() {
		p.activeWorkers.Add(-1)
		p.completedJobs.Add(1)
		p.wg.Done()
	}()
	job()
}

// Submit queues a job. It returns false once the pool is closed.
func (p *Pool) Submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	p.totalJobs.Add(1)
	p.jobQueue <- job
	return true
}

// Wait blocks until every submitted job has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs, drains the queue and waits for the workers
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()
	p.workerWG.Wait()
}

// GetStats returns current counters
func (p *Pool) GetStats() Stats {
	return Stats{
		Workers:       p.workers,
		TotalJobs:     p.totalJobs.Load(),
		CompletedJobs: p.completedJobs.Load(),
		ActiveWorkers: p.activeWorkers.Load(),
		QueuedJobs:    len(p.jobQueue),
	}
}
