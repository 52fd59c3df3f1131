// Package gate bounds concurrent outbound work on one logical channel.
//
// Each Gate owns a FIFO queue and a small concurrency window. Tasks submitted
// beyond the window wait in queue order; when a slot frees, the next task is
// dispatched after a fixed settle delay so completions never burst the remote
// source. Ingestion and rescan each get their own Gate so one never starves
// the other.
package gate

import (
	"sync"
	"time"
)

// Gate runs submitted tasks with at most limit in flight.
type Gate struct {
	mu      sync.Mutex
	limit   int
	settle  time.Duration
	queue   []func()
	running int
	stopped bool
}

// New returns a Gate with the given concurrency limit and settle delay.
func New(limit int, settle time.Duration) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{limit: limit, settle: settle}
}

// Submit enqueues task. It runs as soon as a slot is free, in submission
// order within this gate. Submit never blocks.
func (g *Gate) Submit(task func()) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	if g.running >= g.limit {
		g.queue = append(g.queue, task)
		g.mu.Unlock()
		return
	}
	g.running++
	g.mu.Unlock()
	go g.run(task)
}

func (g *Gate) run(task func()) {
	for {
		task()

		g.mu.Lock()
		if g.stopped || len(g.queue) == 0 {
			g.queue = nil
			g.running--
			g.mu.Unlock()
			return
		}
		task = g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()

		if g.settle > 0 {
			time.Sleep(g.settle)
		}
	}
}

// Inflight returns the number of tasks currently running.
func (g *Gate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Pending returns the number of queued, not yet started tasks.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Stop drops all queued tasks and refuses new submissions. Tasks already
// running are allowed to finish.
func (g *Gate) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.queue = nil
	g.mu.Unlock()
}
