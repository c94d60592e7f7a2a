package scheduler

import (
	"context"
	"sync"
)

// lane runs submitted tasks one at a time in submission order. Each event type
// gets its own lane, so distinct types run in parallel while a burst of one
// type serializes. A drain goroutine exists only while tasks are pending.
type lane struct {
	name    string
	mu      sync.Mutex
	pending []func()
	running bool
}

func newLane(name string) *lane {
	return &lane{name: name}
}

func (l *lane) submit(task func()) {
	l.mu.Lock()
	l.pending = append(l.pending, task)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	go l.drain()
}

func (l *lane) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		task := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.mu.Unlock()

		task()
	}
}

// inflight tracks lane tasks and provides a drain boundary so WaitGroup.Add is
// never called concurrently with Wait.
type inflight struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool
}

// add registers one task unless a drain is in progress.
func (g *inflight) add() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *inflight) done() { g.wg.Done() }

// reset accepts new tasks again after a drain.
func (g *inflight) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining = false
}

// drain refuses new tasks and waits for the registered ones, bounded by ctx.
func (g *inflight) drain(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
