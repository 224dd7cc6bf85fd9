// Package scheduler abstracts the repeating tick timer so sessions can
// run on wall-clock tickers in production and be driven deterministically
// by manual advances in tests and backtests.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler fires a callback repeatedly until stopped. Implementations
// must make Stop safe to call at any point, including concurrently with
// a firing callback, and idempotent.
type Scheduler interface {
	// Start begins firing tick every interval. Calling Start twice
	// without an intervening Stop is a no-op.
	Start(interval time.Duration, tick func())

	// Stop cancels the schedule so no further ticks fire.
	Stop()
}

// Timer is the production scheduler backed by time.Ticker. Ticks fire
// sequentially on a single goroutine; a slow tick delays the next fire
// rather than overlapping it.
type Timer struct {
	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewTimer creates a wall-clock scheduler.
func NewTimer() *Timer {
	return &Timer{}
}

func (t *Timer) Start(interval time.Duration, tick func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				// A tick can be pending on the channel when Stop
				// closes stopCh; recheck before firing.
				select {
				case <-stopCh:
					return
				default:
				}
				tick()
			}
		}
	}()
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}

// Manual is a test scheduler: ticks fire only on explicit Advance calls,
// synchronously on the caller's goroutine.
type Manual struct {
	mu      sync.Mutex
	tick    func()
	running bool
}

// NewManual creates a manually driven scheduler.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Start(interval time.Duration, tick func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.tick = tick
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.tick = nil
}

// Advance fires one tick if the scheduler is started. Returns false when
// stopped (the schedule was cancelled, matching a timer that no longer
// fires).
func (m *Manual) Advance() bool {
	m.mu.Lock()
	tick := m.tick
	m.mu.Unlock()
	if tick == nil {
		return false
	}
	tick()
	return true
}
