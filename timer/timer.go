// Package timer provides the cancellable repeating timer used by the
// polling loop.
//
// Schedule starts a timer that calls fn every period until the returned
// Handle is cancelled. Callbacks of one handle never overlap. Cancel
// revokes the handle: no callback starts after Cancel returns. Cancel
// does not wait for a callback that is already running, so it is safe to
// call from inside a callback or while holding a lock the callback needs.
//
// Ticker is the real implementation. Manual is a deterministic stand-in
// for tests that only advances when told to.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidPeriod is returned when scheduling with a non-positive period.
var ErrInvalidPeriod = errors.New("timer period must be positive")

// Handle identifies a scheduled timer.
type Handle interface {
	// Cancel stops the timer. It is idempotent.
	Cancel()

	// Cancelled reports whether Cancel has been called.
	Cancelled() bool
}

// Scheduler starts repeating timers.
type Scheduler interface {
	Schedule(period time.Duration, fn func()) (Handle, error)
}

// Ticker schedules callbacks on time.Ticker, one goroutine per handle.
type Ticker struct {
	active atomic.Int64
}

// NewTicker creates a real-time scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

// Active returns the number of timers that have not been cancelled.
func (t *Ticker) Active() int {
	return int(t.active.Load())
}

// Schedule calls fn every period until the handle is cancelled.
func (t *Ticker) Schedule(period time.Duration, fn func()) (Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}

	h := &tickerHandle{
		stop:  make(chan struct{}),
		owner: t,
	}
	t.active.Add(1)

	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				// A tick may be selected even though stop closed at the
				// same moment.
				if h.Cancelled() {
					return
				}
				fn()
			}
		}
	}()

	return h, nil
}

type tickerHandle struct {
	once      sync.Once
	stop      chan struct{}
	cancelled atomic.Bool
	owner     *Ticker
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.cancelled.Store(true)
		close(h.stop)
		h.owner.active.Add(-1)
	})
}

func (h *tickerHandle) Cancelled() bool {
	return h.cancelled.Load()
}
