package timer

import (
	"fmt"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run synchronously on the goroutine calling Advance or Fire.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	timers  []*manualHandle
	periods []time.Duration
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualHandle struct {
	id        int
	period    time.Duration
	next      time.Duration
	fn        func()
	cancelled bool
	owner     *Manual
}

// Schedule registers fn to run every period of manual time.
func (m *Manual) Schedule(period time.Duration, fn func()) (Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h := &manualHandle{
		id:     m.nextID,
		period: period,
		next:   m.now + period,
		fn:     fn,
		owner:  m,
	}
	m.nextID++
	m.timers = append(m.timers, h)
	m.periods = append(m.periods, period)
	return h, nil
}

func (h *manualHandle) Cancel() {
	m := h.owner
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.cancelled {
		return
	}
	h.cancelled = true
	for i, t := range m.timers {
		if t == h {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			break
		}
	}
}

func (h *manualHandle) Cancelled() bool {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	return h.cancelled
}

// Advance moves manual time forward by d, running every callback that
// falls due in order of due time. Timers scheduled or cancelled by a
// callback take effect immediately.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		h := m.nextDue(target)
		if h == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = h.next
		h.next += h.period
		fn := h.fn
		m.mu.Unlock()

		fn()
	}
}

// nextDue returns the live timer due soonest at or before target.
// Ties go to the timer scheduled first. Callers hold m.mu.
func (m *Manual) nextDue(target time.Duration) *manualHandle {
	var due *manualHandle
	for _, h := range m.timers {
		if h.next > target {
			continue
		}
		if due == nil || h.next < due.next || (h.next == due.next && h.id < due.id) {
			due = h
		}
	}
	return due
}

// Fire runs every live timer once, in scheduling order, without moving
// time. A timer cancelled by an earlier callback in the same Fire is
// skipped.
func (m *Manual) Fire() {
	m.mu.Lock()
	handles := append([]*manualHandle(nil), m.timers...)
	m.mu.Unlock()

	for _, h := range handles {
		if h.Cancelled() {
			continue
		}
		h.fn()
	}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Active returns the number of live timers.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Periods returns the periods of live timers in scheduling order.
func (m *Manual) Periods() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	periods := make([]time.Duration, len(m.timers))
	for i, h := range m.timers {
		periods[i] = h.period
	}
	return periods
}

// History returns the period of every Schedule call, in order.
func (m *Manual) History() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.periods...)
}
