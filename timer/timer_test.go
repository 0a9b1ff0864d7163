package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicker_InvalidPeriod(t *testing.T) {
	tk := NewTicker()
	for _, p := range []time.Duration{0, -time.Second} {
		_, err := tk.Schedule(p, func() {})
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	}
	assert.Zero(t, tk.Active())
}

func TestTicker_FiresAndCancels(t *testing.T) {
	tk := NewTicker()
	var calls atomic.Int64

	h, err := tk.Schedule(5*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, tk.Active())

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)

	h.Cancel()
	h.Cancel()
	assert.True(t, h.Cancelled())
	assert.Zero(t, tk.Active())

	// Allow a callback that was already running to finish.
	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no callbacks after cancel")
}

func TestTicker_CancelFromCallback(t *testing.T) {
	tk := NewTicker()
	var calls atomic.Int64
	handles := make(chan Handle, 1)

	done := make(chan struct{})
	h, err := tk.Schedule(time.Millisecond, func() {
		if calls.Add(1) == 1 {
			(<-handles).Cancel()
			close(done)
		}
	})
	require.NoError(t, err)
	handles <- h

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestManual_Advance(t *testing.T) {
	m := NewManual()
	var calls []string

	_, err := m.Schedule(100*time.Millisecond, func() { calls = append(calls, "fast") })
	require.NoError(t, err)
	_, err = m.Schedule(250*time.Millisecond, func() { calls = append(calls, "slow") })
	require.NoError(t, err)

	m.Advance(99 * time.Millisecond)
	assert.Empty(t, calls)

	m.Advance(201 * time.Millisecond)
	assert.Equal(t, []string{"fast", "fast", "slow", "fast"}, calls)
	assert.Equal(t, 300*time.Millisecond, m.Now())
}

func TestManual_CancelStopsCallbacks(t *testing.T) {
	m := NewManual()
	calls := 0

	h, err := m.Schedule(10*time.Millisecond, func() { calls++ })
	require.NoError(t, err)

	m.Advance(30 * time.Millisecond)
	assert.Equal(t, 3, calls)

	h.Cancel()
	assert.True(t, h.Cancelled())
	assert.Zero(t, m.Active())

	m.Advance(time.Second)
	m.Fire()
	assert.Equal(t, 3, calls)
}

func TestManual_RescheduleFromCallback(t *testing.T) {
	m := NewManual()
	var old Handle
	oldCalls, newCalls := 0, 0

	old, err := m.Schedule(1000*time.Millisecond, func() {
		oldCalls++
		old.Cancel()
		_, _ = m.Schedule(200*time.Millisecond, func() { newCalls++ })
	})
	require.NoError(t, err)

	m.Advance(2000 * time.Millisecond)

	assert.Equal(t, 1, oldCalls)
	assert.Equal(t, 5, newCalls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, m.Periods())
	assert.Equal(t, []time.Duration{time.Second, 200 * time.Millisecond}, m.History())
}

func TestManual_FireSkipsCancelledInSameRound(t *testing.T) {
	m := NewManual()
	var second Handle
	secondCalls := 0

	_, err := m.Schedule(time.Second, func() { second.Cancel() })
	require.NoError(t, err)
	second, err = m.Schedule(time.Second, func() { secondCalls++ })
	require.NoError(t, err)

	m.Fire()
	assert.Zero(t, secondCalls)
	assert.Equal(t, 1, m.Active())
}

func TestManual_InvalidPeriod(t *testing.T) {
	_, err := NewManual().Schedule(0, func() {})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestScheduler_Interface(t *testing.T) {
	var _ Scheduler = (*Ticker)(nil)
	var _ Scheduler = (*Manual)(nil)
}
