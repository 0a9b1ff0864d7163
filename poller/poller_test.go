package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/chatcount/counting"
	"github.com/randalmurphal/chatcount/settings"
	"github.com/randalmurphal/chatcount/snapshot"
	"github.com/randalmurphal/chatcount/timer"
	"github.com/randalmurphal/chatcount/tokens"
)

// page is a fake chat surface whose text can change between ticks.
type page struct {
	mu    sync.Mutex
	snap  snapshot.Snapshot
	err   error
	calls int
}

func (p *page) Extract(context.Context) (snapshot.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.snap, p.err
}

func (p *page) set(user, assistant string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snapshot.Snapshot{User: user, Assistant: assistant}
}

func (p *page) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *page) extractions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recorder collects emitted updates.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Emit(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) (any, error) {
	return nil, errors.New("storage area unavailable")
}

func (unavailableStore) Set(context.Context, string, any) error {
	return errors.New("storage area unavailable")
}

func (unavailableStore) Watch(string, func(any)) func() { return func() {} }

type harness struct {
	page  *page
	store *settings.MemoryStore
	clock *timer.Manual
	sink  *recorder
	loop  *Loop
}

func newHarness(t *testing.T, values map[string]any) *harness {
	t.Helper()
	h := &harness{
		page:  &page{},
		store: settings.NewMemoryStore(settings.WithValues(values)),
		clock: timer.NewManual(),
		sink:  &recorder{},
	}
	h.loop = New(h.page, h.store,
		WithScheduler(h.clock),
		WithSink(h.sink),
		WithPipeline(counting.New(counting.WithTokenizer(tokens.NewEstimatingCounter()))),
	)
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Mount(context.Background()))
	t.Cleanup(h.loop.Unmount)
}

func TestLoop_EmitsOnChange(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	h.page.set("Hello", "World")

	assert.Equal(t, Running, h.loop.State())
	h.clock.Advance(time.Second)

	updates := h.sink.all()
	require.Len(t, updates, 1)
	assert.Equal(t, counting.Result{Tokens: 3, Words: 2, Characters: 11}, updates[0].Result)
	assert.Equal(t, settings.ModeWords, updates[0].Mode)
	assert.Equal(t, snapshot.Snapshot{User: "Hello", Assistant: "World"}, updates[0].Snapshot)

	latest, ok := h.loop.Latest()
	require.True(t, ok)
	assert.Equal(t, updates[0], latest)
}

func TestLoop_NoEmissionWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.clock.Advance(3 * time.Second)
	assert.Empty(t, h.sink.all(), "empty page equals the initial snapshot")
	assert.Equal(t, 3, h.page.extractions())

	h.page.set("a", "b")
	h.clock.Advance(5 * time.Second)
	assert.Len(t, h.sink.all(), 1)
	assert.Equal(t, 8, h.page.extractions())
}

func TestLoop_EmptyExtractionAfterContent(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.page.set("Hello", "World")
	h.clock.Advance(time.Second)
	h.page.set("", "")
	h.clock.Advance(time.Second)

	updates := h.sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, counting.Result{}, updates[1].Result)
}

func TestLoop_IntervalChange(t *testing.T) {
	h := newHarness(t, map[string]any{settings.KeyInterval: 1000})
	h.mount(t)
	ctx := context.Background()

	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.store.Set(ctx, settings.KeyInterval, 200))

	assert.Equal(t, 1, h.clock.Active(), "exactly one timer after the switch")
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, h.clock.Periods())
	assert.Equal(t, 200*time.Millisecond, h.loop.Interval())

	// New timer fires at 700ms and 900ms. The old one would have fired at
	// 1000ms.
	h.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, h.page.extractions())

	h.clock.Advance(time.Second)
	assert.Equal(t, 7, h.page.extractions())
}

func TestLoop_IntervalChangeSameValueKeepsTimer(t *testing.T) {
	h := newHarness(t, map[string]any{settings.KeyInterval: 1000})
	h.mount(t)

	require.NoError(t, h.store.Set(context.Background(), settings.KeyInterval, "1s"))
	assert.Len(t, h.clock.History(), 1)
}

func TestLoop_IntervalClamped(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.store.Set(context.Background(), settings.KeyInterval, 1))
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, h.clock.Periods())
}

func TestLoop_StaleTickDropped(t *testing.T) {
	rec := &recordingScheduler{}
	p := &page{}
	p.set("text", "")
	store := settings.NewMemoryStore()
	sink := &recorder{}
	loop := New(p, store, WithScheduler(rec), WithSink(sink))
	require.NoError(t, loop.Mount(context.Background()))
	defer loop.Unmount()

	require.NoError(t, store.Set(context.Background(), settings.KeyInterval, 200))
	require.Len(t, rec.fns, 2)

	// The old timer's callback was already queued when it got cancelled.
	rec.fns[0]()
	assert.Zero(t, p.extractions())
	assert.Empty(t, sink.all())

	rec.fns[1]()
	assert.Equal(t, 1, p.extractions())
	assert.Len(t, sink.all(), 1)
}

func TestLoop_ToggleActive(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	ctx := context.Background()

	h.page.set("first", "")
	h.clock.Advance(time.Second)
	require.Len(t, h.sink.all(), 1)

	require.NoError(t, h.store.Set(ctx, settings.KeyActive, false))
	assert.Equal(t, Stopped, h.loop.State())
	assert.False(t, h.loop.Active())
	assert.Zero(t, h.clock.Active())

	h.page.set("second", "changed while paused")
	h.clock.Advance(10 * time.Second)
	assert.Len(t, h.sink.all(), 1, "nothing is emitted while inactive")
	assert.Equal(t, 1, h.page.extractions())

	require.NoError(t, h.store.Set(ctx, settings.KeyActive, true))
	assert.Equal(t, Running, h.loop.State())
	h.clock.Advance(time.Second)

	updates := h.sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, "second", updates[1].Snapshot.User)
}

func TestLoop_ResumeKeepsLastSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	ctx := context.Background()

	h.page.set("same", "text")
	h.clock.Advance(time.Second)

	require.NoError(t, h.store.Set(ctx, settings.KeyActive, false))
	require.NoError(t, h.store.Set(ctx, settings.KeyActive, true))
	h.clock.Advance(3 * time.Second)

	assert.Len(t, h.sink.all(), 1, "unchanged page is not re-emitted after resume")
}

func TestLoop_StartsInactive(t *testing.T) {
	h := newHarness(t, map[string]any{settings.KeyActive: false})
	h.mount(t)

	assert.Equal(t, Stopped, h.loop.State())
	assert.Zero(t, h.clock.Active())

	h.page.set("hi", "")
	h.clock.Advance(time.Minute)
	assert.Empty(t, h.sink.all())
}

func TestLoop_StoreUnavailable(t *testing.T) {
	clock := timer.NewManual()
	p := &page{}
	loop := New(p, unavailableStore{}, WithScheduler(clock))

	require.NoError(t, loop.Mount(context.Background()))
	defer loop.Unmount()

	assert.True(t, loop.Active())
	assert.Equal(t, time.Second, loop.Interval())
	assert.Equal(t, settings.ModeWords, loop.Mode())
	assert.Equal(t, Running, loop.State())
	assert.Equal(t, []time.Duration{time.Second}, clock.Periods())
}

func TestLoop_NilStore(t *testing.T) {
	clock := timer.NewManual()
	loop := New(&page{}, nil, WithScheduler(clock))

	require.NoError(t, loop.Mount(context.Background()))
	defer loop.Unmount()
	assert.Equal(t, Running, loop.State())
}

func TestLoop_ModeChangeReemits(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.page.set("Hello", "World")
	h.clock.Advance(time.Second)

	require.NoError(t, h.store.Set(context.Background(), settings.KeyCountMode, "characters"))

	updates := h.sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, settings.ModeCharacters, updates[1].Mode)
	assert.Equal(t, updates[0].Result, updates[1].Result)
	assert.Equal(t, settings.ModeCharacters, h.loop.Mode())

	label, n := updates[1].Secondary()
	assert.Equal(t, "characters", label)
	assert.Equal(t, 11, n)
}

func TestLoop_ModeChangeWithoutResult(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.store.Set(context.Background(), settings.KeyCountMode, "characters"))
	assert.Empty(t, h.sink.all())
	assert.Equal(t, settings.ModeCharacters, h.loop.Mode())
}

func TestLoop_ExtractionFailureIsTransient(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.page.set("Hello", "World")
	h.page.fail(errors.New("page not readable"))
	h.clock.Advance(2 * time.Second)
	assert.Empty(t, h.sink.all())
	assert.Equal(t, Running, h.loop.State())

	h.page.fail(nil)
	h.clock.Advance(time.Second)
	assert.Len(t, h.sink.all(), 1)
}

func TestLoop_UnmountAndRemount(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.loop.Mount(ctx))
	require.NoError(t, h.loop.Mount(ctx), "mount is idempotent")

	h.page.set("kept", "")
	h.clock.Advance(time.Second)

	h.loop.Unmount()
	h.loop.Unmount()
	assert.Equal(t, Stopped, h.loop.State())
	assert.Zero(t, h.clock.Active())

	// Settings changes while unmounted are not acted on.
	require.NoError(t, h.store.Set(ctx, settings.KeyInterval, 300))
	assert.Zero(t, h.clock.Active())

	require.NoError(t, h.loop.Mount(ctx))
	defer h.loop.Unmount()
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, h.clock.Periods())

	h.clock.Advance(time.Second)
	assert.Len(t, h.sink.all(), 1, "snapshot survives unmount")
}

func TestLoop_MountWithoutExtractor(t *testing.T) {
	loop := New(nil, settings.NewMemoryStore())
	assert.ErrorIs(t, loop.Mount(context.Background()), ErrNoExtractor)
}

func TestLoop_SinkMayReadLoop(t *testing.T) {
	h := newHarness(t, nil)
	var seen State
	h.loop = New(h.page, h.store,
		WithScheduler(h.clock),
		WithSink(SinkFunc(func(Update) {
			seen = h.loop.State()
			_, _ = h.loop.Latest()
		})),
	)
	h.mount(t)

	h.page.set("x", "y")
	h.clock.Advance(time.Second)
	assert.Equal(t, Running, seen)
}

func TestLoop_SinkMayChangeSettings(t *testing.T) {
	h := newHarness(t, nil)
	h.loop = New(h.page, h.store,
		WithScheduler(h.clock),
		WithSink(SinkFunc(func(u Update) {
			h.sink.Emit(u)
			_ = h.store.Set(context.Background(), settings.KeyActive, false)
		})),
	)
	h.mount(t)

	h.page.set("pause", "me")
	h.clock.Advance(time.Second)

	assert.Len(t, h.sink.all(), 1)
	assert.Equal(t, Stopped, h.loop.State())
	assert.False(t, h.loop.Active())
	assert.Zero(t, h.clock.Active())
}

func TestLoop_NoDeliveryAfterUnmount(t *testing.T) {
	rec := &recordingScheduler{}
	p := &page{}
	p.set("late", "update")
	sink := &recorder{}
	loop := New(p, settings.NewMemoryStore(), WithScheduler(rec), WithSink(sink))
	require.NoError(t, loop.Mount(context.Background()))

	// A tick that finished polling but has not reached the sink yet.
	u, seq, ok := loop.poll(loop.gen)
	require.True(t, ok)

	loop.Unmount()
	loop.deliver(u, seq)

	assert.Empty(t, sink.all())
	got, ok := loop.Latest()
	assert.True(t, ok)
	assert.Equal(t, "late", got.Snapshot.User)
}

// countingStore counts subscriptions.
type countingStore struct {
	*settings.MemoryStore
	watches atomic.Int32
	cancels atomic.Int32
}

func (s *countingStore) Watch(key string, fn func(any)) func() {
	s.watches.Add(1)
	cancel := s.MemoryStore.Watch(key, fn)
	return func() {
		s.cancels.Add(1)
		cancel()
	}
}

func TestLoop_ConcurrentMountSubscribesOnce(t *testing.T) {
	store := &countingStore{MemoryStore: settings.NewMemoryStore()}
	loop := New(&page{}, store, WithScheduler(timer.NewManual()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, loop.Mount(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), store.watches.Load())

	loop.Unmount()
	assert.Equal(t, int32(3), store.cancels.Load())
	assert.Equal(t, Stopped, loop.State())
}

func TestLoop_Run(t *testing.T) {
	p := &page{}
	p.set("Hello", "World")
	store := settings.NewMemoryStore(settings.WithValues(map[string]any{settings.KeyInterval: 10}))

	emitted := make(chan Update, 1)
	loop := New(p, store, WithSink(SinkFunc(func(u Update) {
		select {
		case emitted <- u:
		default:
		}
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case u := <-emitted:
		assert.Equal(t, 2, u.Result.Words)
	case <-time.After(5 * time.Second):
		t.Fatal("no update emitted")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Stopped, loop.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
}

func TestUpdate_Secondary(t *testing.T) {
	u := Update{Result: counting.Result{Words: 2, Characters: 11}}
	label, n := u.Secondary()
	assert.Equal(t, "words", label)
	assert.Equal(t, 2, n)
}

// recordingScheduler hands out handles but never fires; tests call the
// recorded callbacks directly.
type recordingScheduler struct {
	fns     []func()
	handles []*recordedHandle
}

type recordedHandle struct{ cancelled bool }

func (h *recordedHandle) Cancel()         { h.cancelled = true }
func (h *recordedHandle) Cancelled() bool { return h.cancelled }

func (r *recordingScheduler) Schedule(_ time.Duration, fn func()) (timer.Handle, error) {
	h := &recordedHandle{}
	r.fns = append(r.fns, fn)
	r.handles = append(r.handles, h)
	return h, nil
}
