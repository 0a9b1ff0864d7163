package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/chatcount/counting"
	"github.com/randalmurphal/chatcount/settings"
	"github.com/randalmurphal/chatcount/snapshot"
	"github.com/randalmurphal/chatcount/timer"
)

// ErrNoExtractor is returned by Mount when the loop has no extractor.
var ErrNoExtractor = errors.New("poller: no extractor")

// State is the loop state.
type State int

// Loop states.
const (
	Stopped State = iota
	Running
)

// String returns "stopped" or "running".
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Update is one emission of the loop.
type Update struct {
	Result   counting.Result    `json:"result"`
	Mode     settings.CountMode `json:"mode"`
	Snapshot snapshot.Snapshot  `json:"-"`
	At       time.Time          `json:"at"`
}

// Secondary returns the label and value of the metric selected by Mode.
func (u Update) Secondary() (string, int) {
	if u.Mode == settings.ModeCharacters {
		return string(settings.ModeCharacters), u.Result.Characters
	}
	return string(settings.ModeWords), u.Result.Words
}

// Sink receives updates from the loop. Emit is called without the loop
// lock held, one call at a time and in update order, so a sink may read
// the loop or change settings. It must not call Unmount.
type Sink interface {
	Emit(Update)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Update)

// Emit calls f(u).
func (f SinkFunc) Emit(u Update) {
	f(u)
}

type discard struct{}

func (discard) Emit(Update) {}

// Option configures a Loop.
type Option func(*Loop)

// WithSink sets the receiver of updates. The default discards them.
func WithSink(sink Sink) Option {
	return func(l *Loop) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithPipeline sets the counting pipeline. The default is counting.New().
func WithPipeline(p *counting.Pipeline) Option {
	return func(l *Loop) {
		if p != nil {
			l.pipeline = p
		}
	}
}

// WithScheduler sets the timer implementation. The default is a real
// timer.Ticker.
func WithScheduler(s timer.Scheduler) Option {
	return func(l *Loop) {
		if s != nil {
			l.scheduler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the clock used to stamp updates.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// Loop polls an extractor and emits counts when the text changes.
type Loop struct {
	extractor snapshot.Extractor
	store     settings.Store
	pipeline  *counting.Pipeline
	scheduler timer.Scheduler
	sink      Sink
	logger    *slog.Logger
	now       func() time.Time

	// mountMu serializes Mount and Unmount.
	mountMu sync.Mutex

	// mu serializes ticks with settings changes and mount transitions.
	mu       sync.Mutex
	ctx      context.Context
	mounted  bool
	active   bool
	interval time.Duration
	mode     settings.CountMode
	handle   timer.Handle
	gen      uint64
	last     snapshot.Snapshot
	unwatch  []func()
	seq      uint64

	// sinkMu serializes sink calls; delivered is the seq of the last
	// update handed to the sink.
	sinkMu    sync.Mutex
	delivered uint64

	// viewMu guards the copy read by accessors.
	viewMu sync.RWMutex
	view   view
}

type view struct {
	state     State
	active    bool
	interval  time.Duration
	mode      settings.CountMode
	latest    Update
	hasLatest bool
}

// New creates a stopped loop reading from extractor and configured by store.
func New(extractor snapshot.Extractor, store settings.Store, opts ...Option) *Loop {
	defaults := settings.Defaults()
	l := &Loop{
		extractor: extractor,
		store:     store,
		sink:      discard{},
		logger:    slog.Default(),
		now:       time.Now,
		active:    defaults.Active,
		interval:  defaults.Interval(),
		mode:      defaults.CountMode,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pipeline == nil {
		l.pipeline = counting.New(counting.WithLogger(l.logger))
	}
	if l.scheduler == nil {
		l.scheduler = timer.NewTicker()
	}
	l.publish()
	return l
}

// Mount loads the settings, subscribes to their changes and starts polling
// if the counter is active. A store that cannot be read yields the
// defaults. Mounting an already mounted loop does nothing.
func (l *Loop) Mount(ctx context.Context) error {
	if l.extractor == nil {
		return ErrNoExtractor
	}

	l.mountMu.Lock()
	defer l.mountMu.Unlock()

	l.mu.Lock()
	if l.mounted {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	// Subscribe before loading so no change between the two is lost.
	// Callbacks are ignored until mounted is set.
	var unwatch []func()
	if l.store != nil {
		unwatch = append(unwatch,
			l.store.Watch(settings.KeyActive, l.onActive),
			l.store.Watch(settings.KeyInterval, l.onInterval),
			l.store.Watch(settings.KeyCountMode, l.onMode),
		)
	}

	s, err := settings.Load(ctx, l.store)
	if err != nil {
		l.logger.Warn("settings unavailable, using defaults",
			slog.Bool("active", s.Active),
			slog.Duration("interval", s.Interval()),
			slog.String("count_mode", string(s.CountMode)),
			slog.Any("error", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ctx = ctx
	l.mounted = true
	l.unwatch = unwatch
	l.active = s.Active
	l.interval = s.Interval()
	l.mode = s.CountMode
	if l.active {
		l.start()
	}
	l.publish()

	l.logger.Debug("counter mounted",
		slog.Bool("active", l.active),
		slog.Duration("interval", l.interval),
		slog.String("count_mode", string(l.mode)))
	return nil
}

// Unmount stops polling and unsubscribes from the settings store. The last
// snapshot is kept for a later Mount.
func (l *Loop) Unmount() {
	l.mountMu.Lock()
	defer l.mountMu.Unlock()

	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return
	}
	l.mounted = false
	l.stop()
	unwatch := l.unwatch
	l.unwatch = nil
	seq := l.seq
	l.publish()
	l.mu.Unlock()

	// Updates computed before the stop are not delivered after it.
	l.sinkMu.Lock()
	if seq > l.delivered {
		l.delivered = seq
	}
	l.sinkMu.Unlock()

	for _, cancel := range unwatch {
		cancel()
	}
	l.logger.Debug("counter unmounted")
}

// Run mounts the loop and blocks until ctx is done, then unmounts.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Mount(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Unmount()
	return nil
}

// State returns Running while a timer is active.
func (l *Loop) State() State {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view.state
}

// Active returns the current extension-active setting.
func (l *Loop) Active() bool {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view.active
}

// Interval returns the current poll period.
func (l *Loop) Interval() time.Duration {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view.interval
}

// Mode returns the current count mode.
func (l *Loop) Mode() settings.CountMode {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view.mode
}

// Latest returns the last emitted update, if any.
func (l *Loop) Latest() (Update, bool) {
	l.viewMu.RLock()
	defer l.viewMu.RUnlock()
	return l.view.latest, l.view.hasLatest
}

// start schedules the timer. Callers hold mu.
func (l *Loop) start() {
	if l.handle != nil {
		return
	}

	interval := l.freshInterval()
	l.gen++
	gen := l.gen
	h, err := l.scheduler.Schedule(interval, func() { l.tick(gen) })
	if err != nil {
		l.logger.Error("could not start poll timer",
			slog.Duration("interval", interval),
			slog.Any("error", err))
		return
	}
	l.handle = h
	l.interval = interval
}

// stop cancels the timer. Bumping gen revokes any tick of the old timer
// that is already waiting on mu. Callers hold mu.
func (l *Loop) stop() {
	if l.handle == nil {
		return
	}
	l.handle.Cancel()
	l.handle = nil
	l.gen++
}

// freshInterval reads the interval from the store rather than trusting a
// value captured earlier. Callers hold mu.
func (l *Loop) freshInterval() time.Duration {
	if l.store != nil && l.ctx != nil {
		if v, err := l.store.Get(l.ctx, settings.KeyInterval); err == nil {
			if ms, err := settings.Normalize(settings.KeyInterval, v); err == nil {
				return time.Duration(ms.(int)) * time.Millisecond
			}
		}
	}
	if l.interval <= 0 {
		return settings.DefaultIntervalMs * time.Millisecond
	}
	return l.interval
}

// tick runs one poll and hands a changed result to the sink.
func (l *Loop) tick(gen uint64) {
	if u, seq, ok := l.poll(gen); ok {
		l.deliver(u, seq)
	}
}

// poll extracts and counts under mu. Stale ticks from a cancelled timer
// are dropped.
func (l *Loop) poll(gen uint64) (Update, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen || l.handle == nil || !l.mounted || !l.active {
		return Update{}, 0, false
	}

	cur, err := l.extractor.Extract(l.ctx)
	if err != nil {
		l.logger.Warn("extraction failed, waiting for next tick", slog.Any("error", err))
		return Update{}, 0, false
	}
	if !snapshot.HasChanged(l.last, cur) {
		return Update{}, 0, false
	}
	l.last = cur

	u := Update{
		Result:   l.pipeline.Count(cur.Combined()),
		Mode:     l.mode,
		Snapshot: cur,
		At:       l.now(),
	}
	return u, l.record(u), true
}

// record stores u as the latest update and returns its sequence number.
// Callers hold mu.
func (l *Loop) record(u Update) uint64 {
	l.seq++
	l.viewMu.Lock()
	l.view.latest = u
	l.view.hasLatest = true
	l.viewMu.Unlock()
	return l.seq
}

// deliver hands u to the sink unless a newer update got there first.
// Callers must not hold mu.
func (l *Loop) deliver(u Update, seq uint64) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	if seq <= l.delivered {
		return
	}
	l.delivered = seq
	l.sink.Emit(u)
}

// publish copies the state read by accessors. Callers hold mu, or own l
// exclusively during construction.
func (l *Loop) publish() {
	state := Stopped
	if l.handle != nil {
		state = Running
	}

	l.viewMu.Lock()
	defer l.viewMu.Unlock()
	l.view.state = state
	l.view.active = l.active
	l.view.interval = l.interval
	l.view.mode = l.mode
}

func (l *Loop) onActive(v any) {
	active, err := settings.Normalize(settings.KeyActive, v)
	if err != nil {
		l.logger.Warn("ignoring active setting", slog.Any("error", err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.mounted || active.(bool) == l.active {
		return
	}
	l.active = active.(bool)
	if l.active {
		l.start()
	} else {
		l.stop()
	}
	l.publish()
	l.logger.Info("counter toggled", slog.Bool("active", l.active))
}

func (l *Loop) onInterval(v any) {
	ms, err := settings.Normalize(settings.KeyInterval, v)
	if err != nil {
		l.logger.Warn("ignoring interval setting", slog.Any("error", err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.mounted {
		return
	}
	interval := time.Duration(ms.(int)) * time.Millisecond
	if interval == l.interval {
		return
	}
	l.interval = interval
	if l.handle != nil {
		l.stop()
		l.start()
	}
	l.publish()
	l.logger.Info("poll interval changed", slog.Duration("interval", l.interval))
}

func (l *Loop) onMode(v any) {
	mode, err := settings.Normalize(settings.KeyCountMode, v)
	if err != nil {
		l.logger.Warn("ignoring count mode setting", slog.Any("error", err))
		return
	}
	if u, seq, ok := l.switchMode(mode.(settings.CountMode)); ok {
		l.deliver(u, seq)
	}
}

// switchMode sets the count mode and returns the latest update re-labelled
// with it, if the loop is running and has one.
func (l *Loop) switchMode(mode settings.CountMode) (Update, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.mounted || mode == l.mode {
		return Update{}, 0, false
	}
	l.mode = mode
	l.publish()

	latest, ok := l.Latest()
	if !ok || l.handle == nil {
		return Update{}, 0, false
	}
	latest.Mode = l.mode
	latest.At = l.now()
	return latest, l.record(latest), true
}
