package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is a key-value settings store with change notification.
//
// Stores are single-writer, multi-reader. Watch callbacks may run on any
// goroutine and at any time relative to readers; they must not block.
type Store interface {
	// Get returns the canonical value of key, or ErrNotFound if unset.
	Get(ctx context.Context, key string) (any, error)

	// Set normalizes and stores value, notifying watchers if it changed.
	Set(ctx context.Context, key string, value any) error

	// Watch registers fn for changes to key. fn is also called once with
	// the current value if the key is set. The returned func unsubscribes.
	Watch(key string, fn func(value any)) (cancel func())
}

// Load reads all keys from the store, substituting the default for every
// key that is unset or cannot be read. The returned error joins the read
// failures and is informational only: the Settings are always usable.
func Load(ctx context.Context, store Store) (Settings, error) {
	s := Defaults()
	if store == nil {
		return s, errors.New("no settings store")
	}

	var errs []error
	for _, key := range Keys() {
		v, err := store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				errs = append(errs, fmt.Errorf("read %s: %w", key, err))
			}
			continue
		}
		if err := s.apply(key, v); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", key, err))
		}
	}
	return s, errors.Join(errs...)
}

// apply stores a raw value on the typed view.
func (s *Settings) apply(key string, value any) error {
	v, err := Normalize(key, value)
	if err != nil {
		return err
	}
	switch key {
	case KeyActive:
		s.Active = v.(bool)
	case KeyInterval:
		s.UpdateInterval = v.(int)
	case KeyCountMode:
		s.CountMode = v.(CountMode)
	}
	return nil
}

// Active returns the active flag, or DefaultActive if it cannot be read.
func Active(ctx context.Context, store Store) bool {
	v, err := readKey(ctx, store, KeyActive)
	if err != nil {
		return DefaultActive
	}
	return v.(bool)
}

// Interval returns the poll period, or the default if it cannot be read.
// The result is always positive.
func Interval(ctx context.Context, store Store) time.Duration {
	v, err := readKey(ctx, store, KeyInterval)
	if err != nil {
		return DefaultIntervalMs * time.Millisecond
	}
	return time.Duration(v.(int)) * time.Millisecond
}

// Mode returns the count mode, or DefaultCountMode if it cannot be read.
func Mode(ctx context.Context, store Store) CountMode {
	v, err := readKey(ctx, store, KeyCountMode)
	if err != nil {
		return DefaultCountMode
	}
	return v.(CountMode)
}

func readKey(ctx context.Context, store Store, key string) (any, error) {
	if store == nil {
		return nil, ErrNotFound
	}
	v, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return Normalize(key, v)
}

// Install writes the default value of every unset key. Keys that already
// hold a value are left alone.
func Install(ctx context.Context, store Store) error {
	defaults := Defaults()
	for _, key := range Keys() {
		_, err := store.Get(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("install %s: %w", key, err)
		}
		v, _ := defaults.Get(key)
		if err := store.Set(ctx, key, v); err != nil {
			return fmt.Errorf("install %s: %w", key, err)
		}
	}
	return nil
}

// Save writes every key of s to the store.
func Save(ctx context.Context, store Store, s Settings) error {
	for _, key := range Keys() {
		v, _ := s.Get(key)
		if err := store.Set(ctx, key, v); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// watchers is the subscriber registry shared by the store implementations.
type watchers struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(any)
	logger *slog.Logger
}

func newWatchers(logger *slog.Logger) *watchers {
	if logger == nil {
		logger = slog.Default()
	}
	return &watchers{
		subs:   make(map[string]map[int]func(any)),
		logger: logger,
	}
}

func (w *watchers) add(key string, fn func(any)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	if w.subs[key] == nil {
		w.subs[key] = make(map[int]func(any))
	}
	w.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs[key], id)
		})
	}
}

// notify calls every subscriber of key. Callbacks run outside the lock so
// they may call back into the store.
func (w *watchers) notify(key string, value any) {
	w.mu.Lock()
	fns := make([]func(any), 0, len(w.subs[key]))
	for _, fn := range w.subs[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		w.call(key, fn, value)
	}
}

func (w *watchers) call(key string, fn func(any), value any) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("settings watcher panicked",
				slog.String("key", key),
				slog.Any("panic", r))
		}
	}()
	fn(value)
}
