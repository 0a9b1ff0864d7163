package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryStore is an in-process Store. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]any
	watchers *watchers
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithValues seeds the store. Invalid values are dropped.
func WithValues(values map[string]any) MemoryOption {
	return func(m *MemoryStore) {
		for k, v := range values {
			if nv, err := Normalize(k, v); err == nil {
				m.values[k] = nv
			}
		}
	}
}

// WithMemoryLogger sets the logger used to report watcher panics.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(m *MemoryStore) {
		m.watchers = newWatchers(logger)
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		values:   make(map[string]any),
		watchers: newWatchers(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value of key.
func (m *MemoryStore) Get(ctx context.Context, key string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !knownKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set stores value and notifies watchers if it changed.
func (m *MemoryStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := Normalize(key, value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old, existed := m.values[key]
	m.values[key] = v
	m.mu.Unlock()

	if existed && old == v {
		return nil
	}
	m.watchers.notify(key, v)
	return nil
}

// Watch registers fn for changes to key.
func (m *MemoryStore) Watch(key string, fn func(value any)) func() {
	cancel := m.watchers.add(key, fn)

	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		m.watchers.call(key, fn, v)
	}
	return cancel
}

func knownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}
