package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore is a Store persisted to a settings file. External edits to the
// file are detected with fsnotify and delivered to watchers.
type FileStore struct {
	path   string
	format Format
	logger *slog.Logger

	mu       sync.RWMutex
	values   map[string]any
	watchers *watchers

	fsw       *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// FileOption configures a FileStore.
type FileOption func(*fileConfig)

type fileConfig struct {
	logger *slog.Logger
	watch  bool
}

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(c *fileConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithoutWatch disables detection of external edits.
func WithoutWatch() FileOption {
	return func(c *fileConfig) {
		c.watch = false
	}
}

// DefaultPath returns the default settings file location,
// {UserConfigDir}/chatcount/settings.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, "chatcount", "settings.json"), nil
}

// OpenFile opens the settings file at path. A missing file is not an
// error; the store starts empty and the file is created on the first Set.
// Invalid values in the file are logged and ignored.
func OpenFile(path string, opts ...FileOption) (*FileStore, error) {
	cfg := fileConfig{logger: slog.Default(), watch: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		path:     path,
		format:   format,
		logger:   cfg.logger.With(slog.String("settings_file", path)),
		values:   make(map[string]any),
		watchers: newWatchers(cfg.logger),
		done:     make(chan struct{}),
	}

	values, err := s.read()
	if err != nil {
		return nil, err
	}
	s.values = values

	if cfg.watch {
		s.startWatch()
	}
	return s, nil
}

// Path returns the settings file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value of key.
func (s *FileStore) Get(ctx context.Context, key string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !knownKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set stores value, rewrites the file and notifies watchers if the value
// changed. If the file cannot be written the old value is kept.
func (s *FileStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := Normalize(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old, existed := s.values[key]
	if existed && old == v {
		s.mu.Unlock()
		return nil
	}
	next := make(map[string]any, len(s.values)+1)
	for k, val := range s.values {
		next[k] = val
	}
	next[key] = v
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.values = next
	s.mu.Unlock()

	s.watchers.notify(key, v)
	return nil
}

// Watch registers fn for changes to key.
func (s *FileStore) Watch(key string, fn func(value any)) func() {
	cancel := s.watchers.add(key, fn)

	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		s.watchers.call(key, fn, v)
	}
	return cancel
}

// Reload re-reads the file and notifies watchers of changed keys.
// The read happens under the store lock so it cannot interleave with Set.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	values, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	// A key removed from the file falls back to its default, and watchers
	// are told so.
	defaults := Defaults()
	changed := make(map[string]any)
	var order []string
	for _, key := range Keys() {
		nv, ok := values[key]
		ov, had := s.values[key]
		switch {
		case ok && (!had || ov != nv):
			changed[key] = nv
		case !ok && had:
			dv, _ := defaults.Get(key)
			if ov == dv {
				continue
			}
			changed[key] = dv
		default:
			continue
		}
		order = append(order, key)
	}
	s.values = values
	s.mu.Unlock()

	for _, key := range order {
		s.logger.Debug("settings changed on disk", slog.String("key", key))
		s.watchers.notify(key, changed[key])
	}
	return nil
}

// Close stops watching the file. It is safe to call more than once.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.fsw != nil {
			err = s.fsw.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	doc, err := decodeDocument(s.format, data)
	if err != nil {
		return nil, err
	}

	values, errs := doc.values()
	for _, e := range errs {
		s.logger.Warn("ignoring invalid setting", slog.Any("error", e))
	}
	return values, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(values map[string]any) error {
	data, err := encodeDocument(s.format, documentFrom(values))
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// startWatch watches the parent directory, which survives the file being
// replaced by rename. Failure leaves the store usable without live reload.
func (s *FileStore) startWatch() {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Warn("settings live reload disabled", slog.Any("error", err))
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("settings live reload disabled", slog.Any("error", err))
		return
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		s.logger.Warn("settings live reload disabled", slog.Any("error", err))
		return
	}
	s.fsw = fsw

	s.wg.Add(1)
	go s.watchLoop()
}

func (s *FileStore) watchLoop() {
	defer s.wg.Done()
	baseName := filepath.Base(s.path)

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != baseName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("keeping previous settings", slog.Any("error", err))
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Debug("settings watcher error", slog.Any("error", err))
		}
	}
}
