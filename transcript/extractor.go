package transcript

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/randalmurphal/chatcount/snapshot"
)

// Extractor follows a transcript file. Safe for concurrent use.
type Extractor struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	offset   int64
	info     os.FileInfo
	builder  snapshot.Builder
	messages int
	skipping bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// FromFile returns an extractor following the transcript at path.
func FromFile(path string, opts ...Option) *Extractor {
	e := &Extractor{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Path returns the transcript path.
func (e *Extractor) Path() string {
	return e.path
}

// Messages returns the number of newline-terminated messages read so far.
func (e *Extractor) Messages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messages
}

// Extract reads lines appended since the last call and returns the texts
// of all messages read so far. A last line without a newline is included
// but re-read on the next call. A missing file is an empty transcript.
func (e *Extractor) Extract(ctx context.Context) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.reset()
			return snapshot.Snapshot{}, nil
		}
		return snapshot.Snapshot{}, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("stat transcript: %w", err)
	}
	if e.info != nil && (!os.SameFile(e.info, info) || info.Size() < e.offset) {
		e.logger.Debug("transcript truncated or replaced, rereading", slog.String("path", e.path))
		e.reset()
	}
	e.info = info

	if _, err := f.Seek(e.offset, io.SeekStart); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("seek transcript: %w", err)
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var tail *Message
	for {
		l, err := readLine(reader)
		if err != nil {
			return e.builder.Snapshot(), fmt.Errorf("read transcript: %w", err)
		}
		if l.n == 0 {
			break
		}

		if !l.complete {
			if l.over || e.skipping {
				// The rest of an oversized line is dropped when it ends.
				e.offset += l.n
				e.skipping = true
			} else if msg, ok := ParseLine(l.data); ok {
				// Counted now but not committed: the writer may still
				// extend it, so it is read again next time.
				tail = &msg
			}
			break
		}

		e.offset += l.n
		if l.over || e.skipping {
			e.skipping = false
			e.logger.Warn("skipping oversized transcript line",
				slog.String("path", e.path),
				slog.Int("max_bytes", maxLineSize))
			continue
		}
		if msg, ok := ParseLine(l.data); ok {
			add(&e.builder, msg)
			e.messages++
		}
	}

	snap := e.builder.Snapshot()
	if tail != nil {
		snap = withMessage(snap, *tail)
	}
	return snap, nil
}

// withMessage returns s with m appended to its role's text.
func withMessage(s snapshot.Snapshot, m Message) snapshot.Snapshot {
	join := func(text string) string {
		if text == "" {
			return m.Text
		}
		return text + " " + m.Text
	}
	switch m.Role {
	case RoleUser:
		s.User = join(s.User)
	case RoleAssistant:
		s.Assistant = join(s.Assistant)
	}
	return s
}

// reset forgets everything read. Callers hold mu.
func (e *Extractor) reset() {
	e.offset = 0
	e.info = nil
	e.builder = snapshot.Builder{}
	e.messages = 0
	e.skipping = false
}
