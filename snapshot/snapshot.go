// Package snapshot defines the text snapshot taken from a chat surface on
// every poll tick, the Extractor capability that produces it, and change
// detection between consecutive snapshots.
//
// A snapshot holds the concatenated user and assistant message texts at a
// point in time. It has no identity beyond value equality:
//
//	prev := snapshot.Snapshot{}
//	cur, err := extractor.Extract(ctx)
//	if err == nil && snapshot.HasChanged(prev, cur) {
//	    count(cur.Combined())
//	}
package snapshot

import (
	"context"
	"strings"
)

// Snapshot is the pair of concatenated user and assistant message texts.
type Snapshot struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Combined returns the unit fed to the counting pipeline: the user text and
// the assistant text joined by a single space. An empty snapshot combines
// to the empty string so that a page without messages counts as all zero.
func (s Snapshot) Combined() string {
	if s.IsEmpty() {
		return ""
	}
	return s.User + " " + s.Assistant
}

// IsEmpty returns true if neither side has any text.
func (s Snapshot) IsEmpty() bool {
	return s.User == "" && s.Assistant == ""
}

// HasChanged reports whether current differs from previous in either field.
// Equal snapshots, including two empty ones, are unchanged.
func HasChanged(previous, current Snapshot) bool {
	return previous.User != current.User || previous.Assistant != current.Assistant
}

// Extractor reads the currently visible messages from a chat surface.
//
// Implementations return empty strings, not an error, when no messages are
// present. An error means the surface itself could not be read.
type Extractor interface {
	Extract(ctx context.Context) (Snapshot, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context) (Snapshot, error)

// Extract calls f(ctx).
func (f ExtractorFunc) Extract(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static is an Extractor that always returns the same snapshot.
type Static Snapshot

// Extract returns the static snapshot.
func (s Static) Extract(context.Context) (Snapshot, error) {
	return Snapshot(s), nil
}

// Builder accumulates message texts in document order, grouping them by
// role. Each group is joined with a single space.
type Builder struct {
	user      []string
	assistant []string
}

// AddUser appends a user-authored message text.
func (b *Builder) AddUser(text string) {
	b.user = append(b.user, text)
}

// AddAssistant appends an assistant-authored message text.
func (b *Builder) AddAssistant(text string) {
	b.assistant = append(b.assistant, text)
}

// Len returns the number of messages added so far.
func (b *Builder) Len() int {
	return len(b.user) + len(b.assistant)
}

// Snapshot returns the accumulated texts.
func (b *Builder) Snapshot() Snapshot {
	return Snapshot{
		User:      strings.Join(b.user, " "),
		Assistant: strings.Join(b.assistant, " "),
	}
}
