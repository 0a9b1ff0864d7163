// Package dom extracts chat message texts from an HTML document using the
// host page's selector contract.
//
// A message element is any element carrying the selector attribute, by
// default data-message-author-role, with the user or assistant value:
//
//	<div data-message-author-role="user">Hello</div>
//	<div data-message-author-role="assistant">Hi there!</div>
//
// The text of a message is the text content of its element: all descendant
// text nodes concatenated as they are, like the DOM textContent property,
// so formatting whitespace inside the element is kept. Messages are taken in document order and each
// role's texts are joined with a single space. A message nested inside
// another message element counts only as part of the outer one.
//
// If the page markup changes and nothing matches, extraction yields an
// empty snapshot rather than an error.
package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/randalmurphal/chatcount/snapshot"
)

// DefaultAttr is the attribute ChatGPT uses to mark message authors.
const DefaultAttr = "data-message-author-role"

// Selector is the contract for locating message elements.
type Selector struct {
	Attr      string
	User      string
	Assistant string
}

// DefaultSelector matches data-message-author-role="user" and
// data-message-author-role="assistant".
func DefaultSelector() Selector {
	return Selector{
		Attr:      DefaultAttr,
		User:      "user",
		Assistant: "assistant",
	}
}

// Valid returns true if every field is set.
func (s Selector) Valid() bool {
	return s.Attr != "" && s.User != "" && s.Assistant != ""
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelector replaces the selector. Incomplete selectors are ignored.
func WithSelector(sel Selector) Option {
	return func(e *Extractor) {
		if sel.Valid() {
			e.selector = sel
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor reads an HTML document on every Extract.
type Extractor struct {
	open     func() (io.ReadCloser, error)
	source   string
	selector Selector
	logger   *slog.Logger
}

// FromFile returns an extractor that re-reads path on every Extract, so a
// page that keeps being rewritten is picked up on the next tick. A missing
// file is an empty page.
func FromFile(path string, opts ...Option) *Extractor {
	return newExtractor(path, func() (io.ReadCloser, error) { return os.Open(path) }, opts)
}

// FromBytes returns an extractor over a fixed document.
func FromBytes(doc []byte, opts ...Option) *Extractor {
	return newExtractor("bytes", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(doc)), nil
	}, opts)
}

func newExtractor(source string, open func() (io.ReadCloser, error), opts []Option) *Extractor {
	e := &Extractor{
		open:     open,
		source:   source,
		selector: DefaultSelector(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selector returns the selector in use.
func (e *Extractor) Selector() Selector {
	return e.selector
}

// Extract parses the document and returns the message texts.
func (e *Extractor) Extract(ctx context.Context) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, err
	}

	rc, err := e.open()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Debug("page not found, treating as empty", slog.String("source", e.source))
			return snapshot.Snapshot{}, nil
		}
		return snapshot.Snapshot{}, fmt.Errorf("open page: %w", err)
	}
	defer rc.Close()

	return Parse(rc, e.selector)
}

// Parse reads an HTML document from r and extracts message texts with sel.
// Malformed markup is repaired by the HTML5 parsing algorithm and never
// fails; errors come only from reading r.
func Parse(r io.Reader, sel Selector) (snapshot.Snapshot, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("parse page: %w", err)
	}

	var b snapshot.Builder
	walk(doc, sel, &b)
	return b.Snapshot(), nil
}

func walk(n *html.Node, sel Selector, b *snapshot.Builder) {
	if n.Type == html.ElementNode {
		switch role(n, sel.Attr) {
		case sel.User:
			b.AddUser(textContent(n))
			return
		case sel.Assistant:
			b.AddAssistant(textContent(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sel, b)
	}
}

func role(n *html.Node, attr string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, attr) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}
