package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/chatcount/dom"
	"github.com/randalmurphal/chatcount/snapshot"
	"github.com/randalmurphal/chatcount/transcript"
)

// Source formats understood by watch and count.
const (
	formatAuto  = "auto"
	formatText  = "text"
	formatHTML  = "html"
	formatJSONL = "jsonl"
)

// resolveFormat returns the explicit format, or guesses it from the file
// extension when format is auto or empty.
func resolveFormat(path, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", formatAuto:
	case formatText, formatHTML, formatJSONL:
		return strings.ToLower(format), nil
	default:
		return "", fmt.Errorf("unknown format %q (want auto, text, html or jsonl)", format)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return formatHTML, nil
	case ".jsonl", ".ndjson":
		return formatJSONL, nil
	default:
		return formatText, nil
	}
}

type sourceOptions struct {
	format   string
	selector dom.Selector
	app      *App
}

// newExtractor builds the extractor watched by the polling loop. Plain
// text has no roles, so only html and jsonl sources can be watched.
func newExtractor(path string, opts sourceOptions) (snapshot.Extractor, error) {
	format, err := resolveFormat(path, opts.format)
	if err != nil {
		return nil, err
	}

	switch format {
	case formatHTML:
		if !opts.selector.Valid() {
			return nil, errors.New("invalid selector: attribute and both role values are required")
		}
		return dom.FromFile(path,
			dom.WithSelector(opts.selector),
			dom.WithLogger(opts.app.Logger),
		), nil
	case formatJSONL:
		return transcript.FromFile(path, transcript.WithLogger(opts.app.Logger)), nil
	default:
		return nil, fmt.Errorf("cannot watch %s: use --format html or jsonl", path)
	}
}

func selectorFlags(attr, user, assistant string) dom.Selector {
	sel := dom.DefaultSelector()
	if attr != "" {
		sel.Attr = attr
	}
	if user != "" {
		sel.User = user
	}
	if assistant != "" {
		sel.Assistant = assistant
	}
	return sel
}
