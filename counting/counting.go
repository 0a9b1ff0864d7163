package counting

import (
	"fmt"
	"log/slog"
	"unicode"
	"unicode/utf8"

	"github.com/randalmurphal/chatcount/tokens"
)

// Result holds the three counts of a text.
type Result struct {
	Tokens     int `json:"tokens"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// Words returns the number of maximal whitespace-delimited non-empty
// substrings in text. Equivalent to len(strings.Fields(text)) without the
// allocation.
func Words(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// Characters returns the number of Unicode code points in text.
func Characters(text string) int {
	return utf8.RuneCountInString(text)
}

// Pipeline counts tokens, words and characters.
// Safe for concurrent use when its tokenizer is.
type Pipeline struct {
	tokenizer tokens.Tokenizer
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTokenizer sets the tokenizer. Nil is ignored.
func WithTokenizer(t tokens.Tokenizer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tokenizer = t
		}
	}
}

// WithLogger sets the logger used to report tokenizer failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline. The default tokenizer is the BPE counter for
// tokens.DefaultEncoding.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		tokenizer: tokens.NewBPECounter(tokens.DefaultEncoding),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tokenizer returns the tokenizer in use.
func (p *Pipeline) Tokenizer() tokens.Tokenizer {
	return p.tokenizer
}

// Count computes all three counts of text. It never fails; a tokenizer
// error yields Tokens == 0.
func (p *Pipeline) Count(text string) Result {
	if text == "" {
		return Result{}
	}

	n, err := p.countTokens(text)
	if err != nil {
		p.logger.Warn("token count unavailable",
			slog.String("tokenizer", p.tokenizer.Name()),
			slog.Any("error", err))
		n = 0
	}

	return Result{
		Tokens:     n,
		Words:      Words(text),
		Characters: Characters(text),
	}
}

func (p *Pipeline) countTokens(text string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("tokenizer panic: %v", r)
		}
	}()
	n, err = p.tokenizer.Count(text)
	if err == nil && n < 0 {
		return 0, fmt.Errorf("tokenizer returned negative count %d", n)
	}
	return n, err
}
