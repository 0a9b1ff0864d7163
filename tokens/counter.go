package tokens

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultRunesPerToken is the ratio used when none is given. English prose
// averages about four code points per BPE token.
const DefaultRunesPerToken = 4.0

// EstimateName is the tokenizer name of the estimating counter.
const EstimateName = "estimate"

// ErrUnknownEncoding is returned when a tokenizer name cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown tokenizer encoding")

// Tokenizer counts tokens in text.
type Tokenizer interface {
	// Count returns the number of tokens in the given text.
	Count(text string) (int, error)

	// Name identifies the encoding, for logging.
	Name() string
}

// EstimatingCounter approximates a token count offline from the number
// of code points. The zero value uses DefaultRunesPerToken.
type EstimatingCounter struct {
	runesPerToken float64
}

// NewEstimatingCounter returns an estimator at DefaultRunesPerToken.
func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{runesPerToken: DefaultRunesPerToken}
}

// NewEstimatingCounterRatio returns an estimator assuming runesPerToken
// code points per token. Non-positive ratios select the default.
func NewEstimatingCounterRatio(runesPerToken float64) *EstimatingCounter {
	c := &EstimatingCounter{runesPerToken: runesPerToken}
	c.runesPerToken = c.RunesPerToken()
	return c
}

// RunesPerToken reports the ratio in effect.
func (c *EstimatingCounter) RunesPerToken() float64 {
	if c.runesPerToken <= 0 {
		return DefaultRunesPerToken
	}
	return c.runesPerToken
}

// Count divides the code point count by the ratio, rounding half up.
// It never fails.
func (c *EstimatingCounter) Count(text string) (int, error) {
	n := float64(utf8.RuneCountInString(text))
	return int(n/c.RunesPerToken() + 0.5), nil
}

// Name returns "estimate".
func (c *EstimatingCounter) Name() string {
	return EstimateName
}

// New resolves a tokenizer by name. Accepted names are the BPE encodings
// (o200k_base, cl100k_base, p50k_base, r50k_base) and "estimate".
// An empty name selects the default encoding.
func New(name string) (Tokenizer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NewBPECounter(DefaultEncoding), nil
	}
	if name == EstimateName {
		return NewEstimatingCounter(), nil
	}
	enc := Encoding(name)
	if !enc.Valid() {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownEncoding, name, strings.Join(Names(), ", "))
	}
	return NewBPECounter(enc), nil
}

// Names returns all tokenizer names accepted by New, sorted.
func Names() []string {
	names := []string{EstimateName}
	for _, enc := range Encodings() {
		names = append(names, string(enc))
	}
	sort.Strings(names)
	return names
}
