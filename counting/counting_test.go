package counting

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/chatcount/tokens"
)

type stubTokenizer struct {
	n     int
	err   error
	panic bool
	calls int
}

func (s *stubTokenizer) Count(string) (int, error) {
	s.calls++
	if s.panic {
		panic("vocabulary exploded")
	}
	return s.n, s.err
}

func (s *stubTokenizer) Name() string { return "stub" }

func TestWords(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"", 0},
		{"  ", 0},
		{"a b  c", 3},
		{"Hello World", 2},
		{"\tleading and trailing\n", 3},
		{"no break", 2},
		{"ideographic\u3000space", 2},
		{"👋 hi", 2},
		{"é", 1},
		{"\xff\xfe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, Words(tt.text))
			assert.Equal(t, len(strings.Fields(tt.text)), Words(tt.text))
		})
	}
}

func TestCharacters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty", text: "", expected: 0},
		{name: "ascii", text: "Hello World", expected: 11},
		{name: "accented precomposed", text: "\u00e9", expected: 1},
		{name: "combining mark", text: "é", expected: 2},
		{name: "emoji", text: "👋", expected: 1},
		{name: "emoji with skin tone", text: "\U0001F44B\U0001F3FD", expected: 2},
		{name: "cjk", text: "你好", expected: 2},
		{name: "invalid utf8", text: "\xff\xfe", expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Characters(tt.text))
			assert.Equal(t, len([]rune(tt.text)), Characters(tt.text))
		})
	}
}

func TestPipeline_Count_HelloWorld(t *testing.T) {
	p := New(WithTokenizer(tokens.NewEstimatingCounter()))

	r := p.Count("Hello" + " " + "World")

	assert.Equal(t, Result{Tokens: 3, Words: 2, Characters: 11}, r)
}

func TestPipeline_Count_DefaultTokenizer(t *testing.T) {
	p := New()
	assert.Equal(t, string(tokens.DefaultEncoding), p.Tokenizer().Name())

	r := p.Count("Hello World")
	assert.Equal(t, 2, r.Tokens)
	assert.Equal(t, 2, r.Words)
	assert.Equal(t, 11, r.Characters)
}

func TestPipeline_Count_Empty(t *testing.T) {
	stub := &stubTokenizer{n: 7}
	p := New(WithTokenizer(stub))

	assert.Equal(t, Result{}, p.Count(""))
	assert.Zero(t, stub.calls, "tokenizer should not run on empty text")
}

func TestPipeline_Count_Idempotent(t *testing.T) {
	p := New()
	text := "Ünïcödé 👩‍👩‍👧 text with\tmixed   whitespace"

	assert.Equal(t, p.Count(text), p.Count(text))
}

func TestPipeline_Count_TokenizerFailure(t *testing.T) {
	tests := []struct {
		name string
		stub *stubTokenizer
	}{
		{name: "error", stub: &stubTokenizer{n: 5, err: errors.New("bad input")}},
		{name: "panic", stub: &stubTokenizer{panic: true}},
		{name: "negative", stub: &stubTokenizer{n: -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			p := New(WithTokenizer(tt.stub), WithLogger(logger))

			var r Result
			require.NotPanics(t, func() { r = p.Count("still countable") })

			assert.Equal(t, Result{Tokens: 0, Words: 2, Characters: 15}, r)
			assert.Contains(t, buf.String(), "token count unavailable")
			assert.Contains(t, buf.String(), "tokenizer=stub")
		})
	}
}

func TestWithTokenizer_NilIgnored(t *testing.T) {
	p := New(WithTokenizer(nil), WithLogger(nil))
	require.NotNil(t, p.Tokenizer())
}
