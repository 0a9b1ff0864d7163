package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Encoding names a byte pair encoding.
type Encoding string

// Supported encodings.
const (
	O200kBase  Encoding = "o200k_base"
	Cl100kBase Encoding = "cl100k_base"
	P50kBase   Encoding = "p50k_base"
	R50kBase   Encoding = "r50k_base"
)

// DefaultEncoding is the encoding of the gpt-4o model family.
const DefaultEncoding = O200kBase

// Encodings returns all supported encodings.
func Encodings() []Encoding {
	return []Encoding{O200kBase, Cl100kBase, P50kBase, R50kBase}
}

// Valid returns true if the encoding is supported.
func (e Encoding) Valid() bool {
	for _, enc := range Encodings() {
		if e == enc {
			return true
		}
	}
	return false
}

func (e Encoding) codecName() tokenizer.Encoding {
	switch e {
	case Cl100kBase:
		return tokenizer.Cl100kBase
	case P50kBase:
		return tokenizer.P50kBase
	case R50kBase:
		return tokenizer.R50kBase
	default:
		return tokenizer.O200kBase
	}
}

// modelPrefixes maps model name prefixes to encodings.
// Longer prefixes come first so "gpt-4o" is not matched by "gpt-4".
var modelPrefixes = []struct {
	prefix   string
	encoding Encoding
}{
	{"chatgpt-4o", O200kBase},
	{"gpt-4o", O200kBase},
	{"gpt-4.1", O200kBase},
	{"gpt-4.5", O200kBase},
	{"gpt-5", O200kBase},
	{"o1", O200kBase},
	{"o3", O200kBase},
	{"o4", O200kBase},
	{"gpt-4", Cl100kBase},
	{"gpt-3.5", Cl100kBase},
	{"text-embedding-3", Cl100kBase},
	{"text-embedding-ada-002", Cl100kBase},
	{"text-davinci-002", P50kBase},
	{"text-davinci-003", P50kBase},
	{"code-davinci", P50kBase},
	{"davinci", R50kBase},
	{"curie", R50kBase},
	{"babbage", R50kBase},
	{"ada", R50kBase},
}

// EncodingForModel returns the encoding used by a model.
// Unknown models get DefaultEncoding.
func EncodingForModel(model string) Encoding {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, m := range modelPrefixes {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding
		}
	}
	return DefaultEncoding
}

// ForModel returns a BPE counter for the encoding used by model.
func ForModel(model string) *BPECounter {
	return NewBPECounter(EncodingForModel(model))
}

// BPECounter counts tokens with a byte pair encoding.
// The codec is loaded on first use and shared by later calls.
// Safe for concurrent use.
type BPECounter struct {
	encoding Encoding

	once    sync.Once
	codec   tokenizer.Codec
	loadErr error
}

// NewBPECounter creates a counter for the given encoding.
// Unsupported encodings fall back to DefaultEncoding.
func NewBPECounter(encoding Encoding) *BPECounter {
	if !encoding.Valid() {
		encoding = DefaultEncoding
	}
	return &BPECounter{encoding: encoding}
}

// Name returns the encoding name.
func (c *BPECounter) Name() string {
	return string(c.encoding)
}

// Encoding returns the encoding used by the counter.
func (c *BPECounter) Encoding() Encoding {
	return c.encoding
}

func (c *BPECounter) load() (tokenizer.Codec, error) {
	c.once.Do(func() {
		codec, err := tokenizer.Get(c.encoding.codecName())
		if err != nil {
			c.loadErr = fmt.Errorf("load %s codec: %w", c.encoding, err)
			return
		}
		c.codec = codec
	})
	return c.codec, c.loadErr
}

// Count returns the number of tokens in text.
func (c *BPECounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	codec, err := c.load()
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode with %s: %w", c.encoding, err)
	}
	return len(ids), nil
}
