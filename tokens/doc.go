// Package tokens provides the tokenizer black box behind the counting pipeline.
//
// A Tokenizer maps text to a non-negative token count. The mapping is stable
// and deterministic for a fixed encoding.
//
// # BPE
//
// BPECounter counts tokens with an OpenAI byte pair encoding. The vocabulary
// is embedded in the binary, so no network access is needed:
//
//	counter := tokens.NewBPECounter(tokens.O200kBase)
//	n, err := counter.Count("Hello, world!")    // 4
//
// The default encoding is o200k_base, used by the gpt-4o model family.
// Encodings can also be resolved from a model name:
//
//	counter := tokens.ForModel("gpt-4")          // cl100k_base
//
// # Estimating
//
// EstimatingCounter uses the rule of thumb that approximately 4 characters
// equal 1 token for English text. It never fails and is useful offline or in
// tests:
//
//	counter := tokens.NewEstimatingCounter()
//	n, _ := counter.Count("Hello World")         // 3
//
// # By name
//
// New resolves a tokenizer by name, as used by configuration and flags:
//
//	t, err := tokens.New("cl100k_base")
//	t, err := tokens.New("estimate")
package tokens
