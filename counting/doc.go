// Package counting computes token, word and character counts for a text.
//
// The three counts are independent. Tokens are delegated to a
// tokens.Tokenizer; words and characters are computed here:
//
//   - Words are maximal runs of non-whitespace, as split by strings.Fields
//     (Unicode White_Space). "a b  c" has 3 words; "  " has none.
//   - Characters are Unicode code points, not grapheme clusters. An emoji
//     with a skin tone modifier counts 2; "e" followed by a combining acute
//     accent counts 2. Invalid UTF-8 bytes count one each.
//
// If the tokenizer fails the token count degrades to 0 and the word and
// character counts are still returned:
//
//	p := counting.New()
//	r := p.Count("Hello World")   // {Tokens: 2, Words: 2, Characters: 11}
package counting
