// Package transcript extracts chat message texts from JSONL conversation
// transcripts.
//
// Two line shapes are understood. Claude Code session files, written to
// ~/.claude/projects/{normalized-path}/{sessionId}.jsonl:
//
//	{"type":"user","uuid":"...","message":{"role":"user","content":"Hello"}}
//	{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Hi"}]}}
//
// and plain chat messages:
//
//	{"role":"user","content":"Hello"}
//
// Content may be a string or an array of content blocks; only text blocks
// count, so tool calls and tool results are ignored. Lines with another
// role, without text, or that are not valid JSON are skipped.
//
// The Extractor reads incrementally: each Extract parses only the lines
// appended since the previous call. A truncated or replaced file is read
// again from the start. A trailing line without a newline is left for the
// next call, since the writer may still be appending to it.
package transcript
