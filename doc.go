// Package chatcount counts tokens, words and characters of a chat
// conversation while it is being written.
//
// A polling loop periodically extracts the user and assistant message
// texts from a chat surface, and when they changed since the previous tick
// counts the combined text and hands the result to a presentation layer.
// The packages can be used independently:
//
//   - snapshot: the text snapshot, the Extractor capability and change detection
//   - dom: extraction from HTML pages using the message author attribute
//   - transcript: extraction from JSONL chat transcripts
//   - tokens: BPE token counting and an estimating fallback
//   - counting: the token, word and character pipeline
//   - settings: the settings model and watchable stores (memory and file)
//   - timer: cancellable periodic timers, real and manual
//   - poller: the polling loop
//
// # Quick Start
//
// Count a text:
//
//	import "github.com/randalmurphal/chatcount/counting"
//	result := counting.New().Count("Hello, world!")
//	// result.Tokens == 4, result.Words == 2, result.Characters == 13
//
// Watch a saved chat page:
//
//	import (
//	    "github.com/randalmurphal/chatcount/dom"
//	    "github.com/randalmurphal/chatcount/poller"
//	    "github.com/randalmurphal/chatcount/settings"
//	)
//	store := settings.NewMemoryStore()
//	loop := poller.New(dom.FromFile("chat.html"), store,
//	    poller.WithSink(poller.SinkFunc(func(u poller.Update) {
//	        fmt.Println(u.Result.Tokens)
//	    })))
//	_ = loop.Run(ctx)
//
// The chatcount command in cmd/chatcount wraps the same loop.
package chatcount
