// Package poller implements the polling loop that keeps a live count of a
// chat conversation.
//
// A Loop has two states, Stopped and Running. It runs while it is mounted
// and the extension-active setting is true. On every tick it extracts the
// current snapshot, compares it with the last one it saw and, only if the
// text changed, counts the combined text and emits an Update to its Sink.
//
//	loop := poller.New(extractor, store,
//	    poller.WithSink(poller.SinkFunc(func(u poller.Update) {
//	        label, n := u.Secondary()
//	        fmt.Printf("tokens: %d  %s: %d\n", u.Result.Tokens, label, n)
//	    })),
//	)
//	if err := loop.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The loop watches the settings store. Turning extension-active off cancels
// the timer and no further Update is emitted; turning it back on resumes
// with the last snapshot retained, so an unchanged page is not re-emitted.
// Changing update-interval replaces the timer; ticks of the old timer never
// run after the switch. Changing count-mode re-emits the latest Update with
// the new mode.
//
// Ticks are serialized with settings changes, and Emit is called while the
// loop holds its internal lock. A Sink may call the read accessors (Latest,
// State, Active, Mode, Interval) but must not call Mount or Unmount.
package poller
