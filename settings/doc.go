// Package settings holds the user-configurable counter settings and the
// key-value store they live in.
//
// Three keys are defined:
//
//	extension-active   bool     default true
//	update-interval    int (ms) default 1000, clamped to [10, 10000]
//	count-mode         string   default "words" ("words" or "characters")
//
// A Store provides Get, Set and Watch. Watch callbacks fire on every change
// and once on subscription when the key has a value. Readers never fail:
// Load and the typed accessors fall back to the defaults when the store is
// unavailable or holds an invalid value.
//
//	store := settings.NewMemoryStore()
//	cancel := store.Watch(settings.KeyInterval, func(v any) {
//	    fmt.Println("interval is now", v)
//	})
//	defer cancel()
//	_ = store.Set(ctx, settings.KeyInterval, 200)
//
// FileStore persists settings to a JSON, YAML or TOML file, chosen by
// extension, and picks up external edits via fsnotify:
//
//	store, err := settings.OpenFile("~/.config/chatcount/settings.yaml")
//	defer store.Close()
package settings
