package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/chatcount/poller"
	"github.com/randalmurphal/chatcount/settings"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch --source FILE",
		Short: "Poll a chat page or transcript and print counts as it changes",
		Long: `Poll a chat page or transcript and print counts as it changes.

The poll interval, count mode and active flag are read from the settings
file and follow edits to it while watch runs. Use "chatcount settings set"
from another terminal to pause, resume or retune the counter.`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}

	cmd.Flags().String("source", "", "HTML page or JSONL transcript to watch")
	cmd.Flags().String("format", formatAuto, "source format: auto, html or jsonl")
	cmd.Flags().String("selector-attr", "", "attribute marking message authors (default data-message-author-role)")
	cmd.Flags().String("selector-user", "", "attribute value of user messages (default user)")
	cmd.Flags().String("selector-assistant", "", "attribute value of assistant messages (default assistant)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	format, _ := cmd.Flags().GetString("format")
	attr, _ := cmd.Flags().GetString("selector-attr")
	user, _ := cmd.Flags().GetString("selector-user")
	assistant, _ := cmd.Flags().GetString("selector-assistant")

	extractor, err := newExtractor(source, sourceOptions{
		format:   format,
		selector: selectorFlags(attr, user, assistant),
		app:      app,
	})
	if err != nil {
		return err
	}

	var store settings.Store
	fileStore, err := app.OpenSettings(true)
	if err != nil {
		app.Logger.Warn("settings file unusable, using in-memory defaults", "error", err)
		store = settings.NewMemoryStore(settings.WithMemoryLogger(app.Logger))
	} else {
		defer fileStore.Close()
		store = fileStore
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := poller.New(extractor, store,
		poller.WithSink(newRenderer(cmd.OutOrStdout())),
		poller.WithPipeline(app.Pipeline()),
		poller.WithLogger(app.Logger),
	)

	app.Logger.Info("watching", "source", source, "tokenizer", app.Tokenizer.Name())
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch %s: %w", source, err)
	}
	return nil
}

// renderer prints one status line per update.
type renderer struct {
	mu sync.Mutex
	w  io.Writer
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) Emit(u poller.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, formatUpdate(u))
}

// formatUpdate renders the token count and the metric selected by the
// count mode, e.g. "tokens: 12  words: 9".
func formatUpdate(u poller.Update) string {
	label, n := u.Secondary()
	return fmt.Sprintf("tokens: %d  %s: %d", u.Result.Tokens, label, n)
}
