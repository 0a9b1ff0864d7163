package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/chatcount/counting"
	"github.com/randalmurphal/chatcount/settings"
	"github.com/randalmurphal/chatcount/tokens"
)

// App holds what every subcommand resolves from the persistent flags.
type App struct {
	Logger       *slog.Logger
	SettingsPath string
	Tokenizer    tokens.Tokenizer
}

func newApp(cmd *cobra.Command) (*App, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	settingsPath, _ := cmd.Flags().GetString("settings")
	tokenizerName, _ := cmd.Flags().GetString("tokenizer")
	model, _ := cmd.Flags().GetString("model")

	logger, err := newLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return nil, err
	}

	if settingsPath == "" {
		settingsPath, err = settings.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
	}

	tok, err := resolveTokenizer(tokenizerName, model)
	if err != nil {
		return nil, err
	}

	return &App{
		Logger:       logger,
		SettingsPath: settingsPath,
		Tokenizer:    tok,
	}, nil
}

// Pipeline returns a counting pipeline using the selected tokenizer.
func (a *App) Pipeline() *counting.Pipeline {
	return counting.New(
		counting.WithTokenizer(a.Tokenizer),
		counting.WithLogger(a.Logger),
	)
}

// OpenSettings opens the settings file. With watch set, external edits are
// picked up while the store is open.
func (a *App) OpenSettings(watch bool) (*settings.FileStore, error) {
	opts := []settings.FileOption{settings.WithFileLogger(a.Logger)}
	if !watch {
		opts = append(opts, settings.WithoutWatch())
	}
	store, err := settings.OpenFile(a.SettingsPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return store, nil
}

func resolveTokenizer(name, model string) (tokens.Tokenizer, error) {
	if name != "" {
		return tokens.New(name)
	}
	if model != "" {
		return tokens.ForModel(model), nil
	}
	return tokens.NewBPECounter(tokens.DefaultEncoding), nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
