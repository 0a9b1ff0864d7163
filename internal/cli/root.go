// Package cli implements the Cobra command tree for the chatcount CLI.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chatcount",
		Short:         "Live token, word and character counts for chat transcripts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("settings", "s", "", "path to settings file (default {config dir}/chatcount/settings.json)")
	rootCmd.PersistentFlags().String("tokenizer", "", "tokenizer encoding or \"estimate\" (default o200k_base)")
	rootCmd.PersistentFlags().String("model", "", "pick the tokenizer encoding used by this model")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newCountCmd())
	rootCmd.AddCommand(newSettingsCmd())

	return rootCmd
}
