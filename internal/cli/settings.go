package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/chatcount/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write the settings file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [KEY]",
		Short: "Print effective settings (defaults fill unset keys)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSettingsGetCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting; running watchers pick it up",
		Args:  cobra.ExactArgs(2),
		RunE:  runSettingsSetCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write defaults for every unset key",
		Args:  cobra.NoArgs,
		RunE:  runSettingsInitCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the settings file",
		Args:  cobra.NoArgs,
		RunE:  runSettingsSchemaCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file path",
		Args:  cobra.NoArgs,
		RunE:  runSettingsPathCmd,
	})

	return cmd
}

func runSettingsGetCmd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.OpenSettings(false)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := settings.Load(cmd.Context(), store)
	if err != nil {
		app.Logger.Warn("some settings unreadable, showing defaults for them", "error", err)
	}

	keys := settings.Keys()
	if len(args) == 1 {
		keys = args
	}

	out := cmd.OutOrStdout()
	for _, key := range keys {
		v, err := s.Get(key)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			fmt.Fprintln(out, v)
			continue
		}
		fmt.Fprintf(out, "%s: %v\n", key, v)
	}
	return nil
}

func runSettingsSetCmd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.OpenSettings(false)
	if err != nil {
		return err
	}
	defer store.Close()

	key, value := args[0], args[1]
	if err := store.Set(cmd.Context(), key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	stored, err := store.Get(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", key, stored)
	return nil
}

func runSettingsInitCmd(cmd *cobra.Command, _ []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.OpenSettings(false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := settings.Install(cmd.Context(), store); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), store.Path())
	return nil
}

func runSettingsSchemaCmd(cmd *cobra.Command, _ []string) error {
	data, err := settings.SchemaJSON()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runSettingsPathCmd(cmd *cobra.Command, _ []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), app.SettingsPath)
	return nil
}
