package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/chatcount/counting"
	"github.com/randalmurphal/chatcount/dom"
	"github.com/randalmurphal/chatcount/transcript"
)

func newCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count [FILE|-]",
		Short: "Count tokens, words and characters once",
		Long: `Count tokens, words and characters once.

Reads FILE, or standard input when FILE is "-" or omitted. HTML pages are
reduced to their user and assistant messages and JSONL transcripts to their
message texts; anything else is counted as plain text.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCountCmd,
	}

	cmd.Flags().String("format", formatAuto, "input format: auto, text, html or jsonl")
	cmd.Flags().Bool("json", false, "print the result as JSON")

	return cmd
}

// countReport is the output of the count command.
type countReport struct {
	Source   string              `json:"source"`
	Format   string              `json:"format"`
	Counts   counting.Result     `json:"counts"`
	Messages *transcript.Summary `json:"messages,omitempty"`
}

func runCountCmd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	asJSON, _ := cmd.Flags().GetBool("json")

	path := "-"
	if len(args) == 1 {
		path = args[0]
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	if path == "-" && (format == "" || format == formatAuto) {
		format = formatText
	}
	format, err = resolveFormat(path, format)
	if err != nil {
		return err
	}

	report := countReport{Source: path, Format: format}
	text := string(data)

	switch format {
	case formatHTML:
		snap, err := dom.Parse(bytes.NewReader(data), dom.DefaultSelector())
		if err != nil {
			return fmt.Errorf("parse html: %w", err)
		}
		text = snap.Combined()
	case formatJSONL:
		messages, err := transcript.Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("parse transcript: %w", err)
		}
		summary := transcript.Summarize(messages)
		report.Messages = &summary
		text = transcript.Snapshot(messages).Combined()
	}

	report.Counts = app.Pipeline().Count(text)

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "tokens:     %d\n", report.Counts.Tokens)
	fmt.Fprintf(out, "words:      %d\n", report.Counts.Words)
	fmt.Fprintf(out, "characters: %d\n", report.Counts.Characters)
	if report.Messages != nil {
		fmt.Fprintf(out, "messages:   %d (user %d, assistant %d)\n",
			report.Messages.Messages, report.Messages.UserMessages, report.Messages.AssistantMessages)
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
