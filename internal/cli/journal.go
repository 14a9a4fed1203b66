package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/inankarim/feedsync/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Limit int
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent mutation outcomes from the journal",
		Long: `Show the most recent journaled mutation outcomes, newest first, with
a per-outcome tally. Requires a journal path in the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "entries to show")

	return cmd
}

func runJournal(cmd *cobra.Command, opts *JournalOptions) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()
	if e.journal == nil {
		return WrapExitError(ExitCommandError, "journal disabled",
			errors.New("no journal path configured"))
	}

	entries, err := e.journal.Recent(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "read journal", err)
	}
	counts, err := e.journal.CountByOutcome(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "count journal outcomes", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(struct {
		Entries []journal.Entry `json:"entries"`
		Counts  map[string]int  `json:"counts"`
	}{entries, counts}); done {
		return err
	}

	for _, entry := range entries {
		line := entry.At.Format("2006-01-02 15:04:05") + "  " + entry.Op + " " + entry.Target + " -> " + entry.Outcome
		if entry.Message != "" {
			line += " (" + entry.Message + ")"
		}
		f.Textf("%s", line)
	}
	f.Textf("confirmed: %d, rolled back: %d, not ready: %d",
		counts["confirmed"], counts["rolled_back"], counts["not_ready"])
	return nil
}
