package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/inankarim/feedsync/internal/entity"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	Page  int
	Limit int
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch and print one page of the post feed",
		Long: `Fetch one page of the post feed and print it newest-first.

Example:
  feedsync feed
  feedsync feed --page 2 --limit 25 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 1, "page to fetch")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "posts per page (default from config)")

	return cmd
}

func runFeed(cmd *cobra.Command, opts *FeedOptions) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	limit := opts.Limit
	if limit == 0 {
		limit = e.cfg.Feed.PageSize
	}

	if _, err := e.feed.FetchPosts(cmd.Context(), opts.Page, limit); err != nil {
		return WrapExitError(ExitFailure, "fetch posts", err)
	}

	snap := e.feed.Posts()
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(snap.Items); done {
		return err
	}

	f.Textf("page %d/%d, %d posts", snap.Page, snap.Total, len(snap.Items))
	for _, p := range snap.Items {
		f.Textf("%s  %s  %s", p.CreatedAt.Format("2006-01-02 15:04"), p.ID, summarize(p))
	}
	return nil
}

// summarize renders one feed line: author, text, and tallies.
func summarize(p entity.Post) string {
	author := p.Author.FullName
	if author == "" {
		author = p.Author.ID
	}
	line := author + ": " + truncate(p.Text, 60)
	if p.Reactions.Total > 0 {
		line += " [" + strconv.Itoa(p.Reactions.Total) + " reactions]"
	}
	if p.CommentCount > 0 {
		line += " (" + strconv.Itoa(p.CommentCount) + " comments)"
	}
	return line
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
