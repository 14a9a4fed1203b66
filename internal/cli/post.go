package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/feed"
)

// PostOptions holds flags for the post subcommands.
type PostOptions struct {
	*RootOptions
	Text  string
	Image string
}

// NewPostCommand creates the post command group.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create, delete, or react to a post",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		Long: `Create a post with the given text and/or image.

Example:
  feedsync post create --text "Hello"
  feedsync post create --image /pics/cat.png`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostCreate(cmd, opts)
		},
	}
	create.Flags().StringVar(&opts.Text, "text", "", "post text")
	create.Flags().StringVar(&opts.Image, "image", "", "post image reference")

	del := &cobra.Command{
		Use:           "delete <post-id>",
		Short:         "Delete a post",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostDelete(cmd, opts, args[0])
		},
	}

	react := &cobra.Command{
		Use:   "react <post-id> <kind>",
		Short: "Toggle a reaction on a post",
		Long: `Toggle a reaction on a post. Reacting with the current choice removes
it; reacting with another kind switches to it.

Kinds: love, like, funny, horror.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostReact(cmd, opts, args[0], args[1])
		},
	}

	cmd.AddCommand(create, del, react)
	return cmd
}

func runPostCreate(cmd *cobra.Command, opts *PostOptions) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	created, err := e.feed.CreatePost(cmd.Context(), feed.Draft{Text: opts.Text, Image: opts.Image})
	if err != nil {
		return WrapExitError(ExitFailure, "create post", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(created); done {
		return err
	}
	f.Textf("created %s", created.ID)
	return nil
}

func runPostDelete(cmd *cobra.Command, opts *PostOptions, id string) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := e.feed.DeletePost(cmd.Context(), id); err != nil {
		return WrapExitError(ExitFailure, "delete post", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(map[string]string{"deleted": id}); done {
		return err
	}
	f.Textf("deleted %s", id)
	return nil
}

func runPostReact(cmd *cobra.Command, opts *PostOptions, id, kind string) error {
	k := entity.ReactionKind(kind)
	if !k.Valid() {
		return WrapExitError(ExitCommandError, "react to post",
			fmt.Errorf("unknown reaction kind %q (valid: %v)", kind, entity.ReactionKinds))
	}

	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	// Reacting needs the post in cache: the toggle is computed against
	// the cached reaction state.
	if _, err := e.feed.FetchPosts(cmd.Context(), 1, e.cfg.Feed.PageSize); err != nil {
		return WrapExitError(ExitFailure, "fetch posts", err)
	}
	if _, err := e.feed.ReactToPost(cmd.Context(), id, k); err != nil {
		return WrapExitError(ExitFailure, "react to post", err)
	}

	snap := e.feed.Posts()
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	for _, p := range snap.Items {
		if p.ID == id {
			if done, err := f.JSON(p.Reactions); done {
				return err
			}
			f.Textf("%s: %d reactions, yours: %s", id, p.Reactions.Total, orNone(string(p.Reactions.ViewerChoice)))
			return nil
		}
	}
	f.Textf("reacted to %s", id)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
