package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/push"
)

// GroupOptions holds flags for the group subcommands.
type GroupOptions struct {
	*RootOptions
	Members []string
}

// NewGroupCommand creates the group command group.
func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GroupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "group",
		Short: "List, create, or manage chat groups",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List the groups you belong to",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupList(cmd, opts)
		},
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group",
		Long: `Create a group with the given name and members.

Example:
  feedsync group create "book club" --member 665f1c... --member 665f2d...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupCreate(cmd, opts, args[0])
		},
	}
	create.Flags().StringArrayVar(&opts.Members, "member", nil, "member user id (repeatable)")

	rename := &cobra.Command{
		Use:           "rename <group-id> <name>",
		Short:         "Rename a group (creator only)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupRename(cmd, opts, args[0], args[1])
		},
	}

	leave := &cobra.Command{
		Use:           "leave <group-id>",
		Short:         "Leave a group",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupLeave(cmd, opts, args[0])
		},
	}

	cmd.AddCommand(list, create, rename, leave)
	return cmd
}

func runGroupList(cmd *cobra.Command, opts *GroupOptions) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()
	c := e.newChat(push.NewFake())

	if err := c.FetchGroups(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "fetch groups", err)
	}

	groups := c.Groups()
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(groups); done {
		return err
	}
	for _, g := range groups {
		f.Textf("%s  %s (%d members)", g.ID, g.Name, len(g.Members))
		if opts.Verbose {
			f.Textf("  members: %s", strings.Join(memberNames(g.Members), ", "))
		}
	}
	return nil
}

func runGroupCreate(cmd *cobra.Command, opts *GroupOptions, name string) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()
	c := e.newChat(push.NewFake())

	created, err := c.CreateGroup(cmd.Context(), name, opts.Members)
	if err != nil {
		return WrapExitError(ExitFailure, "create group", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(created); done {
		return err
	}
	f.Textf("created %s (%s)", created.Name, created.ID)
	return nil
}

func runGroupRename(cmd *cobra.Command, opts *GroupOptions, id, name string) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()
	c := e.newChat(push.NewFake())

	if _, err := c.RenameGroup(cmd.Context(), id, name); err != nil {
		return WrapExitError(ExitFailure, "rename group", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(map[string]string{"id": id, "name": name}); done {
		return err
	}
	f.Textf("renamed %s to %q", id, name)
	return nil
}

func runGroupLeave(cmd *cobra.Command, opts *GroupOptions, id string) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()
	c := e.newChat(push.NewFake())

	if _, err := c.LeaveGroup(cmd.Context(), id); err != nil {
		return WrapExitError(ExitFailure, "leave group", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if done, err := f.JSON(map[string]string{"left": id}); done {
		return err
	}
	f.Textf("left %s", id)
	return nil
}

// memberNames renders a group's member list for verbose output.
func memberNames(members []entity.UserRef) []string {
	out := make([]string, len(members))
	for i, m := range members {
		if m.FullName != "" {
			out[i] = m.FullName
			continue
		}
		out[i] = m.ID
	}
	return out
}
