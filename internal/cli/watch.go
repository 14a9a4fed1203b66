package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/push"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <group-id>",
		Short: "Watch a group's messages in real time",
		Long: `Connect to the push socket, join the given group, and print messages
as they arrive. Runs until interrupted.

Example:
  feedsync watch 665f1c2d3e4f5a6b7c8d9e0f`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "print poll interval")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, groupID string) error {
	e, cleanup, err := newEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sock, err := push.Dial(ctx, e.cfg.Socket.URL, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "connect push socket", err)
	}
	defer func() {
		if closeErr := sock.Close(); closeErr != nil {
			slog.Error("error closing push socket", "error", closeErr)
		}
	}()

	c := e.newChat(sock)
	c.Start()
	defer c.Stop()

	if err := c.FetchGroups(ctx); err != nil {
		return WrapExitError(ExitFailure, "fetch groups", err)
	}
	if err := c.Select(ctx, groupID); err != nil {
		return WrapExitError(ExitFailure, "join group", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	f.Textf("Watching %s. Press Ctrl-C to stop.", groupID)

	// The push handlers feed the cache on the socket's delivery goroutine;
	// printing is decoupled by polling the snapshot and diffing seen ids.
	seen := make(map[string]bool)
	printNew := func() error {
		snap := c.Messages(groupID)
		// Snapshot order is newest-first; print arrivals oldest-first.
		for i := len(snap.Items) - 1; i >= 0; i-- {
			m := snap.Items[i]
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if done, err := f.JSON(m); done && err != nil {
				return err
			}
			f.Textf("%s  %s: %s", m.CreatedAt.Format("15:04:05"), senderName(m), m.Text)
		}
		return nil
	}
	if err := printNew(); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printNew(); err != nil {
				return err
			}
		}
	}
}

func senderName(m entity.GroupMessage) string {
	if m.Sender.FullName != "" {
		return m.Sender.FullName
	}
	return m.Sender.ID
}
