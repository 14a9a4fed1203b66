package cli

import (
	"log/slog"

	"github.com/inankarim/feedsync/internal/chat"
	"github.com/inankarim/feedsync/internal/config"
	"github.com/inankarim/feedsync/internal/feed"
	"github.com/inankarim/feedsync/internal/journal"
	"github.com/inankarim/feedsync/internal/push"
	"github.com/inankarim/feedsync/internal/transport"
)

// env bundles the configured collaborators a command works with.
type env struct {
	cfg     config.Config
	api     transport.Transport
	feed    *feed.Store
	journal *journal.Journal
}

// newEnv loads configuration and builds the feed store plus the optional
// journal. Chat needs a live push channel and is wired per-command by
// newChat. The returned cleanup closes the journal.
func newEnv(opts *RootOptions) (*env, func(), error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}

	e := &env{
		cfg: cfg,
		api: transport.NewClient(cfg.API.BaseURL, transport.WithTimeout(cfg.API.Timeout)),
	}

	cleanup := func() {}
	feedOpts := []feed.Option{}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "open journal", err)
		}
		e.journal = j
		feedOpts = append(feedOpts, feed.WithRecorder(j))
		cleanup = func() {
			if err := j.Close(); err != nil {
				slog.Error("closing journal", "error", err)
			}
		}
	}

	e.feed = feed.NewStore(e.api, feedOpts...)
	return e, cleanup, nil
}

// newChat builds a chat store over the given push channel, sharing the
// env's transport and journal.
func (e *env) newChat(ch push.Channel) *chat.Store {
	opts := []chat.Option{}
	if e.journal != nil {
		opts = append(opts, chat.WithRecorder(e.journal))
	}
	return chat.NewStore(e.api, ch, opts...)
}
