// Package feed is the synchronization core for the post feed and its
// per-post comment threads: paginated fetches, optimistic CRUD, reaction
// toggles, and the reconciliation of all three against server truth.
//
// Concurrency model: the store's mutex serializes every cache write, and
// each write is a single atomic step. Network calls run outside the lock,
// so further intents may be dispatched while one is in flight; a
// mutation's confirmation or rollback is applied independently of anything
// issued after it.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/inankarim/feedsync/internal/cache"
	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/transport"
)

// feedKey is the single collection key for the top-level feed.
const feedKey = "feed"

// Mutation outcome labels, recorded through the optional Recorder.
const (
	outcomeConfirmed  = "confirmed"
	outcomeRolledBack = "rolled_back"
	outcomeNotReady   = "not_ready"
)

// Recorder receives mutation outcomes for diagnostics. Implemented by
// journal.Journal; nil disables recording.
type Recorder interface {
	Record(op, target, outcome, message string)
}

// Store owns the feed and comment caches. The presentation layer reads
// Snapshot copies and dispatches intents; it never mutates entities.
type Store struct {
	api    transport.Transport
	log    *slog.Logger
	rec    Recorder
	mint   entity.Minter
	clk    *entity.Clock
	norm   *entity.Normalizer
	now    func() time.Time
	viewer func() entity.UserRef

	inflight *cache.Inflight

	mu       sync.Mutex
	posts    *cache.Cache[entity.Post]
	comments *cache.Cache[entity.Comment]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithRecorder attaches a mutation-outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.rec = r }
}

// WithMinter overrides the provisional-id minter (tests use FixedMinter).
func WithMinter(m entity.Minter) Option {
	return func(s *Store) { s.mint = m }
}

// WithClock shares an arrival clock across stores.
func WithClock(c *entity.Clock) Option {
	return func(s *Store) { s.clk = c }
}

// WithNow overrides the wall clock used for provisional timestamps and
// normalization fallbacks.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithViewer supplies the identity provider: the current viewer's ref for
// optimistic authorship. Read-only external fact.
func WithViewer(viewer func() entity.UserRef) Option {
	return func(s *Store) { s.viewer = viewer }
}

// NewStore creates a feed store over the given transport.
func NewStore(api transport.Transport, opts ...Option) *Store {
	s := &Store{
		api:      api,
		log:      slog.Default(),
		mint:     entity.UUIDMinter{},
		clk:      entity.NewClock(),
		now:      time.Now,
		viewer:   entity.PlaceholderViewer,
		inflight: cache.NewInflight(),
		posts:    cache.New[entity.Post](),
		comments: cache.New[entity.Comment](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.norm = entity.NewNormalizer(s.clk, s.now)
	return s
}

// Posts returns a read-only snapshot of the feed collection.
func (s *Store) Posts() cache.Collection[entity.Post] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts.Snapshot(feedKey)
}

// Comments returns a read-only snapshot of a post's comment thread.
func (s *Store) Comments(postID string) cache.Collection[entity.Comment] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments.Snapshot(postID)
}

func (s *Store) record(op, target, outcome, message string) {
	if s.rec != nil {
		s.rec.Record(op, target, outcome, message)
	}
}

// keepPostIdentity merges a server-confirmed post over a cached one: the
// arrival seq survives so tie ordering is stable across re-confirmation.
func keepPostIdentity(old, incoming entity.Post) entity.Post {
	incoming.Seq = old.Seq
	return incoming
}
