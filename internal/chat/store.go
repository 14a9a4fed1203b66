// Package chat is the synchronization core for group chat: the viewer's
// group list, one selected group, per-group message collections, and the
// realtime reconciliation of push events against optimistic local state.
//
// Concurrency model matches the feed store: the mutex serializes every
// cache write as a single atomic step, network and push emits run outside
// the lock. Push handlers run on the channel's delivery goroutine and take
// the same mutex, so realtime merges interleave with mutations at step
// granularity.
package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/inankarim/feedsync/internal/cache"
	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/push"
	"github.com/inankarim/feedsync/internal/transport"
)

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

// Store owns the group chat state. The presentation layer reads snapshot
// copies and dispatches intents; it never mutates entities.
type Store struct {
	api    transport.Transport
	ch     push.Channel
	log    *slog.Logger
	rec    Recorder
	mint   entity.Minter
	clk    *entity.Clock
	norm   *entity.Normalizer
	now    func() time.Time
	viewer func() entity.UserRef

	inflight *cache.Inflight

	mu       sync.Mutex
	groups   []entity.Group
	selected string
	msgs     *cache.Cache[entity.GroupMessage]
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
// optimistic authorship and membership checks. Read-only external fact.
func WithViewer(viewer func() entity.UserRef) Option {
	return func(s *Store) { s.viewer = viewer }
}

// NewStore creates a chat store over the given transport and push channel.
func NewStore(api transport.Transport, ch push.Channel, opts ...Option) *Store {
	s := &Store{
		api:      api,
		ch:       ch,
		log:      slog.Default(),
		mint:     entity.UUIDMinter{},
		clk:      entity.NewClock(),
		now:      time.Now,
		viewer:   entity.PlaceholderViewer,
		inflight: cache.NewInflight(),
		msgs:     cache.New[entity.GroupMessage](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.norm = entity.NewNormalizer(s.clk, s.now)
	return s
}

// Groups returns a copy of the viewer's group list.
func (s *Store) Groups() []entity.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Group, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Clone()
	}
	return out
}

// Selected returns the currently selected group, if any.
func (s *Store) Selected() (entity.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return entity.Group{}, false
	}
	g, ok := s.findGroup(s.selected)
	return g.Clone(), ok
}

// Messages returns a read-only snapshot of a group's message collection.
func (s *Store) Messages(groupID string) cache.Collection[entity.GroupMessage] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs.Snapshot(groupID)
}

func (s *Store) record(op, target, outcome, message string) {
	if s.rec != nil {
		s.rec.Record(op, target, outcome, message)
	}
}

// findGroup returns the group with the given id. Caller holds the mutex.
func (s *Store) findGroup(id string) (entity.Group, bool) {
	for _, g := range s.groups {
		if g.ID == id {
			return g, true
		}
	}
	return entity.Group{}, false
}

// putGroup inserts or replaces a group by id. Caller holds the mutex.
func (s *Store) putGroup(g entity.Group) {
	for i := range s.groups {
		if s.groups[i].ID == g.ID {
			s.groups[i] = g
			return
		}
	}
	s.groups = append(s.groups, g)
}

// dropGroup removes a group by id. Caller holds the mutex.
func (s *Store) dropGroup(id string) {
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return
		}
	}
}
