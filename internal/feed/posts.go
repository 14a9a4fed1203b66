package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/inankarim/feedsync/internal/cache"
	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/transport"
)

// Draft is the content of a new or edited post.
type Draft struct {
	Text  string
	Image string
}

var (
	// ErrEmptyDraft rejects content with neither text nor image.
	ErrEmptyDraft = errors.New("write something or add a picture")
	// ErrDuplicateFetch reports a fetch skipped because an identical one
	// is already in flight.
	ErrDuplicateFetch = errors.New("identical fetch already in flight")
	// ErrCreateInFlight reports a create skipped because one is running.
	ErrCreateInFlight = errors.New("a create is already in flight")
)

// FetchPosts loads one feed page and merges it into the cache. Returns
// true when the cache holds the requested page afterwards (including the
// short-circuit where it already did). A concurrent identical fetch fails
// fast with ErrDuplicateFetch and no network call.
func (s *Store) FetchPosts(ctx context.Context, page, limit int) (bool, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	key := cache.Key("posts", strconv.Itoa(page), strconv.Itoa(limit))
	if !s.inflight.TryAcquire(key) {
		return false, ErrDuplicateFetch
	}
	defer s.inflight.Release(key)

	s.mu.Lock()
	col := s.posts.Ensure(feedKey)
	if col.Page == page && len(col.Items) > 0 {
		// Already showing this page as current state; the feed never
		// refetches it (comment caches do allow refetch).
		s.mu.Unlock()
		return true, nil
	}
	if col.Loading {
		s.mu.Unlock()
		return false, ErrDuplicateFetch
	}
	col.Loading = true
	col.LastError = ""
	s.mu.Unlock()

	raw, err := s.api.Get(ctx, "/post/getpost", transport.Params{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		msg := transport.UserMessage(err, "Failed to load posts")
		s.mu.Lock()
		s.posts.Fail(feedKey, msg)
		s.mu.Unlock()
		s.log.Error("fetch posts failed", "page", page, "error", err)
		return false, fmt.Errorf("fetch posts page %d: %w", page, err)
	}

	root := gjson.ParseBytes(raw)
	list := listField(root, "posts", "items")
	if !list.IsArray() {
		msg := "Failed to load posts"
		s.mu.Lock()
		s.posts.Fail(feedKey, msg)
		s.mu.Unlock()
		return false, fmt.Errorf("fetch posts page %d: posts payload is not an array", page)
	}

	items := make([]entity.Post, 0, 16)
	for _, r := range list.Array() {
		if p, ok := s.norm.Post(r); ok {
			items = append(items, p)
		}
	}
	meta := pageMeta(root, page)

	s.mu.Lock()
	s.posts.MergePage(feedKey, page, items, meta)
	total := len(s.posts.Ensure(feedKey).Items)
	s.mu.Unlock()

	s.log.Info("posts loaded",
		"page", meta.Current, "total_pages", meta.Total, "items", total, "has_next", meta.HasNext)
	return true, nil
}

// CreatePost applies an optimistic provisional post, issues the create
// call, and on success atomically swaps the provisional entity for the
// server-confirmed one. On failure the provisional entity is removed; the
// typed content is not preserved for retry.
func (s *Store) CreatePost(ctx context.Context, draft Draft) (*entity.Post, error) {
	text := entity.CleanText(draft.Text)
	if text == "" && draft.Image == "" {
		return nil, ErrEmptyDraft
	}
	if !s.inflight.TryAcquire("post:create") {
		return nil, ErrCreateInFlight
	}
	defer s.inflight.Release("post:create")

	optimistic := entity.Post{
		ID:        s.mint.Mint(),
		Author:    s.viewer(),
		Text:      text,
		Image:     draft.Image,
		CreatedAt: s.now().UTC(),
		Seq:       s.clk.Next(),
		Reactions: entity.NewReactionState(),
	}

	s.mu.Lock()
	s.posts.Upsert(feedKey, optimistic, nil)
	s.mu.Unlock()

	raw, err := s.api.Post(ctx, "/post", map[string]any{
		"text":  text,
		"image": nullable(draft.Image),
	})
	if err != nil {
		s.mu.Lock()
		s.posts.Remove(feedKey, optimistic.ID)
		s.mu.Unlock()
		s.record("post.create", optimistic.ID, outcomeRolledBack, transport.UserMessage(err, "Failed to create post"))
		return nil, fmt.Errorf("create post: %w", err)
	}

	created, ok := s.norm.Post(gjson.ParseBytes(raw))
	if !ok {
		s.mu.Lock()
		s.posts.Remove(feedKey, optimistic.ID)
		s.mu.Unlock()
		s.record("post.create", optimistic.ID, outcomeRolledBack, "server returned no post")
		return nil, fmt.Errorf("create post: malformed server response")
	}

	s.mu.Lock()
	s.posts.ReplaceID(feedKey, optimistic.ID, created)
	s.mu.Unlock()
	s.record("post.create", created.ID, outcomeConfirmed, "")
	s.log.Info("post created", "id", created.ID)
	return &created, nil
}

// UpdatePost edits a post. No optimistic pre-image is kept: on failure
// the cached entry is simply left as the pre-mutation value.
func (s *Store) UpdatePost(ctx context.Context, postID string, draft Draft) (bool, error) {
	raw, err := s.api.Put(ctx, "/post/"+postID, map[string]any{
		"text":  entity.CleanText(draft.Text),
		"image": nullable(draft.Image),
	})
	if err != nil {
		s.record("post.update", postID, outcomeRolledBack, transport.UserMessage(err, "Failed to update post"))
		return false, fmt.Errorf("update post %s: %w", postID, err)
	}

	root := gjson.ParseBytes(raw)
	updated, ok := s.norm.Post(root)
	if !ok {
		return false, fmt.Errorf("update post %s: malformed server response", postID)
	}

	s.mu.Lock()
	s.posts.Upsert(feedKey, updated, func(old, incoming entity.Post) entity.Post {
		incoming = keepPostIdentity(old, incoming)
		// Field-level merge: values the server omitted keep their cached state.
		if !root.Get("reactionCounts").Exists() {
			incoming.Reactions = old.Reactions
		}
		if !root.Get("commentCount").Exists() {
			incoming.CommentCount = old.CommentCount
		}
		return incoming
	})
	s.mu.Unlock()
	s.record("post.update", postID, outcomeConfirmed, "")
	return true, nil
}

// DeletePost removes the post immediately and reinserts the retained
// snapshot at its original position if the server call fails.
func (s *Store) DeletePost(ctx context.Context, postID string) (bool, error) {
	s.mu.Lock()
	removed, index, had := s.posts.Remove(feedKey, postID)
	s.mu.Unlock()

	if _, err := s.api.Delete(ctx, "/post/"+postID, nil); err != nil {
		if had {
			s.mu.Lock()
			s.posts.Restore(feedKey, removed, index)
			s.mu.Unlock()
		}
		s.record("post.delete", postID, outcomeRolledBack, transport.UserMessage(err, "Failed to delete post"))
		return false, fmt.Errorf("delete post %s: %w", postID, err)
	}

	s.record("post.delete", postID, outcomeConfirmed, "")
	s.log.Info("post deleted", "id", postID)
	return true, nil
}

// ReactToPost applies the reaction toggle optimistically and reconciles
// with the server's returned state, which wins verbatim. On failure the
// entire prior reaction state snapshot is restored, which also covers
// re-entrant toggles issued during the in-flight window.
func (s *Store) ReactToPost(ctx context.Context, postID string, kind entity.ReactionKind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown reaction kind %q", kind)
	}
	if !entity.IsPersistentID(postID) {
		s.record("post.react", postID, outcomeNotReady, "post is still publishing")
		return false, transport.ErrNotReady
	}

	s.mu.Lock()
	prev, cached := s.posts.Find(feedKey, postID)
	if !cached {
		s.mu.Unlock()
		return false, fmt.Errorf("react to post %s: not in cache", postID)
	}
	snapshot := prev.Reactions.Clone()
	s.posts.Update(feedKey, postID, func(p *entity.Post) {
		p.Reactions = entity.Toggle(p.Reactions, kind)
	})
	s.mu.Unlock()

	raw, err := s.api.Post(ctx, "/post/"+postID+"/reactions", map[string]any{
		"type":       kind,
		"targetType": "post",
	})
	if err != nil {
		s.mu.Lock()
		s.posts.Update(feedKey, postID, func(p *entity.Post) { p.Reactions = snapshot })
		s.mu.Unlock()
		s.record("post.react", postID, outcomeRolledBack, transport.UserMessage(err, "Failed to react"))
		return false, fmt.Errorf("react to post %s: %w", postID, err)
	}

	state := s.norm.ReactionState(gjson.ParseBytes(raw))
	s.mu.Lock()
	s.posts.Update(feedKey, postID, func(p *entity.Post) { p.Reactions = state })
	s.mu.Unlock()
	s.record("post.react", postID, outcomeConfirmed, "")
	return true, nil
}

// nullable maps "" to JSON null, matching what the server expects for
// absent images.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// listField returns the first existing field among names.
func listField(root gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if v := root.Get(name); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// pageMeta extracts pagination metadata, defaulting like the wire does.
func pageMeta(root gjson.Result, page int) cache.Page {
	meta := cache.Page{Current: page, Total: 1}
	if v := root.Get("currentPage"); v.Exists() {
		meta.Current = int(v.Int())
	}
	if v := root.Get("totalPages"); v.Exists() {
		meta.Total = int(v.Int())
	}
	meta.HasNext = root.Get("hasNextPage").Bool()
	return meta
}
