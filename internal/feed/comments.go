package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/inankarim/feedsync/internal/cache"
	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/transport"
)

// CommentDraft is the content of a new or edited comment.
type CommentDraft struct {
	Text     string
	Image    string
	ParentID string
}

// FetchComments loads one page of a post's thread into its lazily created
// cache. Unlike the feed, a comment cache allows refetching the current
// page; only a concurrent identical fetch is rejected.
func (s *Store) FetchComments(ctx context.Context, postID string, page, limit int) (bool, error) {
	if !entity.IsPersistentID(postID) {
		return false, transport.ErrNotReady
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	key := cache.Key("comments", postID, strconv.Itoa(page), strconv.Itoa(limit))
	if !s.inflight.TryAcquire(key) {
		return false, ErrDuplicateFetch
	}
	defer s.inflight.Release(key)

	s.mu.Lock()
	col := s.comments.Ensure(postID)
	col.Loading = true
	col.LastError = ""
	s.mu.Unlock()

	raw, err := s.api.Get(ctx, "/post/"+postID+"/comments", transport.Params{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		msg := transport.UserMessage(err, "Failed to load comments")
		s.mu.Lock()
		s.comments.Fail(postID, msg)
		s.mu.Unlock()
		s.log.Error("fetch comments failed", "post", postID, "page", page, "error", err)
		return false, fmt.Errorf("fetch comments for %s: %w", postID, err)
	}

	root := gjson.ParseBytes(raw)
	items := make([]entity.Comment, 0, 16)
	for _, r := range listField(root, "comments", "items").Array() {
		if c, ok := s.norm.Comment(r); ok {
			if c.PostID == "" {
				c.PostID = postID
			}
			items = append(items, c)
		}
	}

	s.mu.Lock()
	s.comments.MergePage(postID, page, items, pageMeta(root, page))
	s.mu.Unlock()
	return true, nil
}

// AddComment creates a comment on a persistent post. Not optimistic: the
// entry appears once the server confirms, and the parent post's comment
// count rises with it. A provisional post id fails fast with a not-ready
// outcome and no network call.
func (s *Store) AddComment(ctx context.Context, postID string, draft CommentDraft) (bool, error) {
	if !entity.IsPersistentID(postID) {
		s.record("comment.create", postID, outcomeNotReady, "post is still publishing")
		return false, transport.ErrNotReady
	}
	text := entity.CleanText(draft.Text)
	if text == "" && draft.Image == "" {
		return false, ErrEmptyDraft
	}

	s.mu.Lock()
	s.comments.Ensure(postID)
	s.mu.Unlock()

	raw, err := s.api.Post(ctx, "/post/"+postID+"/comments", map[string]any{
		"text":            text,
		"image":           nullable(draft.Image),
		"parentCommentId": nullable(draft.ParentID),
	})
	if err != nil {
		s.record("comment.create", postID, outcomeRolledBack, transport.UserMessage(err, "Failed to add comment"))
		return false, fmt.Errorf("add comment to %s: %w", postID, err)
	}

	created, ok := s.norm.Comment(gjson.ParseBytes(raw))
	if !ok {
		return false, fmt.Errorf("add comment to %s: malformed server response", postID)
	}
	if created.PostID == "" {
		created.PostID = postID
	}

	s.mu.Lock()
	s.comments.Upsert(postID, created, nil)
	s.posts.Update(feedKey, postID, func(p *entity.Post) { p.CommentCount++ })
	s.mu.Unlock()
	s.record("comment.create", created.ID, outcomeConfirmed, "")
	return true, nil
}

// UpdateComment edits a comment; the server response merges into the
// cached entry on success, and failure leaves the entry untouched.
func (s *Store) UpdateComment(ctx context.Context, postID, commentID string, draft CommentDraft) (bool, error) {
	raw, err := s.api.Put(ctx, "/post/comments/"+commentID, map[string]any{
		"text":  entity.CleanText(draft.Text),
		"image": nullable(draft.Image),
	})
	if err != nil {
		s.record("comment.update", commentID, outcomeRolledBack, transport.UserMessage(err, "Failed to update comment"))
		return false, fmt.Errorf("update comment %s: %w", commentID, err)
	}

	root := gjson.ParseBytes(raw)
	updated, ok := s.norm.Comment(root)
	if !ok {
		return false, fmt.Errorf("update comment %s: malformed server response", commentID)
	}
	if updated.PostID == "" {
		updated.PostID = postID
	}

	s.mu.Lock()
	s.comments.Upsert(postID, updated, func(old, incoming entity.Comment) entity.Comment {
		incoming.Seq = old.Seq
		if !root.Get("reactionCounts").Exists() {
			incoming.Reactions = old.Reactions
		}
		return incoming
	})
	s.mu.Unlock()
	s.record("comment.update", commentID, outcomeConfirmed, "")
	return true, nil
}

// DeleteComment removes the comment immediately; a failing call restores
// it at its original position. The parent post's count drops only after
// the server confirms.
func (s *Store) DeleteComment(ctx context.Context, postID, commentID string) (bool, error) {
	s.mu.Lock()
	removed, index, had := s.comments.Remove(postID, commentID)
	s.mu.Unlock()

	if _, err := s.api.Delete(ctx, "/post/comments/"+commentID, nil); err != nil {
		if had {
			s.mu.Lock()
			s.comments.Restore(postID, removed, index)
			s.mu.Unlock()
		}
		s.record("comment.delete", commentID, outcomeRolledBack, transport.UserMessage(err, "Failed to delete comment"))
		return false, fmt.Errorf("delete comment %s: %w", commentID, err)
	}

	s.mu.Lock()
	s.posts.Update(feedKey, postID, func(p *entity.Post) {
		if p.CommentCount > 0 {
			p.CommentCount--
		}
	})
	s.mu.Unlock()
	s.record("comment.delete", commentID, outcomeConfirmed, "")
	return true, nil
}

// ReactToComment mirrors ReactToPost for thread entries. A 404 means the
// comment vanished server-side; the rollback message tells the viewer to
// refresh rather than refreshing for them.
func (s *Store) ReactToComment(ctx context.Context, postID, commentID string, kind entity.ReactionKind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown reaction kind %q", kind)
	}
	if !entity.IsPersistentID(commentID) {
		s.record("comment.react", commentID, outcomeNotReady, "comment is still saving")
		return false, transport.ErrNotReady
	}

	s.mu.Lock()
	prev, cached := s.comments.Find(postID, commentID)
	if !cached {
		s.mu.Unlock()
		return false, fmt.Errorf("react to comment %s: not in cache", commentID)
	}
	snapshot := prev.Reactions.Clone()
	s.comments.Update(postID, commentID, func(c *entity.Comment) {
		c.Reactions = entity.Toggle(c.Reactions, kind)
	})
	s.mu.Unlock()

	raw, err := s.api.Post(ctx, "/post/comments/"+commentID+"/reactions", map[string]any{
		"type":       kind,
		"targetType": "comment",
	})
	if err != nil {
		s.mu.Lock()
		s.comments.Update(postID, commentID, func(c *entity.Comment) { c.Reactions = snapshot })
		s.mu.Unlock()
		msg := transport.UserMessage(err, "Failed to react to comment")
		if transport.IsNotFound(err) {
			msg = "Comment not found. Try refreshing."
		}
		s.record("comment.react", commentID, outcomeRolledBack, msg)
		return false, fmt.Errorf("react to comment %s: %w", commentID, err)
	}

	root := gjson.ParseBytes(raw)
	if root.Get("reactionCounts").Exists() || root.Get("userReaction").Exists() {
		state := s.norm.ReactionState(root)
		s.mu.Lock()
		s.comments.Update(postID, commentID, func(c *entity.Comment) { c.Reactions = state })
		s.mu.Unlock()
	}
	s.record("comment.react", commentID, outcomeConfirmed, "")
	return true, nil
}
