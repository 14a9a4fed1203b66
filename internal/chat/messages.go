package chat

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

// MessageDraft is the content of a new group message.
type MessageDraft struct {
	Text  string
	Image string
}

// ErrEmptyMessage rejects a message with neither text nor image.
var ErrEmptyMessage = errors.New("write a message or add a picture")

// FetchMessages loads one page of a group's messages into its collection.
func (s *Store) FetchMessages(ctx context.Context, groupID string, page, limit int) (bool, error) {
	if !entity.IsPersistentID(groupID) {
		return false, transport.ErrNotReady
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	key := cache.Key("messages", groupID, strconv.Itoa(page), strconv.Itoa(limit))
	if !s.inflight.TryAcquire(key) {
		return false, ErrDuplicateFetch
	}
	defer s.inflight.Release(key)

	s.mu.Lock()
	col := s.msgs.Ensure(groupID)
	col.Loading = true
	col.LastError = ""
	s.mu.Unlock()

	raw, err := s.api.Get(ctx, "/group/"+groupID+"/messages", transport.Params{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		msg := transport.UserMessage(err, "Failed to fetch group messages")
		s.mu.Lock()
		s.msgs.Fail(groupID, msg)
		s.mu.Unlock()
		s.log.Error("fetch messages failed", "group", groupID, "page", page, "error", err)
		return false, fmt.Errorf("fetch messages for group %s: %w", groupID, err)
	}

	// The wire sends either a bare array or a wrapped page.
	root := gjson.ParseBytes(raw)
	list := root
	if !root.IsArray() {
		list = root.Get("messages")
	}
	items := make([]entity.GroupMessage, 0, 32)
	for _, r := range list.Array() {
		if m, ok := s.norm.Message(r); ok {
			if m.GroupID == "" {
				m.GroupID = groupID
			}
			items = append(items, m)
		}
	}

	meta := cache.Page{Current: page, Total: 1}
	if v := root.Get("currentPage"); v.Exists() {
		meta.Current = int(v.Int())
	}
	if v := root.Get("totalPages"); v.Exists() {
		meta.Total = int(v.Int())
	}
	meta.HasNext = root.Get("hasNextPage").Bool()

	s.mu.Lock()
	s.msgs.MergePage(groupID, page, items, meta)
	s.mu.Unlock()
	s.log.Info("messages loaded", "group", groupID, "page", meta.Current, "items", len(items))
	return true, nil
}

// SendMessage applies an optimistic message carrying a freshly minted
// correlation ref, issues the send, and on success atomically swaps the
// provisional entry for the confirmed one. The ref survives the swap so a
// later push broadcast of the same message reconciles by exact identity
// instead of content guessing. On failure the optimistic entry is removed.
func (s *Store) SendMessage(ctx context.Context, groupID string, draft MessageDraft) (*entity.GroupMessage, error) {
	if !entity.IsPersistentID(groupID) {
		s.record("message.send", groupID, outcomeNotReady, "group is still being created")
		return nil, transport.ErrNotReady
	}
	text := entity.CleanText(draft.Text)
	if text == "" && draft.Image == "" {
		return nil, ErrEmptyMessage
	}

	optimistic := entity.GroupMessage{
		ID:         s.mint.Mint(),
		GroupID:    groupID,
		ClientRef:  s.mint.MintRef(),
		Sender:     s.viewer(),
		Text:       text,
		Image:      draft.Image,
		CreatedAt:  s.now().UTC(),
		Seq:        s.clk.Next(),
		Optimistic: true,
	}

	s.mu.Lock()
	s.msgs.Upsert(groupID, optimistic, nil)
	s.mu.Unlock()

	raw, err := s.api.Post(ctx, "/group/"+groupID+"/send", map[string]any{
		"text":      text,
		"image":     nullable(draft.Image),
		"clientRef": optimistic.ClientRef,
	})
	if err != nil {
		s.mu.Lock()
		s.msgs.Remove(groupID, optimistic.ID)
		s.mu.Unlock()
		s.record("message.send", optimistic.ID, outcomeRolledBack, transport.UserMessage(err, "Failed to send message"))
		return nil, fmt.Errorf("send message to group %s: %w", groupID, err)
	}

	sent, ok := s.norm.Message(gjson.ParseBytes(raw))
	if !ok {
		s.mu.Lock()
		s.msgs.Remove(groupID, optimistic.ID)
		s.mu.Unlock()
		s.record("message.send", optimistic.ID, outcomeRolledBack, "server returned no message")
		return nil, fmt.Errorf("send message to group %s: malformed server response", groupID)
	}
	if sent.GroupID == "" {
		sent.GroupID = groupID
	}
	if sent.ClientRef == "" {
		sent.ClientRef = optimistic.ClientRef
	}

	s.mu.Lock()
	s.msgs.ReplaceID(groupID, optimistic.ID, sent)
	s.mu.Unlock()
	s.record("message.send", sent.ID, outcomeConfirmed, "")
	s.log.Info("message sent", "group", groupID, "id", sent.ID)
	return &sent, nil
}

// nullable maps "" to JSON null, matching what the server expects for
// absent images.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
