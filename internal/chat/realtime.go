package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/push"
)

// Select switches the active group. The previous selection is torn down
// first (leaveGroup emit, message handler removed), then the new group's
// message collection is reset, its room joined, and page 1 fetched.
// Selecting "" tears down only.
func (s *Store) Select(ctx context.Context, groupID string) error {
	s.mu.Lock()
	previous := s.selected
	s.selected = groupID
	if groupID != "" {
		// Stale pages from an earlier visit would shadow what the server
		// returns now; the collection starts over on every selection.
		s.msgs.Drop(groupID)
	}
	s.mu.Unlock()

	if previous != "" {
		s.ch.Off(push.EventNewGroupMessage)
		if err := s.ch.Emit(ctx, push.EventLeaveGroup, previous); err != nil {
			s.log.Warn("leaveGroup emit failed", "group", previous, "error", err)
		}
	}
	if groupID == "" {
		return nil
	}

	s.ch.On(push.EventNewGroupMessage, s.handleNewMessage)
	if err := s.ch.Emit(ctx, push.EventJoinGroup, groupID); err != nil {
		s.log.Warn("joinGroup emit failed", "group", groupID, "error", err)
	}
	if _, err := s.FetchMessages(ctx, groupID, 1, 50); err != nil {
		return fmt.Errorf("select group %s: %w", groupID, err)
	}
	return nil
}

// Start subscribes to group-level updates: creations, membership changes,
// renames. Message delivery is per-selection and handled by Select.
func (s *Store) Start() {
	s.ch.On(push.EventGroupCreated, s.handleGroupCreated)
	s.ch.On(push.EventUserAdded, s.handleMemberAdded)
	s.ch.On(push.EventUserRemoved, s.handleMemberRemoved)
	s.ch.On(push.EventGroupRenamed, s.handleGroupRenamed)
}

// Stop removes every subscription, including the selected group's message
// handler. The selection itself is untouched.
func (s *Store) Stop() {
	s.ch.Off(push.EventNewGroupMessage)
	s.ch.Off(push.EventGroupCreated)
	s.ch.Off(push.EventUserAdded)
	s.ch.Off(push.EventUserRemoved)
	s.ch.Off(push.EventGroupRenamed)
}

// handleNewMessage reconciles a broadcast message against local state.
// Messages for a non-selected group are dropped; the room join scopes the
// stream, so anything else is a stale frame from a previous selection.
//
// The broadcast may duplicate an entry this client created optimistically.
// A matching ClientRef identifies that entry exactly; when the ref is
// absent (older server build) an optimistic entry with the same sender and
// canonical text is taken as the local twin. Either way the confirmed
// message replaces it atomically, never appearing alongside it.
func (s *Store) handleNewMessage(data json.RawMessage) {
	m, ok := s.norm.Message(gjson.ParseBytes(data))
	if !ok {
		s.log.Warn("push message without id dropped")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" || m.GroupID != s.selected {
		return
	}

	if twin, found := s.findOptimisticTwin(m); found {
		s.msgs.ReplaceID(m.GroupID, twin.ID, m)
		return
	}
	s.msgs.Upsert(m.GroupID, m, func(old, incoming entity.GroupMessage) entity.GroupMessage {
		incoming.Seq = old.Seq
		return incoming
	})
}

// findOptimisticTwin locates the local optimistic entry a broadcast
// message confirms, preferring the correlation ref over the content
// heuristic. Caller holds the mutex.
func (s *Store) findOptimisticTwin(m entity.GroupMessage) (entity.GroupMessage, bool) {
	snap := s.msgs.Snapshot(m.GroupID)
	if m.ClientRef != "" {
		for _, it := range snap.Items {
			if it.Optimistic && it.ClientRef == m.ClientRef {
				return it, true
			}
		}
		return entity.GroupMessage{}, false
	}
	for _, it := range snap.Items {
		if it.Optimistic && it.Sender.ID == m.Sender.ID && it.Text == m.Text {
			return it, true
		}
	}
	return entity.GroupMessage{}, false
}

// handleGroupCreated merges a group the viewer was just added to.
func (s *Store) handleGroupCreated(data json.RawMessage) {
	g, ok := s.norm.Group(gjson.ParseBytes(data))
	if !ok {
		return
	}
	s.mu.Lock()
	s.putGroup(g)
	s.mu.Unlock()
	s.log.Info("added to group", "id", g.ID, "name", g.Name)
}

// handleMemberAdded applies a membership broadcast. The payload carries
// the full updated group, which wins verbatim.
func (s *Store) handleMemberAdded(data json.RawMessage) {
	root := gjson.ParseBytes(data)
	g, ok := s.norm.Group(root.Get("group"))
	if !ok {
		return
	}
	s.mu.Lock()
	s.putGroup(g)
	s.mu.Unlock()
}

// handleMemberRemoved applies a removal broadcast. When the removed user
// is the viewer the group disappears locally, taking its messages and, if
// selected, the selection with it.
func (s *Store) handleMemberRemoved(data json.RawMessage) {
	root := gjson.ParseBytes(data)
	groupID := root.Get("groupId").String()
	userID := root.Get("userId").String()
	if groupID == "" || userID == "" {
		return
	}

	s.mu.Lock()
	if userID == s.viewer().ID {
		s.dropGroup(groupID)
		s.msgs.Drop(groupID)
		wasSelected := s.selected == groupID
		if wasSelected {
			s.selected = ""
		}
		s.mu.Unlock()
		if wasSelected {
			// No leaveGroup emit: the server already evicted this client
			// from the room.
			s.ch.Off(push.EventNewGroupMessage)
		}
		s.log.Info("removed from group", "id", groupID)
		return
	}
	if g, ok := s.findGroup(groupID); ok {
		members := g.Members[:0:0]
		for _, m := range g.Members {
			if m.ID != userID {
				members = append(members, m)
			}
		}
		g.Members = members
		s.putGroup(g)
	}
	s.mu.Unlock()
}

// handleGroupRenamed applies a rename broadcast.
func (s *Store) handleGroupRenamed(data json.RawMessage) {
	root := gjson.ParseBytes(data)
	groupID := root.Get("groupId").String()
	name := entity.CleanText(root.Get("name").String())
	if groupID == "" || name == "" {
		return
	}
	s.mu.Lock()
	if g, ok := s.findGroup(groupID); ok {
		g.Name = name
		s.putGroup(g)
	}
	s.mu.Unlock()
}
