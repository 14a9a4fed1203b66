package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/push"
	"github.com/inankarim/feedsync/internal/transport"
)

var (
	// ErrEmptyName rejects a group create or rename without a name.
	ErrEmptyName = errors.New("group name is required")
	// ErrNoMembers rejects a group create without any member.
	ErrNoMembers = errors.New("group members are required")
	// ErrDuplicateFetch reports a fetch skipped because an identical one
	// is already in flight.
	ErrDuplicateFetch = errors.New("identical fetch already in flight")
)

// FetchGroups loads the viewer's group list. The list is replaced
// wholesale; groups are not paginated.
func (s *Store) FetchGroups(ctx context.Context) error {
	if !s.inflight.TryAcquire("groups") {
		return ErrDuplicateFetch
	}
	defer s.inflight.Release("groups")

	raw, err := s.api.Get(ctx, "/group", nil)
	if err != nil {
		s.log.Error("fetch groups failed", "error", err)
		return fmt.Errorf("fetch groups: %w", err)
	}

	root := gjson.ParseBytes(raw)
	list := root
	if !root.IsArray() {
		list = root.Get("groups")
	}
	groups := make([]entity.Group, 0, 8)
	for _, r := range list.Array() {
		if g, ok := s.norm.Group(r); ok {
			groups = append(groups, g)
		}
	}

	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()
	s.log.Info("groups loaded", "count", len(groups))
	return nil
}

// CreateGroup creates a group with the given name and member ids. The
// server replies with a success envelope rather than a bare entity; a
// delivery with success=false is a failure even though the HTTP call
// succeeded.
func (s *Store) CreateGroup(ctx context.Context, name string, memberIDs []string) (*entity.Group, error) {
	name = entity.CleanText(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(memberIDs) == 0 {
		return nil, ErrNoMembers
	}

	raw, err := s.api.Post(ctx, "/group/gcreate", map[string]any{
		"name":    name,
		"members": memberIDs,
	})
	if err != nil {
		s.record("group.create", name, outcomeRolledBack, transport.UserMessage(err, "Failed to create group"))
		return nil, fmt.Errorf("create group: %w", err)
	}

	root := gjson.ParseBytes(raw)
	if !root.Get("success").Bool() {
		msg := root.Get("message").String()
		if msg == "" {
			msg = "Failed to create group"
		}
		s.record("group.create", name, outcomeRolledBack, msg)
		return nil, fmt.Errorf("create group: %s", msg)
	}
	created, ok := s.norm.Group(root.Get("group"))
	if !ok {
		return nil, fmt.Errorf("create group: malformed server response")
	}

	s.mu.Lock()
	s.putGroup(created)
	s.mu.Unlock()
	s.record("group.create", created.ID, outcomeConfirmed, "")
	s.log.Info("group created", "id", created.ID, "name", created.Name)
	return &created, nil
}

// AddMember adds a user to a group. The server echoes the updated group,
// which replaces the cached one wholesale.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) (bool, error) {
	raw, err := s.api.Put(ctx, "/group/"+groupID+"/addUser", map[string]any{
		"userId": userID,
	})
	if err != nil {
		s.record("group.add_member", groupID, outcomeRolledBack, transport.UserMessage(err, "Failed to add user to group"))
		return false, fmt.Errorf("add member to group %s: %w", groupID, err)
	}

	updated, ok := s.norm.Group(gjson.ParseBytes(raw).Get("group"))
	if !ok {
		return false, fmt.Errorf("add member to group %s: malformed server response", groupID)
	}

	s.mu.Lock()
	s.putGroup(updated)
	s.mu.Unlock()
	s.record("group.add_member", groupID, outcomeConfirmed, "")
	return true, nil
}

// RemoveMember removes a user from a group. Creator-only on the server;
// a 403 maps to a message naming that rule. The member list shrinks
// locally only after the server confirms.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	if _, err := s.api.Delete(ctx, "/group/"+groupID+"/removeUser", map[string]any{
		"userId": userID,
	}); err != nil {
		msg := transport.UserMessage(err, "Failed to remove member")
		if transport.IsPermissionDenied(err) {
			msg = "Only the group creator can remove members"
		}
		s.record("group.remove_member", groupID, outcomeRolledBack, msg)
		return false, fmt.Errorf("remove member from group %s: %w", groupID, err)
	}

	s.mu.Lock()
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
	s.record("group.remove_member", groupID, outcomeConfirmed, "")
	return true, nil
}

// RenameGroup renames a group. Creator-only on the server; the local
// name changes only after the server confirms.
func (s *Store) RenameGroup(ctx context.Context, groupID, name string) (bool, error) {
	name = entity.CleanText(name)
	if name == "" {
		return false, ErrEmptyName
	}

	if _, err := s.api.Put(ctx, "/group/"+groupID+"/rename", map[string]any{
		"name": name,
	}); err != nil {
		msg := transport.UserMessage(err, "Failed to rename group")
		if transport.IsPermissionDenied(err) {
			msg = "Only the group creator can rename the group"
		}
		s.record("group.rename", groupID, outcomeRolledBack, msg)
		return false, fmt.Errorf("rename group %s: %w", groupID, err)
	}

	s.mu.Lock()
	if g, ok := s.findGroup(groupID); ok {
		g.Name = name
		s.putGroup(g)
	}
	s.mu.Unlock()
	s.record("group.rename", groupID, outcomeConfirmed, "")
	return true, nil
}

// LeaveGroup removes the viewer from a group. On confirmation the group
// and its message collection are destroyed locally, and the selection is
// cleared if it pointed there.
func (s *Store) LeaveGroup(ctx context.Context, groupID string) (bool, error) {
	if _, err := s.api.Delete(ctx, "/group/"+groupID+"/leave", nil); err != nil {
		s.record("group.leave", groupID, outcomeRolledBack, transport.UserMessage(err, "Failed to leave the group"))
		return false, fmt.Errorf("leave group %s: %w", groupID, err)
	}

	s.mu.Lock()
	wasSelected := s.selected == groupID
	s.dropGroup(groupID)
	s.msgs.Drop(groupID)
	if wasSelected {
		s.selected = ""
	}
	s.mu.Unlock()

	if wasSelected {
		s.ch.Off(push.EventNewGroupMessage)
		if err := s.ch.Emit(ctx, push.EventLeaveGroup, groupID); err != nil {
			s.log.Warn("leaveGroup emit failed", "group", groupID, "error", err)
		}
	}
	s.record("group.leave", groupID, outcomeConfirmed, "")
	s.log.Info("left group", "id", groupID)
	return true, nil
}
