package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inankarim/feedsync/internal/push"
	"github.com/inankarim/feedsync/internal/testutil"
)

func selectGroup(t *testing.T, s *Store, api *testutil.ScriptedTransport, groupID, body string) {
	t.Helper()
	api.Script("GET", "/group/"+groupID+"/messages", testutil.Response{Body: body})
	require.NoError(t, s.Select(context.Background(), groupID))
}

func TestSelect_JoinsAndFetches(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)

	selectGroup(t, s, api, groupA, `[
		{"_id": "`+msgA+`", "text": "hi", "createdAt": "2024-03-01T11:00:00Z"}
	]`)

	got, selected := s.Selected()
	require.True(t, selected)
	assert.Equal(t, groupA, got.ID)
	assert.True(t, ch.Subscribed(push.EventNewGroupMessage))
	assert.Len(t, s.Messages(groupA).Items, 1)

	emitted := ch.EmittedEvents()
	require.Len(t, emitted, 1)
	assert.Equal(t, push.EventJoinGroup, emitted[0].Event)
	assert.Equal(t, groupA, emitted[0].Payload)
}

func TestSelect_SwitchLeavesPreviousRoom(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	selectGroup(t, s, api, groupB, `[]`)

	events := ch.EmittedEvents()
	require.Len(t, events, 3)
	assert.Equal(t, push.EventLeaveGroup, events[1].Event)
	assert.Equal(t, groupA, events[1].Payload)
	assert.Equal(t, push.EventJoinGroup, events[2].Event)
	assert.Equal(t, groupB, events[2].Payload)
}

func TestSelect_ReselectResetsCollection(t *testing.T) {
	s, api, _ := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[
		{"_id": "`+msgA+`", "text": "stale", "createdAt": "2024-03-01T10:00:00Z"},
		{"_id": "`+msgB+`", "text": "stale too", "createdAt": "2024-03-01T10:01:00Z"}
	]`)

	// Coming back later: the server no longer has msgB.
	selectGroup(t, s, api, groupA, `[
		{"_id": "`+msgA+`", "text": "hi", "createdAt": "2024-03-01T10:00:00Z"}
	]`)

	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
}

func TestSelect_EmptyTearsDownOnly(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	require.NoError(t, s.Select(context.Background(), ""))

	_, selected := s.Selected()
	assert.False(t, selected)
	assert.False(t, ch.Subscribed(push.EventNewGroupMessage))
	events := ch.EmittedEvents()
	assert.Equal(t, push.EventLeaveGroup, events[len(events)-1].Event)
}

func TestHandleNewMessage_ClientRefReplacesOptimistic(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgA + `", "groupId": "` + groupA + `", "text": "hello",
			"createdAt": "2024-03-01T12:00:01Z", "clientRef": "ref-1"}`,
		Before: func() {
			// The broadcast lands while the send is still in flight. The
			// ref identifies the optimistic twin even though the entity id
			// is still provisional.
			ch.Deliver(push.EventNewGroupMessage, json.RawMessage(`{
				"_id": "`+msgA+`", "groupId": "`+groupA+`", "text": "hello",
				"createdAt": "2024-03-01T12:00:01Z", "clientRef": "ref-1",
				"senderId": {"_id": "`+viewerA+`"}}`))
			assert.Equal(t, []string{msgA}, messageIDs(s, groupA), "no duplicate mid-flight")
		},
	})
	_, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
	assert.False(t, s.Messages(groupA).Items[0].Optimistic)
}

func TestHandleNewMessage_SenderTextFallback(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgA + `", "groupId": "` + groupA + `", "text": "hello",
			"createdAt": "2024-03-01T12:00:01Z"}`,
		Before: func() {
			// Older server build: the broadcast carries no clientRef, so
			// the sender and canonical text identify the twin.
			ch.Deliver(push.EventNewGroupMessage, json.RawMessage(`{
				"_id": "`+msgA+`", "groupId": "`+groupA+`", "text": "hello",
				"createdAt": "2024-03-01T12:00:01Z",
				"senderId": {"_id": "`+viewerA+`"}}`))
			assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
		},
	})
	_, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
}

func TestHandleNewMessage_OtherSenderAppends(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	ch.Deliver(push.EventNewGroupMessage, json.RawMessage(`{
		"_id": "`+msgA+`", "groupId": "`+groupA+`", "text": "yo",
		"createdAt": "2024-03-01T12:00:02Z", "senderId": {"_id": "`+userB+`"}}`))

	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
}

func TestHandleNewMessage_NonSelectedGroupIgnored(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	ch.Deliver(push.EventNewGroupMessage, json.RawMessage(`{
		"_id": "`+msgA+`", "groupId": "`+groupB+`", "text": "elsewhere",
		"createdAt": "2024-03-01T12:00:02Z"}`))

	assert.Empty(t, s.Messages(groupA).Items)
	assert.Empty(t, s.Messages(groupB).Items)
}

func TestHandleNewMessage_DuplicateDeliveryIdempotent(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	selectGroup(t, s, api, groupA, `[]`)

	frame := json.RawMessage(`{
		"_id": "` + msgA + `", "groupId": "` + groupA + `", "text": "once",
		"createdAt": "2024-03-01T12:00:02Z", "senderId": {"_id": "` + userB + `"}}`)
	ch.Deliver(push.EventNewGroupMessage, frame)
	ch.Deliver(push.EventNewGroupMessage, frame)

	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
}

func TestGroupCreatedBroadcast(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()

	ch.Deliver(push.EventGroupCreated, json.RawMessage(groupBody("e3b2c3d4e5f6a1b2c3d4e5f6", "new crew", viewerA)))

	groups := s.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "new crew", groups[2].Name)
}

func TestMemberAddedBroadcast(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()

	ch.Deliver(push.EventUserAdded, json.RawMessage(`{
		"group": `+groupBody(groupB, "beta", viewerA, userB)+`,
		"user": {"_id": "`+userB+`"}, "message": "Bea joined"}`))

	assert.True(t, s.Groups()[1].HasMember(userB))
}

func TestMemberRemovedBroadcast_OtherUser(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()

	ch.Deliver(push.EventUserRemoved, json.RawMessage(`{
		"groupId": "`+groupA+`", "userId": "`+userB+`"}`))

	require.Len(t, s.Groups(), 2)
	assert.False(t, s.Groups()[0].HasMember(userB))
}

func TestMemberRemovedBroadcast_Viewer(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()
	selectGroup(t, s, api, groupA, `[]`)

	ch.Deliver(push.EventUserRemoved, json.RawMessage(`{
		"groupId": "`+groupA+`", "userId": "`+viewerA+`"}`))

	require.Len(t, s.Groups(), 1)
	assert.Equal(t, groupB, s.Groups()[0].ID)
	_, selected := s.Selected()
	assert.False(t, selected)
	assert.False(t, ch.Subscribed(push.EventNewGroupMessage))
}

func TestGroupRenamedBroadcast(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()

	ch.Deliver(push.EventGroupRenamed, json.RawMessage(`{
		"groupId": "`+groupA+`", "name": "renamed"}`))

	assert.Equal(t, "renamed", s.Groups()[0].Name)
}

func TestStop_RemovesSubscriptions(t *testing.T) {
	s, api, ch := newChatStore(t)
	seedGroups(t, s, api)
	s.Start()
	selectGroup(t, s, api, groupA, `[]`)

	s.Stop()

	for _, ev := range []push.Event{
		push.EventNewGroupMessage, push.EventGroupCreated,
		push.EventUserAdded, push.EventUserRemoved, push.EventGroupRenamed,
	} {
		assert.False(t, ch.Subscribed(ev), string(ev))
	}
}
