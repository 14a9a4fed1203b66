package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/testutil"
	"github.com/inankarim/feedsync/internal/transport"
)

func messageIDs(s *Store, groupID string) []string {
	snap := s.Messages(groupID)
	out := make([]string, len(snap.Items))
	for i, m := range snap.Items {
		out[i] = m.ID
	}
	return out
}

func TestFetchMessages_BareArray(t *testing.T) {
	s, api, _ := newChatStore(t)
	api.Script("GET", "/group/"+groupA+"/messages", testutil.Response{Body: `[
		{"_id": "` + msgA + `", "text": "hi", "createdAt": "2024-03-01T11:00:00Z",
			"senderId": {"_id": "` + userB + `", "fullName": "Bea"}}
	]`})

	ok, err := s.FetchMessages(context.Background(), groupA, 1, 50)

	require.NoError(t, err)
	assert.True(t, ok)
	snap := s.Messages(groupA)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, groupA, snap.Items[0].GroupID, "group id backfilled from the path")
	assert.Equal(t, "Bea", snap.Items[0].Sender.FullName)
}

func TestFetchMessages_ProvisionalGroupRejected(t *testing.T) {
	s, api, _ := newChatStore(t)

	ok, err := s.FetchMessages(context.Background(), "temp-1", 1, 50)

	assert.False(t, ok)
	assert.True(t, transport.IsNotReady(err))
	assert.Empty(t, api.Calls())
}

func TestSendMessage_OptimisticThenConfirmed(t *testing.T) {
	s, api, _ := newChatStore(t)
	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgA + `", "groupId": "` + groupA + `", "text": "hello",
			"createdAt": "2024-03-01T12:00:01Z", "clientRef": "ref-1",
			"senderId": {"_id": "` + viewerA + `", "fullName": "Me"}}`,
		Before: func() {
			snap := s.Messages(groupA)
			require.Len(t, snap.Items, 1)
			assert.True(t, snap.Items[0].Optimistic)
			assert.Equal(t, "ref-1", snap.Items[0].ClientRef)
			assert.Equal(t, viewerA, snap.Items[0].Sender.ID)
		},
	})

	sent, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: " hello "})

	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, msgA, sent.ID)
	assert.Equal(t, []string{msgA}, messageIDs(s, groupA))
	assert.False(t, s.Messages(groupA).Items[0].Optimistic)
}

func TestSendMessage_RefSurvivesSilentServer(t *testing.T) {
	s, api, _ := newChatStore(t)
	// Server echo without clientRef: the local ref carries over so a later
	// broadcast still correlates exactly.
	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgA + `", "groupId": "` + groupA + `", "text": "hello",
			"createdAt": "2024-03-01T12:00:01Z"}`,
	})

	_, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "ref-1", s.Messages(groupA).Items[0].ClientRef)
}

func TestSendMessage_RollbackOnFailure(t *testing.T) {
	s, api, _ := newChatStore(t)
	api.ScriptError("POST", "/group/"+groupA+"/send", 500, "nope")

	sent, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: "doomed"})

	assert.Nil(t, sent)
	require.Error(t, err)
	assert.Empty(t, s.Messages(groupA).Items)
}

func TestSendMessage_Validation(t *testing.T) {
	s, api, _ := newChatStore(t)

	_, err := s.SendMessage(context.Background(), groupA, MessageDraft{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.SendMessage(context.Background(), "temp-group", MessageDraft{Text: "hi"})
	assert.True(t, transport.IsNotReady(err))
	assert.Empty(t, api.Calls())
}

func TestSendMessage_ImageOnlyAllowed(t *testing.T) {
	s, api, _ := newChatStore(t)
	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgA + `", "groupId": "` + groupA + `", "image": "/pic.png",
			"createdAt": "2024-03-01T12:00:01Z"}`,
	})

	sent, err := s.SendMessage(context.Background(), groupA, MessageDraft{Image: "/pic.png"})

	require.NoError(t, err)
	assert.Equal(t, "/pic.png", sent.Image)
}

func TestSendMessage_NewestFirstOrdering(t *testing.T) {
	s, api, _ := newChatStore(t)
	api.Script("GET", "/group/"+groupA+"/messages", testutil.Response{Body: `[
		{"_id": "` + msgA + `", "text": "earlier", "createdAt": "2024-03-01T11:00:00Z"}
	]`})
	_, err := s.FetchMessages(context.Background(), groupA, 1, 50)
	require.NoError(t, err)

	api.Script("POST", "/group/"+groupA+"/send", testutil.Response{
		Body: `{"_id": "` + msgB + `", "groupId": "` + groupA + `", "text": "later",
			"createdAt": "2024-03-01T12:00:05Z"}`,
	})
	_, err = s.SendMessage(context.Background(), groupA, MessageDraft{Text: "later"})
	require.NoError(t, err)

	got := s.Messages(groupA).Items
	require.Len(t, got, 2)
	assert.Equal(t, "later", got[0].Text)

	var e entity.GroupMessage = got[0]
	tn, _ := e.SortKey()
	to, _ := got[1].SortKey()
	assert.Greater(t, tn, to)
}
