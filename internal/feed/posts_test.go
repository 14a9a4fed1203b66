package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/testutil"
	"github.com/inankarim/feedsync/internal/transport"
)

const (
	postA = "a1b2c3d4e5f6a1b2c3d4e5f6"
	postB = "b1b2c3d4e5f6a1b2c3d4e5f6"
	postC = "c1b2c3d4e5f6a1b2c3d4e5f6"
)

func newTestStore(t *testing.T) (*Store, *testutil.ScriptedTransport) {
	t.Helper()
	api := testutil.NewTransport()
	s := NewStore(api,
		WithNow(testutil.Now),
		WithMinter(entity.NewFixedMinter("temp-1", "temp-2", "temp-3")),
	)
	return s, api
}

func feedIDs(s *Store) []string {
	snap := s.Posts()
	out := make([]string, len(snap.Items))
	for i, p := range snap.Items {
		out[i] = p.ID
	}
	return out
}

func TestFetchPosts_FirstPage(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [
			{"_id": "` + postA + `", "text": "newer", "createdAt": "2024-03-01T11:00:00Z"},
			{"_id": "` + postB + `", "text": "older", "createdAt": "2024-03-01T10:00:00Z"}
		],
		"currentPage": 1, "totalPages": 2, "hasNextPage": true
	}`})

	ok, err := s.FetchPosts(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.True(t, ok)
	snap := s.Posts()
	assert.Equal(t, []string{postA, postB}, feedIDs(s))
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, 2, snap.Total)
	assert.True(t, snap.HasNext)
	assert.False(t, snap.Loading)
}

func TestFetchPosts_CurrentPageShortCircuits(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "x"}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})

	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	// Second fetch of the same page: no network call, reported success.
	ok, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, api.CallCount("GET", "/post/getpost"))
}

func TestFetchPosts_FailureLeavesItems(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "x"}],
		"currentPage": 1, "totalPages": 2, "hasNextPage": true
	}`})
	api.ScriptError("GET", "/post/getpost", 500, "feed exploded")

	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	ok, err := s.FetchPosts(context.Background(), 2, 10)

	assert.False(t, ok)
	require.Error(t, err)
	snap := s.Posts()
	assert.Equal(t, []string{postA}, feedIDs(s), "no partial corruption")
	assert.Equal(t, "feed exploded", snap.LastError)
	assert.False(t, snap.Loading)
}

func TestFetchPosts_MalformedPayload(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{"posts": "not an array"}`})

	ok, err := s.FetchPosts(context.Background(), 1, 10)

	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCreatePost_OptimisticThenConfirmed(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("POST", "/post", testutil.Response{
		Body: `{"_id": "` + postA + `", "text": "Hello", "createdAt": "2024-03-01T12:00:01Z",
			"senderId": {"_id": "` + postB + `", "fullName": "Ada"}}`,
		Before: func() {
			// While the create is in flight the cache holds exactly one
			// provisional entity with the typed text.
			snap := s.Posts()
			require.Len(t, snap.Items, 1)
			assert.True(t, entity.IsProvisionalID(snap.Items[0].ID))
			assert.Equal(t, "Hello", snap.Items[0].Text)
			assert.Equal(t, "You", snap.Items[0].Author.FullName)
		},
	})

	created, err := s.CreatePost(context.Background(), Draft{Text: " Hello "})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, postA, created.ID)
	// Exactly one entity remains and it carries the persistent id.
	assert.Equal(t, []string{postA}, feedIDs(s))
}

func TestCreatePost_EmptyDraftRejected(t *testing.T) {
	s, _ := newTestStore(t)

	created, err := s.CreatePost(context.Background(), Draft{Text: "   "})

	assert.Nil(t, created)
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestCreatePost_RollbackOnFailure(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "x"}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)
	before := feedIDs(s)

	api.ScriptError("POST", "/post", 500, "storage down")
	created, err := s.CreatePost(context.Background(), Draft{Text: "doomed"})

	assert.Nil(t, created)
	require.Error(t, err)
	assert.Equal(t, before, feedIDs(s), "failing create leaves items exactly as before")
}

func TestUpdatePost_MergesServerResponse(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "text": "old", "createdAt": "2024-03-01T11:00:00Z",
			"reactionCounts": {"total": 2, "like": 2}, "commentCount": 4}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	// Server echoes the edited text but omits counts; cached ones survive.
	api.Script("PUT", "/post/"+postA, testutil.Response{
		Body: `{"_id": "` + postA + `", "text": "new", "createdAt": "2024-03-01T11:00:00Z"}`,
	})
	ok, err := s.UpdatePost(context.Background(), postA, Draft{Text: "new"})

	require.NoError(t, err)
	assert.True(t, ok)
	got := s.Posts().Items[0]
	assert.Equal(t, "new", got.Text)
	assert.Equal(t, 2, got.Reactions.Total)
	assert.Equal(t, 4, got.CommentCount)
}

func TestUpdatePost_FailureLeavesEntry(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "text": "old", "createdAt": "2024-03-01T11:00:00Z"}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	api.ScriptError("PUT", "/post/"+postA, 500, "nope")
	ok, err := s.UpdatePost(context.Background(), postA, Draft{Text: "new"})

	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, "old", s.Posts().Items[0].Text)
}

func TestDeletePost_OptimisticWithRestore(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [
			{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "a"},
			{"_id": "` + postB + `", "createdAt": "2024-03-01T10:00:00Z", "text": "b"},
			{"_id": "` + postC + `", "createdAt": "2024-03-01T09:00:00Z", "text": "c"}
		],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	api.Script("DELETE", "/post/"+postB, testutil.Response{
		Body: `{"success": true}`,
		Before: func() {
			assert.Equal(t, []string{postA, postC}, feedIDs(s), "removed before the call resolves")
		},
	})
	ok, err := s.DeletePost(context.Background(), postB)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{postA, postC}, feedIDs(s))

	// A failing delete restores the removed item.
	api.ScriptError("DELETE", "/post/"+postA, 500, "nope")
	ok, err = s.DeletePost(context.Background(), postA)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, []string{postA, postC}, feedIDs(s))
}

func TestReactToPost_GuardRejectsProvisional(t *testing.T) {
	s, api := newTestStore(t)

	ok, err := s.ReactToPost(context.Background(), "temp-whatever", entity.ReactionLike)

	assert.False(t, ok)
	assert.True(t, transport.IsNotReady(err))
	assert.Empty(t, api.Calls(), "guard performs no network call")
}

func TestReactToPost_ServerStateWins(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "x"}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)

	// like, then love. Server echoes the reconciled tally each time.
	api.Script("POST", "/post/"+postA+"/reactions", testutil.Response{
		Body: `{"userReaction": "like", "reactionCounts": {"total": 1, "like": 1}}`,
	})
	api.Script("POST", "/post/"+postA+"/reactions", testutil.Response{
		Body: `{"userReaction": "love", "reactionCounts": {"total": 1, "love": 1}}`,
	})

	ok, err := s.ReactToPost(context.Background(), postA, entity.ReactionLike)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ReactToPost(context.Background(), postA, entity.ReactionLove)
	require.NoError(t, err)
	assert.True(t, ok)

	got := s.Posts().Items[0].Reactions
	assert.Equal(t, 0, got.PerKind[entity.ReactionLike])
	assert.Equal(t, 1, got.PerKind[entity.ReactionLove])
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, entity.ReactionLove, got.ViewerChoice)
}

func TestReactToPost_FailureRestoresSnapshot(t *testing.T) {
	s, api := newTestStore(t)
	api.Script("GET", "/post/getpost", testutil.Response{Body: `{
		"posts": [{"_id": "` + postA + `", "createdAt": "2024-03-01T11:00:00Z", "text": "x",
			"reactionCounts": {"total": 3, "funny": 3}}],
		"currentPage": 1, "totalPages": 1, "hasNextPage": false
	}`})
	_, err := s.FetchPosts(context.Background(), 1, 10)
	require.NoError(t, err)
	before := s.Posts().Items[0].Reactions

	api.Script("POST", "/post/"+postA+"/reactions", testutil.Response{
		Err: &transport.APIError{Status: 500, Message: "nope"},
		Before: func() {
			// Optimistic toggle visible while in flight.
			mid := s.Posts().Items[0].Reactions
			assert.Equal(t, 4, mid.Total)
			assert.Equal(t, entity.ReactionLike, mid.ViewerChoice)
		},
	})
	ok, err := s.ReactToPost(context.Background(), postA, entity.ReactionLike)

	assert.False(t, ok)
	require.Error(t, err)
	after := s.Posts().Items[0].Reactions
	assert.Equal(t, before.Total, after.Total)
	assert.Equal(t, before.PerKind, after.PerKind)
	assert.Equal(t, before.ViewerChoice, after.ViewerChoice)
}
