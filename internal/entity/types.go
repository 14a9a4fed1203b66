package entity

import "time"

// UserRef is an opaque reference to an author: id plus display fields.
// While an entity is provisional the ref may be the local placeholder
// returned by PlaceholderViewer.
type UserRef struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// PlaceholderViewer is the author ref attached to optimistic entities
// before the server echoes the real one.
func PlaceholderViewer() UserRef {
	return UserRef{ID: "temp-user", FullName: "You", ProfilePic: "/avatar.png"}
}

// ReactionKind is one of the four reaction types a viewer can hold.
type ReactionKind string

const (
	ReactionLove   ReactionKind = "love"
	ReactionLike   ReactionKind = "like"
	ReactionFunny  ReactionKind = "funny"
	ReactionHorror ReactionKind = "horror"
)

// ReactionKinds lists all valid kinds in a stable order.
var ReactionKinds = []ReactionKind{ReactionLove, ReactionLike, ReactionFunny, ReactionHorror}

// Valid reports whether k is one of the known reaction kinds.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionLove, ReactionLike, ReactionFunny, ReactionHorror:
		return true
	}
	return false
}

// ReactionState is the per-entity reaction tally plus the viewer's single
// active choice ("" when the viewer has not reacted).
//
// INVARIANT: sum(PerKind) == Total, and a non-empty ViewerChoice implies
// PerKind[ViewerChoice] >= 1. Toggle preserves this; server payloads go
// through Normalizer.ReactionState, which re-derives Total when the
// reported one is inconsistent.
type ReactionState struct {
	Total        int                  `json:"total"`
	PerKind      map[ReactionKind]int `json:"perKind"`
	ViewerChoice ReactionKind         `json:"viewerChoice,omitempty"`
}

// NewReactionState returns an empty state with every kind present at zero.
func NewReactionState() ReactionState {
	s := ReactionState{PerKind: make(map[ReactionKind]int, len(ReactionKinds))}
	for _, k := range ReactionKinds {
		s.PerKind[k] = 0
	}
	return s
}

// Clone returns a deep copy. Rollback snapshots depend on this: the
// restored state must not share the map with the in-cache value.
func (s ReactionState) Clone() ReactionState {
	c := s
	c.PerKind = make(map[ReactionKind]int, len(s.PerKind))
	for k, v := range s.PerKind {
		c.PerKind[k] = v
	}
	return c
}

// Consistent reports whether the invariant holds.
func (s ReactionState) Consistent() bool {
	if s.Total < 0 {
		return false
	}
	sum := 0
	for _, v := range s.PerKind {
		if v < 0 {
			return false
		}
		sum += v
	}
	if sum != s.Total {
		return false
	}
	if s.ViewerChoice != "" && s.PerKind[s.ViewerChoice] < 1 {
		return false
	}
	return true
}

// Post is a feed entry. CommentCount is maintained independently of the
// comment cache because comments may never be loaded.
type Post struct {
	ID           string
	Author       UserRef
	Text         string
	Image        string
	CreatedAt    time.Time
	Seq          int64
	Reactions    ReactionState
	CommentCount int
}

// EntityID implements cache.Entity.
func (p Post) EntityID() string { return p.ID }

// SortKey implements cache.Entity.
func (p Post) SortKey() (int64, int64) { return p.CreatedAt.UnixNano(), p.Seq }

// Comment is one entry in a post's thread.
type Comment struct {
	ID        string
	PostID    string
	ParentID  string
	Author    UserRef
	Text      string
	Image     string
	CreatedAt time.Time
	Seq       int64
	Reactions ReactionState
}

// EntityID implements cache.Entity.
func (c Comment) EntityID() string { return c.ID }

// SortKey implements cache.Entity.
func (c Comment) SortKey() (int64, int64) { return c.CreatedAt.UnixNano(), c.Seq }

// GroupMessage is one chat message. ClientRef is the correlation id minted
// at optimistic-send time and echoed through the server broadcast, so the
// realtime reconciler can match a push event to the local optimistic entry
// exactly instead of guessing by content.
type GroupMessage struct {
	ID         string
	GroupID    string
	ClientRef  string
	Sender     UserRef
	Text       string
	Image      string
	CreatedAt  time.Time
	Seq        int64
	Optimistic bool
}

// EntityID implements cache.Entity.
func (m GroupMessage) EntityID() string { return m.ID }

// SortKey implements cache.Entity.
func (m GroupMessage) SortKey() (int64, int64) { return m.CreatedAt.UnixNano(), m.Seq }

// Group is a chat group. Mutated only by the chat store's management calls
// and realtime handlers; destroyed locally when the viewer leaves.
type Group struct {
	ID        string
	Name      string
	Members   []UserRef
	CreatedBy string
}

// HasMember reports whether userID is currently in the member set.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy with its own members slice.
func (g Group) Clone() Group {
	c := g
	c.Members = append([]UserRef(nil), g.Members...)
	return c
}
