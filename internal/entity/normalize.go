package entity

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

// Normalizer converts duck-typed wire payloads into canonical entities.
// It is the single place where missing fields are defaulted and malformed
// values rejected; downstream code assumes fully-populated shapes.
type Normalizer struct {
	clock *Clock
	now   func() time.Time
}

// NewNormalizer creates a normalizer. now supplies the fallback creation
// timestamp for payloads that omit one; pass time.Now in production and a
// fixed function in tests.
func NewNormalizer(clock *Clock, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{clock: clock, now: now}
}

// CleanText trims whitespace and NFC-normalizes user text. Applied to all
// content fields so equality checks (push reconciliation fallback) compare
// canonical forms.
func CleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Post normalizes one post object. ok is false when the payload has no id.
func (n *Normalizer) Post(r gjson.Result) (Post, bool) {
	id := r.Get("_id").String()
	if id == "" {
		return Post{}, false
	}
	p := Post{
		ID:        id,
		Author:    n.User(firstOf(r, "senderId", "author")),
		Text:      CleanText(r.Get("text").String()),
		Image:     r.Get("image").String(),
		CreatedAt: n.timeOf(r.Get("createdAt")),
		Seq:       n.clock.Next(),
		Reactions: n.ReactionState(r),
	}
	if cc := r.Get("commentCount"); cc.Exists() && cc.Int() > 0 {
		p.CommentCount = int(cc.Int())
	}
	return p, true
}

// Comment normalizes one comment object.
func (n *Normalizer) Comment(r gjson.Result) (Comment, bool) {
	id := r.Get("_id").String()
	if id == "" {
		return Comment{}, false
	}
	return Comment{
		ID:        id,
		PostID:    idOf(r.Get("postId")),
		ParentID:  idOf(r.Get("parentCommentId")),
		Author:    n.User(firstOf(r, "senderId", "author")),
		Text:      CleanText(r.Get("text").String()),
		Image:     r.Get("image").String(),
		CreatedAt: n.timeOf(r.Get("createdAt")),
		Seq:       n.clock.Next(),
		Reactions: n.ReactionState(r),
	}, true
}

// Message normalizes one group message object.
func (n *Normalizer) Message(r gjson.Result) (GroupMessage, bool) {
	id := r.Get("_id").String()
	if id == "" {
		return GroupMessage{}, false
	}
	return GroupMessage{
		ID:        id,
		GroupID:   idOf(r.Get("groupId")),
		ClientRef: r.Get("clientRef").String(),
		Sender:    n.User(r.Get("senderId")),
		Text:      CleanText(r.Get("text").String()),
		Image:     r.Get("image").String(),
		CreatedAt: n.timeOf(r.Get("createdAt")),
		Seq:       n.clock.Next(),
	}, true
}

// Group normalizes one group object.
func (n *Normalizer) Group(r gjson.Result) (Group, bool) {
	id := r.Get("_id").String()
	if id == "" {
		return Group{}, false
	}
	g := Group{
		ID:        id,
		Name:      CleanText(r.Get("name").String()),
		CreatedBy: idOf(r.Get("createdBy")),
	}
	for _, m := range r.Get("members").Array() {
		g.Members = append(g.Members, n.User(m))
	}
	return g, true
}

// User normalizes an author reference, which the wire sends either as a
// bare id string or as an object with display fields.
func (n *Normalizer) User(r gjson.Result) UserRef {
	if r.Type == gjson.String {
		return UserRef{ID: r.String()}
	}
	return UserRef{
		ID:         r.Get("_id").String(),
		FullName:   firstOf(r, "fullName", "name").String(),
		ProfilePic: r.Get("profilePic").String(),
	}
}

// ReactionState extracts reactionCounts/userReaction from an entity or
// reaction-endpoint payload. Inconsistent server tallies are coerced back
// to the invariant: Total is re-derived when it disagrees with the per-kind
// sum, and a viewer choice whose count is zero is cleared.
func (n *Normalizer) ReactionState(r gjson.Result) ReactionState {
	s := NewReactionState()
	counts := r.Get("reactionCounts")
	sum := 0
	for _, k := range ReactionKinds {
		v := int(counts.Get(string(k)).Int())
		if v < 0 {
			v = 0
		}
		s.PerKind[k] = v
		sum += v
	}
	s.Total = int(counts.Get("total").Int())
	if s.Total != sum {
		s.Total = sum
	}
	if choice := ReactionKind(r.Get("userReaction").String()); choice.Valid() && s.PerKind[choice] >= 1 {
		s.ViewerChoice = choice
	}
	return s
}

func (n *Normalizer) timeOf(r gjson.Result) time.Time {
	if r.Exists() {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, r.String()); err == nil {
				return t.UTC()
			}
		}
	}
	return n.now().UTC()
}

// idOf accepts an id sent either as a string or as a populated object.
func idOf(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Get("_id").String()
}

// firstOf returns the first existing field among names.
func firstOf(r gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if v := r.Get(name); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
