package entity

import "sync/atomic"

// Clock stamps entities with a monotonic arrival sequence.
//
// Creation timestamps come from the server and can collide; the arrival
// seq is the tiebreak that makes newest-first ordering a total order.
// Replays of the same fetch produce the same relative order because the
// merge step keeps the existing entity's seq on upsert.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Ordered is anything carrying a (creation time, arrival seq) sort key.
type Ordered interface {
	SortKey() (unixNano int64, seq int64)
}

// MoreRecent reports whether a sorts before b under the newest-first
// policy: creation time descending, arrival seq descending on ties.
func MoreRecent(a, b Ordered) bool {
	at, as := a.SortKey()
	bt, bs := b.SortKey()
	if at != bt {
		return at > bt
	}
	return as > bs
}
