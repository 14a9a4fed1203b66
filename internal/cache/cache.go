package cache

import "sort"

// Entity is anything a Collection can hold: identified by id and ordered
// by (creation time, arrival seq).
type Entity interface {
	EntityID() string
	SortKey() (unixNano int64, seq int64)
}

// Page is the server's reported pagination metadata.
type Page struct {
	Current int
	Total   int
	HasNext bool
}

// Collection is one keyed, paged list. Items are unique by id and kept in
// newest-first order. Page/HasNext reflect whichever fetch response
// applied last.
type Collection[T Entity] struct {
	Items     []T
	Page      int
	Total     int
	HasNext   bool
	Loading   bool
	LastError string
}

// Cache is a set of Collections keyed by string (the feed uses a single
// fixed key; comment threads are keyed by parent post id, message lists by
// group id).
type Cache[T Entity] struct {
	cols map[string]*Collection[T]
}

// New creates an empty cache.
func New[T Entity]() *Cache[T] {
	return &Cache[T]{cols: make(map[string]*Collection[T])}
}

// Ensure lazily creates the collection for key and returns it.
// A fresh collection starts at page 0 with HasNext true, so the first
// fetch is never short-circuited.
func (c *Cache[T]) Ensure(key string) *Collection[T] {
	col, ok := c.cols[key]
	if !ok {
		col = &Collection[T]{HasNext: true}
		c.cols[key] = col
	}
	return col
}

// Get returns the collection for key if it exists.
func (c *Cache[T]) Get(key string) (*Collection[T], bool) {
	col, ok := c.cols[key]
	return col, ok
}

// Drop removes the collection for key entirely. Used when a view's cache
// is evicted on navigation (group message lists).
func (c *Cache[T]) Drop(key string) {
	delete(c.cols, key)
}

// MergePage applies one fetch response. Page 1 replaces the items; any
// later page appends only items whose id is not already present, in
// arrival order. The merged list is re-sorted and the pagination metadata
// always overwritten, then Loading and LastError are cleared.
func (c *Cache[T]) MergePage(key string, page int, items []T, meta Page) {
	col := c.Ensure(key)

	if page <= 1 {
		col.Items = append(col.Items[:0:0], items...)
	} else {
		seen := make(map[string]bool, len(col.Items))
		for _, it := range col.Items {
			seen[it.EntityID()] = true
		}
		for _, it := range items {
			if !seen[it.EntityID()] {
				col.Items = append(col.Items, it)
				seen[it.EntityID()] = true
			}
		}
	}

	resort(col)
	col.Page = meta.Current
	col.Total = meta.Total
	col.HasNext = meta.HasNext
	col.Loading = false
	col.LastError = ""
}

// Fail records a fetch failure: loading cleared, the user-facing message
// stored, items untouched.
func (c *Cache[T]) Fail(key, msg string) {
	col := c.Ensure(key)
	col.Loading = false
	col.LastError = msg
}

// Upsert inserts item if its id is absent, or replaces the existing entry
// otherwise. Either way the collection is re-sorted. On replace the stored
// entry keeps its original arrival seq so re-confirmation of the same
// entity does not shuffle tie ordering.
func (c *Cache[T]) Upsert(key string, item T, keepSeq func(old, new T) T) {
	col := c.Ensure(key)
	for i, it := range col.Items {
		if it.EntityID() == item.EntityID() {
			if keepSeq != nil {
				item = keepSeq(it, item)
			}
			col.Items[i] = item
			resort(col)
			return
		}
	}
	col.Items = append([]T{item}, col.Items...)
	resort(col)
}

// ReplaceID swaps the entry stored under oldID for item, in place. This is
// the only path where an entry's identity changes (the provisional to
// persistent transition) and it is atomic: callers never observe both ids.
// If oldID is absent (a push event already delivered the confirmed entity)
// the item is merged by its own id instead, so the entity is never
// duplicated.
func (c *Cache[T]) ReplaceID(key, oldID string, item T) {
	col := c.Ensure(key)
	for i, it := range col.Items {
		if it.EntityID() == oldID {
			// The confirmed entity may also already be present if a push
			// event raced the confirmation; drop the provisional slot then.
			if oldID != item.EntityID() && c.contains(col, item.EntityID()) {
				col.Items = append(col.Items[:i], col.Items[i+1:]...)
				resort(col)
				return
			}
			col.Items[i] = item
			resort(col)
			return
		}
	}
	c.Upsert(key, item, nil)
}

// Update applies fn to the entry with the given id, then re-sorts.
// Returns false if the id is not cached.
func (c *Cache[T]) Update(key, id string, fn func(*T)) bool {
	col, ok := c.cols[key]
	if !ok {
		return false
	}
	for i := range col.Items {
		if col.Items[i].EntityID() == id {
			fn(&col.Items[i])
			resort(col)
			return true
		}
	}
	return false
}

// Remove deletes the entry with the given id, returning the removed item
// and its position so a failing delete can restore it exactly.
func (c *Cache[T]) Remove(key, id string) (item T, index int, ok bool) {
	col, exists := c.cols[key]
	if !exists {
		return item, 0, false
	}
	for i, it := range col.Items {
		if it.EntityID() == id {
			col.Items = append(col.Items[:i], col.Items[i+1:]...)
			return it, i, true
		}
	}
	return item, 0, false
}

// Restore reinserts a removed item at its original position. The position
// is an approximation if the collection changed in between; the follow-up
// resort puts it where the sort policy says regardless.
func (c *Cache[T]) Restore(key string, item T, index int) {
	col := c.Ensure(key)
	if c.contains(col, item.EntityID()) {
		return
	}
	if index < 0 || index > len(col.Items) {
		index = len(col.Items)
	}
	col.Items = append(col.Items[:index], append([]T{item}, col.Items[index:]...)...)
	resort(col)
}

// Find returns a copy of the entry with the given id.
func (c *Cache[T]) Find(key, id string) (item T, ok bool) {
	col, exists := c.cols[key]
	if !exists {
		return item, false
	}
	for _, it := range col.Items {
		if it.EntityID() == id {
			return it, true
		}
	}
	return item, false
}

// Snapshot returns a copy of the collection for read-only consumers. The
// items slice is copied; callers must treat the elements as values.
func (c *Cache[T]) Snapshot(key string) Collection[T] {
	col, ok := c.cols[key]
	if !ok {
		return Collection[T]{HasNext: true}
	}
	out := *col
	out.Items = append([]T(nil), col.Items...)
	return out
}

func (c *Cache[T]) contains(col *Collection[T], id string) bool {
	for _, it := range col.Items {
		if it.EntityID() == id {
			return true
		}
	}
	return false
}

// resort re-materializes newest-first order: creation time descending,
// arrival seq descending on ties.
func resort[T Entity](col *Collection[T]) {
	sort.SliceStable(col.Items, func(i, j int) bool {
		it, is := col.Items[i].SortKey()
		jt, js := col.Items[j].SortKey()
		if it != jt {
			return it > jt
		}
		return is > js
	})
}
