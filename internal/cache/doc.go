// Package cache implements the generic paginated merge engine behind the
// feed, per-post comment threads, and per-group message lists.
//
// A Cache holds one Collection per key. Page 1 of a fetch replaces the
// collection; later pages append only ids not already present, preserving
// arrival order, and the merged list is re-sorted newest-first. Merge is
// idempotent and order-independent apart from the final resort, which is
// what makes out-of-order page arrival tolerable.
//
// Thread-safety: a Cache is NOT synchronized. Each cache key is owned by
// exactly one store, and that store's mutex serializes every access. The
// presentation layer only ever sees Snapshot copies.
package cache
