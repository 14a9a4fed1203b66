// Package entity defines the canonical in-memory shapes for the
// synchronization core: posts, comments, group messages, groups, and the
// reaction tallies attached to them.
//
// Everything the core caches passes through this package exactly once, at
// the cache boundary:
//
// Normalization:
// Wire payloads are duck-typed (optional fields, ids as strings or nested
// objects, missing counts). Normalizer extracts them tolerantly and
// produces fully-defaulted entities, so no downstream code ever checks
// for a missing field.
//
// Identity:
// An entity id is either provisional (locally minted, "temp-" prefixed,
// never sent to the server) or persistent (24 hex chars assigned by the
// server). The transition happens exactly once, provisional to persistent,
// via the cache's id swap.
//
// Ordering:
// Entities sort newest-first by creation time. Ties are broken by a
// monotonic arrival sequence stamped by Clock, giving a deterministic
// total order even when the server hands back identical timestamps.
package entity
