package cache

import (
	"strings"
	"sync"
)

// Inflight prevents two concurrent identical fetches. The key composes
// the logical operation and its parameters, so different pages of the same
// collection may still run in parallel; their results merge independently.
//
// Thread-safety: safe for concurrent use. Unlike Cache, acquisition spans
// a network call and happens outside any store lock.
type Inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInflight creates an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{keys: make(map[string]struct{})}
}

// TryAcquire claims key if it is free. Callers that get false must fail
// fast without issuing the request.
func (f *Inflight) TryAcquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.keys[key]; held {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

// Release frees key. Safe to call for a key that was never acquired.
func (f *Inflight) Release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}

// Key joins operation and parameters into a dedup key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
