package entity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_NextIncrements(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const perGoroutine = 200

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				seqs <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for s := range seqs {
		assert.False(t, seen[s], "seq %d generated twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestMoreRecent_NewestFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	older := Post{ID: "a", CreatedAt: base, Seq: 1}
	newer := Post{ID: "b", CreatedAt: base.Add(time.Minute), Seq: 2}

	assert.True(t, MoreRecent(newer, older))
	assert.False(t, MoreRecent(older, newer))
}

func TestMoreRecent_TieBrokenByArrivalSeq(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := Post{ID: "a", CreatedAt: base, Seq: 1}
	second := Post{ID: "b", CreatedAt: base, Seq: 2}

	// Identical timestamps: later arrival wins, deterministically.
	assert.True(t, MoreRecent(second, first))
	assert.False(t, MoreRecent(first, second))
}
