package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, int64(0), EstimateSize(nil))
	assert.Equal(t, int64(6), EstimateSize("abc"))
	assert.Equal(t, int64(4), EstimateSize([]byte{1, 2, 3, 4}))

	// Structured values are sized from their JSON encoding, doubled.
	type payload struct {
		ID int `json:"id"`
	}
	assert.Equal(t, int64(2*len(`{"id":7}`)), EstimateSize(payload{ID: 7}))
}

func TestBudgetInvariant(t *testing.T) {
	c := New(100)

	var want int64
	sizes := map[string]int64{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		val := make([]byte, 7+i%13)
		c.Set(key, val)
		sizes[key] = int64(len(val))

		stats := c.Stats()
		assert.LessOrEqual(t, stats.Size, int64(100))

		// Size must equal the exact sum of what is still stored.
		want = 0
		for k, s := range sizes {
			if c.Has(k) {
				want += s
			}
		}
		assert.Equal(t, want, stats.Size)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)

	c.Set("A", []byte{1})
	c.Set("B", []byte{2})
	c.Set("C", []byte{3})

	assert.False(t, c.Has("A"))
	assert.True(t, c.Has("B"))
	assert.True(t, c.Has("C"))
	assert.Equal(t, 2, c.Stats().ItemCount)
}

func TestHitMissAccounting(t *testing.T) {
	c := New(100)

	// No accesses yet: rate must be 0, not NaN.
	assert.Equal(t, float64(0), c.Stats().HitRate)

	c.Set("a", "x")

	_, ok := c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("nope")
	require.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, 0.5, stats.HitRate)

	// Has must not move the counters.
	c.Has("a")
	c.Has("nope")
	assert.Equal(t, int64(1), c.Stats().HitCount)
	assert.Equal(t, int64(1), c.Stats().MissCount)
}

func TestReplaceAccountsDiff(t *testing.T) {
	c := New(100)

	c.Set("a", make([]byte, 40))
	c.Set("a", make([]byte, 10))

	stats := c.Stats()
	assert.Equal(t, int64(10), stats.Size)
	assert.Equal(t, 1, stats.ItemCount)
}

func TestOverBudgetEntryTolerated(t *testing.T) {
	c := New(10)

	c.Set("small", []byte{1, 2})
	c.Set("huge", make([]byte, 50))

	// Everything else is evicted, the over-budget entry stays.
	assert.False(t, c.Has("small"))
	assert.True(t, c.Has("huge"))
	assert.Equal(t, int64(50), c.Stats().Size)

	// A following normal insert evicts the over-budget entry again.
	c.Set("next", []byte{9})
	assert.False(t, c.Has("huge"))
	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestDeleteAndClear(t *testing.T) {
	c := New(100)
	c.Set("a", "x")
	_, _ = c.Get("a")

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, int64(0), c.Stats().Size)

	c.Set("b", "y")
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Size)
	assert.Equal(t, 0, stats.ItemCount)
	// Counters survive Clear; they are lifetime totals.
	assert.Equal(t, int64(1), stats.HitCount)
}

func TestEvictTo(t *testing.T) {
	c := New(100)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), make([]byte, 10))
	}
	require.Equal(t, int64(100), c.Stats().Size)

	freed := c.EvictTo(50)
	assert.Equal(t, int64(50), freed)
	assert.LessOrEqual(t, c.Stats().Size, int64(50))

	// Oldest entries go first.
	assert.False(t, c.Has("k0"))
	assert.True(t, c.Has("k9"))
}

// Matches the editor scenario: a hit refreshes LRU order, so the
// untouched entry is evicted on overflow.
func TestHitRefreshesEvictionOrder(t *testing.T) {
	c := New(10)

	c.Set("a", "AB")  // 4 bytes
	c.Set("b", "CDE") // 6 bytes, exactly at budget

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", "F") // 2 bytes, would overflow to 12

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.Equal(t, int64(6), c.Stats().Size)
}

type fakeTracker struct {
	tracked  int64
	released int64
}

func (f *fakeTracker) TrackUsage(size int64)   { f.tracked += size }
func (f *fakeTracker) ReleaseUsage(size int64) { f.released += size }

func TestTrackerPairing(t *testing.T) {
	c := New(10)
	tr := &fakeTracker{}
	c.SetTracker(tr)

	c.Set("a", []byte{1, 2, 3, 4})
	c.Set("b", make([]byte, 8)) // evicts a
	c.Delete("b")

	assert.Equal(t, int64(12), tr.tracked)
	assert.Equal(t, int64(12), tr.released)
}
