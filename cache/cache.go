// Package cache provides a byte-budgeted in-memory store with
// least-recently-used eviction, used to hold decoded frames, thumbnails
// and fetched media chunks for the editor session.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// UsageTracker receives the byte deltas of everything the cache admits
// and drops. It is typically backed by a pressure.Monitor so that cache
// contents count against the session memory ceiling.
type UsageTracker interface {
	TrackUsage(size int64)
	ReleaseUsage(size int64)
}

// Entry is a single cached value together with its accounting metadata.
type Entry struct {
	Key   string
	Value any
	Size  int64

	// Priority is an eviction weighting hint. It is stored but not yet
	// consulted when picking victims.
	Priority int

	InsertedAt     time.Time
	LastAccessedAt time.Time
}

// Stats is a snapshot of the cache accounting counters.
//
// HitCount and MissCount are cumulative over the cache lifetime; Clear
// does not reset them.
type Stats struct {
	Size      int64
	MaxSize   int64
	ItemCount int
	HitCount  int64
	MissCount int64
	HitRate   float64
}

// ResourceCache is a bounded key/value store with LRU eviction.
//
// Inserting past the byte budget evicts least-recently-used entries
// first. A single entry larger than the whole budget is still admitted
// after everything else has been evicted; the cache degrades rather
// than rejects.
type ResourceCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	list     *list.List // front = most recently used
	items    map[string]*list.Element

	hits   int64
	misses int64

	// tracker is set once during session wiring, before the cache sees
	// traffic. Tracker calls happen outside c.mu so a pressure callback
	// may call back into the cache without deadlocking.
	tracker UsageTracker
}

// New creates a ResourceCache with the given byte budget.
func New(maxBytes int64) *ResourceCache {
	return &ResourceCache{
		maxBytes: maxBytes,
		list:     list.New(),
		items:    make(map[string]*list.Element),
	}
}

// SetTracker attaches a usage tracker. It must be called before the
// cache is shared, not concurrently with Set/Delete traffic.
func (c *ResourceCache) SetTracker(t UsageTracker) {
	c.tracker = t
}

// Set stores value under key with the default priority.
func (c *ResourceCache) Set(key string, value any) {
	c.SetWithPriority(key, value, 0)
}

// SetWithPriority stores value under key. Replacing an existing key
// accounts only the size difference. If the insert would exceed the
// budget, least-recently-used entries are evicted first.
func (c *ResourceCache) SetWithPriority(key string, value any, priority int) {
	size := EstimateSize(value)
	now := time.Now()

	c.mu.Lock()
	var released int64

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*Entry)
		released += ent.Size
		c.curBytes -= ent.Size
		ent.Value = value
		ent.Size = size
		ent.Priority = priority
		ent.LastAccessedAt = now
		c.list.MoveToFront(elem)
		released += c.evictLocked(c.maxBytes - size)
		c.curBytes += size
	} else {
		released += c.evictLocked(c.maxBytes - size)
		ent := &Entry{
			Key:            key,
			Value:          value,
			Size:           size,
			Priority:       priority,
			InsertedAt:     now,
			LastAccessedAt: now,
		}
		c.items[key] = c.list.PushFront(ent)
		c.curBytes += size
	}
	c.mu.Unlock()

	if c.tracker != nil {
		if released > 0 {
			c.tracker.ReleaseUsage(released)
		}
		c.tracker.TrackUsage(size)
	}
}

// Get returns the value stored under key. A hit refreshes the entry's
// LRU position. Absence is reported through the second return value,
// never as an error.
func (c *ResourceCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.list.MoveToFront(elem)
	ent := elem.Value.(*Entry)
	ent.LastAccessedAt = time.Now()
	return ent.Value, true
}

// Has reports whether key is present. It does not touch the LRU order
// or the hit/miss counters.
func (c *ResourceCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Delete removes key and returns whether anything was removed.
func (c *ResourceCache) Delete(key string) bool {
	c.mu.Lock()
	elem, ok := c.items[key]
	var released int64
	if ok {
		released = c.removeLocked(elem)
	}
	c.mu.Unlock()

	if ok && c.tracker != nil && released > 0 {
		c.tracker.ReleaseUsage(released)
	}
	return ok
}

// Clear drops every entry. The hit/miss counters are left untouched.
func (c *ResourceCache) Clear() {
	c.mu.Lock()
	released := c.curBytes
	c.list.Init()
	c.items = make(map[string]*list.Element)
	c.curBytes = 0
	c.mu.Unlock()

	if c.tracker != nil && released > 0 {
		c.tracker.ReleaseUsage(released)
	}
}

// EvictTo sheds least-recently-used entries until the cache holds at
// most targetBytes. It returns the number of bytes freed.
func (c *ResourceCache) EvictTo(targetBytes int64) int64 {
	c.mu.Lock()
	freed := c.evictLocked(targetBytes)
	remaining := c.curBytes
	c.mu.Unlock()

	if freed > 0 {
		slog.Debug("Cache shed entries", "freed", freed, "target", targetBytes, "remaining", remaining)
		if c.tracker != nil {
			c.tracker.ReleaseUsage(freed)
		}
	}
	return freed
}

// Stats returns a snapshot of the accounting counters. HitRate is 0
// when no access has happened yet.
func (c *ResourceCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      c.curBytes,
		MaxSize:   c.maxBytes,
		ItemCount: len(c.items),
		HitCount:  c.hits,
		MissCount: c.misses,
		HitRate:   rate,
	}
}

// evictLocked removes entries from the back of the list until curBytes
// fits within budget, returning the bytes freed. Caller must hold c.mu.
func (c *ResourceCache) evictLocked(budget int64) int64 {
	if budget < 0 {
		budget = 0
	}
	var freed int64
	for c.curBytes > budget && c.list.Len() > 0 {
		elem := c.list.Back()
		ent := elem.Value.(*Entry)
		slog.Debug("Evicting cache entry", "key", ent.Key, "size", ent.Size)
		freed += c.removeLocked(elem)
	}
	return freed
}

// removeLocked unlinks one entry and returns its size. Caller must hold
// c.mu and report the freed bytes to the tracker after unlocking.
func (c *ResourceCache) removeLocked(elem *list.Element) int64 {
	ent := elem.Value.(*Entry)
	c.list.Remove(elem)
	delete(c.items, ent.Key)
	c.curBytes -= ent.Size
	return ent.Size
}
