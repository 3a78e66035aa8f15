// ABOUTME: Bounded, thread-safe cache of bot-sent reply snapshots keyed by the inbound message ID.
// ABOUTME: Used to reconcile edit/delete events against previously sent replies.

package msgcache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSize is the entry cap used when no cap is configured.
const DefaultMaxSize = 512

// Snapshot is the last-known state of a tracked bot reply. The cache key
// is the inbound message that triggered the reply; ReplyID is the reply's
// own platform message id. Only bot replies are tracked, never user
// messages. Snapshots are owned exclusively by the cache; callers receive
// copies.
type Snapshot struct {
	ReplyID   uint64
	ChannelID uint64
	AuthorID  uint64
	Content   string
	SentAt    time.Time
}

// entry pairs a snapshot with its position in the eviction order.
type entry struct {
	snap    Snapshot
	element *list.Element
}

// Cache is a thread-safe, size-limited map from message ID to snapshot.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction
// of the oldest entry once the cap is reached. Every bot reply is an
// insert, so the cache is write-heavy relative to its size.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
	order   *list.List // message IDs in insertion order, oldest at front
	maxSize int
}

// New creates a cache holding at most maxSize snapshots. A non-positive
// maxSize falls back to DefaultMaxSize.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		entries: make(map[uint64]*entry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Put stores a snapshot under id. An existing entry is replaced and
// refreshed in the eviction order. At capacity the oldest entry is evicted.
func (c *Cache) Put(id uint64, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[id]; exists {
		e.snap = snap
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(id)
	c.entries[id] = &entry{snap: snap, element: elem}
}

// Get returns a copy of the snapshot for id, if present.
func (c *Cache) Get(id uint64) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snap, true
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (c *Cache) Remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.entries, id)
}

// Mutate applies fn to the snapshot for id under the write lock and
// returns true. Returns false if the id is absent — a cache miss means
// there is nothing to reconcile, not an error.
func (c *Cache) Mutate(id uint64, fn func(*Snapshot)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false
	}
	fn(&e.snap)
	return true
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(uint64)
	c.order.Remove(front)
	delete(c.entries, id)
}
