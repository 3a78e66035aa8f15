// ABOUTME: Concurrency-safe set membership check for banned actors and groups.
// ABOUTME: Loads durable entries from the store and writes changes through.

package blocklist

import (
	"context"
	"fmt"
	"sync"
)

// EntryStore is the persistence boundary for blocklist entries.
// *store.SQLiteStore satisfies it.
type EntryStore interface {
	AddBlocked(ctx context.Context, subjectID uint64) error
	RemoveBlocked(ctx context.Context, subjectID uint64) error
	ListBlocked(ctx context.Context) ([]uint64, error)
}

// Guard holds the in-memory blocklist. Membership checks are read-locked
// only; they sit on the hot path of every command dispatch.
type Guard struct {
	mu      sync.RWMutex
	blocked map[uint64]struct{}
	store   EntryStore
}

// New creates a Guard backed by the given store. Pass a nil store for a
// purely in-memory guard (tests).
func New(store EntryStore) *Guard {
	return &Guard{
		blocked: make(map[uint64]struct{}),
		store:   store,
	}
}

// Load replaces the in-memory set with the store's contents.
func (g *Guard) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	ids, err := g.store.ListBlocked(ctx)
	if err != nil {
		return fmt.Errorf("loading blocklist: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked = make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		g.blocked[id] = struct{}{}
	}
	return nil
}

// Contains reports whether subjectID is blocked. The zero id is the
// sentinel for "no group context" and is never blocked.
func (g *Guard) Contains(subjectID uint64) bool {
	if subjectID == 0 {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blocked[subjectID]
	return ok
}

// Add blocks a subject, persisting the entry when a store is attached.
func (g *Guard) Add(ctx context.Context, subjectID uint64) error {
	if g.store != nil {
		if err := g.store.AddBlocked(ctx, subjectID); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[subjectID] = struct{}{}
	return nil
}

// Remove unblocks a subject.
func (g *Guard) Remove(ctx context.Context, subjectID uint64) error {
	if g.store != nil {
		if err := g.store.RemoveBlocked(ctx, subjectID); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, subjectID)
	return nil
}

// Len returns the number of blocked subjects.
func (g *Guard) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.blocked)
}
