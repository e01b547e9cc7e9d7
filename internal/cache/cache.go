package cache

import (
	"sync"

	"github.com/dtiendzai123/newheadlockengine/pkg/core"
)

// EntityCache holds the live entity set streamed in by the feed.
// The feed goroutine writes while the tick loop reads, so readers get
// deep copies: the cached entities never escape the mutex. Target
// records correlate by entity ID, not by entity pointer.
type EntityCache struct {
	m        sync.Mutex
	entities map[string]*core.Entity
}

func NewEntityCache() *EntityCache {
	return &EntityCache{
		entities: make(map[string]*core.Entity),
	}
}

// Upsert stores a fresh entity record, replacing any previous one with
// the same ID. The record is cloned on the way in so the caller cannot
// mutate cached state afterwards.
func (c *EntityCache) Upsert(e *core.Entity) {
	if e == nil || e.ID == "" {
		return
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.entities[e.ID] = e.Clone()
}

// Get returns a copy of the cached entity for the ID.
func (c *EntityCache) Get(id string) (*core.Entity, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	e, ok := c.entities[id]
	return e.Clone(), ok
}

// Remove drops an entity from the cache.
func (c *EntityCache) Remove(id string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.entities, id)
}

// Snapshot returns deep copies of the current entities in an arbitrary
// order. The copies are safe to read while the feed keeps writing.
func (c *EntityCache) Snapshot() []*core.Entity {
	c.m.Lock()
	defer c.m.Unlock()
	out := make([]*core.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e.Clone())
	}
	return out
}

// Len returns the number of cached entities.
func (c *EntityCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.entities)
}

// Reset clears the cache at session boundaries.
func (c *EntityCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.entities = make(map[string]*core.Entity)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
