// Package cache keeps the change-detection cache: a mapping from a file's
// identity to the on-disk size observed after it was last compacted.
package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Identity is a stable, non-cryptographic hash of a file's absolute path.
// Collisions are possible and accepted: the worst case is one skipped file.
type Identity uint64

// IdentityOf returns the identity of an absolute path
func IdentityOf(absPath string) Identity {
	return Identity(xxhash.Sum64String(absPath))
}

// Cache is a concurrency-safe Identity -> signature map.
// Concurrent Set calls on the same identity resolve last-write-wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[Identity]uint64
}

// New creates an empty cache
func New() *Cache {
	return &Cache{entries: make(map[Identity]uint64)}
}

// newWithEntries adopts entries without copying
func newWithEntries(entries map[Identity]uint64) *Cache {
	return &Cache{entries: entries}
}

// Get returns the signature recorded for id
func (c *Cache) Get(id Identity) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.entries[id]
	return sig, ok
}

// Set records sig for id
func (c *Cache) Set(id Identity, sig uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = sig
}

// Len returns the number of entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Identity]uint64)
}

// Snapshot returns a point-in-time copy of the entries
func (c *Cache) Snapshot() map[Identity]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Identity]uint64, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
