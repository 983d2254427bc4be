package flash

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moffa90/go-flashdev/protocol"
)

// GeometryCache memoizes resolved device geometry, keyed by handle.
//
// With a size of 1 it is a single slot: adding a second device evicts the
// first. Geometry is assumed immutable for the life of the cache, so entries
// are never revalidated.
type GeometryCache struct {
	entries *lru.Cache[protocol.DeviceHandle, Geometry]
}

// NewGeometryCache returns an empty cache holding at most size devices.
// Sizes below 1 are treated as 1.
func NewGeometryCache(size int) *GeometryCache {
	if size < 1 {
		size = 1
	}

	entries, err := lru.New[protocol.DeviceHandle, Geometry](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}

	return &GeometryCache{entries: entries}
}

// Get returns the cached geometry of h.
func (c *GeometryCache) Get(h protocol.DeviceHandle) (Geometry, bool) {
	return c.entries.Get(h)
}

// Add stores g for h, evicting the least recently used device when full.
// It reports whether an eviction happened.
func (c *GeometryCache) Add(h protocol.DeviceHandle, g Geometry) bool {
	return c.entries.Add(h, g)
}

// Remove drops the entry for h.
func (c *GeometryCache) Remove(h protocol.DeviceHandle) {
	c.entries.Remove(h)
}

// Purge drops every entry.
func (c *GeometryCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached devices.
func (c *GeometryCache) Len() int {
	return c.entries.Len()
}

// Handles returns the cached handles, oldest first.
func (c *GeometryCache) Handles() []protocol.DeviceHandle {
	return c.entries.Keys()
}
