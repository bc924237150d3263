// Package samplecache keeps the most recent captured samples so they can be
// re-fetched by id for a second pass.
package samplecache

import (
	"sort"
	"sync"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// DefaultCapacity is the number of samples retained when New is given a
// non-positive capacity.
const DefaultCapacity = 10

// Cache is a bounded id-ordered sample store. Inserting into a full cache
// evicts the lowest id first. Reads do not affect eviction order.
// Safe for one writer and concurrent readers.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	samples  map[gesture.SampleID]gesture.Sample
	order    []gesture.SampleID // ascending
}

// New creates a Cache holding at most capacity samples.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		samples:  make(map[gesture.SampleID]gesture.Sample, capacity),
	}
}

// Put stores s under s.ID, evicting the oldest entries while at capacity.
// Re-putting an existing id replaces the sample without eviction.
func (c *Cache) Put(s gesture.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.samples[s.ID]; ok {
		c.samples[s.ID] = s
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.samples, oldest)
	}
	c.samples[s.ID] = s

	// ids normally arrive in order; keep the slice sorted otherwise
	i := sort.Search(len(c.order), func(i int) bool { return c.order[i] > s.ID })
	c.order = append(c.order, 0)
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = s.ID
}

// Get returns the sample for id. The bool is false if it was never stored
// or has been evicted.
func (c *Cache) Get(id gesture.SampleID) (gesture.Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.samples[id]
	return s, ok
}

// Last returns the sample with the highest id.
func (c *Cache) Last() (gesture.Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return gesture.Sample{}, false
	}
	return c.samples[c.order[len(c.order)-1]], true
}

// IDs returns the cached ids in ascending order.
func (c *Cache) IDs() []gesture.SampleID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]gesture.SampleID(nil), c.order...)
}

// Len returns the number of cached samples.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Clear drops every sample.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = make(map[gesture.SampleID]gesture.Sample, c.capacity)
	c.order = nil
}
