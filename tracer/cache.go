package tracer

import (
	"container/list"
	"errors"

	"github.com/hyungman/SpRay/scene"
)

// ErrCacheFull signals that the bounded domain cache cannot admit another
// block because every resident block is pinned. Fatal for the frame. The
// infinite variant has no budget and never returns it.
var ErrCacheFull = errors.New("tracer: domain cache full")

type cacheBlock struct {
	id     int
	geom   *scene.Geometry
	pinned bool
	elem   *list.Element
}

// DomainCache pages domain geometry in on demand. A negative capacity
// selects the infinite variant that never evicts; otherwise least recently
// used unpinned blocks are evicted to stay within capacity. Blocks are
// pinned while intersection is in progress. The cache is driven from the
// master thread only.
type DomainCache struct {
	capacity int
	loader   func(domainID int) (*scene.Geometry, error)

	blocks map[int]*cacheBlock
	lru    *list.List // front = most recently used

	hits   int64
	misses int64
	evicts int64
}

func NewDomainCache(capacity int, loader func(domainID int) (*scene.Geometry, error)) *DomainCache {
	return &DomainCache{
		capacity: capacity,
		loader:   loader,
		blocks:   map[int]*cacheBlock{},
		lru:      list.New(),
	}
}

// Infinite reports whether the cache never evicts.
func (c *DomainCache) Infinite() bool { return c.capacity < 0 }

// Acquire returns the pinned geometry for a domain, loading it on a miss.
func (c *DomainCache) Acquire(domainID int) (*scene.Geometry, error) {
	if b, ok := c.blocks[domainID]; ok {
		c.hits++
		b.pinned = true
		c.lru.MoveToFront(b.elem)
		return b.geom, nil
	}
	if !c.Infinite() && len(c.blocks) >= c.capacity {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}
	c.misses++

	geom, err := c.loader(domainID)
	if err != nil {
		return nil, err
	}

	b := &cacheBlock{id: domainID, geom: geom, pinned: true}
	b.elem = c.lru.PushFront(b)
	c.blocks[domainID] = b
	return geom, nil
}

// Release unpins a block after processing finishes.
func (c *DomainCache) Release(domainID int) {
	if b, ok := c.blocks[domainID]; ok {
		b.pinned = false
	}
}

// Resident reports whether a domain is currently loaded.
func (c *DomainCache) Resident(domainID int) bool {
	_, ok := c.blocks[domainID]
	return ok
}

// Stats returns hit/miss/eviction counters for the frame log.
func (c *DomainCache) Stats() (hits, misses, evicts int64) {
	return c.hits, c.misses, c.evicts
}

func (c *DomainCache) evictOne() error {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		b := e.Value.(*cacheBlock)
		if !b.pinned {
			c.lru.Remove(e)
			delete(c.blocks, b.id)
			c.evicts++
			return nil
		}
	}
	return ErrCacheFull
}
