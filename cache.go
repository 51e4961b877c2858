package ridbag

import (
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// pageCache keeps decoded committed pages. A page id always maps to the same
// content during its lifetime, so entries never go stale; they are only
// evicted for capacity or dropped when the page is freed. A cache of zero
// capacity keeps nothing.
type pageCache struct {
	pages *lru.Cache[PageID, *node]
	loads singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func newPageCache(capacity int) *pageCache {
	c := &pageCache{}
	if capacity > 0 {
		c.pages = must(lru.New[PageID, *node](capacity))
	}
	return c
}

func (c *pageCache) get(id PageID) (*node, bool) {
	if c.pages != nil {
		if n, ok := c.pages.Get(id); ok {
			c.hits.Add(1)
			return n, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// load returns the cached page, or calls fetch once for all concurrent
// callers asking for the same page and caches the result.
func (c *pageCache) load(id PageID, fetch func() (*node, error)) (*node, error) {
	if n, ok := c.get(id); ok {
		return n, nil
	}
	v, err, _ := c.loads.Do(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		if n, ok := c.peek(id); ok {
			return n, nil
		}
		n, err := fetch()
		if err != nil {
			return nil, err
		}
		c.put(id, n)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*node), nil
}

// peek is get without touching the recency order or the counters.
func (c *pageCache) peek(id PageID) (*node, bool) {
	if c.pages == nil {
		return nil, false
	}
	return c.pages.Peek(id)
}

func (c *pageCache) put(id PageID, n *node) {
	if c.pages != nil {
		c.pages.Add(id, n)
	}
}

func (c *pageCache) remove(id PageID) {
	if c.pages != nil {
		c.pages.Remove(id)
	}
}

func (c *pageCache) len() int {
	if c.pages == nil {
		return 0
	}
	return c.pages.Len()
}
