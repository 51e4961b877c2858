package ridbag

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPageCacheEviction(t *testing.T) {
	c := newPageCache(2)
	n1, n2, n3 := &node{Total: 1}, &node{Total: 2}, &node{Total: 3}
	c.put(1, n1)
	c.put(2, n2)
	c.get(1)
	c.put(3, n3)

	if _, ok := c.get(2); ok {
		t.Errorf("page 2 should have been evicted")
	}
	if got, ok := c.get(1); !ok || got != n1 {
		t.Errorf("get(1) = %v, %v, wanted n1", got, ok)
	}
	c.remove(3)
	if _, ok := c.get(3); ok {
		t.Errorf("page 3 should have been removed")
	}
	if c.len() != 1 {
		t.Errorf("len = %d, wanted 1", c.len())
	}
	if c.hits.Load() != 2 || c.misses.Load() != 2 {
		t.Errorf("hits = %d, misses = %d, wanted 2, 2", c.hits.Load(), c.misses.Load())
	}
}

func TestPageCacheLoadCoalesces(t *testing.T) {
	c := newPageCache(10)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func() (*node, error) {
		calls.Add(1)
		<-release
		return &node{Total: 42}, nil
	}

	var wg sync.WaitGroup
	results := make([]*node, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = must(c.load(7, fetch))
		}()
	}
	// let the goroutines pile up on the first fetch
	for c.misses.Load() < int64(len(results)) {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, wanted 1", calls.Load())
	}
	for _, n := range results {
		if n == nil || n.Total != 42 {
			t.Fatalf("got %v, wanted the fetched node", n)
		}
	}
	if n, ok := c.get(7); !ok || n.Total != 42 {
		t.Errorf("loaded page not cached")
	}
}

func TestPageCacheLoadError(t *testing.T) {
	c := newPageCache(10)
	boom := errors.New("boom")
	_, err := c.load(1, func() (*node, error) { return nil, boom })
	if err != boom {
		t.Fatalf("err = %v, wanted boom", err)
	}
	if c.len() != 0 {
		t.Fatalf("failed load was cached")
	}
}

func TestPageCacheDisabled(t *testing.T) {
	c := newPageCache(0)
	c.put(1, &node{Total: 1})
	if _, ok := c.get(1); ok {
		t.Fatalf("zero-capacity cache returned a page")
	}
	c.remove(1)
	var calls int
	for range 2 {
		n, err := c.load(1, func() (*node, error) {
			calls++
			return &node{Total: 5}, nil
		})
		if err != nil || n.Total != 5 {
			t.Fatalf("load = (%v, %v), wanted the fetched node", n, err)
		}
	}
	if calls != 2 || c.len() != 0 {
		t.Fatalf("calls = %d, len = %d, wanted 2, 0", calls, c.len())
	}
}
