package ridbag

import (
	"context"
)

// TreeStats describes a tree verified by Check.
type TreeStats struct {
	Height  int
	Pages   int
	Entries int
	Total   uint64
}

// Check reads every page of the tree rooted at root, bypassing the cache,
// and verifies checksums, key order, separators, heights and totals.
// Structural problems are reported as errors matching ErrCorrupted.
func (s *Store) Check(ctx context.Context, root PageID) (TreeStats, error) {
	ptx, err := s.pages.Begin(false)
	if err != nil {
		return TreeStats{}, err
	}
	defer ptx.Rollback()

	c := &checker{ctx: ctx, s: s, ptx: ptx, root: root}
	n, err := c.fetch(root)
	if err != nil {
		return TreeStats{}, err
	}
	c.stats.Height = n.Height + 1
	if err := c.check(root, n, nil, nil); err != nil {
		return c.stats, err
	}
	return c.stats, nil
}

// Check verifies the tree of a tree-backed bag. It does nothing for an
// embedded bag.
func (b *Bag) Check(ctx context.Context) (TreeStats, error) {
	if b.rep.kind != kindTree {
		return TreeStats{Entries: len(b.rep.embedded.entries), Total: uint64(b.rep.embedded.size())}, nil
	}
	return b.store.Check(ctx, b.rep.root)
}

type checker struct {
	ctx   context.Context
	s     *Store
	ptx   PageTx
	root  PageID
	stats TreeStats
}

func (c *checker) fetch(id PageID) (*node, error) {
	n, err := fetchNode(c.ptx, id)
	if err != nil {
		return nil, c.s.pageFailure(c.root, id, err)
	}
	return n, nil
}

func (c *checker) corrupted(id PageID, format string, args ...any) error {
	return pageErrf(c.root, id, ErrCorrupted, format, args...)
}

// check verifies n and its subtree; every key must lie in [lo, hi).
func (c *checker) check(id PageID, n *node, lo, hi *RID) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	c.stats.Pages++
	if k := len(n.Keys); k > 0 {
		if lo != nil && n.Keys[0].Less(*lo) {
			return c.corrupted(id, "key %v is below separator %v", n.Keys[0], *lo)
		}
		if hi != nil && !n.Keys[k-1].Less(*hi) {
			return c.corrupted(id, "key %v is not below separator %v", n.Keys[k-1], *hi)
		}
	}
	if n.isLeaf() {
		if id != c.root && len(n.Keys) == 0 {
			return c.corrupted(id, "empty non-root leaf")
		}
		c.stats.Entries += len(n.Keys)
		c.stats.Total += n.Total
		return nil
	}

	for i, cid := range n.Children {
		child, err := c.fetch(cid)
		if err != nil {
			return err
		}
		if child.Height != n.Height-1 {
			return c.corrupted(cid, "height %d under a branch of height %d", child.Height, n.Height)
		}
		if child.Total != n.Totals[i] {
			return c.corrupted(cid, "total %d, parent says %d", child.Total, n.Totals[i])
		}
		clo, chi := lo, hi
		if i > 0 {
			clo = &n.Keys[i-1]
		}
		if i < len(n.Keys) {
			chi = &n.Keys[i]
		}
		if err := c.check(cid, child, clo, chi); err != nil {
			return err
		}
	}
	return nil
}
