package ridbag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// fetchNode reads and decodes a page, bypassing the cache.
func fetchNode(ptx PageTx, id PageID) (*node, error) {
	data, err := ptx.Get(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrPageNotFound
	}
	n, err := decodePage(data)
	if err != nil {
		// data belongs to the page transaction
		var de *DataError
		if errors.As(err, &de) {
			de.Data = slices.Clone(de.Data)
		}
		return nil, err
	}
	return n, nil
}

// pageFailure turns an error reading page id of tree root into a *PageError.
// A missing root means another commit has replaced the tree; a missing
// non-root page is corruption.
func (s *Store) pageFailure(root, id PageID, err error) error {
	switch {
	case errors.Is(err, ErrPageNotFound) && id == root:
		s.stats.conflicts.Add(1)
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "ridbag: tree root is gone", pageAttr("root", root))
		return pageErrf(root, id, ErrConflict, "tree root is missing")
	case errors.Is(err, ErrPageNotFound):
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "ridbag: dangling page reference", pageAttr("root", root), pageAttr("page", id))
		return pageErrf(root, id, fmt.Errorf("%w: %w", ErrCorrupted, err), "dangling page reference")
	case errors.Is(err, ErrCorrupted):
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "ridbag: corrupted page", pageAttr("root", root), pageAttr("page", id), slog.String("err", err.Error()))
		return pageErrf(root, id, err, "")
	default:
		return pageErrf(root, id, err, "cannot read page")
	}
}

// loadNode returns a committed page through the cache. With a nil ptx, a
// cache miss is served by a short read-only transaction. Panics with
// *PageError.
func (s *Store) loadNode(ptx PageTx, root, id PageID) *node {
	n, err := s.cache.load(id, func() (*node, error) {
		if ptx != nil {
			return fetchNode(ptx, id)
		}
		rtx, err := s.pages.Begin(false)
		if err != nil {
			return nil, err
		}
		defer rtx.Rollback()
		return fetchNode(rtx, id)
	})
	if err != nil {
		panic(s.pageFailure(root, id, err))
	}
	return n
}

// treeWriter modifies trees within a single page write transaction, which
// it opens on first use. Pages it allocates are kept decoded in fresh and
// mutated in place until flush; any other page is copied before it is
// modified, and the original is freed.
type treeWriter struct {
	s       *Store
	ptx     PageTx
	fresh   map[PageID]*node
	retired []PageID
	root    PageID
}

func (s *Store) newTreeWriter() *treeWriter {
	return &treeWriter{
		s:     s,
		fresh: make(map[PageID]*node),
	}
}

func (w *treeWriter) tx() PageTx {
	if w.ptx == nil {
		ptx, err := w.s.pages.Begin(true)
		if err != nil {
			panic(pageErrf(w.root, 0, err, "cannot begin page transaction"))
		}
		w.ptx = ptx
	}
	return w.ptx
}

func (w *treeWriter) capacity() int {
	return w.s.cfg.PageCapacity
}

func (w *treeWriter) node(id PageID) *node {
	if n := w.fresh[id]; n != nil {
		return n
	}
	return w.s.loadNode(w.tx(), w.root, id)
}

// checkRoot verifies that root still exists in this transaction. The cache
// is bypassed because it may hold pages that have been freed since.
func (w *treeWriter) checkRoot(root PageID) {
	if w.fresh[root] != nil {
		return
	}
	data, err := w.tx().Get(root)
	if err == nil && data == nil {
		err = ErrPageNotFound
	}
	if err != nil {
		panic(w.s.pageFailure(root, root, err))
	}
}

func (w *treeWriter) allocate(n *node) PageID {
	id, err := w.tx().Allocate()
	if err != nil {
		panic(pageErrf(w.root, 0, err, "cannot allocate page"))
	}
	w.fresh[id] = n
	return id
}

func (w *treeWriter) retire(id PageID) {
	if err := w.tx().Free(id); err != nil {
		panic(pageErrf(w.root, id, err, "cannot free page"))
	}
	if _, ok := w.fresh[id]; ok {
		delete(w.fresh, id)
		return
	}
	w.retired = append(w.retired, id)
}

func (w *treeWriter) mutable(id PageID, n *node) (PageID, *node) {
	if w.fresh[id] != nil {
		return id, n
	}
	c := n.clone()
	nid := w.allocate(c)
	w.retire(id)
	return nid, c
}

// applyResult describes a subtree after a change. id is zero when the
// subtree became empty; right is non-zero when it was split in two.
type applyResult struct {
	id         PageID
	total      uint64
	right      PageID
	rightTotal uint64
	sep        RID
}

func addTotal(t uint64, d int) uint64 {
	return uint64(int64(t) + int64(d))
}

// apply changes the multiplicity of rid by delta, clamping at zero, and
// returns the change actually made.
func (w *treeWriter) apply(id PageID, rid RID, delta int) (applyResult, int) {
	n := w.node(id)
	if n.isLeaf() {
		return w.applyLeaf(id, n, rid, delta)
	}

	ci := n.childIndex(rid)
	res, d := w.apply(n.Children[ci], rid, delta)
	if d == 0 {
		return applyResult{id: id, total: n.Total}, 0
	}
	id, n = w.mutable(id, n)
	n.Total = addTotal(n.Total, d)
	switch {
	case res.id == 0:
		n.removeChild(ci)
	case res.right != 0:
		n.Children[ci], n.Totals[ci] = res.id, res.total
		n.Keys = slices.Insert(n.Keys, ci, res.sep)
		n.Children = slices.Insert(n.Children, ci+1, res.right)
		n.Totals = slices.Insert(n.Totals, ci+1, res.rightTotal)
	default:
		n.Children[ci], n.Totals[ci] = res.id, res.total
		w.maybeMerge(n, ci)
	}

	if len(n.Children) == 0 {
		w.retire(id)
		return applyResult{}, d
	}
	if len(n.Children) > w.capacity() {
		return w.splitBranch(id, n), d
	}
	return applyResult{id: id, total: n.Total}, d
}

func (w *treeWriter) applyLeaf(id PageID, n *node, rid RID, delta int) (applyResult, int) {
	i, found := n.search(rid)
	var cur int64
	if found {
		cur = int64(n.Counts[i])
	}
	nc := min(max(cur+int64(delta), 0), math.MaxUint32)
	if nc == cur {
		return applyResult{id: id, total: n.Total}, 0
	}

	id, n = w.mutable(id, n)
	switch {
	case !found:
		n.Keys = slices.Insert(n.Keys, i, rid)
		n.Counts = slices.Insert(n.Counts, i, uint32(nc))
	case nc == 0:
		n.Keys = slices.Delete(n.Keys, i, i+1)
		n.Counts = slices.Delete(n.Counts, i, i+1)
	default:
		n.Counts[i] = uint32(nc)
	}
	d := int(nc - cur)
	n.Total = addTotal(n.Total, d)

	if len(n.Keys) == 0 {
		w.retire(id)
		return applyResult{}, d
	}
	if len(n.Keys) > w.capacity() {
		return w.splitLeaf(id, n), d
	}
	return applyResult{id: id, total: n.Total}, d
}

func (w *treeWriter) splitLeaf(id PageID, n *node) applyResult {
	h := len(n.Keys) / 2
	r := &node{
		Keys:   slices.Clone(n.Keys[h:]),
		Counts: slices.Clone(n.Counts[h:]),
	}
	n.Keys, n.Counts = n.Keys[:h:h], n.Counts[:h:h]
	n.recomputeTotal()
	r.recomputeTotal()
	return applyResult{
		id:         id,
		total:      n.Total,
		right:      w.allocate(r),
		rightTotal: r.Total,
		sep:        r.Keys[0],
	}
}

func (w *treeWriter) splitBranch(id PageID, n *node) applyResult {
	h := len(n.Children) / 2
	sep := n.Keys[h-1]
	r := &node{
		Height:   n.Height,
		Keys:     slices.Clone(n.Keys[h:]),
		Children: slices.Clone(n.Children[h:]),
		Totals:   slices.Clone(n.Totals[h:]),
	}
	n.Keys = n.Keys[: h-1 : h-1]
	n.Children = n.Children[:h:h]
	n.Totals = n.Totals[:h:h]
	n.recomputeTotal()
	r.recomputeTotal()
	return applyResult{
		id:         id,
		total:      n.Total,
		right:      w.allocate(r),
		rightTotal: r.Total,
		sep:        sep,
	}
}

func (n *node) removeChild(i int) {
	n.Children = slices.Delete(n.Children, i, i+1)
	n.Totals = slices.Delete(n.Totals, i, i+1)
	if len(n.Keys) > 0 {
		k := max(i-1, 0)
		n.Keys = slices.Delete(n.Keys, k, k+1)
	}
}

// maybeMerge folds the child at ci into a neighbour when the child has
// fewer than a quarter of the page capacity and both fit into one page.
func (w *treeWriter) maybeMerge(n *node, ci int) {
	limit := w.capacity()
	child := w.fresh[n.Children[ci]]
	if child == nil || child.size() >= limit/4 || len(n.Children) < 2 {
		return
	}
	li := ci
	if ci == len(n.Children)-1 {
		li = ci - 1
	}
	lid, rid := n.Children[li], n.Children[li+1]
	left, right := w.node(lid), w.node(rid)
	if left.size()+right.size() > limit {
		return
	}

	lid, left = w.mutable(lid, left)
	if left.isLeaf() {
		left.Keys = append(left.Keys, right.Keys...)
		left.Counts = append(left.Counts, right.Counts...)
	} else {
		left.Keys = append(append(left.Keys, n.Keys[li]), right.Keys...)
		left.Children = append(left.Children, right.Children...)
		left.Totals = append(left.Totals, right.Totals...)
	}
	left.Total += right.Total
	w.retire(rid)

	n.Children[li], n.Totals[li] = lid, left.Total
	n.Children = slices.Delete(n.Children, li+1, li+2)
	n.Totals = slices.Delete(n.Totals, li+1, li+2)
	n.Keys = slices.Delete(n.Keys, li, li+1)
}

func (w *treeWriter) replaceRoot(res applyResult) PageID {
	switch {
	case res.id == 0:
		return w.allocate(&node{})
	case res.right != 0:
		h := w.node(res.id).Height
		return w.allocate(&node{
			Height:   h + 1,
			Total:    res.total + res.rightTotal,
			Keys:     []RID{res.sep},
			Children: []PageID{res.id, res.right},
			Totals:   []uint64{res.total, res.rightTotal},
		})
	default:
		return res.id
	}
}

// applyAll applies sorted deltas to the tree and returns its new root.
func (w *treeWriter) applyAll(root PageID, deltas []delta) PageID {
	w.root = root
	w.checkRoot(root)
	for _, d := range deltas {
		res, _ := w.apply(root, d.RID, d.N)
		root = w.replaceRoot(res)
	}
	for {
		n := w.node(root)
		if n.isLeaf() || len(n.Children) > 1 {
			return root
		}
		child := n.Children[0]
		w.retire(root)
		root = child
	}
}

func (w *treeWriter) total(root PageID) uint64 {
	return w.node(root).Total
}

// build bulk-loads sorted entries into a new tree, filling pages to three
// quarters of their capacity.
func (w *treeWriter) build(ents []entry) PageID {
	type built struct {
		id    PageID
		total uint64
		first RID
	}
	fill := max(w.capacity()*3/4, 2)

	var level []built
	for _, r := range chunks(len(ents), fill) {
		n := &node{}
		for _, e := range ents[r[0]:r[1]] {
			n.Keys = append(n.Keys, e.RID)
			n.Counts = append(n.Counts, e.Count)
		}
		n.recomputeTotal()
		level = append(level, built{w.allocate(n), n.Total, n.Keys[0]})
	}
	if len(level) == 0 {
		return w.allocate(&node{})
	}

	for h := 1; len(level) > 1; h++ {
		var next []built
		for _, r := range chunks(len(level), fill) {
			n := &node{Height: h}
			for i, b := range level[r[0]:r[1]] {
				if i > 0 {
					n.Keys = append(n.Keys, b.first)
				}
				n.Children = append(n.Children, b.id)
				n.Totals = append(n.Totals, b.total)
			}
			n.recomputeTotal()
			next = append(next, built{w.allocate(n), n.Total, level[r[0]].first})
		}
		level = next
	}
	return level[0].id
}

// chunks splits n items into evenly sized [lo, hi) ranges of at most size.
func chunks(n, size int) [][2]int {
	if n == 0 {
		return nil
	}
	g := (n + size - 1) / size
	result := make([][2]int, 0, g)
	lo := 0
	for i := range g {
		hi := lo + n/g
		if i < n%g {
			hi++
		}
		result = append(result, [2]int{lo, hi})
		lo = hi
	}
	return result
}

// drain returns every entry of the tree in RID order.
func (w *treeWriter) drain(root PageID) []entry {
	w.root = root
	var ents []entry
	c := newTreeCursor(root, w.node)
	for e, ok := c.next(); ok; e, ok = c.next() {
		ents = append(ents, e)
	}
	return ents
}

// free releases every page reachable from root and returns their number.
// Leaves are not read, only their ids.
func (w *treeWriter) free(root PageID) int {
	w.root = root
	w.checkRoot(root)
	return w.freeSubtree(root)
}

func (w *treeWriter) freeSubtree(id PageID) int {
	n := w.node(id)
	pages := 1
	switch {
	case n.Height == 1:
		for _, c := range n.Children {
			w.retire(c)
		}
		pages += len(n.Children)
	case !n.isLeaf():
		for _, c := range n.Children {
			pages += w.freeSubtree(c)
		}
	}
	w.retire(id)
	return pages
}

func (w *treeWriter) flush() {
	if w.ptx == nil {
		return
	}
	c := w.s.cfg.Compression
	for id, n := range w.fresh {
		data := encodePage(nil, n, c)
		if err := w.ptx.Put(id, data); err != nil {
			panic(pageErrf(0, id, err, "cannot write page"))
		}
		if w.s.verbose {
			w.s.logger.LogAttrs(context.Background(), slog.LevelDebug, "ridbag: page written", pageAttr("page", id), slog.Int("height", n.Height), slog.Int("size", n.size()), slog.Int("bytes", len(data)))
		}
	}
}

// commit flushes the fresh pages and commits the page transaction. The cache
// is updated only after a successful commit.
func (w *treeWriter) commit() error {
	if w.ptx == nil {
		return nil
	}
	err := safelyRun(w.flush)
	if err == nil {
		err = w.ptx.Commit()
	}
	if err != nil {
		w.ptx.Rollback()
		return err
	}
	for _, id := range w.retired {
		w.s.cache.remove(id)
	}
	for id, n := range w.fresh {
		w.s.cache.put(id, n)
	}
	w.s.stats.pagesWritten.Add(int64(len(w.fresh)))
	w.s.stats.pagesFreed.Add(int64(len(w.retired)))
	return nil
}

func (w *treeWriter) rollback() {
	if w.ptx != nil {
		w.ptx.Rollback()
	}
}
