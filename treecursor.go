package ridbag

type cursorFrame struct {
	n *node
	i int
}

// treeCursor walks the entries of a tree in ascending RID order. Pages are
// loaded on demand through load, which panics on failure.
type treeCursor struct {
	load  func(PageID) *node
	root  PageID
	stack []cursorFrame
	done  bool
}

func newTreeCursor(root PageID, load func(PageID) *node) *treeCursor {
	return &treeCursor{load: load, root: root}
}

func (c *treeCursor) next() (entry, bool) {
	if c.done {
		return entry{}, false
	}
	if c.stack == nil {
		c.stack = append(c.stack, cursorFrame{n: c.load(c.root)})
	}
	for len(c.stack) > 0 {
		f := &c.stack[len(c.stack)-1]
		if f.n.isLeaf() {
			if f.i < len(f.n.Keys) {
				e := entry{f.n.Keys[f.i], f.n.Counts[f.i]}
				f.i++
				return e, true
			}
		} else if f.i < len(f.n.Children) {
			child := f.n.Children[f.i]
			f.i++
			c.stack = append(c.stack, cursorFrame{n: c.load(child)})
			continue
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	c.done = true
	return entry{}, false
}

// lookup returns the multiplicity of rid within the tree.
func lookup(root PageID, rid RID, load func(PageID) *node) int {
	n := load(root)
	for !n.isLeaf() {
		n = load(n.Children[n.childIndex(rid)])
	}
	if i, found := n.search(rid); found {
		return int(n.Counts[i])
	}
	return 0
}
