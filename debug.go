package ridbag

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpPages = DumpFlags(1 << iota)
	DumpEntries
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var dumpSep1 = strings.Repeat("=", 80)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// DumpTree renders the tree rooted at root for debugging. Unreadable pages
// are rendered inline as errors.
func (s *Store) DumpTree(root PageID, f DumpFlags) string {
	var buf strings.Builder
	ptx, err := s.pages.Begin(false)
	if err != nil {
		fmt.Fprintf(&buf, "** ERROR: %v\n", err)
		return buf.String()
	}
	defer ptx.Rollback()

	if f.Contains(DumpStats) {
		fmt.Fprintln(&buf, dumpSep1)
		if ps, err := s.pages.Stats(); err == nil {
			fmt.Fprintf(&buf, "tree %d: store_pages = %d, store_bytes = %d\n", root, ps.Pages, ps.Bytes)
		}
	}
	s.dumpPage(&buf, "", f, ptx, root)
	return buf.String()
}

// Dump renders the contents of a bag, including its tree if it has one.
func (b *Bag) Dump(f DumpFlags) string {
	if b.rep.kind == kindTree {
		return b.store.DumpTree(b.rep.root, f)
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "embedded (%d entries, size %d)\n", len(b.rep.embedded.entries), b.rep.embedded.size())
	if f.Contains(DumpEntries) {
		for _, e := range b.rep.embedded.entries {
			fmt.Fprintf(&buf, "%s%v x%d\n", indentStep, e.RID, e.Count)
		}
	}
	return buf.String()
}

func (s *Store) dumpPage(w *strings.Builder, prefix string, f DumpFlags, ptx PageTx, id PageID) {
	n, err := fetchNode(ptx, id)
	if err != nil {
		fmt.Fprintf(w, "%spage %d ** ERROR: %v\n", prefix, id, err)
		return
	}
	if f.Contains(DumpPages) {
		if n.isLeaf() {
			fmt.Fprintf(w, "%sleaf %d (%d entries, total %d)\n", prefix, id, len(n.Keys), n.Total)
		} else {
			fmt.Fprintf(w, "%sbranch %d (h%d, %d children, total %d)\n", prefix, id, n.Height, len(n.Children), n.Total)
		}
	}
	if n.isLeaf() {
		if f.Contains(DumpEntries) {
			for i, k := range n.Keys {
				fmt.Fprintf(w, "%s%s%v x%d\n", prefix, indentStep, k, n.Counts[i])
			}
		}
		return
	}
	for i, c := range n.Children {
		if i > 0 && f.Contains(DumpPages) {
			fmt.Fprintf(w, "%s%s>= %v\n", prefix, indentStep, n.Keys[i-1])
		}
		s.dumpPage(w, prefix+indentStep, f, ptx, c)
	}
}
