package ridbag

import (
	"strings"
	"testing"
)

func TestDumpTree(t *testing.T) {
	s := setup(t, treeConfig)
	b := s.NewBag()
	fill(b, 2, 9)
	b.Add(r(2, 4))
	persist(t, b)

	out := b.Dump(DumpAll)
	for _, want := range []string{"branch ", "leaf ", "#2:4 x2", "#2:8 x1", "total 10", "store_pages = "} {
		if !strings.Contains(out, want) {
			t.Errorf("** dump lacks %q:\n%s", want, out)
		}
	}

	if out := s.DumpTree(b.Root(), DumpPages); strings.Contains(out, "#2:4") {
		t.Errorf("** DumpPages rendered entries:\n%s", out)
	}

	corruptPage(t, s, b.Root())
	if out := s.DumpTree(b.Root(), DumpAll); !strings.Contains(out, "** ERROR") {
		t.Errorf("** corrupted page not reported:\n%s", out)
	}
}

func TestDumpEmbedded(t *testing.T) {
	s := setup(t, DefaultConfig())
	b := s.NewBag()
	b.Add(r(1, 1))
	b.Add(r(1, 1))
	out := b.Dump(DumpAll)
	if want := "embedded (1 entries, size 2)\n  #1:1 x2\n"; out != want {
		t.Errorf("** Dump() = %q, wanted %q", out, want)
	}
}
