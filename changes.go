package ridbag

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/btree"
)

const trackerDegree = 16

// delta is a buffered net change of a multiplicity.
type delta struct {
	RID RID
	N   int
}

type placeholderDelta struct {
	Placeholder Placeholder
	N           int
}

func lessDelta(a, b delta) bool {
	return a.RID.Less(b.RID)
}

// changeTracker buffers changes that have not reached the backing
// representation yet. Entries whose net change drops to zero are removed,
// so an add cancelled by a remove leaves no trace.
type changeTracker struct {
	rids *btree.BTreeG[delta]
	phs  []placeholderDelta
	net  int
}

func newChangeTracker() *changeTracker {
	return &changeTracker{rids: btree.NewG(trackerDegree, lessDelta)}
}

func (t *changeTracker) get(ref Ref) int {
	switch ref := ref.(type) {
	case RID:
		d, _ := t.rids.Get(delta{RID: ref})
		return d.N
	case Placeholder:
		if i := t.placeholderIndex(ref); i >= 0 {
			return t.phs[i].N
		}
	}
	return 0
}

func (t *changeTracker) placeholderIndex(ph Placeholder) int {
	return slices.IndexFunc(t.phs, func(d placeholderDelta) bool { return d.Placeholder == ph })
}

func (t *changeTracker) add(ref Ref, n int) {
	if n == 0 {
		return
	}
	t.net += n
	switch ref := ref.(type) {
	case RID:
		d, _ := t.rids.Get(delta{RID: ref})
		d.RID = ref
		d.N += n
		if d.N == 0 {
			t.rids.Delete(d)
		} else {
			t.rids.ReplaceOrInsert(d)
		}
	case Placeholder:
		i := t.placeholderIndex(ref)
		switch {
		case i < 0:
			t.phs = append(t.phs, placeholderDelta{ref, n})
		case t.phs[i].N+n == 0:
			t.phs = slices.Delete(t.phs, i, i+1)
		default:
			t.phs[i].N += n
		}
	}
}

func (t *changeTracker) isEmpty() bool {
	return t.rids.Len() == 0 && len(t.phs) == 0
}

func (t *changeTracker) clone() *changeTracker {
	return &changeTracker{
		rids: t.rids.Clone(),
		phs:  slices.Clone(t.phs),
		net:  t.net,
	}
}

func (t *changeTracker) reset() {
	t.rids.Clear(false)
	t.phs = nil
	t.net = 0
}

// ridDeltas returns the buffered RID changes in ascending order.
func (t *changeTracker) ridDeltas() []delta {
	result := make([]delta, 0, t.rids.Len())
	t.rids.Ascend(func(d delta) bool {
		result = append(result, d)
		return true
	})
	return result
}

// resolve returns every buffered change in ascending RID order, with
// placeholders replaced by the RIDs they resolve to. Placeholders that do not
// resolve belong to records that were never saved and are dropped.
func (t *changeTracker) resolve(resolve func(Placeholder) (RID, bool), logger *slog.Logger) []delta {
	if len(t.phs) == 0 {
		return t.ridDeltas()
	}
	merged := t.rids.Clone()
	for _, pd := range t.phs {
		rid, ok := resolve(pd.Placeholder)
		if !ok {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "ridbag: dropping unresolved placeholder", slog.String("ref", pd.Placeholder.String()), slog.Int("n", pd.N))
			continue
		}
		d, _ := merged.Get(delta{RID: rid})
		d.RID = rid
		d.N += pd.N
		if d.N == 0 {
			merged.Delete(d)
		} else {
			merged.ReplaceOrInsert(d)
		}
	}
	result := make([]delta, 0, merged.Len())
	merged.Ascend(func(d delta) bool {
		result = append(result, d)
		return true
	})
	return result
}
