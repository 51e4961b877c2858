package ridbag

import (
	"context"
	"log/slog"
)

// stagedBag is the state a bag switches to once the page transaction
// carrying its changes has committed.
type stagedBag struct {
	bag        *Bag
	rep        representation
	conversion repKind
	converted  bool
	size       int
	freedTrees int
}

// prepare applies the buffered changes of b within w and decides the
// resulting representation. Nothing about b itself changes.
func (b *Bag) prepare(w *treeWriter, resolve func(Placeholder) (RID, bool)) stagedBag {
	cfg := b.store.cfg
	st := stagedBag{bag: b}
	for _, root := range b.orphans {
		w.free(root)
		st.freedTrees++
	}

	deltas := b.changes.resolve(resolve, b.store.logger)
	switch b.rep.kind {
	case kindEmbedded:
		set := b.rep.embedded
		if len(deltas) > 0 {
			set = set.clone()
			for _, d := range deltas {
				set.apply(d.RID, d.N)
			}
		}
		st.size = set.size()
		if cfg.shouldGrow(st.size) || b.forced(kindTree) {
			st.rep = treeRep(w.build(set.sorted()))
			st.converted, st.conversion = true, kindTree
		} else {
			st.rep = embeddedRep(set)
		}

	case kindTree:
		root := b.rep.root
		var n int
		if len(deltas) > 0 {
			root = w.applyAll(root, deltas)
			n = int(w.total(root))
		} else {
			n = b.persistedSize()
		}
		st.size = n
		if cfg.shouldShrink(n) || b.forced(kindEmbedded) {
			ents := w.drain(root)
			w.free(root)
			st.rep = embeddedRep(embeddedFromEntries(ents))
			st.converted, st.conversion = true, kindEmbedded
			st.freedTrees++
		} else {
			st.rep = treeRep(root)
		}
	}
	return st
}

func (st *stagedBag) finish() {
	b := st.bag
	b.rep = st.rep
	b.changes.reset()
	b.orphans = nil
	b.force = nil
}

// MakeTree converts b to a tree on the next Persist or commit, whatever its
// size. The representation may switch back on a later persist if the size
// calls for it.
func (b *Bag) MakeTree() {
	b.setForce(kindTree)
}

// MakeEmbedded converts b to an embedded set on the next Persist or commit,
// whatever its size.
func (b *Bag) MakeEmbedded() {
	b.setForce(kindEmbedded)
}

func (b *Bag) setForce(k repKind) {
	if b.rep.kind == k {
		b.force = nil
		return
	}
	b.force = &k
}

func (b *Bag) forced(k repKind) bool {
	return b.force != nil && *b.force == k
}

// commit applies the buffered changes of bags in a single page transaction.
// Bags switch to their new state only if the page transaction commits;
// otherwise they are left untouched.
func (s *Store) commit(ctx context.Context, bags []*Bag, resolve func(Placeholder) (RID, bool)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := s.newTreeWriter()
	staged := make([]stagedBag, 0, len(bags))
	err := safelyRun(func() {
		for _, b := range bags {
			staged = append(staged, b.prepare(w, resolve))
		}
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		w.rollback()
		return err
	}
	if err := w.commit(); err != nil {
		return err
	}

	for i := range staged {
		st := &staged[i]
		st.finish()
		if st.converted {
			s.logConversion(ctx, st)
		}
		if st.freedTrees > 0 {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "ridbag: trees freed", slog.Int("trees", st.freedTrees))
		}
	}
	s.stats.commits.Add(1)
	return nil
}

func (s *Store) logConversion(ctx context.Context, st *stagedBag) {
	if st.conversion == kindTree {
		s.stats.grows.Add(1)
		s.logger.LogAttrs(ctx, slog.LevelInfo, "ridbag: converted to tree", slog.Int("size", st.size), pageAttr("root", st.rep.root))
	} else {
		s.stats.shrinks.Add(1)
		s.logger.LogAttrs(ctx, slog.LevelInfo, "ridbag: converted to embedded", slog.Int("size", st.size))
	}
}

// freeTrees frees every page of the given trees in one page transaction.
func (s *Store) freeTrees(ctx context.Context, roots ...PageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := s.newTreeWriter()
	var pages int
	err := safelyRun(func() {
		for _, root := range roots {
			pages += w.free(root)
		}
	})
	if err != nil {
		w.rollback()
		return err
	}
	if err := w.commit(); err != nil {
		return err
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "ridbag: trees freed", slog.Int("trees", len(roots)), slog.Int("pages", pages))
	return nil
}
