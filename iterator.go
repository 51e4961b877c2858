package ridbag

type iterPhase uint8

const (
	phasePersisted iterPhase = iota
	phaseBuffered
	phasePlaceholders
	phaseDone
)

// Iterator yields every occurrence of every reference in a bag. Entries of a
// tree are read from the tree as it was when the iterator was created; their
// multiplicity is combined with the bag's buffered changes as each
// reference is reached. Occurrences of the same reference are consecutive.
//
//	it := bag.Iter()
//	for it.Next() {
//		ref := it.Ref()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	bag   *Bag
	phase iterPhase

	rep      representation
	embedded []entry
	seen     map[RID]struct{}
	pos      int
	cursor   *treeCursor
	look     entry
	lookOK   bool
	haveLook bool

	buffered []delta
	bi       int
	phs      []placeholderDelta
	pi       int

	cur       Ref
	remaining int
	removed   bool
	err       error
}

func (b *Bag) Iter() *Iterator {
	it := &Iterator{bag: b}
	it.Reset()
	return it
}

// Reset restarts the iteration from the current state of the bag.
func (it *Iterator) Reset() {
	b := it.bag
	*it = Iterator{
		bag:      b,
		rep:      b.rep,
		buffered: b.changes.ridDeltas(),
		phs:      append([]placeholderDelta(nil), b.changes.phs...),
	}
	if b.rep.kind == kindEmbedded {
		it.embedded = append([]entry(nil), b.rep.embedded.entries...)
		it.seen = make(map[RID]struct{}, len(it.embedded))
		for _, e := range it.embedded {
			it.seen[e.RID] = struct{}{}
		}
	} else {
		it.cursor = newTreeCursor(b.rep.root, b.store.reader(b.rep.root))
	}
}

func (it *Iterator) Next() bool {
	if it.err != nil || it.phase == phaseDone {
		return false
	}
	it.removed = false
	if it.remaining > 0 {
		it.remaining--
		return true
	}
	var ok bool
	it.err = safelyRun(func() {
		ok = it.advance()
	})
	if it.err != nil || !ok {
		it.cur = nil
		it.phase = phaseDone
		return false
	}
	return true
}

// advance moves to the next reference with a positive multiplicity.
func (it *Iterator) advance() bool {
	for {
		var ref Ref
		var n int
		switch it.phase {
		case phasePersisted:
			var ok bool
			if it.rep.kind == kindEmbedded {
				ref, n, ok = it.nextEmbedded()
			} else {
				ref, n, ok = it.nextTree()
			}
			if !ok {
				it.phase++
				continue
			}
		case phaseBuffered:
			if it.rep.kind == kindTree || it.bi >= len(it.buffered) {
				it.phase++
				continue
			}
			rid := it.buffered[it.bi].RID
			it.bi++
			if _, dup := it.seen[rid]; dup {
				continue
			}
			ref, n = rid, it.bag.Count(rid)
		case phasePlaceholders:
			if it.pi >= len(it.phs) {
				it.phase++
				continue
			}
			ph := it.phs[it.pi].Placeholder
			it.pi++
			ref, n = ph, it.bag.changes.get(ph)
		default:
			return false
		}
		if n > 0 {
			it.cur, it.remaining = ref, n-1
			return true
		}
	}
}

func (it *Iterator) nextEmbedded() (Ref, int, bool) {
	if it.pos >= len(it.embedded) {
		return nil, 0, false
	}
	rid := it.embedded[it.pos].RID
	it.pos++
	return rid, it.bag.Count(rid), true
}

// nextTree merges tree entries with buffered RIDs that are not in the tree.
func (it *Iterator) nextTree() (Ref, int, bool) {
	if !it.haveLook {
		it.look, it.lookOK = it.cursor.next()
		it.haveLook = true
	}
	var pending *delta
	if it.bi < len(it.buffered) {
		pending = &it.buffered[it.bi]
	}
	switch {
	case !it.lookOK && pending == nil:
		return nil, 0, false
	case it.lookOK && (pending == nil || !pending.RID.Less(it.look.RID)):
		rid, n := it.look.RID, int(it.look.Count)
		it.haveLook = false
		if pending != nil && pending.RID == rid {
			it.bi++
		}
		return rid, n + it.bag.changes.get(rid), true
	default:
		it.bi++
		return pending.RID, it.bag.changes.get(pending.RID), true
	}
}

// Ref returns the current occurrence.
func (it *Iterator) Ref() Ref {
	return it.cur
}

// Remove removes the current occurrence from the bag. It does nothing when
// called again before the next call to Next.
func (it *Iterator) Remove() {
	if it.cur == nil || it.removed {
		return
	}
	it.removed = true
	it.bag.Remove(it.cur)
}

func (it *Iterator) Err() error {
	return it.err
}
