package ridbag

import (
	"context"
	"fmt"
	"iter"
	"slices"
)

type repKind uint8

const (
	kindEmbedded repKind = iota
	kindTree
)

func (k repKind) String() string {
	if k == kindTree {
		return "tree"
	}
	return "embedded"
}

// representation is the persisted state of a bag: an embedded set or the
// root of a tree, never both.
type representation struct {
	kind     repKind
	embedded *embeddedSet
	root     PageID
}

func embeddedRep(s *embeddedSet) representation {
	return representation{kind: kindEmbedded, embedded: s}
}

func treeRep(root PageID) representation {
	return representation{kind: kindTree, root: root}
}

// Bag is a multiset of record references stored in a document field. Small
// bags are embedded in the document payload; large ones keep their entries
// in a tree of pages and store only the root page id.
//
// Changes are buffered and reach the tree only on Persist or on commit of
// the joined transaction; the representation is switched at the same time
// according to the store's Config. A Bag must not be used concurrently.
//
// Add, Remove, Contains, Count and Size never return errors. If a tree
// page cannot be read they panic with a *PageError, which Store.Update
// returns as an ordinary error.
type Bag struct {
	store   *Store
	rep     representation
	changes *changeTracker
	orphans []PageID
	force   *repKind

	tx   *Tx
	save *savepoint
}

type savepoint struct {
	rep     representation
	changes *changeTracker
	orphans []PageID
	force   *repKind
}

func (b *Bag) IsEmbedded() bool {
	return b.rep.kind == kindEmbedded
}

// Root returns the tree root page of a tree-backed bag, or 0.
func (b *Bag) Root() PageID {
	if b.rep.kind == kindTree {
		return b.rep.root
	}
	return 0
}

func (b *Bag) Store() *Store {
	return b.store
}

func (b *Bag) persistedCount(rid RID) int {
	if b.rep.kind == kindEmbedded {
		return b.rep.embedded.count(rid)
	}
	return lookup(b.rep.root, rid, b.store.reader(b.rep.root))
}

func (b *Bag) persistedSize() int {
	if b.rep.kind == kindEmbedded {
		return b.rep.embedded.size()
	}
	return int(b.store.loadNode(nil, b.rep.root, b.rep.root).Total)
}

// immediate reports whether a change of ref can skip the tracker.
func (b *Bag) immediate(ref Ref) bool {
	_, isRID := ref.(RID)
	return isRID && b.tx == nil && b.rep.kind == kindEmbedded
}

func (b *Bag) Add(ref Ref) {
	if b.immediate(ref) {
		b.rep.embedded.apply(ref.(RID), 1)
		return
	}
	b.changes.add(ref, 1)
}

func (b *Bag) AddAll(refs ...Ref) {
	for _, ref := range refs {
		b.Add(ref)
	}
}

// Remove removes one occurrence of ref. Removing a reference the bag does not
// contain does nothing.
func (b *Bag) Remove(ref Ref) {
	if b.Count(ref) == 0 {
		return
	}
	if b.immediate(ref) {
		b.rep.embedded.apply(ref.(RID), -1)
		return
	}
	b.changes.add(ref, -1)
}

// Count returns the multiplicity of ref, including buffered changes.
func (b *Bag) Count(ref Ref) int {
	n := b.changes.get(ref)
	if rid, ok := ref.(RID); ok {
		n += b.persistedCount(rid)
	}
	return max(n, 0)
}

func (b *Bag) Contains(ref Ref) bool {
	return b.Count(ref) > 0
}

// Size returns the total multiplicity. For a tree-backed bag it reads only
// the root page.
func (b *Bag) Size() int {
	return b.persistedSize() + b.changes.net
}

func (b *Bag) IsEmpty() bool {
	return b.Size() == 0
}

// All iterates over every occurrence. It panics if a tree page cannot be
// read; use Iter to get the error instead.
func (b *Bag) All() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		it := b.Iter()
		for it.Next() {
			if !yield(it.Ref()) {
				return
			}
		}
		if err := it.Err(); err != nil {
			panic(err)
		}
	}
}

// Copy returns an independent bag with the same contents and buffered
// changes, not joined to any transaction. A copy of a tree-backed bag
// shares the tree: whichever of the two persists changes first wins, and the
// other gets ErrConflict.
func (b *Bag) Copy() *Bag {
	c := &Bag{
		store:   b.store,
		rep:     b.rep,
		changes: b.changes.clone(),
		orphans: slices.Clone(b.orphans),
		force:   b.force,
	}
	if b.rep.kind == kindEmbedded {
		c.rep = embeddedRep(b.rep.embedded.clone())
	}
	return c
}

// Equal reports whether b and o use the same representation and contain
// the same references with the same multiplicities. Like Count, it panics
// if a tree page cannot be read.
func (b *Bag) Equal(o *Bag) bool {
	if b.rep.kind != o.rep.kind || b.Size() != o.Size() {
		return false
	}
	var prev Ref
	it := b.Iter()
	for it.Next() {
		ref := it.Ref()
		if ref == prev {
			continue
		}
		prev = ref
		if o.Count(ref) != b.Count(ref) {
			return false
		}
	}
	if err := it.Err(); err != nil {
		panic(err)
	}
	return true
}

func (b *Bag) String() string {
	return fmt.Sprintf("[size=%d]", b.Size())
}

// Join makes b part of tx: from now on its changes are buffered until tx
// commits, and discarded if tx rolls back.
func (b *Bag) Join(tx *Tx) error {
	if tx.closed {
		return ErrTxClosed
	}
	if b.tx == tx {
		return nil
	}
	if b.tx != nil {
		return ErrTxActive
	}
	if tx.store != b.store {
		return fmt.Errorf("ridbag: bag and transaction belong to different stores")
	}
	b.tx = tx
	b.save = &savepoint{b.rep, b.changes.clone(), slices.Clone(b.orphans), b.force}
	tx.bags = append(tx.bags, b)
	return nil
}

// Tx returns the transaction b is joined to, if any.
func (b *Bag) Tx() *Tx {
	return b.tx
}

func (b *Bag) rollback() {
	if b.save != nil {
		b.rep, b.changes, b.orphans, b.force = b.save.rep, b.save.changes, b.save.orphans, b.save.force
	}
	b.detach()
}

func (b *Bag) detach() {
	b.tx = nil
	b.save = nil
}

// Persist applies buffered changes, switches the representation if the
// size crossed a threshold, and returns the payload to store in the owning
// document. On failure the persisted state is unchanged and b keeps all of
// its changes, so Persist can be retried.
func (b *Bag) Persist(ctx context.Context) ([]byte, error) {
	if b.tx != nil {
		return nil, ErrTxActive
	}
	if err := b.store.commit(ctx, []*Bag{b}, b.store.resolve); err != nil {
		return nil, err
	}
	return b.MarshalBinary()
}

// Delete empties the bag and frees its tree pages. When b is joined to a
// transaction, the pages are freed on commit.
func (b *Bag) Delete(ctx context.Context) error {
	old := b.rep
	oldChanges, oldForce := b.changes, b.force
	b.rep = embeddedRep(&embeddedSet{})
	b.changes = newChangeTracker()
	b.force = nil
	if old.kind != kindTree {
		return nil
	}
	if b.tx != nil {
		b.orphans = append(b.orphans, old.root)
		return nil
	}
	if err := b.store.freeTrees(ctx, old.root); err != nil {
		b.rep, b.changes, b.force = old, oldChanges, oldForce
		return err
	}
	return nil
}
