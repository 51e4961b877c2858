package ridbag

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Tx groups changes of several bags so that they are persisted together in
// one page transaction, or discarded together.
//
// Commit runs in phases:
//
// Phase 1, Hooks: OnCommit callbacks run in registration order. This is
// where the owning engine saves new records and calls Assign for their
// placeholders. An error rolls the transaction back.
//
// Phase 2, Apply: placeholders are resolved, buffered changes are applied
// to the trees of every joined bag and conversions are decided, all within
// one page write transaction.
//
// Phase 3, Publish: once the page transaction commits, every bag switches to
// its new state at once. If anything fails before that, every bag is rolled
// back to its state at Join.
type Tx struct {
	store      *Store
	bags       []*Bag
	assigned   map[Placeholder]RID
	onCommit   []func(tx *Tx) error
	onRollback []func()
	closed     bool
}

// Begin starts a transaction. Bags take part in it after Join.
func (s *Store) Begin() *Tx {
	return &Tx{store: s}
}

func (tx *Tx) Store() *Store {
	return tx.store
}

// Bags returns the bags joined to tx.
func (tx *Tx) Bags() []*Bag {
	return tx.bags
}

func (tx *Tx) OnCommit(f func(tx *Tx) error) {
	tx.onCommit = append(tx.onCommit, f)
}

func (tx *Tx) OnRollback(f func()) {
	tx.onRollback = append(tx.onRollback, f)
}

// Assign resolves a placeholder within this transaction. Assignments take
// precedence over the store's Resolver.
func (tx *Tx) Assign(ph Placeholder, rid RID) {
	if tx.assigned == nil {
		tx.assigned = make(map[Placeholder]RID)
	}
	tx.assigned[ph] = rid
}

func (tx *Tx) resolve(ph Placeholder) (RID, bool) {
	if rid, ok := tx.assigned[ph]; ok {
		return rid, true
	}
	return tx.store.resolve(ph)
}

func (s *Store) resolve(ph Placeholder) (RID, bool) {
	if s.resolver == nil {
		return RID{}, false
	}
	return s.resolver.Resolve(ph)
}

func (tx *Tx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	for _, f := range tx.onCommit {
		if err := f(tx); err != nil {
			tx.Rollback()
			return err
		}
	}
	err := tx.store.commit(ctx, tx.bags, tx.resolve)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, b := range tx.bags {
		b.detach()
	}
	tx.closed = true
	return nil
}

// Rollback discards the changes made to every joined bag since Join.
// It does nothing on a closed transaction.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	for _, b := range tx.bags {
		b.rollback()
	}
	for _, f := range tx.onRollback {
		f()
	}
}

// Close rolls back the transaction unless it has been committed.
func (tx *Tx) Close() {
	tx.Rollback()
}

// Update runs f in a new transaction and commits it if f returns nil.
// Panics in f, including page read failures of Bag methods, are returned as
// errors.
func (s *Store) Update(ctx context.Context, f func(tx *Tx) error) error {
	tx := s.Begin()
	defer tx.Close()
	if err := safelyCall(f, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if pe, ok := p.(*PageError); ok {
				err = pe
			} else {
				err = panicked{p, string(debug.Stack())}
			}
		}
	}()
	return fn(tx)
}

// safelyRun returns a *PageError panic of fn as an error.
func safelyRun(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			pe, ok := p.(*PageError)
			if !ok {
				panic(p)
			}
			err = pe
		}
	}()
	fn()
	return nil
}
