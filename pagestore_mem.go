package ridbag

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

type memPageStore struct {
	mu     sync.Mutex
	cond   *sync.Cond
	pages  map[PageID][]byte
	live   *roaring64.Bitmap // allocated and not yet freed
	nextID PageID
	closed bool
	writer bool
}

// NewMemPageStore returns a transient in-memory PageStore, mostly useful in
// tests. It keeps track of allocated pages, so leaks show up in Stats.
func NewMemPageStore() PageStore {
	s := &memPageStore{
		pages:  make(map[PageID][]byte),
		live:   roaring64.New(),
		nextID: 1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memPageStore) Begin(writable bool) (PageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("page store closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("page store closed")
		}
		s.writer = true
	}

	// Page contents are never modified in place, so a shallow copy of the map
	// is a snapshot.
	tx := &memPageTx{
		base:     s,
		writable: writable,
		pages:    maps.Clone(s.pages),
	}
	if writable {
		tx.live = s.live.Clone()
		tx.nextID = s.nextID
	}
	return tx, nil
}

func (s *memPageStore) Stats() (PageStoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st PageStoreStats
	st.Pages = int(s.live.GetCardinality())
	for _, data := range s.pages {
		st.Bytes += int64(len(data))
	}
	return st, nil
}

func (s *memPageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pages = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memPageTx struct {
	base     *memPageStore
	writable bool
	pages    map[PageID][]byte
	live     *roaring64.Bitmap
	nextID   PageID
	closed   bool
}

func (tx *memPageTx) Writable() bool { return tx.writable }

func (tx *memPageTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memPageTx) Get(id PageID) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	return tx.pages[id], nil
}

func (tx *memPageTx) Allocate() (PageID, error) {
	if tx.closed {
		return 0, ErrTxClosed
	}
	if !tx.writable {
		return 0, ErrReadOnly
	}
	id := tx.nextID
	tx.nextID++
	tx.live.Add(uint64(id))
	return id, nil
}

func (tx *memPageTx) Put(id PageID, data []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	if !tx.live.Contains(uint64(id)) {
		return fmt.Errorf("put to unallocated page %d", id)
	}
	tx.pages[id] = slices.Clone(data)
	return nil
}

func (tx *memPageTx) Free(id PageID) error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	tx.live.Remove(uint64(id))
	delete(tx.pages, id)
	return nil
}

func (tx *memPageTx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("page store closed")
	}
	tx.base.pages = tx.pages
	tx.base.live = tx.live
	tx.base.nextID = tx.nextID
	tx.closeLocked()
	return nil
}

func (tx *memPageTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

