package ridbag

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var pagesBucket = []byte("ridbag.pages")

type boltPageStore struct {
	bdb     *bbolt.DB
	managed bool
}

type BoltOptions struct {
	IsTesting bool
	ReadOnly  bool
	MmapSize  int
}

// OpenBoltPageStore opens (creating if needed) a Bolt file dedicated to tree
// pages. Closing the store closes the file.
func OpenBoltPageStore(path string, opt BoltOptions) (PageStore, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bopt.ReadOnly = opt.ReadOnly
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("ridbag: %w", err)
	}
	s, err := newBoltPageStore(bdb, !opt.ReadOnly)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	s.managed = true
	return s, nil
}

// NewBoltPageStore keeps pages in a bucket of an existing Bolt database,
// typically the one that holds the owning documents. Closing the store does
// not close bdb.
func NewBoltPageStore(bdb *bbolt.DB) (PageStore, error) {
	return newBoltPageStore(bdb, true)
}

func newBoltPageStore(bdb *bbolt.DB, create bool) (*boltPageStore, error) {
	if create {
		err := bdb.Update(func(btx *bbolt.Tx) error {
			_, err := btx.CreateBucketIfNotExists(pagesBucket)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("ridbag: creating pages bucket: %w", err)
		}
	}
	return &boltPageStore{bdb: bdb}, nil
}

func (s *boltPageStore) Begin(writable bool) (PageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltPageTx{btx: btx, b: btx.Bucket(pagesBucket)}, nil
}

func (s *boltPageStore) Stats() (PageStoreStats, error) {
	var st PageStoreStats
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(pagesBucket)
		if b == nil {
			return nil
		}
		bs := b.Stats()
		st.Pages = bs.KeyN
		st.Bytes = int64(bs.LeafInuse)
		return nil
	})
	return st, err
}

func (s *boltPageStore) Close() error {
	if !s.managed {
		return nil
	}
	return s.bdb.Close()
}

type boltPageTx struct {
	btx *bbolt.Tx
	b   *bbolt.Bucket
}

func (tx *boltPageTx) BoltTx() *bbolt.Tx { return tx.btx }

func (tx *boltPageTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltPageTx) Get(id PageID) ([]byte, error) {
	if tx.b == nil {
		return nil, nil
	}
	var key [8]byte
	return tx.b.Get(pageKey(&key, id)), nil
}

func (tx *boltPageTx) Allocate() (PageID, error) {
	if tx.b == nil {
		return 0, ErrReadOnly
	}
	seq, err := tx.b.NextSequence()
	if err != nil {
		return 0, err
	}
	return PageID(seq), nil
}

func (tx *boltPageTx) Put(id PageID, data []byte) error {
	if tx.b == nil {
		return ErrReadOnly
	}
	var key [8]byte
	return tx.b.Put(pageKey(&key, id), data)
}

func (tx *boltPageTx) Free(id PageID) error {
	if tx.b == nil {
		return ErrReadOnly
	}
	var key [8]byte
	return tx.b.Delete(pageKey(&key, id))
}

func (tx *boltPageTx) Commit() error { return tx.btx.Commit() }

func (tx *boltPageTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func pageKey(buf *[8]byte, id PageID) []byte {
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}
