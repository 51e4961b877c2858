package ridbag

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func eachPageStore(t *testing.T, f func(t *testing.T, ps PageStore)) {
	t.Run("mem", func(t *testing.T) {
		ps := NewMemPageStore()
		defer ps.Close()
		f(t, ps)
	})
	t.Run("bolt", func(t *testing.T) {
		ps, err := OpenBoltPageStore(filepath.Join(t.TempDir(), "pages.db"), BoltOptions{IsTesting: true})
		require.NoError(t, err)
		defer ps.Close()
		f(t, ps)
	})
}

func TestPageStoreBasics(t *testing.T) {
	eachPageStore(t, func(t *testing.T, ps PageStore) {
		tx, err := ps.Begin(true)
		require.NoError(t, err)
		require.True(t, tx.Writable())
		a := must(tx.Allocate())
		b := must(tx.Allocate())
		require.NotEqual(t, a, b)
		require.NoError(t, tx.Put(a, []byte("alpha")))
		require.NoError(t, tx.Put(b, []byte("beta")))
		require.Equal(t, []byte("alpha"), must(tx.Get(a)))
		require.NoError(t, tx.Commit())

		st := must(ps.Stats())
		require.Equal(t, 2, st.Pages)

		tx = must(ps.Begin(true))
		require.NoError(t, tx.Free(a))
		require.NoError(t, tx.Free(a))
		c := must(tx.Allocate())
		require.NotEqual(t, a, c)
		require.NotEqual(t, b, c)
		require.NoError(t, tx.Rollback())
		require.NoError(t, tx.Rollback())

		tx = must(ps.Begin(false))
		defer tx.Rollback()
		require.False(t, tx.Writable())
		require.Equal(t, []byte("alpha"), must(tx.Get(a)))
		require.Nil(t, must(tx.Get(12345)))
		_, err = tx.Allocate()
		require.Error(t, err)
		require.Error(t, tx.Put(a, []byte("x")))
		require.Error(t, tx.Free(a))
	})
}

func TestPageStoreSnapshot(t *testing.T) {
	eachPageStore(t, func(t *testing.T, ps PageStore) {
		w := must(ps.Begin(true))
		id := must(w.Allocate())
		require.NoError(t, w.Put(id, []byte("v1")))
		require.NoError(t, w.Commit())

		reader := must(ps.Begin(false))
		defer reader.Rollback()

		w = must(ps.Begin(true))
		require.NoError(t, w.Free(id))
		next := must(w.Allocate())
		require.NoError(t, w.Put(next, []byte("v2")))
		require.NoError(t, w.Commit())

		require.Equal(t, []byte("v1"), must(reader.Get(id)))
		require.Nil(t, must(reader.Get(next)))
		require.Equal(t, 1, must(ps.Stats()).Pages)
	})
}

func TestMemPageStoreClosed(t *testing.T) {
	ps := NewMemPageStore()
	tx := must(ps.Begin(false))
	require.NoError(t, tx.Rollback())
	if _, err := tx.Get(1); !errors.Is(err, ErrTxClosed) {
		t.Fatalf("Get after Rollback: err = %v, wanted ErrTxClosed", err)
	}
	require.NoError(t, ps.Close())
	if _, err := ps.Begin(false); err == nil {
		t.Fatalf("Begin after Close: err = nil, wanted error")
	}
}

func TestMemPageStoreUnallocatedPut(t *testing.T) {
	ps := NewMemPageStore()
	defer ps.Close()
	tx := must(ps.Begin(true))
	defer tx.Rollback()
	require.Error(t, tx.Put(99, []byte("x")))
}

func TestBoltPageStoreReadOnly(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "pages.db")
	ps := must(OpenBoltPageStore(fn, BoltOptions{IsTesting: true}))
	w := must(ps.Begin(true))
	id := must(w.Allocate())
	require.NoError(t, w.Put(id, []byte("keep")))
	require.NoError(t, w.Commit())
	require.NoError(t, ps.Close())

	ro, err := OpenBoltPageStore(fn, BoltOptions{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	tx := must(ro.Begin(false))
	defer tx.Rollback()
	require.Equal(t, []byte("keep"), must(tx.Get(id)))
	_, err = ro.Begin(true)
	require.Error(t, err)
}
