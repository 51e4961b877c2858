package ridbag

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
)

// small pages and thresholds, so that trees of a few dozen entries have
// several levels
var smallConfig = Config{
	GrowThreshold:   7,
	ShrinkThreshold: 4,
	PageCapacity:    4,
}

// treeConfig makes every persisted bag tree-backed
var treeConfig = Config{
	GrowThreshold:   0,
	ShrinkThreshold: -1,
	PageCapacity:    4,
}

func setup(t testing.TB, cfg Config) *Store {
	t.Helper()
	var pages PageStore
	if testing.Short() {
		pages = NewMemPageStore()
	} else {
		fn := filepath.Join(t.TempDir(), "pages.db")
		t.Logf("DB: %s", fn)
		pages = must(OpenBoltPageStore(fn, BoltOptions{IsTesting: true}))
	}
	s := must(New(pages, Options{
		Config:  cfg,
		Logger:  testLogger(t),
		Verbose: true,
	}))
	t.Cleanup(func() {
		ensure(s.Close())
	})
	return s
}

func testLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct {
	t testing.TB
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.t.Log(string(b[:len(b)-1]))
	return len(b), nil
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func r(cluster int32, pos int64) RID {
	return RID{cluster, pos}
}

// contents returns the multiplicities seen by a full iteration, verifying
// that occurrences of a reference are consecutive.
func contents(t testing.TB, b *Bag) map[Ref]int {
	t.Helper()
	m := make(map[Ref]int)
	var prev Ref
	it := b.Iter()
	for it.Next() {
		ref := it.Ref()
		if ref != prev && m[ref] > 0 {
			t.Fatalf("** %v occurs again after %v", ref, prev)
		}
		m[ref]++
		prev = ref
	}
	if err := it.Err(); err != nil {
		t.Fatalf("** iteration failed: %v", err)
	}
	return m
}

func persist(t testing.TB, b *Bag) []byte {
	t.Helper()
	payload, err := b.Persist(context.Background())
	if err != nil {
		t.Fatalf("** Persist failed: %v", err)
	}
	return payload
}

func livePages(t testing.TB, s *Store) int {
	t.Helper()
	ps, err := s.pages.Stats()
	if err != nil {
		t.Fatalf("** Stats failed: %v", err)
	}
	return ps.Pages
}

// corruptPage flips the last byte of a stored page and drops it from the
// cache.
func corruptPage(t testing.TB, s *Store, id PageID) {
	t.Helper()
	ptx := must(s.pages.Begin(true))
	data := slices.Clone(must(ptx.Get(id)))
	if data == nil {
		t.Fatalf("** page %d not found", id)
	}
	data[len(data)-1] ^= 0xFF
	ensure(ptx.Put(id, data))
	ensure(ptx.Commit())
	s.cache.remove(id)
}

func fill(b *Bag, cluster int32, n int) {
	for i := range n {
		b.Add(r(cluster, int64(i)))
	}
}

// flakyPageStore fails write transactions while failWrites is set.
type flakyPageStore struct {
	PageStore
	failWrites bool
}

var errFlaky = errors.New("write transactions disabled")

func (s *flakyPageStore) Begin(writable bool) (PageTx, error) {
	if writable && s.failWrites {
		return nil, errFlaky
	}
	return s.PageStore.Begin(writable)
}
