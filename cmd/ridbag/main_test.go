package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulldump/biff"
	"github.com/go-json-experiment/json"

	"github.com/andreyvit/ridbag"
)

// makeTree writes a tree-backed bag into a fresh Bolt file and returns the
// file name and the tree root.
func makeTree(t *testing.T) (string, uint64) {
	fn := filepath.Join(t.TempDir(), "pages.db")
	pages, err := ridbag.OpenBoltPageStore(fn, ridbag.BoltOptions{IsTesting: true})
	biff.AssertNil(err)
	store, err := ridbag.New(pages, ridbag.Options{Config: ridbag.Config{
		GrowThreshold:   0,
		ShrinkThreshold: -1,
		PageCapacity:    4,
	}})
	biff.AssertNil(err)

	bag := store.NewBag()
	for i := range 20 {
		bag.Add(ridbag.RID{Cluster: 3, Pos: int64(i)})
	}
	bag.Add(ridbag.RID{Cluster: 3, Pos: 5})
	_, err = bag.Persist(context.Background())
	biff.AssertNil(err)
	root := uint64(bag.Root())
	biff.AssertNil(store.Close())
	return fn, root
}

func TestRunJSON(t *testing.T) {
	fn, root := makeTree(t)
	var out bytes.Buffer
	biff.AssertNil(run(context.Background(), Config{Db: fn, Root: root, Mode: "json"}, &out))

	var entries []jsonEntry
	biff.AssertNil(json.Unmarshal(out.Bytes(), &entries))
	biff.AssertEqual(len(entries), 20)
	biff.AssertEqual(entries[0], jsonEntry{"#3:0", 1})
	biff.AssertEqual(entries[5], jsonEntry{"#3:5", 2})
	biff.AssertEqual(entries[19], jsonEntry{"#3:19", 1})
}

func TestRunCheckAndStats(t *testing.T) {
	fn, root := makeTree(t)
	ctx := context.Background()

	var out bytes.Buffer
	biff.AssertNil(run(ctx, Config{Db: fn, Root: root, Mode: "check"}, &out))
	biff.AssertTrue(strings.HasPrefix(out.String(), "ok: "))
	biff.AssertTrue(strings.Contains(out.String(), "entries = 20, total = 21"))

	out.Reset()
	biff.AssertNil(run(ctx, Config{Db: fn, Root: root, Mode: "stats"}, &out))
	var st jsonStats
	biff.AssertNil(json.Unmarshal(out.Bytes(), &st))
	biff.AssertEqual(st.Tree.Entries, 20)
	biff.AssertEqual(st.Tree.Pages, st.Pages)

	out.Reset()
	biff.AssertNil(run(ctx, Config{Db: fn, Root: root, Mode: "dump"}, &out))
	biff.AssertTrue(strings.Contains(out.String(), "#3:5 x2"))
}

func TestRunErrors(t *testing.T) {
	fn, _ := makeTree(t)
	ctx := context.Background()
	var out bytes.Buffer
	biff.AssertTrue(run(ctx, Config{Mode: "dump"}, &out) != nil)
	biff.AssertTrue(run(ctx, Config{Db: fn, Mode: "dump"}, &out) != nil)
	biff.AssertTrue(run(ctx, Config{Db: fn, Root: 1, Mode: "bogus"}, &out) != nil)
	biff.AssertTrue(run(ctx, Config{Db: fn, Root: 999999, Mode: "check"}, &out) != nil)
}
