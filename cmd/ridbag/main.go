package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fulldump/goconfig"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/andreyvit/ridbag"
)

type Config struct {
	Db      string `usage:"Bolt page store file"`
	Root    uint64 `usage:"root page of the tree to inspect"`
	Mode    string `usage:"dump, check, stats or json"`
	Verbose bool   `usage:"log debug messages"`
}

func main() {
	c := Config{Mode: "dump"}
	goconfig.Read(&c)

	if err := run(context.Background(), c, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ridbag: %v\n", err)
		os.Exit(1)
	}
}

type jsonEntry struct {
	RID   string `json:"rid"`
	Count int    `json:"count"`
}

type jsonStats struct {
	Pages int       `json:"pages"`
	Bytes int64     `json:"bytes"`
	Tree  *jsonTree `json:"tree,omitempty"`
}

type jsonTree struct {
	Height  int    `json:"height"`
	Pages   int    `json:"pages"`
	Entries int    `json:"entries"`
	Total   uint64 `json:"total"`
}

func run(ctx context.Context, c Config, w io.Writer) error {
	if c.Db == "" {
		return fmt.Errorf("-db is required")
	}
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	pages, err := ridbag.OpenBoltPageStore(c.Db, ridbag.BoltOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	store, err := ridbag.New(pages, ridbag.Options{Logger: logger, Verbose: c.Verbose})
	if err != nil {
		pages.Close()
		return err
	}
	defer store.Close()

	root := ridbag.PageID(c.Root)
	needRoot := func() error {
		if root == 0 {
			return fmt.Errorf("-root is required for -mode %s", c.Mode)
		}
		return nil
	}

	switch c.Mode {
	case "dump":
		if err := needRoot(); err != nil {
			return err
		}
		_, err := io.WriteString(w, store.DumpTree(root, ridbag.DumpAll))
		return err

	case "check":
		if err := needRoot(); err != nil {
			return err
		}
		ts, err := store.Check(ctx, root)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "ok: height = %d, pages = %d, entries = %d, total = %d\n", ts.Height, ts.Pages, ts.Entries, ts.Total)
		return err

	case "stats":
		st := store.Stats()
		out := jsonStats{Pages: st.LivePages, Bytes: st.PageBytes}
		if root != 0 {
			ts, err := store.Check(ctx, root)
			if err != nil {
				return err
			}
			out.Tree = &jsonTree{ts.Height, ts.Pages, ts.Entries, ts.Total}
		}
		return writeJSON(w, out)

	case "json":
		if err := needRoot(); err != nil {
			return err
		}
		bag := store.LoadTree(root)
		var entries []jsonEntry
		it := bag.Iter()
		for it.Next() {
			s := it.Ref().String()
			if k := len(entries); k > 0 && entries[k-1].RID == s {
				entries[k-1].Count++
			} else {
				entries = append(entries, jsonEntry{s, 1})
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
		return writeJSON(w, entries)

	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
}

func writeJSON(w io.Writer, v any) error {
	if err := json.MarshalWrite(w, v, jsontext.WithIndent("    ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
