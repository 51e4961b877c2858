package ridbag

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

type Options struct {
	// Config defaults to DefaultConfig() when left zero.
	Config Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Verbose enables debug logging of every page written.
	Verbose bool

	// Resolver resolves placeholders not assigned within the committing
	// transaction. Optional.
	Resolver Resolver
}

// Store creates and loads bags whose trees live in a PageStore, and holds
// the page cache they share. A Store is safe for concurrent use; each Bag
// is not.
type Store struct {
	pages    PageStore
	cfg      Config
	logger   *slog.Logger
	verbose  bool
	resolver Resolver
	cache    *pageCache
	stats    storeCounters
}

type storeCounters struct {
	commits      atomic.Int64
	conflicts    atomic.Int64
	grows        atomic.Int64
	shrinks      atomic.Int64
	pagesWritten atomic.Int64
	pagesFreed   atomic.Int64
}

// Stats is a snapshot of store counters and page store usage.
type Stats struct {
	LivePages    int
	PageBytes    int64
	CachedPages  int
	CacheHits    int64
	CacheMisses  int64
	Commits      int64
	Conflicts    int64
	Grows        int64
	Shrinks      int64
	PagesWritten int64
	PagesFreed   int64
}

func New(pages PageStore, opt Options) (*Store, error) {
	cfg := opt.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Store{
		pages:    pages,
		cfg:      cfg,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		resolver: opt.Resolver,
		cache:    newPageCache(cfg.CachePages),
	}, nil
}

func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) PageStore() PageStore {
	return s.pages
}

// Close closes the underlying page store.
func (s *Store) Close() error {
	return s.pages.Close()
}

func (s *Store) Stats() Stats {
	st := Stats{
		CachedPages:  s.cache.len(),
		CacheHits:    s.cache.hits.Load(),
		CacheMisses:  s.cache.misses.Load(),
		Commits:      s.stats.commits.Load(),
		Conflicts:    s.stats.conflicts.Load(),
		Grows:        s.stats.grows.Load(),
		Shrinks:      s.stats.shrinks.Load(),
		PagesWritten: s.stats.pagesWritten.Load(),
		PagesFreed:   s.stats.pagesFreed.Load(),
	}
	if ps, err := s.pages.Stats(); err == nil {
		st.LivePages = ps.Pages
		st.PageBytes = ps.Bytes
	} else {
		st.LivePages = -1
	}
	return st
}

// NewBag returns an empty embedded bag.
func (s *Store) NewBag() *Bag {
	return &Bag{
		store:   s,
		rep:     representation{kind: kindEmbedded, embedded: &embeddedSet{}},
		changes: newChangeTracker(),
	}
}

// LoadBag reconstructs a bag from a payload produced by Bag.MarshalBinary.
// Tree pages are not read until needed.
func (s *Store) LoadBag(payload []byte) (*Bag, error) {
	rep, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("ridbag: %w", err)
	}
	return &Bag{
		store:   s,
		rep:     rep,
		changes: newChangeTracker(),
	}, nil
}

func (s *Store) reader(root PageID) func(PageID) *node {
	return func(id PageID) *node {
		return s.loadNode(nil, root, id)
	}
}

// LoadTree returns a tree-backed bag rooted at an existing page.
func (s *Store) LoadTree(root PageID) *Bag {
	return &Bag{
		store:   s,
		rep:     treeRep(root),
		changes: newChangeTracker(),
	}
}
