package ridbag

// PageStore is the persistent home of tree pages (Bolt, in-memory, etc.).
//
// A store admits one writable transaction at a time; read-only transactions
// see a consistent snapshot and never observe a partially written page.
// Ids of committed pages are never handed out again by Allocate, even after
// Free.
type PageStore interface {
	// Begin starts a new transaction.
	Begin(writable bool) (PageTx, error)
	// Stats reports the number of live pages and their total size.
	Stats() (PageStoreStats, error)
	// Close closes the storage.
	Close() error
}

// PageTx is a page store transaction.
type PageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Get returns the contents of a page, or nil if there is no such page.
	// The returned slice is only valid until the end of the transaction.
	Get(id PageID) ([]byte, error)

	// Allocate reserves a new page id.
	Allocate() (PageID, error)

	// Put stores the contents of a previously allocated page.
	Put(id PageID, data []byte) error

	// Free releases a page. Freeing a page that does not exist is not an error.
	Free(id PageID) error

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error
}

type PageStoreStats struct {
	Pages int
	Bytes int64
}
