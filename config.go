package ridbag

import "fmt"

// Config holds the process-wide tuning of bags. It is passed to a Store
// explicitly and shared by every bag the store creates or loads.
type Config struct {
	// GrowThreshold is the size at which an embedded bag is converted to a
	// tree when persisted. Negative disables conversion to trees.
	GrowThreshold int

	// ShrinkThreshold is the size at or below which a tree-backed bag is
	// converted back to embedded when persisted. Negative disables it.
	ShrinkThreshold int

	// PageCapacity bounds entries per leaf page and children per branch page.
	PageCapacity int

	// CachePages is the number of decoded pages kept in the store's cache.
	CachePages int

	Compression Compression
}

const (
	DefaultGrowThreshold   = 40
	DefaultShrinkThreshold = -1
	DefaultPageCapacity    = 128
	DefaultCachePages      = 4096

	minPageCapacity = 4
	maxPageCapacity = 64 * 1024
)

func DefaultConfig() Config {
	return Config{
		GrowThreshold:   DefaultGrowThreshold,
		ShrinkThreshold: DefaultShrinkThreshold,
		PageCapacity:    DefaultPageCapacity,
		CachePages:      DefaultCachePages,
	}
}

func (c Config) Validate() error {
	if c.GrowThreshold >= 0 && c.ShrinkThreshold >= c.GrowThreshold {
		return fmt.Errorf("ridbag: shrink threshold %d must be less than grow threshold %d", c.ShrinkThreshold, c.GrowThreshold)
	}
	if c.PageCapacity < minPageCapacity || c.PageCapacity > maxPageCapacity {
		return fmt.Errorf("ridbag: page capacity %d out of range [%d, %d]", c.PageCapacity, minPageCapacity, maxPageCapacity)
	}
	if c.CachePages < 0 {
		return fmt.Errorf("ridbag: negative cache size %d", c.CachePages)
	}
	if !c.Compression.valid() {
		return fmt.Errorf("ridbag: unsupported compression %d", c.Compression)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PageCapacity == 0 {
		c.PageCapacity = DefaultPageCapacity
	}
	if c.CachePages == 0 {
		c.CachePages = DefaultCachePages
	}
	return c
}

func (c Config) shouldGrow(n int) bool {
	return c.GrowThreshold >= 0 && n >= c.GrowThreshold
}

func (c Config) shouldShrink(n int) bool {
	return c.ShrinkThreshold >= 0 && n <= c.ShrinkThreshold
}
