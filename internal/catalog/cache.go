package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Loader produces a fresh catalog.
type Loader func(ctx context.Context) (*Catalog, error)

// Cache holds the process-wide catalog. Get loads it on first use; afterwards
// readers share the same immutable value without locking. A failed first
// load is remembered, except when the caller's context ended, so the next
// Get tries again. Reload swaps in a newly loaded catalog atomically.
type Cache struct {
	load Loader

	mu      sync.Mutex
	initErr error
	current atomic.Pointer[Catalog]
}

// NewCache returns a Cache backed by load.
func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// NewDirCache returns a Cache that loads the template root dir.
func NewDirCache(dir string) *Cache {
	return NewCache(func(ctx context.Context) (*Catalog, error) { return LoadDir(ctx, dir) })
}

// Get returns the cached catalog, loading it on first use.
func (c *Cache) Get(ctx context.Context) (*Catalog, error) {
	if cat := c.current.Load(); cat != nil {
		return cat, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cat := c.current.Load(); cat != nil {
		return cat, nil
	}
	if c.initErr != nil {
		return nil, c.initErr
	}
	cat, err := c.load(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.initErr = err
		}
		return nil, err
	}
	c.current.Store(cat)
	slog.Info("template catalog loaded", "masks", len(cat.Masks), "findings", len(cat.Findings))
	return cat, nil
}

// Reload loads the catalog again and replaces the cached value. On failure
// the previous catalog stays in place.
func (c *Cache) Reload(ctx context.Context) (*Catalog, error) {
	cat, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(cat)
	slog.Info("template catalog reloaded", "masks", len(cat.Masks), "findings", len(cat.Findings))
	return cat, nil
}

// Loaded reports whether a catalog is available.
func (c *Cache) Loaded() bool { return c.current.Load() != nil }
