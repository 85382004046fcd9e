// Package activity caches the journal (activity) entries of work packages.
//
// Journals are loaded lazily per work package. Saving a work package makes
// its cached journals stale; the save hook calls Clear so the next read
// refetches.
package activity

import (
	"context"
	"log/slog"

	"github.com/roach88/wpedit/internal/reactive"
	"github.com/roach88/wpedit/internal/resource"
	"github.com/roach88/wpedit/internal/statecache"
)

// Source lists the journals of one work package.
type Source interface {
	ListJournals(ctx context.Context, workPackageID string) ([]resource.Journal, error)
}

// Cache holds per-work-package journal lists.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	source  Source
	entries *statecache.Cache[[]resource.Journal]
	logger  *slog.Logger
}

// New creates a journal cache over source. A nil logger means
// slog.Default().
func New(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{source: source, logger: logger}
	c.entries = statecache.New(c.load,
		statecache.WithName("journals"),
		statecache.WithLogger(logger),
	)
	return c
}

func (c *Cache) load(ctx context.Context, id string) ([]resource.Journal, error) {
	return c.source.ListJournals(ctx, id)
}

// Journals returns the journals of a work package, loading them on a miss.
func (c *Cache) Journals(ctx context.Context, id string) ([]resource.Journal, error) {
	return c.entries.Require(ctx, id)
}

// State returns the observable journal slot for id without loading it.
func (c *Cache) State(id string) reactive.Observable[[]resource.Journal] {
	return c.entries.State(id)
}

// Clear drops the cached journals of id. Subscribers observe the slot
// becoming absent; the next Journals call refetches.
func (c *Cache) Clear(id string) {
	c.logger.Debug("activity cleared", "id", id)
	c.entries.Clear(id)
}
