// Package wpcache holds the canonical, last-known-good work packages.
//
// Each id owns one reactive slot filled by a Fetcher. Consumers observe the
// slot through State; writers push fresh snapshots with UpdateWorkPackage or
// ask for a refetch with LoadWorkPackage.
package wpcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/wpedit/internal/reactive"
	"github.com/roach88/wpedit/internal/resource"
	"github.com/roach88/wpedit/internal/statecache"
)

// ErrNotFound is returned when the fetcher reports no work package for an id.
var ErrNotFound = errors.New("wpcache: work package not found")

// Fetcher loads one work package. Implementations return an error wrapping
// ErrNotFound (or their own not-found sentinel) for unknown ids.
type Fetcher interface {
	GetWorkPackage(ctx context.Context, id string) (*resource.WorkPackage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (*resource.WorkPackage, error)

// GetWorkPackage implements Fetcher.
func (f FetcherFunc) GetWorkPackage(ctx context.Context, id string) (*resource.WorkPackage, error) {
	return f(ctx, id)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	concurrency int
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrency bounds bulk loads.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// Cache is the canonical work package cache.
type Cache struct {
	fetcher Fetcher
	states  *statecache.Cache[*resource.WorkPackage]
	logger  *slog.Logger
}

// New creates a cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	o := options{logger: slog.Default(), concurrency: statecache.DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{fetcher: fetcher, logger: o.logger}
	c.states = statecache.New(c.fetch,
		statecache.WithName("work_packages"),
		statecache.WithConcurrency(o.concurrency),
		statecache.WithLogger(o.logger),
	)
	return c
}

func (c *Cache) fetch(ctx context.Context, id string) (*resource.WorkPackage, error) {
	wp, err := c.fetcher.GetWorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	if wp == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return wp, nil
}

// State returns the observable slot for id. It does not trigger a load.
func (c *Cache) State(id string) reactive.Observable[*resource.WorkPackage] {
	return c.states.State(id)
}

// Value returns the cached work package without loading it.
func (c *Cache) Value(id string) (*resource.WorkPackage, bool) {
	return c.states.Value(id)
}

// Require returns the work package for id, fetching it on a miss.
func (c *Cache) Require(ctx context.Context, id string) (*resource.WorkPackage, error) {
	return c.states.Require(ctx, id)
}

// RequireAll fetches every id; see statecache.Cache.RequireAll.
func (c *Cache) RequireAll(ctx context.Context, ids []string) (map[string]*resource.WorkPackage, error) {
	return c.states.RequireAll(ctx, ids)
}

// LoadWorkPackage loads id. With force it refetches even when a snapshot is
// cached; the old snapshot stays visible until the new one arrives.
func (c *Cache) LoadWorkPackage(ctx context.Context, id string, force bool) error {
	var err error
	if force {
		_, err = c.states.Reload(ctx, id)
	} else {
		_, err = c.states.Require(ctx, id)
	}
	if err != nil {
		c.logger.Warn("work package load failed", "id", id, "force", force, "error", err)
	}
	return err
}

// UpdateWorkPackage replaces the cached snapshot with wp and notifies
// subscribers. A nil wp or one without an id is ignored.
func (c *Cache) UpdateWorkPackage(wp *resource.WorkPackage) {
	if wp == nil || wp.ID == "" {
		return
	}
	c.states.UpdateValue(wp.ID, wp)
}

// Forget drops the cached snapshot for id.
func (c *Cache) Forget(id string) {
	c.states.Clear(id)
}
