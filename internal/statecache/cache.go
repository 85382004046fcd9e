// Package statecache implements a keyed cache of lazily loaded reactive
// values.
//
// Each key owns one reactive.State slot that moves through
// pristine -> pending -> loaded. The cache guarantees:
//   - At most one load in flight per key: concurrent Require/Reload calls
//     for a pending key share one loader call (singleflight).
//   - A failed load returns the slot to pristine, so it is retryable.
//   - Slot transitions happen under the cache lock; subscribers are notified
//     after it is released, in the caller's goroutine.
//
// Bulk loads (RequireAll) run per key with bounded concurrency and isolate
// failures: successful keys are cached and returned even when others fail.
package statecache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/wpedit/internal/reactive"
)

// ErrPending is returned by Ensure when the slot has a load in flight.
var ErrPending = errors.New("statecache: load pending")

// DefaultConcurrency bounds the number of loads RequireAll runs at once.
const DefaultConcurrency = 8

// LoadFunc fetches the value for one key. It is called on a cache miss and
// on forced reloads.
type LoadFunc[T any] func(ctx context.Context, id string) (T, error)

// Option configures a Cache.
type Option func(*config)

type config struct {
	name        string
	concurrency int
	logger      *slog.Logger
}

// WithName labels the cache in log records.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithConcurrency bounds RequireAll. n <= 0 removes the bound.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache maps string keys to reactive slots filled by a LoadFunc.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache[T any] struct {
	mu     sync.Mutex
	slots  map[string]*reactive.State[T]
	load   LoadFunc[T]
	flight singleflight.Group
	cfg    config
}

// New creates a cache backed by load.
func New[T any](load LoadFunc[T], opts ...Option) *Cache[T] {
	cfg := config{
		name:        "statecache",
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = -1
	}

	return &Cache[T]{
		slots: make(map[string]*reactive.State[T]),
		load:  load,
		cfg:   cfg,
	}
}

// slot returns the slot for id, creating a pristine one.
// Caller must hold c.mu.
func (c *Cache[T]) slot(id string) *reactive.State[T] {
	st, ok := c.slots[id]
	if !ok {
		st = reactive.NewState[T]()
		c.slots[id] = st
	}
	return st
}

// State returns the reactive slot for id without loading it.
func (c *Cache[T]) State(id string) *reactive.State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot(id)
}

// Status returns the slot status; unknown ids are pristine.
func (c *Cache[T]) Status(id string) reactive.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.slots[id]
	if !ok {
		return reactive.StatusPristine
	}
	return st.Status()
}

// Value returns the cached value for id without loading it.
func (c *Cache[T]) Value(id string) (T, bool) {
	c.mu.Lock()
	st, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	return st.Value()
}

// IDs returns the loaded keys in sorted order.
func (c *Cache[T]) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.slots))
	for id, st := range c.slots {
		if st.Status() == reactive.StatusLoaded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Ensure returns the loaded value for id, or stores create() if the slot is
// pristine. created reports whether create ran. A pending slot yields
// ErrPending: Ensure never waits for a load.
//
// create runs under the cache lock and must not call back into the cache.
func (c *Cache[T]) Ensure(id string, create func() T) (value T, created bool, err error) {
	var zero T
	if id == "" {
		return zero, false, ErrEmptyID
	}

	c.mu.Lock()
	st := c.slot(id)
	switch st.Status() {
	case reactive.StatusLoaded:
		v, _ := st.Value()
		c.mu.Unlock()
		return v, false, nil
	case reactive.StatusPending:
		c.mu.Unlock()
		return zero, false, ErrPending
	}

	v := create()
	st.Store(v)
	c.mu.Unlock()

	st.Notify()
	return v, true, nil
}

// Require returns the value for id, loading it on a miss.
func (c *Cache[T]) Require(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, ErrEmptyID
	}

	c.mu.Lock()
	st := c.slot(id)
	if v, ok := st.Value(); ok {
		c.mu.Unlock()
		return v, nil
	}
	st.MarkPending()
	c.mu.Unlock()

	return c.fetch(ctx, id, false)
}

// Reload forces a load for id. A loaded slot keeps serving its current
// value until the reload resolves; a failed reload leaves it untouched.
func (c *Cache[T]) Reload(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, ErrEmptyID
	}

	c.mu.Lock()
	c.slot(id).MarkPending()
	c.mu.Unlock()

	return c.fetch(ctx, id, true)
}

// fetch runs the loader through singleflight so a key has at most one load
// in flight. The first caller's ctx drives the shared load.
//
// The slot is marked pending before the loader runs, so Ensure cannot
// create a value while a load is in flight. A load result is stored only if
// the slot did not change during the load: a value pushed by UpdateValue or
// Ensure wins over the loader's, and a Clear is not undone.
func (c *Cache[T]) fetch(ctx context.Context, id string, force bool) (T, error) {
	res, err, _ := c.flight.Do(id, func() (any, error) {
		c.mu.Lock()
		st := c.slot(id)
		// A caller that saw the slot pending may reach Do after the load it
		// waited for already finished.
		if v, ok := st.Value(); ok && !force {
			c.mu.Unlock()
			return v, nil
		}
		st.MarkPending()
		version := st.Version()
		c.mu.Unlock()

		v, err := c.load(ctx, id)

		c.mu.Lock()
		if st.Version() != version {
			current, ok := st.Value()
			c.mu.Unlock()
			c.cfg.logger.Debug("load superseded", "cache", c.cfg.name, "id", id, "loaded", ok)
			if ok {
				return current, nil
			}
			if err != nil {
				return nil, &LoadError{ID: id, Err: err}
			}
			return v, nil
		}
		if err != nil {
			if st.Status() == reactive.StatusPending {
				st.Reset()
			}
			c.mu.Unlock()
			c.cfg.logger.Debug("load failed", "cache", c.cfg.name, "id", id, "error", err)
			return nil, &LoadError{ID: id, Err: err}
		}
		st.Store(v)
		c.mu.Unlock()

		st.Notify()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// RequireAll loads every id independently and waits for all of them.
//
// Failures are isolated: the returned map holds every id that resolved,
// and a *BatchError names the ids that did not. Values for successful ids
// are cached regardless of other ids failing.
func (c *Cache[T]) RequireAll(ctx context.Context, ids []string) (map[string]T, error) {
	var (
		mu       sync.Mutex
		results  = make(map[string]T, len(ids))
		failures []*LoadError
		g        errgroup.Group
		seen     = make(map[string]struct{}, len(ids))
	)
	g.SetLimit(c.cfg.concurrency)

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		id := id
		g.Go(func() error {
			v, err := c.Require(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var le *LoadError
				if !errors.As(err, &le) {
					le = &LoadError{ID: id, Err: err}
				}
				failures = append(failures, le)
				return nil
			}
			results[id] = v
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
		return results, &BatchError{Errors: failures}
	}
	return results, nil
}

// UpdateValue stores v for id and notifies subscribers.
func (c *Cache[T]) UpdateValue(id string, v T) {
	c.mu.Lock()
	st := c.slot(id)
	st.Store(v)
	c.mu.Unlock()

	st.Notify()
}

// Clear returns the slot for id to pristine and notifies subscribers.
// Unknown ids are ignored.
func (c *Cache[T]) Clear(id string) {
	c.mu.Lock()
	st, ok := c.slots[id]
	if ok {
		st.Reset()
	}
	c.mu.Unlock()

	if ok {
		st.Notify()
	}
}
