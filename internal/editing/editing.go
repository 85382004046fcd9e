// Package editing keeps at most one editing session (changeset) per work
// package and derives the merged, read-only view of a work package with its
// pending edits applied.
//
// A Service owns the session cache. It reads canonical work packages from
// an EntitySource and wires two default hooks into every changeset it
// creates:
//
//   - OnUpdated pushes the changeset back into the session cache, so
//     observers of the session (and of TemporaryEditResource) see edits
//     before they are saved.
//   - OnSaved clears the work package's activity, schedules a forced reload
//     of its parent and pushes the saved work package into the EntitySource.
//
// Caller-supplied hooks replace the default of the same name. They are not
// chained.
package editing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/engine"
	"github.com/roach88/wpedit/internal/reactive"
	"github.com/roach88/wpedit/internal/resource"
	"github.com/roach88/wpedit/internal/statecache"
)

// EntitySource provides canonical work package snapshots.
type EntitySource interface {
	// State returns the observable snapshot of id without loading it.
	State(id string) reactive.Observable[*resource.WorkPackage]

	// Require returns the work package, fetching it on a miss. It fails if
	// the work package does not exist.
	Require(ctx context.Context, id string) (*resource.WorkPackage, error)

	// LoadWorkPackage loads id, refetching when force is set.
	LoadWorkPackage(ctx context.Context, id string, force bool) error

	// UpdateWorkPackage pushes a fresh snapshot to every observer.
	UpdateWorkPackage(wp *resource.WorkPackage)
}

// Activity holds per work package activity state that a save invalidates.
type Activity interface {
	Clear(id string)
}

// ErrorHandler observes failures of the default save hook steps.
type ErrorHandler func(err *HookError)

// Option configures a Service.
type Option func(*Service)

// WithScheduler sets the scheduler used for parent reloads. Defaults to an
// engine.Detached, so a save never waits for the reload. Pass an
// engine.Immediate to run reloads inline.
func WithScheduler(s engine.Scheduler) Option {
	return func(svc *Service) {
		if s != nil {
			svc.scheduler = s
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithErrorHandler registers fn to observe save hook failures after they
// are logged.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(svc *Service) {
		svc.onError = fn
	}
}

// WithConcurrency bounds LoadAll. n <= 0 removes the bound.
func WithConcurrency(n int) Option {
	return func(svc *Service) {
		svc.concurrency = n
	}
}

// Service is the editing session cache.
//
// Thread-safety: all methods are safe for concurrent use. Hooks and
// subscribers run synchronously in the goroutine that triggered them.
type Service struct {
	source    EntitySource
	activity  Activity
	deps      changeset.Deps
	scheduler engine.Scheduler
	logger    *slog.Logger
	onError   ErrorHandler

	concurrency int
	sessions    *statecache.Cache[*changeset.Changeset]
}

// New creates a Service. activity may be nil. deps are handed to every
// changeset the service creates.
func New(source EntitySource, activity Activity, deps changeset.Deps, opts ...Option) *Service {
	s := &Service{
		source:      source,
		activity:    activity,
		deps:        deps,
		logger:      slog.Default(),
		concurrency: statecache.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = engine.NewDetached(engine.WithLogger(s.logger))
	}
	if s.deps.Logger == nil {
		s.deps.Logger = s.logger
	}

	s.sessions = statecache.New(s.load,
		statecache.WithName("changesets"),
		statecache.WithConcurrency(s.concurrency),
		statecache.WithLogger(s.logger),
	)
	return s
}

// ChangesetFor starts or continues editing wp.
//
// The first call for an id creates a changeset seeded from wp, with the
// default hooks overridden by the non-nil hooks of events. Later calls
// return the same changeset; their events are ignored. Every call points
// the changeset at wp before returning it.
//
// ChangesetFor never waits for a load: while the session of wp.ID is
// loading it returns ErrLoadPending.
func (s *Service) ChangesetFor(wp *resource.WorkPackage, events changeset.Events) (*changeset.Changeset, error) {
	if wp == nil || wp.ID == "" {
		return nil, ErrMissingID
	}

	cs, created, err := s.sessions.Ensure(wp.ID, func() *changeset.Changeset {
		return changeset.New(s.deps, wp, s.defaultEvents().Merge(events))
	})
	if err != nil {
		if errors.Is(err, statecache.ErrPending) {
			return nil, fmt.Errorf("%w: %s", ErrLoadPending, wp.ID)
		}
		return nil, err
	}
	if created {
		s.logger.Debug("changeset created", "id", wp.ID, "changeset", cs.ID())
	}

	cs.SetWorkPackage(wp)
	return cs, nil
}

// StopEditing discards the pending edits of id. The session stays cached.
// Ids without a session are ignored.
func (s *Service) StopEditing(id string) {
	cs, ok := s.sessions.Value(id)
	if !ok || cs == nil {
		return
	}
	cs.Clear()
}

// Require returns the session of id, creating it from the canonical work
// package on a miss. A failed load leaves the session retryable.
func (s *Service) Require(ctx context.Context, id string) (*changeset.Changeset, error) {
	return s.sessions.Require(ctx, id)
}

// Reload replaces the session of id with a fresh one built from the
// canonical work package. Pending edits of the old session are dropped.
func (s *Service) Reload(ctx context.Context, id string) (*changeset.Changeset, error) {
	return s.sessions.Reload(ctx, id)
}

// LoadAll requires the session of every id. Each id loads independently:
// the returned map holds every session that resolved, and a
// *statecache.BatchError names the ids that did not.
func (s *Service) LoadAll(ctx context.Context, ids []string) (map[string]*changeset.Changeset, error) {
	return s.sessions.RequireAll(ctx, ids)
}

// State returns the observable session slot of id without loading it.
func (s *Service) State(id string) reactive.Observable[*changeset.Changeset] {
	return s.sessions.State(id)
}

// Sessions returns the ids with a cached session, sorted.
func (s *Service) Sessions() []string {
	return s.sessions.IDs()
}

// load builds a session from the canonical work package with the default
// hooks only.
func (s *Service) load(ctx context.Context, id string) (*changeset.Changeset, error) {
	wp, err := s.source.Require(ctx, id)
	if err != nil {
		return nil, err
	}
	return changeset.New(s.deps, wp, s.defaultEvents()), nil
}
