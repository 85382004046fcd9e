// Package changeset implements an editing session for one work package.
//
// A Changeset holds a working copy (the latest work package it was handed)
// and a set of pending field edits. Resource materialises the edits on top
// of the working copy; it is nil while nothing is edited. Save hands the
// edits to a Saver and, on success, adopts the saved work package.
//
// Hooks (Events) fire synchronously in the calling goroutine, after the
// changeset's own lock is released, so a hook may call back into the
// changeset.
package changeset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
)

// Saver persists pending edits and returns the resulting work package.
type Saver interface {
	SaveWorkPackage(ctx context.Context, wp *resource.WorkPackage, changes ir.Object) (*resource.WorkPackage, error)
}

// Events are the changeset notification hooks. A nil hook is skipped.
type Events struct {
	// OnSaved runs after a successful Save, once the saved work package is
	// the changeset's working copy.
	OnSaved func(ctx context.Context, cs *Changeset)

	// OnUpdated runs after any change to the pending edits.
	OnUpdated func(cs *Changeset)
}

// Merge returns e with every non-nil hook of override replacing the hook of
// the same name. Hooks are replaced, never chained.
func (e Events) Merge(override Events) Events {
	if override.OnSaved != nil {
		e.OnSaved = override.OnSaved
	}
	if override.OnUpdated != nil {
		e.OnUpdated = override.OnUpdated
	}
	return e
}

// Deps are the collaborators shared by every changeset of a service.
type Deps struct {
	Saver  Saver
	Schema *Schema // nil accepts any value
	Logger *slog.Logger
	IDs    IDGenerator
}

// Changeset is one in-progress editing session.
//
// Thread-safety: all methods are safe for concurrent use.
type Changeset struct {
	id     string
	deps   Deps
	events Events

	mu       sync.Mutex
	wp       *resource.WorkPackage
	changes  ir.Object
	resource *resource.WorkPackage // cached Resource(), reset on change
	saving   bool
}

// New creates a changeset seeded from wp.
func New(deps Deps, wp *resource.WorkPackage, events Events) *Changeset {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	return &Changeset{
		id:      deps.IDs.Generate(),
		deps:    deps,
		events:  events,
		wp:      wp,
		changes: ir.Object{},
	}
}

// ID returns the session id.
func (cs *Changeset) ID() string {
	return cs.id
}

// WorkPackage returns the working copy.
func (cs *Changeset) WorkPackage() *resource.WorkPackage {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.wp
}

// SetWorkPackage replaces the working copy. Every pending edit is kept and
// re-applied on top of wp, including edits that equal wp's values. No hook
// fires.
func (cs *Changeset) SetWorkPackage(wp *resource.WorkPackage) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.wp == wp {
		return
	}
	cs.wp = wp
	cs.resource = nil
}

// SetValue records an edit. A value equal to the working copy's value
// removes the edit instead.
func (cs *Changeset) SetValue(field string, v ir.Value) error {
	if v == nil {
		v = ir.Null{}
	}
	if cs.deps.Schema != nil {
		if err := cs.deps.Schema.ValidateField(field, v); err != nil {
			return err
		}
	}

	cs.mu.Lock()
	if cs.wp == nil {
		cs.mu.Unlock()
		return ErrNoWorkPackage
	}
	if base, ok := cs.wp.Field(field); ok && ir.Equal(base, v) {
		delete(cs.changes, field)
	} else {
		cs.changes[field] = ir.Clone(v)
	}
	cs.resource = nil
	cs.mu.Unlock()

	cs.fireUpdated()
	return nil
}

// Value returns the pending value of field, or the working copy's value.
func (cs *Changeset) Value(field string) (ir.Value, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if v, ok := cs.changes[field]; ok {
		return v, true
	}
	return cs.wp.Field(field)
}

// IsChanged reports whether field has a pending edit.
func (cs *Changeset) IsChanged(field string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.changes[field]
	return ok
}

// ResetField drops the pending edit of field. Unedited fields are a no-op.
func (cs *Changeset) ResetField(field string) {
	cs.mu.Lock()
	if _, ok := cs.changes[field]; !ok {
		cs.mu.Unlock()
		return
	}
	delete(cs.changes, field)
	cs.resource = nil
	cs.mu.Unlock()

	cs.fireUpdated()
}

// Clear drops every pending edit and fires OnUpdated.
func (cs *Changeset) Clear() {
	cs.mu.Lock()
	cs.changes = ir.Object{}
	cs.resource = nil
	cs.mu.Unlock()

	cs.fireUpdated()
}

// Changes returns a copy of the pending edits.
func (cs *Changeset) Changes() ir.Object {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.changes.Clone()
}

// IsEmpty reports whether there are no pending edits.
func (cs *Changeset) IsEmpty() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.changes) == 0
}

// Resource returns the working copy with pending edits applied, or nil when
// there are none. The result is cached until the next change and must not
// be mutated.
func (cs *Changeset) Resource() *resource.WorkPackage {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.changes) == 0 || cs.wp == nil {
		return nil
	}
	if cs.resource == nil {
		cs.resource = cs.wp.WithChanges(cs.changes)
	}
	return cs.resource
}

// Save persists the pending edits.
//
// Without edits Save returns the working copy and does not call the Saver.
// On success the saved work package becomes the working copy, the saved
// edits are dropped, and OnUpdated then OnSaved fire. On failure the edits
// are kept.
func (cs *Changeset) Save(ctx context.Context) (*resource.WorkPackage, error) {
	cs.mu.Lock()
	if cs.saving {
		cs.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	base := cs.wp
	if len(cs.changes) == 0 {
		cs.mu.Unlock()
		return base, nil
	}
	if cs.deps.Saver == nil {
		cs.mu.Unlock()
		return nil, ErrNoSaver
	}
	changes := cs.changes.Clone()
	cs.saving = true
	cs.mu.Unlock()

	saved, err := cs.save(ctx, base, changes)

	cs.mu.Lock()
	cs.saving = false
	if err != nil {
		cs.mu.Unlock()
		cs.deps.Logger.Warn("changeset save failed", "changeset", cs.id, "id", base.ID, "error", err)
		return nil, err
	}
	cs.wp = saved
	for k, v := range changes {
		if cur, ok := cs.changes[k]; ok && ir.Equal(cur, v) {
			delete(cs.changes, k)
		}
	}
	cs.pruneLocked()
	cs.resource = nil
	cs.mu.Unlock()

	cs.deps.Logger.Debug("changeset saved",
		"changeset", cs.id, "id", saved.ID, "lock_version", saved.LockVersion, "fields", len(changes))

	cs.fireUpdated()
	if cs.events.OnSaved != nil {
		cs.events.OnSaved(ctx, cs)
	}
	return saved, nil
}

func (cs *Changeset) save(ctx context.Context, base *resource.WorkPackage, changes ir.Object) (*resource.WorkPackage, error) {
	if cs.deps.Schema != nil {
		if err := cs.deps.Schema.Validate(changes); err != nil {
			return nil, err
		}
	}
	saved, err := cs.deps.Saver.SaveWorkPackage(ctx, base, changes)
	if err != nil {
		return nil, fmt.Errorf("changeset: save %s: %w", base.ID, err)
	}
	if saved == nil {
		return nil, fmt.Errorf("changeset: save %s: saver returned no work package", base.ID)
	}
	return saved, nil
}

// pruneLocked drops edits equal to the working copy. Caller must hold cs.mu.
func (cs *Changeset) pruneLocked() {
	if cs.wp == nil {
		return
	}
	for k, v := range cs.changes {
		if base, ok := cs.wp.Field(k); ok && ir.Equal(base, v) {
			delete(cs.changes, k)
		}
	}
}

func (cs *Changeset) fireUpdated() {
	if cs.events.OnUpdated != nil {
		cs.events.OnUpdated(cs)
	}
}
