// Package testutil provides recording fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/wpedit/internal/reactive"
	"github.com/roach88/wpedit/internal/resource"
)

// ErrNotFound is returned by FakeSource.Require for unknown ids.
var ErrNotFound = errors.New("testutil: work package not found")

// LoadCall records one LoadWorkPackage call.
type LoadCall struct {
	ID    string
	Force bool
}

// FakeSource is an in-memory EntitySource that records every call.
//
// Work packages added with Add are known to Require but not yet visible in
// State; Put makes them visible immediately, as if already loaded.
//
// Thread-safety: safe for concurrent use.
type FakeSource struct {
	mu       sync.Mutex
	known    map[string]*resource.WorkPackage
	failures map[string]error
	states   map[string]*reactive.State[*resource.WorkPackage]

	requires []string
	loads    []LoadCall
	updates  []string
}

// NewFakeSource creates a source that knows wps.
func NewFakeSource(wps ...*resource.WorkPackage) *FakeSource {
	f := &FakeSource{
		known:    make(map[string]*resource.WorkPackage),
		failures: make(map[string]error),
		states:   make(map[string]*reactive.State[*resource.WorkPackage]),
	}
	for _, wp := range wps {
		f.known[wp.ID] = wp
	}
	return f
}

func (f *FakeSource) state(id string) *reactive.State[*resource.WorkPackage] {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	if !ok {
		st = reactive.NewState[*resource.WorkPackage]()
		f.states[id] = st
	}
	return st
}

// Add makes wp known to Require without publishing it.
func (f *FakeSource) Add(wp *resource.WorkPackage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[wp.ID] = wp
}

// Put makes wp known and publishes it to State subscribers. It is not
// recorded as an update.
func (f *FakeSource) Put(wp *resource.WorkPackage) {
	f.Add(wp)
	f.state(wp.ID).PutValue(wp)
}

// Remove forgets id and publishes it as absent.
func (f *FakeSource) Remove(id string) {
	f.mu.Lock()
	delete(f.known, id)
	f.mu.Unlock()
	f.state(id).Clear()
}

// Fail makes Require and LoadWorkPackage for id return err. A nil err
// removes the failure.
func (f *FakeSource) Fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, id)
		return
	}
	f.failures[id] = err
}

// State implements EntitySource.
func (f *FakeSource) State(id string) reactive.Observable[*resource.WorkPackage] {
	return f.state(id)
}

// Require implements EntitySource. A known work package is published to
// State before it is returned.
func (f *FakeSource) Require(_ context.Context, id string) (*resource.WorkPackage, error) {
	f.mu.Lock()
	f.requires = append(f.requires, id)
	wp, ok := f.known[id]
	err := f.failures[id]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("require %s: %w", id, ErrNotFound)
	}
	if _, loaded := f.state(id).Value(); !loaded {
		f.state(id).PutValue(wp)
	}
	return wp, nil
}

// LoadWorkPackage implements EntitySource.
func (f *FakeSource) LoadWorkPackage(_ context.Context, id string, force bool) error {
	f.mu.Lock()
	f.loads = append(f.loads, LoadCall{ID: id, Force: force})
	wp, ok := f.known[id]
	err := f.failures[id]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	f.state(id).PutValue(wp)
	return nil
}

// UpdateWorkPackage implements EntitySource.
func (f *FakeSource) UpdateWorkPackage(wp *resource.WorkPackage) {
	f.mu.Lock()
	f.updates = append(f.updates, wp.ID)
	f.known[wp.ID] = wp
	f.mu.Unlock()

	f.state(wp.ID).PutValue(wp)
}

// Requires returns the ids passed to Require, in call order.
func (f *FakeSource) Requires() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requires...)
}

// Loads returns the LoadWorkPackage calls, in call order.
func (f *FakeSource) Loads() []LoadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LoadCall(nil), f.loads...)
}

// Updates returns the ids passed to UpdateWorkPackage, in call order.
func (f *FakeSource) Updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

// FakeActivity records Clear calls. With PanicOnClear set, Clear records
// the call and then panics.
type FakeActivity struct {
	mu           sync.Mutex
	cleared      []string
	PanicOnClear bool
}

// Clear implements editing.Activity.
func (a *FakeActivity) Clear(id string) {
	a.mu.Lock()
	a.cleared = append(a.cleared, id)
	panicking := a.PanicOnClear
	a.mu.Unlock()

	if panicking {
		panic("activity clear failed")
	}
}

// Cleared returns the ids passed to Clear, in call order.
func (a *FakeActivity) Cleared() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.cleared...)
}
