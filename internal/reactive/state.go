// Package reactive provides the value cells the caches are built from.
//
// A State is a single value slot with a load status and synchronous
// subscribers. Combine derives a read-only value from two observables.
//
// NOTIFICATION MODEL:
// Writers change a State in two phases: Store/MarkPending/Reset mutate the
// cell under its lock, Notify delivers the current value to subscribers in
// the caller's goroutine after the lock is released. Owners that guard
// several cells with an outer lock (statecache.Cache) mutate under that lock
// and notify after releasing it, so subscribers may call back into the owner.
// PutValue and Clear combine both phases for standalone use.
package reactive

import "sync"

// Status is the load state of a State.
type Status int

const (
	// StatusPristine means the cell was never populated (or was reset).
	StatusPristine Status = iota
	// StatusPending means a load is in flight and no value is present.
	StatusPending
	// StatusLoaded means the cell holds a value.
	StatusLoaded
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPristine:
		return "pristine"
	case StatusPending:
		return "pending"
	case StatusLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Observable is the read-only side of a reactive value.
type Observable[T any] interface {
	// Value returns the current value and whether one is present.
	Value() (T, bool)

	// Subscribe calls fn with the current value immediately and again on
	// every change. The returned function cancels the subscription.
	Subscribe(fn func(v T, ok bool)) (cancel func())
}

type subscription[T any] struct {
	id uint64
	fn func(T, bool)
}

// State is a reactive value cell.
//
// Thread-safety: all methods are safe for concurrent use.
type State[T any] struct {
	mu      sync.Mutex
	value   T
	status  Status
	version int64
	subs    []subscription[T]
	nextSub uint64
}

// NewState returns a pristine cell.
func NewState[T any]() *State[T] {
	return &State[T]{}
}

// Value returns the current value; ok is true only when loaded.
func (s *State[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.status == StatusLoaded
}

// Status returns the load status.
func (s *State[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsPristine reports whether the cell was never populated.
func (s *State[T]) IsPristine() bool {
	return s.Status() == StatusPristine
}

// Version increments on every mutation. Useful to detect missed updates.
func (s *State[T]) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Store sets the value and marks the cell loaded without notifying.
func (s *State[T]) Store(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.status = StatusLoaded
	s.version++
}

// MarkPending moves a pristine cell to pending. Loaded cells keep their
// value (a forced reload leaves the old value visible until it resolves).
func (s *State[T]) MarkPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPristine {
		s.status = StatusPending
		s.version++
	}
}

// Reset drops the value and returns the cell to pristine without notifying.
func (s *State[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.status = StatusPristine
	s.version++
}

// Notify delivers the current value to every subscriber.
// Must not be called while holding a lock a subscriber may need.
func (s *State[T]) Notify() {
	s.mu.Lock()
	value, ok := s.value, s.status == StatusLoaded
	subs := make([]subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value, ok)
	}
}

// PutValue stores v and notifies subscribers.
func (s *State[T]) PutValue(v T) {
	s.Store(v)
	s.Notify()
}

// Clear resets the cell and notifies subscribers with an absent value.
func (s *State[T]) Clear() {
	s.Reset()
	s.Notify()
}

// Subscribe implements Observable. Subscribers are called in subscription
// order.
func (s *State[T]) Subscribe(fn func(v T, ok bool)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	value, ok := s.value, s.status == StatusLoaded
	s.mu.Unlock()

	fn(value, ok)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

// Subscribers returns the number of active subscriptions.
func (s *State[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *State[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
