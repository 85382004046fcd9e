package reactive

import "sync/atomic"

// CombineFunc computes a derived value from the current values of two
// inputs. aOK/bOK report presence.
type CombineFunc[A, B, R any] func(a A, aOK bool, b B, bOK bool) (R, bool)

// Combine derives a read-only value from two observables.
//
// The result holds no state of its own: Value recomputes from the inputs'
// current values, and a subscription re-evaluates fn synchronously on every
// emission of either input. There is no buffering or debouncing.
func Combine[A, B, R any](a Observable[A], b Observable[B], fn CombineFunc[A, B, R]) Observable[R] {
	return combined[A, B, R]{a: a, b: b, fn: fn}
}

type combined[A, B, R any] struct {
	a  Observable[A]
	b  Observable[B]
	fn CombineFunc[A, B, R]
}

func (c combined[A, B, R]) Value() (R, bool) {
	av, aok := c.a.Value()
	bv, bok := c.b.Value()
	return c.fn(av, aok, bv, bok)
}

// Subscribe emits once with the combined current value, then once per
// upstream emission.
func (c combined[A, B, R]) Subscribe(fn func(v R, ok bool)) func() {
	// Each input emits its current value on subscribe; those initial
	// emissions are folded into the single emission below.
	var started atomic.Bool
	emit := func() {
		if started.Load() {
			fn(c.Value())
		}
	}

	cancelA := c.a.Subscribe(func(A, bool) { emit() })
	cancelB := c.b.Subscribe(func(B, bool) { emit() })
	started.Store(true)
	fn(c.Value())

	return func() {
		started.Store(false)
		cancelA()
		cancelB()
	}
}
