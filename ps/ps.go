// Package ps implements path selectors: strategies that decide which pending
// symbolic state is executed next, and combinators composing them.
package ps

import (
	"errors"
	"slices"
)

// ErrEmpty is the panic value raised when Peek is called on an empty
// selector. Callers must check IsEmpty first.
var ErrEmpty = errors.New("ps: peek on empty path selector")

// PathSelector holds the pending states of an exploration.
type PathSelector[T comparable] interface {
	// IsEmpty returns true if no state can be selected.
	IsEmpty() bool

	// Peek returns the next state to execute without removing it.
	Peek() T

	// Update re-inserts a state after it was stepped.
	Update(state T)

	// Add inserts newly forked states.
	Add(states ...T)

	// Remove drops a terminated state.
	Remove(state T)
}

// Stopper reports whether exploration should halt.
type Stopper interface {
	ShouldStop() bool
}

// StopperFunc adapts a function to the Stopper interface.
type StopperFunc func() bool

// ShouldStop calls fn.
func (fn StopperFunc) ShouldStop() bool { return fn() }

// remove deletes the first occurrence of v from a.
func remove[T comparable](a []T, v T) ([]T, bool) {
	if i := slices.Index(a, v); i >= 0 {
		return slices.Delete(a, i, i+1), true
	}
	return a, false
}
