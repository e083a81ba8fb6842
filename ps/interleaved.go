package ps

var _ PathSelector[int] = (*Interleaved[int])(nil)

// Interleaved rotates over child selectors like Parallel. In independent
// mode each state lives in one child. Otherwise every child observes the
// same state set: Add, Update and Remove are broadcast to all children while
// Peek still comes from the child under the pointer.
type Interleaved[T comparable] struct {
	Parallel[T]
	independent bool
}

// NewInterleaved returns a selector interleaving selectors. Non-independent
// mode broadcasts updates to every child.
func NewInterleaved[T comparable](independent bool, selectors ...PathSelector[T]) *Interleaved[T] {
	return &Interleaved[T]{
		Parallel:    *NewParallel(selectors...),
		independent: independent,
	}
}

// Independent returns true if children hold disjoint state sets.
func (s *Interleaved[T]) Independent() bool { return s.independent }

// Update forwards to the current child, or to every child.
func (s *Interleaved[T]) Update(state T) {
	if s.independent {
		s.Parallel.Update(state)
		return
	}
	for _, sel := range s.selectors {
		sel.Update(state)
	}
}

// Remove forwards to the current child, or to every child.
func (s *Interleaved[T]) Remove(state T) {
	if s.independent {
		s.Parallel.Remove(state)
		return
	}
	for _, sel := range s.selectors {
		sel.Remove(state)
	}
}

// Add inserts into the child under the pointer, or into every child, and
// advances the pointer.
func (s *Interleaved[T]) Add(states ...T) {
	if s.independent {
		s.Parallel.Add(states...)
		return
	}
	for _, sel := range s.selectors {
		sel.Add(states...)
	}
	s.advance()
}
