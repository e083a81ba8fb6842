package ps

var _ PathSelector[int] = (*DFS[int])(nil)

// DFS represents a selector with a depth-first search strategy.
type DFS[T comparable] struct {
	states []T
}

// NewDFS returns a new instance of DFS.
func NewDFS[T comparable]() *DFS[T] {
	return &DFS[T]{}
}

// IsEmpty returns true if there are no states.
func (s *DFS[T]) IsEmpty() bool { return len(s.states) == 0 }

// Peek returns the most recently added state.
func (s *DFS[T]) Peek() T {
	if len(s.states) == 0 {
		panic(ErrEmpty)
	}
	return s.states[len(s.states)-1]
}

// Update is a no-op. A stepped state keeps its position.
func (s *DFS[T]) Update(state T) {}

// Add pushes states onto the stack.
func (s *DFS[T]) Add(states ...T) {
	s.states = append(s.states, states...)
}

// Remove removes state from the stack.
func (s *DFS[T]) Remove(state T) {
	for i := len(s.states) - 1; i >= 0; i-- {
		if s.states[i] == state {
			s.states = append(s.states[:i], s.states[i+1:]...)
			return
		}
	}
}
