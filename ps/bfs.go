package ps

var _ PathSelector[int] = (*BFS[int])(nil)

// BFS represents a selector with a breadth-first search strategy. Every
// stepped state moves to the back of the queue, so states advance one step
// at a time in turn.
type BFS[T comparable] struct {
	states []T
}

// NewBFS returns a new instance of BFS.
func NewBFS[T comparable]() *BFS[T] {
	return &BFS[T]{}
}

// IsEmpty returns true if there are no states.
func (s *BFS[T]) IsEmpty() bool { return len(s.states) == 0 }

// Peek returns the state at the front of the queue.
func (s *BFS[T]) Peek() T {
	if len(s.states) == 0 {
		panic(ErrEmpty)
	}
	return s.states[0]
}

// Update moves state to the back of the queue.
func (s *BFS[T]) Update(state T) {
	if a, ok := remove(s.states, state); ok {
		s.states = append(a, state)
	}
}

// Add appends states to the back of the queue.
func (s *BFS[T]) Add(states ...T) {
	s.states = append(s.states, states...)
}

// Remove removes state from the queue.
func (s *BFS[T]) Remove(state T) {
	s.states, _ = remove(s.states, state)
}
