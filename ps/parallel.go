package ps

var _ PathSelector[int] = (*Parallel[int])(nil)

// Parallel round-robins over independently populated child selectors.
//
// Add inserts into the child under the pointer and then advances it. Peek,
// Update and Remove operate on the child under the pointer, first moving the
// pointer past empty children.
type Parallel[T comparable] struct {
	selectors []PathSelector[T]
	ptr       int
}

// NewParallel returns a selector rotating over selectors.
func NewParallel[T comparable](selectors ...PathSelector[T]) *Parallel[T] {
	if len(selectors) == 0 {
		panic("ps: parallel selector requires at least one child")
	}
	return &Parallel[T]{selectors: selectors}
}

// Selectors returns the child selectors.
func (s *Parallel[T]) Selectors() []PathSelector[T] { return s.selectors }

// Pointer returns the index of the child the next operation targets.
func (s *Parallel[T]) Pointer() int { return s.ptr }

// IsEmpty returns true if every child is empty.
func (s *Parallel[T]) IsEmpty() bool {
	for _, sel := range s.selectors {
		if !sel.IsEmpty() {
			return false
		}
	}
	return true
}

// Peek returns the next state of the current non-empty child.
func (s *Parallel[T]) Peek() T { return s.current().Peek() }

// Update forwards to the current child.
func (s *Parallel[T]) Update(state T) { s.current().Update(state) }

// Remove forwards to the current child.
func (s *Parallel[T]) Remove(state T) { s.current().Remove(state) }

// Add inserts states into the child under the pointer and advances it.
func (s *Parallel[T]) Add(states ...T) {
	s.selectors[s.ptr].Add(states...)
	s.advance()
}

func (s *Parallel[T]) advance() {
	s.ptr = (s.ptr + 1) % len(s.selectors)
}

// current moves the pointer to the first non-empty child at or after it.
func (s *Parallel[T]) current() PathSelector[T] {
	for range s.selectors {
		if sel := s.selectors[s.ptr]; !sel.IsEmpty() {
			return sel
		}
		s.advance()
	}
	panic(ErrEmpty)
}
