package ps

var _ PathSelector[int] = (*Fair[int])(nil)

// Fair gives each child selector a quota of consecutive steps before moving
// to the next one. A step is counted on every Update or Remove. New states
// go to the child that produced them.
type Fair[T comparable] struct {
	selectors []PathSelector[T]
	quota     int
	ptr       int
	used      int
	last      int // child that produced the most recent state
}

// NewFair returns a selector giving each child quota steps in turn.
func NewFair[T comparable](quota int, selectors ...PathSelector[T]) *Fair[T] {
	if len(selectors) == 0 {
		panic("ps: fair selector requires at least one child")
	} else if quota < 1 {
		quota = 1
	}
	return &Fair[T]{selectors: selectors, quota: quota}
}

// Selectors returns the child selectors.
func (s *Fair[T]) Selectors() []PathSelector[T] { return s.selectors }

// IsEmpty returns true if every child is empty.
func (s *Fair[T]) IsEmpty() bool {
	for _, sel := range s.selectors {
		if !sel.IsEmpty() {
			return false
		}
	}
	return true
}

// Peek returns the next state of the current child.
func (s *Fair[T]) Peek() T { return s.current().Peek() }

// Update forwards to the current child and counts a step.
func (s *Fair[T]) Update(state T) {
	sel := s.current()
	s.step()
	sel.Update(state)
}

// Remove forwards to the current child and counts a step.
func (s *Fair[T]) Remove(state T) {
	sel := s.current()
	s.step()
	sel.Remove(state)
}

// Add inserts states into the child that produced the last selected state,
// even if its quota ran out on that step.
func (s *Fair[T]) Add(states ...T) {
	s.selectors[s.last].Add(states...)
}

func (s *Fair[T]) step() {
	if s.used++; s.used >= s.quota {
		s.advance()
	}
}

func (s *Fair[T]) advance() {
	s.ptr = (s.ptr + 1) % len(s.selectors)
	s.used = 0
}

func (s *Fair[T]) current() PathSelector[T] {
	for range s.selectors {
		if sel := s.selectors[s.ptr]; !sel.IsEmpty() {
			s.last = s.ptr
			return sel
		}
		s.advance()
	}
	panic(ErrEmpty)
}
