package ps

var _ PathSelector[int] = (*Stopping[int])(nil)

// Stopping wraps a selector and reports empty once its stopper says so. The
// inner selector keeps its states.
type Stopping[T comparable] struct {
	inner PathSelector[T]
	stop  Stopper
}

// NewStopping returns inner wrapped with stop.
func NewStopping[T comparable](inner PathSelector[T], stop Stopper) *Stopping[T] {
	return &Stopping[T]{inner: inner, stop: stop}
}

// Inner returns the wrapped selector.
func (s *Stopping[T]) Inner() PathSelector[T] { return s.inner }

// IsEmpty returns true if the stopper fired or the inner selector is empty.
func (s *Stopping[T]) IsEmpty() bool {
	return s.stop.ShouldStop() || s.inner.IsEmpty()
}

func (s *Stopping[T]) Peek() T         { return s.inner.Peek() }
func (s *Stopping[T]) Update(state T)  { s.inner.Update(state) }
func (s *Stopping[T]) Add(states ...T) { s.inner.Add(states...) }
func (s *Stopping[T]) Remove(state T)  { s.inner.Remove(state) }
