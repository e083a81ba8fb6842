package ps

import (
	"math/rand"
)

var _ PathSelector[int] = (*Random[int])(nil)

// Random selects a uniformly random state. The choice is kept until the
// chosen state is updated or removed, so repeated peeks agree.
type Random[T comparable] struct {
	states []T
	index  map[T]int
	rand   *rand.Rand

	chosen    T
	hasChosen bool
}

// NewRandom returns a new instance of Random.
func NewRandom[T comparable](rand *rand.Rand) *Random[T] {
	return &Random[T]{
		index: make(map[T]int),
		rand:  rand,
	}
}

// IsEmpty returns true if there are no states.
func (s *Random[T]) IsEmpty() bool { return len(s.states) == 0 }

// Peek returns a random state.
func (s *Random[T]) Peek() T {
	if len(s.states) == 0 {
		panic(ErrEmpty)
	}
	if !s.hasChosen {
		s.chosen, s.hasChosen = s.states[s.rand.Intn(len(s.states))], true
	}
	return s.chosen
}

// Update discards the current choice.
func (s *Random[T]) Update(state T) {
	s.hasChosen = false
}

// Add adds states to the pool.
func (s *Random[T]) Add(states ...T) {
	for _, state := range states {
		if _, ok := s.index[state]; ok {
			continue
		}
		s.index[state] = len(s.states)
		s.states = append(s.states, state)
	}
}

// Remove removes state from the pool.
func (s *Random[T]) Remove(state T) {
	i, ok := s.index[state]
	if !ok {
		return
	}

	last := len(s.states) - 1
	s.states[i] = s.states[last]
	s.index[s.states[i]] = i
	s.states = s.states[:last]
	delete(s.index, state)

	if s.hasChosen && s.chosen == state {
		s.hasChosen = false
	}
}
