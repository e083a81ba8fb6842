package ps

import (
	"container/heap"
	"math/rand"
)

var _ PathSelector[int] = (*Weighted[int])(nil)

// Weighted selects states by a weight computed when a state is added or
// updated.
//
// Without a random source the state with the lowest weight is selected,
// ties broken by insertion order. With a random source a state is sampled
// with probability proportional to its weight.
type Weighted[T comparable] struct {
	weigh func(T) float64
	rand  *rand.Rand

	entries weightedHeap[T]
	index   map[T]*weightedEntry[T]
	seq     uint64

	chosen *weightedEntry[T]
}

// NewWeighted returns a deterministic weighted selector preferring the
// lowest weight.
func NewWeighted[T comparable](weigh func(T) float64) *Weighted[T] {
	return &Weighted[T]{
		weigh: weigh,
		index: make(map[T]*weightedEntry[T]),
	}
}

// NewRandomWeighted returns a selector sampling states proportionally to
// their weight. Weights must be non-negative.
func NewRandomWeighted[T comparable](weigh func(T) float64, rand *rand.Rand) *Weighted[T] {
	s := NewWeighted(weigh)
	s.rand = rand
	return s
}

// IsEmpty returns true if there are no states.
func (s *Weighted[T]) IsEmpty() bool { return len(s.entries) == 0 }

// Peek returns the selected state.
func (s *Weighted[T]) Peek() T {
	if len(s.entries) == 0 {
		panic(ErrEmpty)
	}
	if s.rand == nil {
		return s.entries[0].state
	}
	if s.chosen == nil {
		s.chosen = s.sample()
	}
	return s.chosen.state
}

func (s *Weighted[T]) sample() *weightedEntry[T] {
	var total float64
	for _, e := range s.entries {
		total += e.weight
	}
	if total <= 0 {
		return s.entries[s.rand.Intn(len(s.entries))]
	}

	r := s.rand.Float64() * total
	for _, e := range s.entries {
		if r -= e.weight; r < 0 {
			return e
		}
	}
	return s.entries[len(s.entries)-1]
}

// Update recomputes the weight of state.
func (s *Weighted[T]) Update(state T) {
	s.chosen = nil
	if e, ok := s.index[state]; ok {
		e.weight = s.weigh(state)
		heap.Fix(&s.entries, e.pos)
	}
}

// Add adds states with their current weight.
func (s *Weighted[T]) Add(states ...T) {
	for _, state := range states {
		if _, ok := s.index[state]; ok {
			continue
		}
		s.seq++
		e := &weightedEntry[T]{state: state, weight: s.weigh(state), seq: s.seq}
		s.index[state] = e
		heap.Push(&s.entries, e)
	}
}

// Remove removes state.
func (s *Weighted[T]) Remove(state T) {
	e, ok := s.index[state]
	if !ok {
		return
	}
	heap.Remove(&s.entries, e.pos)
	delete(s.index, state)
	if s.chosen == e {
		s.chosen = nil
	}
}

type weightedEntry[T any] struct {
	state  T
	weight float64
	seq    uint64
	pos    int
}

// weightedHeap implements heap.Interface ordered by weight then insertion.
type weightedHeap[T any] []*weightedEntry[T]

func (h weightedHeap[T]) Len() int { return len(h) }

func (h weightedHeap[T]) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h weightedHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos, h[j].pos = i, j
}

func (h *weightedHeap[T]) Push(x any) {
	e := x.(*weightedEntry[T])
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *weightedHeap[T]) Pop() any {
	old := *h
	e := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return e
}
