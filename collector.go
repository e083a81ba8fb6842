package dse

import (
	"slices"
	"sync"
)

// StatesCollector is an observer accumulating result states.
type StatesCollector[M, S comparable] interface {
	Observer[M, S]

	// CollectedStates returns a copy of the states collected so far.
	CollectedStates() []*State[M, S]

	// Count returns the number of collected states.
	Count() int
}

// collected is the shared storage of the collectors.
type collected[M, S comparable] struct {
	mu     sync.Mutex
	states []*State[M, S]
	seen   map[uint64]struct{}
}

func (c *collected[M, S]) add(state *State[M, S]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[uint64]struct{})
	}
	if _, ok := c.seen[state.id]; ok {
		return
	}
	c.seen[state.id] = struct{}{}
	c.states = append(c.states, state)
}

func (c *collected[M, S]) CollectedStates() []*State[M, S] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.states)
}

func (c *collected[M, S]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

func (c *collected[M, S]) OnState(*State[M, S], []*State[M, S])      {}
func (c *collected[M, S]) OnStateTerminated(*State[M, S], bool)        {}
func (c *collected[M, S]) OnTargetReached(*State[M, S], *Target[M, S]) {}
func (c *collected[M, S]) OnMachineStopped()                           {}

// AllStatesCollector collects every reachable terminated state.
type AllStatesCollector[M, S comparable] struct {
	collected[M, S]
}

var _ StatesCollector[int, int] = (*AllStatesCollector[int, int])(nil)

// NewAllStatesCollector returns a new instance of AllStatesCollector.
func NewAllStatesCollector[M, S comparable]() *AllStatesCollector[M, S] {
	return &AllStatesCollector[M, S]{}
}

func (c *AllStatesCollector[M, S]) OnStateTerminated(state *State[M, S], reachable bool) {
	if reachable {
		c.add(state)
	}
}

// CoveredNewStatesCollector collects terminated states that covered at
// least one new statement, plus every state IsException accepts.
//
// It must be notified after the coverage statistics it reads.
type CoveredNewStatesCollector[M, S comparable] struct {
	collected[M, S]
	coverage    *CoverageStatistics[M, S]
	isException func(*State[M, S]) bool

	prevMu   sync.Mutex
	previous int
}

var _ StatesCollector[int, int] = (*CoveredNewStatesCollector[int, int])(nil)

// NewCoveredNewStatesCollector returns a collector reading coverage. A nil
// isException uses State.IsExceptional.
func NewCoveredNewStatesCollector[M, S comparable](coverage *CoverageStatistics[M, S], isException func(*State[M, S]) bool) *CoveredNewStatesCollector[M, S] {
	if isException == nil {
		isException = (*State[M, S]).IsExceptional
	}
	return &CoveredNewStatesCollector[M, S]{
		coverage:    coverage,
		isException: isException,
		previous:    coverage.CoveredStatements(),
	}
}

func (c *CoveredNewStatesCollector[M, S]) OnStateTerminated(state *State[M, S], reachable bool) {
	if !reachable {
		return
	} else if c.isException(state) {
		c.add(state)
		return
	}

	c.prevMu.Lock()
	current := c.coverage.CoveredStatements()
	isNew := current > c.previous
	if isNew {
		c.previous = current
	}
	c.prevMu.Unlock()

	if isNew {
		c.add(state)
	}
}

// TargetsReachedStatesCollector collects states that reached a terminal
// target.
type TargetsReachedStatesCollector[M, S comparable] struct {
	collected[M, S]
}

var _ StatesCollector[int, int] = (*TargetsReachedStatesCollector[int, int])(nil)

// NewTargetsReachedStatesCollector returns a new instance of TargetsReachedStatesCollector.
func NewTargetsReachedStatesCollector[M, S comparable]() *TargetsReachedStatesCollector[M, S] {
	return &TargetsReachedStatesCollector[M, S]{}
}

func (c *TargetsReachedStatesCollector[M, S]) OnTargetReached(state *State[M, S], target *Target[M, S]) {
	c.add(state)
}
