package dse

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is the context of a single exploration: its identity and the
// statistics shared by every worker, selector and stop strategy involved.
// Nothing in it outlives the run.
type Run[M, S comparable] struct {
	ID uuid.UUID

	Coverage *CoverageStatistics[M, S]
	Steps    *StepsStatistics[M, S]
	Time     *TimeStatistics
	Distance *DistanceStatistics[M, S]

	// Locker serializes observer notifications between workers.
	Locker sync.Locker
}

// NewRun returns a run tracking coverage of methods over graph.
func NewRun[M, S comparable](graph ApplicationGraph[M, S], methods ...M) *Run[M, S] {
	coverage := NewCoverageStatistics(graph, methods...)
	return &Run[M, S]{
		ID:       uuid.New(),
		Coverage: coverage,
		Steps:    NewStepsStatistics(coverage),
		Time:     NewTimeStatistics(nil),
		Distance: NewDistanceStatistics(graph),
		Locker:   &sync.Mutex{},
	}
}

// Elapsed returns the run duration so far.
func (r *Run[M, S]) Elapsed() time.Duration { return r.Time.Elapsed() }
