package dse

import (
	"time"

	"github.com/benbjohnson/dse/ps"
)

// StopStrategy is a predicate consulted by the machine between steps.
// Implementations have no side effects; they read statistics owned by the
// run.
type StopStrategy = ps.Stopper

// GroupedStoppingStrategy stops as soon as any of its strategies does.
type GroupedStoppingStrategy []StopStrategy

func (a GroupedStoppingStrategy) ShouldStop() bool {
	for _, s := range a {
		if s.ShouldStop() {
			return true
		}
	}
	return false
}

// NoStoppingStrategy never stops.
type NoStoppingStrategy struct{}

func (NoStoppingStrategy) ShouldStop() bool { return false }

// StepLimitStoppingStrategy stops after a total number of steps.
type StepLimitStoppingStrategy[M, S comparable] struct {
	Steps *StepsStatistics[M, S]
	Limit uint64
}

func (s *StepLimitStoppingStrategy[M, S]) ShouldStop() bool {
	return s.Steps.Total() >= s.Limit
}

// StepsFromLastCoveredStoppingStrategy stops after Limit consecutive steps
// that covered no new statement.
type StepsFromLastCoveredStoppingStrategy[M, S comparable] struct {
	Steps *StepsStatistics[M, S]
	Limit uint64
}

func (s *StepsFromLastCoveredStoppingStrategy[M, S]) ShouldStop() bool {
	return s.Steps.SinceCovered() >= s.Limit
}

// CollectedStatesLimitStoppingStrategy stops once more than Limit states
// were collected.
type CollectedStatesLimitStoppingStrategy struct {
	Count func() int
	Limit int
}

func (s *CollectedStatesLimitStoppingStrategy) ShouldStop() bool {
	return s.Count() > s.Limit
}

// TargetsReachedStoppingStrategy stops when every target is removed.
type TargetsReachedStoppingStrategy[M, S comparable] struct {
	Targets []*Target[M, S]
}

func (s *TargetsReachedStoppingStrategy[M, S]) ShouldStop() bool {
	for _, t := range s.Targets {
		if !t.IsRemoved() {
			return false
		}
	}
	return true
}

// CoverageStoppingStrategy stops once coverage reaches Percent. At 100 it
// stops exactly when no tracked statement is left uncovered.
type CoverageStoppingStrategy[M, S comparable] struct {
	Coverage *CoverageStatistics[M, S]
	Percent  float64
}

func (s *CoverageStoppingStrategy[M, S]) ShouldStop() bool {
	return s.Coverage.Percent() >= s.Percent
}

// TimeoutStoppingStrategy stops once the run exceeds Timeout.
type TimeoutStoppingStrategy struct {
	Time    *TimeStatistics
	Timeout time.Duration
}

func (s *TimeoutStoppingStrategy) ShouldStop() bool {
	return s.Time.Elapsed() >= s.Timeout
}

// NewStopStrategy builds the strategy described by opts over the run's
// statistics. Count reports the number of collected states.
func NewStopStrategy[M, S comparable](opts Options, run *Run[M, S], targets []*Target[M, S], count func() int) StopStrategy {
	var a GroupedStoppingStrategy
	if opts.StepLimit > 0 {
		a = append(a, &StepLimitStoppingStrategy[M, S]{Steps: run.Steps, Limit: opts.StepLimit})
	}
	if opts.StepsFromLastCovered > 0 {
		a = append(a, &StepsFromLastCoveredStoppingStrategy[M, S]{Steps: run.Steps, Limit: opts.StepsFromLastCovered})
	}
	if opts.CollectedStatesLimit > 0 && count != nil {
		a = append(a, &CollectedStatesLimitStoppingStrategy{Count: count, Limit: opts.CollectedStatesLimit})
	}
	if opts.Timeout > 0 {
		a = append(a, &TimeoutStoppingStrategy{Time: run.Time, Timeout: opts.Timeout})
	}
	if len(targets) > 0 {
		if opts.StopOnTargetsReached {
			a = append(a, &TargetsReachedStoppingStrategy[M, S]{Targets: targets})
		}
	} else if opts.StopOnCoverage > 0 {
		a = append(a, &CoverageStoppingStrategy[M, S]{Coverage: run.Coverage, Percent: opts.StopOnCoverage})
	}

	if len(a) == 0 {
		return NoStoppingStrategy{}
	}
	return a
}
