package dse

import (
	"log/slog"
)

// Observer is notified of machine events. Calls are made synchronously on
// the goroutine that performed the step.
type Observer[M, S comparable] interface {
	// OnState is called after parent was stepped, with the states forked
	// from it that survived the blacklist.
	OnState(parent *State[M, S], forks []*State[M, S])

	// OnStateTerminated is called once for every state leaving the
	// exploration. Reachable is false for states dropped as infeasible or
	// irrelevant.
	OnStateTerminated(state *State[M, S], reachable bool)

	// OnTargetReached is called when state reaches a terminal target.
	OnTargetReached(state *State[M, S], target *Target[M, S])

	// OnMachineStopped is called once when the machine loop exits.
	OnMachineStopped()
}

// RunObserver is an Observer that wants the run before exploration starts.
type RunObserver[M, S comparable] interface {
	Observer[M, S]
	OnRunStarted(run *Run[M, S])
}

// CompositeObserver fans events out to observers in order.
type CompositeObserver[M, S comparable] []Observer[M, S]

var _ Observer[int, int] = CompositeObserver[int, int](nil)

func (a CompositeObserver[M, S]) OnState(parent *State[M, S], forks []*State[M, S]) {
	for _, o := range a {
		o.OnState(parent, forks)
	}
}

func (a CompositeObserver[M, S]) OnStateTerminated(state *State[M, S], reachable bool) {
	for _, o := range a {
		o.OnStateTerminated(state, reachable)
	}
}

func (a CompositeObserver[M, S]) OnTargetReached(state *State[M, S], target *Target[M, S]) {
	for _, o := range a {
		o.OnTargetReached(state, target)
	}
}

func (a CompositeObserver[M, S]) OnMachineStopped() {
	for _, o := range a {
		o.OnMachineStopped()
	}
}

// TransitiveCoverageZoneObserver extends the coverage zone with every method
// a state enters, unless Ignore rejects it.
type TransitiveCoverageZoneObserver[M, S comparable] struct {
	Coverage *CoverageStatistics[M, S]
	Ignore   func(M) bool
}

func (o *TransitiveCoverageZoneObserver[M, S]) OnState(parent *State[M, S], forks []*State[M, S]) {
	m := parent.LastEnteredMethod()
	if o.Ignore != nil && o.Ignore(m) {
		return
	}
	o.Coverage.AddCoverageZone(m)
}

func (o *TransitiveCoverageZoneObserver[M, S]) OnStateTerminated(*State[M, S], bool)        {}
func (o *TransitiveCoverageZoneObserver[M, S]) OnTargetReached(*State[M, S], *Target[M, S]) {}
func (o *TransitiveCoverageZoneObserver[M, S]) OnMachineStopped()                           {}

// StatisticsLogger logs a summary of the run when the machine stops.
type StatisticsLogger[M, S comparable] struct {
	Run    *Run[M, S]
	Logger *slog.Logger
}

func (o *StatisticsLogger[M, S]) OnState(*State[M, S], []*State[M, S])      {}
func (o *StatisticsLogger[M, S]) OnStateTerminated(*State[M, S], bool)        {}
func (o *StatisticsLogger[M, S]) OnTargetReached(*State[M, S], *Target[M, S]) {}

func (o *StatisticsLogger[M, S]) OnMachineStopped() {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("statistics",
		"run", o.Run.ID,
		"steps", o.Run.Steps.Total(),
		"coverage", o.Run.Coverage.Percent(),
		"visited", o.Run.Coverage.VisitedStatements(),
		"methods", o.Run.Coverage.VisitedMethods(),
		"elapsed", o.Run.Time.Elapsed(),
	)
}
