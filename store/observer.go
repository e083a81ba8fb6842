package store

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/benbjohnson/dse"
)

var _ dse.RunObserver[int, int] = (*Observer[int, int])(nil)

// Observer records terminated states and the final coverage of a run.
// Write errors are logged and the first one is kept for Err.
type Observer[M, S comparable] struct {
	Store  *Store
	Logger *slog.Logger

	// Unreachable also records states dropped as infeasible.
	Unreachable bool

	mu  sync.Mutex
	run *dse.Run[M, S]
	err error
}

// NewObserver returns an observer writing to store.
func NewObserver[M, S comparable](store *Store) *Observer[M, S] {
	return &Observer[M, S]{Store: store}
}

// Err returns the first write error.
func (o *Observer[M, S]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Observer[M, S]) fail(msg string, err error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, "err", err)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

func (o *Observer[M, S]) OnRunStarted(run *dse.Run[M, S]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.run = run
}

func (o *Observer[M, S]) current() (*dse.Run[M, S], bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run, o.run != nil
}

func (o *Observer[M, S]) OnState(parent *dse.State[M, S], forks []*dse.State[M, S]) {}

func (o *Observer[M, S]) OnStateTerminated(state *dse.State[M, S], reachable bool) {
	run, ok := o.current()
	if !ok || (!reachable && !o.Unreachable) {
		return
	}
	if err := o.Store.PutState(run.ID, NewStateRecord(state, reachable)); err != nil {
		o.fail("store state", err)
	}
}

func (o *Observer[M, S]) OnTargetReached(state *dse.State[M, S], target *dse.Target[M, S]) {}

func (o *Observer[M, S]) OnMachineStopped() {
	run, ok := o.current()
	if !ok {
		return
	}
	if err := o.Store.PutCoverage(NewCoverageRecord(run)); err != nil {
		o.fail("store coverage", err)
	}
}

// NewStateRecord summarizes state. The first cached model that assigns
// concrete values becomes the record's inputs.
func NewStateRecord[M, S comparable](state *dse.State[M, S], reachable bool) *StateRecord {
	rec := &StateRecord{
		ID:          state.ID(),
		Entry:       fmt.Sprint(state.Entry()),
		Reachable:   reachable,
		Exceptional: state.IsExceptional(),
	}
	for _, stmt := range state.Path().Statements() {
		rec.Path = append(rec.Path, fmt.Sprint(stmt))
	}
	if _, ok := state.Result().(dse.NoCall); !ok {
		rec.Result = fmt.Sprint(state.Result())
	}
	for _, m := range state.Models() {
		if m, ok := m.(dse.MapModel); ok && len(m) > 0 {
			rec.Inputs = maps.Clone(m)
			break
		}
	}
	return rec
}

// NewCoverageRecord captures the coverage of run.
func NewCoverageRecord[M, S comparable](run *dse.Run[M, S]) *CoverageRecord {
	rec := &CoverageRecord{
		RunID:   run.ID,
		Percent: run.Coverage.Percent(),
		Covered: run.Coverage.CoveredStatements(),
		Visited: run.Coverage.VisitedStatements(),
		Total:   run.Coverage.TotalStatements(),
		Steps:   run.Steps.Total(),
		Elapsed: run.Elapsed(),
	}
	for _, stmt := range run.Coverage.UncoveredStatements() {
		rec.Uncovered = append(rec.Uncovered, fmt.Sprint(stmt))
	}
	return rec
}
