package dse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/benbjohnson/dse/ps"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("dse.machine")

// StopReason describes why a run ended.
type StopReason string

const (
	// StopExhausted means no state was left to explore.
	StopExhausted StopReason = "exhausted"

	// StopStrategyFired means a stop strategy halted selection.
	StopStrategyFired StopReason = "stopped"

	// StopCanceled means the run's context was canceled.
	StopCanceled StopReason = "canceled"

	// StopFailed means the interpreter failed and the run was aborted.
	StopFailed StopReason = "failed"
)

// RunError is returned when a run is aborted. The report returned with it
// holds the states collected before the abort.
type RunError struct {
	Err   error
	Steps uint64
}

func (e *RunError) Error() string {
	return fmt.Sprintf("dse: run aborted after %d steps: %v", e.Steps, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Report is the outcome of a run.
type Report[M, S comparable] struct {
	Run    *Run[M, S]
	States []*State[M, S]
	Reason StopReason
}

// Machine drives the exploration: it repeatedly selects a state, steps it
// through the interpreter and feeds the outcome to targets, statistics,
// collectors and the selector until the selector is exhausted or a stop
// strategy fires.
type Machine[M, S comparable] struct {
	Graph       ApplicationGraph[M, S]
	Interpreter Interpreter[M, S]
	Options     Options

	// Targets are the roots of the goal trees attached to initial states.
	Targets []*Target[M, S]

	// BlackList sieves forked states. If nil, states are sieved by target
	// reachability when targets are set and kept otherwise.
	BlackList ForkBlackList[M, S]

	// Observers are notified after the run's statistics and collector.
	Observers []Observer[M, S]

	Logger *slog.Logger
}

// NewMachine returns a machine with default options.
func NewMachine[M, S comparable](graph ApplicationGraph[M, S], interp Interpreter[M, S]) *Machine[M, S] {
	return &Machine[M, S]{
		Graph:       graph,
		Interpreter: interp,
		Options:     DefaultOptions(),
	}
}

func (m *Machine[M, S]) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// NewInitialState returns a state positioned at the entry point of method
// with a single empty call frame.
func NewInitialState[M, S comparable](graph ApplicationGraph[M, S], method M, targets ...*Target[M, S]) (*State[M, S], error) {
	entry, ok := first(graph.EntryPoints(method))
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMissingEntryPoint, method)
	}

	var zero S
	state := NewState(method, targets...)
	state.PushFrame(method, zero, nil, 0)
	state.NewLocation(entry)
	return state, nil
}

// NewForker returns the forker selected by opts. The solver is bounded by
// opts.SolverTimeout.
func NewForker[M, S comparable](opts Options, solver Solver) Forker[M, S] {
	if !opts.UseSolverForFork || solver == nil {
		return NoSolverForker[M, S]{}
	}
	return NewWithSolverForker[M, S](NewTimeoutSolver(solver, opts.SolverTimeout))
}

// Run explores methods. If no states are given, one initial state is
// created per method; otherwise coverage is tracked for methods, or for
// the entry methods of states when methods is empty.
//
// The returned report is non-nil whenever exploration started, including
// when it was aborted with a *RunError.
func (m *Machine[M, S]) Run(ctx context.Context, methods []M, states ...*State[M, S]) (*Report[M, S], error) {
	opts := m.Options
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	for _, method := range methods {
		if _, ok := first(m.Graph.EntryPoints(method)); !ok {
			return nil, fmt.Errorf("%w: %v", ErrMissingEntryPoint, method)
		}
	}
	if len(states) == 0 {
		for _, method := range methods {
			state, err := NewInitialState(m.Graph, method, m.Targets...)
			if err != nil {
				return nil, err
			}
			states = append(states, state)
		}
	}
	if len(states) == 0 {
		return nil, ErrNoInitialState
	}
	derive := len(methods) == 0
	for _, state := range states {
		if _, ok := state.CurrentStatement(); !ok {
			return nil, fmt.Errorf("%w: %s has no location", ErrNoInitialState, state)
		}
		if derive && !slices.Contains(methods, state.Entry()) {
			methods = append(methods, state.Entry())
		}
	}

	run := NewRun(m.Graph, methods...)
	x := m.newExploration(run)
	stop := NewStopStrategy(opts, run, m.Targets, x.collector.Count)

	ctx, span := tracer.Start(ctx, "dse.machine",
		trace.WithAttributes(
			attribute.String("dse.run_id", run.ID.String()),
			attribute.Int("dse.initial_states", len(states)),
			attribute.StringSlice("dse.strategies", strategyNames(opts.PathSelectionStrategies)),
		),
	)
	defer span.End()

	x.logger.Info("run started",
		slog.String("run", run.ID.String()),
		slog.Int("states", len(states)),
		slog.Int("statements", run.Coverage.TotalStatements()),
	)

	for _, o := range m.Observers {
		if o, ok := o.(RunObserver[M, S]); ok {
			o.OnRunStarted(run)
		}
	}
	for _, state := range states {
		x.visitTargets(state, state.Path().Parent())
	}

	sel, err := NewPathSelector(opts, run, states)
	if err != nil {
		return nil, err
	}

	if p, ok := sel.(*ps.Parallel[*State[M, S]]); ok && opts.Workers > 1 {
		err = x.exploreParallel(ctx, p.Selectors(), stop)
	} else {
		err = x.explore(ctx, ps.NewStopping(sel, stop))
	}

	run.Time.Stop()
	x.observers.OnMachineStopped()

	report := &Report[M, S]{
		Run:    run,
		States: x.collector.CollectedStates(),
		Reason: StopExhausted,
	}
	steps := run.Steps.Total()
	span.SetAttributes(attribute.Int64("dse.steps", int64(steps)))

	switch {
	case err != nil:
		report.Reason = StopFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Reason = StopCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("dse.stop_reason", string(report.Reason)))
		x.logger.Error("run aborted", slog.String("run", run.ID.String()), slog.Any("err", err))
		return report, &RunError{Err: err, Steps: steps}
	case !sel.IsEmpty():
		report.Reason = StopStrategyFired
	}
	span.SetAttributes(attribute.String("dse.stop_reason", string(report.Reason)))
	return report, nil
}

func strategyNames(a []PathSelectionStrategy) []string {
	names := make([]string, len(a))
	for i, s := range a {
		names[i] = string(s)
	}
	return names
}

// exploration holds everything a run shares between its workers.
type exploration[M, S comparable] struct {
	interp    Interpreter[M, S]
	run       *Run[M, S]
	blacklist ForkBlackList[M, S]
	collector StatesCollector[M, S]
	observers CompositeObserver[M, S]
	logger    *slog.Logger
}

func (m *Machine[M, S]) newExploration(run *Run[M, S]) *exploration[M, S] {
	x := &exploration[M, S]{
		interp:    m.Interpreter,
		run:       run,
		blacklist: m.BlackList,
		logger:    m.logger(),
	}
	if x.blacklist == nil {
		if len(m.Targets) > 0 {
			x.blacklist = NewTargetsReachableBlackList(m.Graph)
		} else {
			x.blacklist = NoBlackList[M, S]{}
		}
	}

	switch m.Options.StateCollection {
	case CollectAll:
		x.collector = NewAllStatesCollector[M, S]()
	case CollectReachedTarget:
		x.collector = NewTargetsReachedStatesCollector[M, S]()
	default:
		x.collector = NewCoveredNewStatesCollector(run.Coverage, nil)
	}

	if m.Options.CoverageZone == TransitiveZone {
		x.observers = append(x.observers, &TransitiveCoverageZoneObserver[M, S]{Coverage: run.Coverage})
	}
	x.observers = append(x.observers, run.Coverage, run.Steps, x.collector)
	x.observers = append(x.observers, m.Observers...)
	x.observers = append(x.observers, &StatisticsLogger[M, S]{Run: run, Logger: x.logger})
	return x
}

// explore steps states from sel until it reports empty.
func (x *exploration[M, S]) explore(ctx context.Context, sel ps.PathSelector[*State[M, S]]) error {
	for !sel.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.step(ctx, sel); err != nil {
			return err
		}
	}
	return nil
}

// exploreParallel runs one worker per child selector. Statistics and stop
// strategies are shared by the workers.
func (x *exploration[M, S]) exploreParallel(ctx context.Context, selectors []ps.PathSelector[*State[M, S]], stop StopStrategy) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sel := range selectors {
		sel := ps.NewStopping(sel, stop)
		g.Go(func() error {
			return x.explore(ctx, sel)
		})
	}
	return g.Wait()
}

// step executes the state selected by sel and routes its outcome.
func (x *exploration[M, S]) step(ctx context.Context, sel ps.PathSelector[*State[M, S]]) error {
	state := sel.Peek()
	before := state.Path()
	executed, executing := state.CurrentStatement()

	result, err := x.interp.Step(ctx, state)
	if err != nil {
		return fmt.Errorf("step %s: %w", state, err)
	}

	alive := result.OriginalAlive && !state.Constraints().IsFalse()
	forks := make([]*State[M, S], 0, len(result.Forked))
	var dropped []*State[M, S]
	for _, fork := range result.Forked {
		if fork.Constraints().IsFalse() {
			dropped = append(dropped, fork)
			continue
		}
		if stmt, ok := fork.CurrentStatement(); ok && !x.blacklist.Sieve(fork, stmt) {
			dropped = append(dropped, fork)
			continue
		}
		forks = append(forks, fork)
	}

	x.run.Locker.Lock()
	defer x.run.Locker.Unlock()

	if alive {
		x.visitTargets(state, before)
	}
	for _, fork := range forks {
		x.visitTargets(fork, before)
	}

	if executing {
		x.run.Coverage.Visit(state, executed)
	}
	x.observers.OnState(state, forks)

	for _, fork := range dropped {
		x.terminate(fork, false)
	}

	switch {
	case !alive:
		sel.Remove(state)
		x.terminate(state, false)
	case x.interp.Terminated(state):
		sel.Remove(state)
		x.terminate(state, true)
	default:
		sel.Update(state)
	}

	added := make([]*State[M, S], 0, len(forks))
	for _, fork := range forks {
		if x.interp.Terminated(fork) {
			x.terminate(fork, true)
			continue
		}
		added = append(added, fork)
	}
	if len(added) > 0 {
		sel.Add(added...)
	}
	return nil
}

// visitTargets propagates the state's targets over every statement entered
// since the path node since.
func (x *exploration[M, S]) visitTargets(state *State[M, S], since *PathNode[S]) {
	if state.Targets().Len() == 0 {
		return
	}
	for _, stmt := range enteredSince(state.Path(), since) {
		targets, reached := state.Targets().Visit(stmt)
		state.SetTargets(targets)
		for _, t := range reached {
			x.logger.Debug("target", slog.String("state", state.String()), slog.String("target", t.String()))
			x.observers.OnTargetReached(state, t)
		}
	}
}

func (x *exploration[M, S]) terminate(state *State[M, S], reachable bool) {
	x.logger.Debug("state",
		slog.String("state", state.String()),
		slog.Bool("reachable", reachable),
		slog.Int("depth", state.Path().Depth()),
	)
	x.observers.OnStateTerminated(state, reachable)
}

// enteredSince returns the statements of path after since, oldest first.
func enteredSince[S comparable](path, since *PathNode[S]) []S {
	var a []S
	for p := path; p != nil && p != since && p.Depth() > since.Depth(); p = p.Parent() {
		a = append(a, p.Statement())
	}
	slices.Reverse(a)
	return a
}
