package dse_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/benbjohnson/dse"
	"github.com/google/go-cmp/cmp"
)

// Recorder is an observer counting machine events.
type Recorder struct {
	mu          sync.Mutex
	steps       int
	terminated  []*State
	unreachable []*State
	reached     []*Target
	stopped     int
}

func (r *Recorder) OnState(parent *State, forks []*State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
}

func (r *Recorder) OnStateTerminated(state *State, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reachable {
		r.terminated = append(r.terminated, state)
	} else {
		r.unreachable = append(r.unreachable, state)
	}
}

func (r *Recorder) OnTargetReached(state *State, target *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reached = append(r.reached, target)
}

func (r *Recorder) OnMachineStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

// NewMachine returns a machine over g exploring exhaustively and
// collecting every terminated state.
func NewMachine(g *Graph, interp *Interpreter, rec *Recorder) *dse.Machine[string, string] {
	m := dse.NewMachine[string, string](g, interp)
	m.Options.StepsFromLastCovered = 0
	m.Options.StopOnCoverage = 0
	m.Options.StateCollection = dse.CollectAll
	m.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if rec != nil {
		m.Observers = append(m.Observers, rec)
	}
	return m
}

func TestMachine_Run(t *testing.T) {
	t.Run("Diamond", func(t *testing.T) {
		g := diamond()
		rec := &Recorder{}
		m := NewMachine(g, NewInterpreter(g, NewSolver()), rec)

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if report.Reason != dse.StopExhausted {
			t.Fatalf("unexpected reason: %s", report.Reason)
		} else if n := len(report.States); n != 2 {
			t.Fatalf("unexpected collected states: %d", n)
		} else if n := report.Run.Steps.Total(); n != 4 {
			t.Fatalf("unexpected steps: %d", n)
		} else if p := report.Run.Coverage.Percent(); p != 100 {
			t.Fatalf("unexpected coverage: %v", p)
		} else if n := report.Run.Coverage.VisitedStatements(); n != 4 {
			t.Fatalf("unexpected visited statements: %d", n)
		} else if rec.stopped != 1 {
			t.Fatalf("unexpected stop notifications: %d", rec.stopped)
		}

		var paths [][]string
		for _, s := range report.States {
			paths = append(paths, s.Path().Statements())
		}
		if diff := cmp.Diff([][]string{
			{"main.0", "main.1", "main.3", "main.4"},
			{"main.0", "main.1", "main.2", "main.4"},
		}, paths); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	// A two-way branch whose negative side is unsat yields one surviving
	// state and the branch statement is visited exactly once.
	t.Run("UnsatBranch", func(t *testing.T) {
		x := Must8("x")
		g := diamond()
		solver := NewSolver()
		interp := NewInterpreter(g, solver)
		interp.Conds["main.1"] = ULT(x, 5)
		rec := &Recorder{}
		m := NewMachine(g, interp, rec)

		s := MustInitialState(g, "main")
		s.Constraints().Add(ULT(x, 3))

		report, err := m.Run(context.Background(), nil, s)
		if err != nil {
			t.Fatal(err)
		} else if n := len(report.States); n != 1 {
			t.Fatalf("unexpected collected states: %d", n)
		} else if n := solver.Calls(); n != 1 {
			t.Fatalf("unexpected solver calls: %d", n)
		} else if report.Run.Coverage.IsVisited("main.3") {
			t.Fatal("infeasible branch marked visited")
		} else if !report.Run.Coverage.IsVisited("main.0") || !report.Run.Coverage.IsVisited("main.1") {
			t.Fatal("executed statements not visited")
		} else if n := report.Run.Coverage.VisitedStatements(); n != 3 {
			t.Fatalf("unexpected visited statements: %d", n)
		} else if len(rec.unreachable) != 0 {
			t.Fatalf("unexpected unreachable states: %d", len(rec.unreachable))
		}
	})

	// A branch at the entry statement is visited by the step that executes
	// it, whether or not the negative side is feasible. Successors reached
	// only as terminal locations are never executed.
	t.Run("EntryBranch", func(t *testing.T) {
		for _, tt := range []struct {
			name   string
			bound  uint64
			states int
		}{
			{"Unsat", 3, 1},
			{"Forked", 8, 2},
		} {
			t.Run(tt.name, func(t *testing.T) {
				x := Must8("x")
				g := NewGraph().Method("main", "0->1", "0->2")
				interp := NewInterpreter(g, NewSolver())
				interp.Conds["main.0"] = ULT(x, 5)
				m := NewMachine(g, interp, nil)

				s := MustInitialState(g, "main")
				s.Constraints().Add(ULT(x, tt.bound))

				report, err := m.Run(context.Background(), nil, s)
				if err != nil {
					t.Fatal(err)
				} else if n := len(report.States); n != tt.states {
					t.Fatalf("unexpected collected states: %d", n)
				} else if !report.Run.Coverage.IsVisited("main.0") {
					t.Fatal("entry statement not visited")
				} else if report.Run.Coverage.IsVisited("main.1") || report.Run.Coverage.IsVisited("main.2") {
					t.Fatal("terminal statement marked visited")
				} else if n, steps := report.Run.Coverage.VisitedStatements(), report.Run.Steps.Total(); uint64(n) != steps {
					t.Fatalf("visited statements %d != steps %d", n, steps)
				} else if n := report.Run.Coverage.VisitedMethods(); n != 1 {
					t.Fatalf("unexpected visited methods: %d", n)
				}
			})
		}
	})

	t.Run("Target", func(t *testing.T) {
		g := diamond()
		rec := &Recorder{}
		m := NewMachine(g, NewInterpreter(g, NewSolver()), rec)
		m.Options.StateCollection = dse.CollectReachedTarget
		target := dse.NewTarget[string]("main.3")
		m.Targets = []*Target{target}

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if report.Reason != dse.StopStrategyFired {
			t.Fatalf("unexpected reason: %s", report.Reason)
		} else if len(rec.reached) != 1 || rec.reached[0] != target {
			t.Fatalf("unexpected reached targets: %v", rec.reached)
		} else if len(report.States) != 1 {
			t.Fatalf("unexpected collected states: %d", len(report.States))
		} else if stmt, _ := report.States[0].CurrentStatement(); stmt != "main.3" {
			t.Fatalf("unexpected statement: %s", stmt)
		} else if !target.IsRemoved() {
			t.Fatal("expected target removed")
		}
	})

	// States that cannot reach their target are sieved at the fork.
	t.Run("BlackList", func(t *testing.T) {
		g := diamond()
		rec := &Recorder{}
		m := NewMachine(g, NewInterpreter(g, NewSolver()), rec)
		m.Options.StopOnTargetsReached = false
		m.Targets = []*Target{dse.NewTarget[string]("main.2")}

		if _, err := m.Run(context.Background(), []string{"main"}); err != nil {
			t.Fatal(err)
		} else if len(rec.unreachable) != 1 {
			t.Fatalf("unexpected unreachable states: %d", len(rec.unreachable))
		} else if stmt, _ := rec.unreachable[0].CurrentStatement(); stmt != "main.3" {
			t.Fatalf("unexpected sieved statement: %s", stmt)
		}
	})

	t.Run("Call", func(t *testing.T) {
		g := NewGraph().
			Method("main", "0->1", "1->2").
			Method("f", "0->1").
			Call("main.1", "f")
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		m.Options.CoverageZone = dse.TransitiveZone

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if len(report.States) != 1 {
			t.Fatalf("unexpected collected states: %d", len(report.States))
		} else if diff := cmp.Diff([]string{"main.0", "main.1", "f.0", "f.1", "main.2"}, report.States[0].Path().Statements()); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		} else if !report.Run.Coverage.IsTracked("f") {
			t.Fatal("expected callee in coverage zone")
		} else if n := report.Run.Coverage.TotalStatements(); n != 5 {
			t.Fatalf("unexpected total statements: %d", n)
		} else if p := report.Run.Coverage.Percent(); p != 100 {
			t.Fatalf("unexpected coverage: %v", p)
		}
	})

	t.Run("Exception", func(t *testing.T) {
		g := diamond()
		interp := NewInterpreter(g, NewSolver())
		interp.Throws["main.2"] = true
		m := NewMachine(g, interp, nil)
		m.Options.StateCollection = dse.CollectCoveredNew

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		}
		var exceptional int
		for _, s := range report.States {
			if s.IsExceptional() {
				exceptional++
			}
		}
		if exceptional != 1 {
			t.Fatalf("unexpected exceptional states: %d", exceptional)
		}
	})

	t.Run("StepLimit", func(t *testing.T) {
		g := NewGraph().Method("main", "0->1", "1->0")
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		m.Options.StepLimit = 5

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if report.Reason != dse.StopStrategyFired {
			t.Fatalf("unexpected reason: %s", report.Reason)
		} else if n := report.Run.Steps.Total(); n != 5 {
			t.Fatalf("unexpected steps: %d", n)
		}
	})

	// A limit reached by the very step that drains the last state still
	// reports an exhausted run.
	t.Run("StepLimitOnLastStep", func(t *testing.T) {
		g := diamond()
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		m.Options.StepLimit = 4

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if n := report.Run.Steps.Total(); n != 4 {
			t.Fatalf("unexpected steps: %d", n)
		} else if report.Reason != dse.StopExhausted {
			t.Fatalf("unexpected reason: %s", report.Reason)
		} else if n := len(report.States); n != 2 {
			t.Fatalf("unexpected collected states: %d", n)
		}
	})

	t.Run("ErrInterpreter", func(t *testing.T) {
		g := diamond()
		interp := NewInterpreter(g, NewSolver())
		errBoom := errors.New("boom")
		interp.Errors["main.1"] = errBoom
		rec := &Recorder{}
		m := NewMachine(g, interp, rec)

		report, err := m.Run(context.Background(), []string{"main"})
		var runErr *dse.RunError
		if !errors.As(err, &runErr) {
			t.Fatalf("unexpected error: %v", err)
		} else if !errors.Is(err, errBoom) {
			t.Fatalf("unexpected cause: %v", err)
		} else if runErr.Steps != 1 {
			t.Fatalf("unexpected steps: %d", runErr.Steps)
		} else if report == nil || report.Reason != dse.StopFailed {
			t.Fatalf("unexpected report: %+v", report)
		} else if rec.stopped != 1 {
			t.Fatal("expected observers notified of stop")
		}
	})

	t.Run("ErrCanceled", func(t *testing.T) {
		g := diamond()
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := m.Run(ctx, []string{"main"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		} else if report.Reason != dse.StopCanceled {
			t.Fatalf("unexpected reason: %s", report.Reason)
		}
	})

	t.Run("ErrMissingEntryPoint", func(t *testing.T) {
		g := diamond()
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		if _, err := m.Run(context.Background(), []string{"nope"}); !errors.Is(err, dse.ErrMissingEntryPoint) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrNoInitialState", func(t *testing.T) {
		g := diamond()
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		if _, err := m.Run(context.Background(), nil); !errors.Is(err, dse.ErrNoInitialState) {
			t.Fatalf("unexpected error: %v", err)
		} else if _, err := m.Run(context.Background(), nil, dse.NewState[string, string]("main")); !errors.Is(err, dse.ErrNoInitialState) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrInvalidOptions", func(t *testing.T) {
		g := diamond()
		m := NewMachine(g, NewInterpreter(g, NewSolver()), nil)
		m.Options.Workers = 0
		if _, err := m.Run(context.Background(), []string{"main"}); err == nil {
			t.Fatal("expected error")
		}
	})

	// Each parallel child explores its own copy of the initial state.
	t.Run("ParallelWorkers", func(t *testing.T) {
		g := diamond()
		interp := NewInterpreter(g, NewSolver())
		m := NewMachine(g, interp, nil)
		m.Options.PathSelectionStrategies = []dse.PathSelectionStrategy{dse.BFS, dse.DFS}
		m.Options.CombinationStrategy = dse.Parallel
		m.Options.Workers = 2

		report, err := m.Run(context.Background(), []string{"main"})
		if err != nil {
			t.Fatal(err)
		} else if n := len(report.States); n != 4 {
			t.Fatalf("unexpected collected states: %d", n)
		} else if n := interp.Steps.Load(); n != 8 {
			t.Fatalf("unexpected steps: %d", n)
		}
	})
}

func TestNewForker(t *testing.T) {
	opts := dse.DefaultOptions()
	if _, ok := dse.NewForker[string, string](opts, NewSolver()).(*dse.WithSolverForker[string, string]); !ok {
		t.Fatal("expected solver forker")
	}
	opts.UseSolverForFork = false
	if _, ok := dse.NewForker[string, string](opts, NewSolver()).(dse.NoSolverForker[string, string]); !ok {
		t.Fatal("expected no-solver forker")
	}
}
