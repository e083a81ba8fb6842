package dse_test

import (
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/dse"
	"github.com/google/go-cmp/cmp"
)

// diamond is main: 0 -> 1 -> {2, 3} -> 4.
func diamond() *Graph {
	return NewGraph().Method("main", "0->1", "1->2", "1->3", "2->4", "3->4")
}

// walk returns a state that visited stmts in order.
func walk(stmts ...string) *State {
	s := dse.NewState[string, string]("main")
	for _, stmt := range stmts {
		s.NewLocation(stmt)
	}
	return s
}

func TestCoverageStatistics(t *testing.T) {
	t.Run("VisitedOnce", func(t *testing.T) {
		cov := dse.NewCoverageStatistics[string, string](diamond(), "main")
		var visits []string
		cov.OnVisit(func(_ *State, _ string, stmt string) { visits = append(visits, stmt) })

		a, b := walk("main.0", "main.1"), walk("main.0", "main.1")
		cov.Visit(a, "main.0")
		cov.Visit(b, "main.0")
		cov.OnState(a, []*State{b})
		cov.Visit(a, "main.1")

		if diff := cmp.Diff([]string{"main.0", "main.1"}, visits); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		} else if !cov.IsVisited("main.0") || !cov.IsVisited("main.1") || cov.IsVisited("main.2") {
			t.Fatal("unexpected visited set")
		} else if n := cov.VisitedMethods(); n != 1 {
			t.Fatalf("unexpected visited methods: %d", n)
		}
	})

	t.Run("Covered", func(t *testing.T) {
		cov := dse.NewCoverageStatistics[string, string](diamond(), "main")
		var covered []string
		cov.OnCovered(func(_ *State, _ string, stmt string) { covered = append(covered, stmt) })

		if n := cov.TotalStatements(); n != 5 {
			t.Fatalf("unexpected total: %d", n)
		}

		cov.OnStateTerminated(walk("main.0", "main.1", "main.2", "main.4"), true)
		if n := cov.CoveredStatements(); n != 4 {
			t.Fatalf("unexpected covered: %d", n)
		} else if p := cov.Percent(); p != 80 {
			t.Fatalf("unexpected percent: %v", p)
		} else if diff := cmp.Diff([]string{"main.3"}, cov.UncoveredStatements()); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}

		// Unreachable states cover nothing.
		cov.OnStateTerminated(walk("main.0", "main.1", "main.3"), false)
		if cov.IsCovered("main.3") {
			t.Fatal("unreachable state must not cover")
		}

		cov.OnStateTerminated(walk("main.0", "main.1", "main.3", "main.4"), true)
		if p := cov.Percent(); p != 100 {
			t.Fatalf("unexpected percent: %v", p)
		}
		slices.Sort(covered)
		if diff := cmp.Diff([]string{"main.0", "main.1", "main.2", "main.3", "main.4"}, covered); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("AddCoverageZone", func(t *testing.T) {
		g := diamond().Method("f", "0->1")
		cov := dse.NewCoverageStatistics[string, string](g, "main")
		cov.AddCoverageZone("f")
		cov.AddCoverageZone("f")
		if n := cov.TotalStatements(); n != 7 {
			t.Fatalf("unexpected total: %d", n)
		} else if !cov.IsTracked("f") {
			t.Fatal("expected tracked method")
		} else if n := len(cov.UncoveredIn("f")); n != 2 {
			t.Fatalf("unexpected uncovered: %d", n)
		}
	})

	t.Run("EmptyZone", func(t *testing.T) {
		cov := dse.NewCoverageStatistics[string, string](diamond())
		if p := cov.Percent(); p != 100 {
			t.Fatalf("unexpected percent: %v", p)
		}
	})
}

func TestStepsFromLastCoveredStoppingStrategy(t *testing.T) {
	cov := dse.NewCoverageStatistics[string, string](diamond(), "main")
	steps := dse.NewStepsStatistics(cov)
	stop := &dse.StepsFromLastCoveredStoppingStrategy[string, string]{Steps: steps, Limit: 10}
	s := walk("main.0")

	// New coverage resets the counter.
	for i := 0; i < 5; i++ {
		steps.OnState(s, nil)
	}
	cov.OnStateTerminated(walk("main.0", "main.1"), true)
	if n := steps.SinceCovered(); n != 0 {
		t.Fatalf("unexpected steps since covered: %d", n)
	}

	for i := 1; i <= 10; i++ {
		if stop.ShouldStop() {
			t.Fatalf("stopped early before step %d", i)
		}
		steps.OnState(s, nil)
	}
	if !stop.ShouldStop() {
		t.Fatal("expected stop after 10th step without new coverage")
	} else if n := steps.Total(); n != 15 {
		t.Fatalf("unexpected total steps: %d", n)
	}
}

func TestStepLimitStoppingStrategy(t *testing.T) {
	steps := dse.NewStepsStatistics[string, string](nil)
	stop := &dse.StepLimitStoppingStrategy[string, string]{Steps: steps, Limit: 2}
	steps.OnState(walk("main.0"), nil)
	if stop.ShouldStop() {
		t.Fatal("stopped early")
	}
	steps.OnState(walk("main.0"), nil)
	if !stop.ShouldStop() {
		t.Fatal("expected stop")
	}
}

func TestTimeoutStoppingStrategy(t *testing.T) {
	now := time.Unix(1000, 0)
	stats := dse.NewTimeStatistics(func() time.Time { return now })
	stop := &dse.TimeoutStoppingStrategy{Time: stats, Timeout: time.Minute}

	now = now.Add(30 * time.Second)
	if stop.ShouldStop() {
		t.Fatal("stopped early")
	}
	now = now.Add(30 * time.Second)
	if !stop.ShouldStop() {
		t.Fatal("expected stop")
	}

	stats.Stop()
	now = now.Add(time.Hour)
	if d := stats.Elapsed(); d != time.Minute {
		t.Fatalf("unexpected elapsed: %s", d)
	}
}

func TestTargetsReachedStoppingStrategy(t *testing.T) {
	a, b := dse.NewTarget[string]("main.2"), dse.NewTarget[string]("main.3")
	stop := &dse.TargetsReachedStoppingStrategy[string, string]{Targets: []*Target{a, b}}
	a.Remove()
	if stop.ShouldStop() {
		t.Fatal("stopped early")
	}
	b.Remove()
	if !stop.ShouldStop() {
		t.Fatal("expected stop")
	}
}

func TestNewStopStrategy(t *testing.T) {
	t.Run("None", func(t *testing.T) {
		opts := dse.DefaultOptions()
		opts.StepsFromLastCovered, opts.StopOnCoverage = 0, 0
		run := dse.NewRun[string, string](diamond(), "main")
		if _, ok := dse.NewStopStrategy(opts, run, nil, nil).(dse.NoStoppingStrategy); !ok {
			t.Fatal("expected no stopping strategy")
		}
	})

	t.Run("CollectedStates", func(t *testing.T) {
		opts := dse.DefaultOptions()
		opts.CollectedStatesLimit = 1
		run := dse.NewRun[string, string](diamond(), "main")

		var n int
		stop := dse.NewStopStrategy(opts, run, nil, func() int { return n })
		if n = 1; stop.ShouldStop() {
			t.Fatal("stopped early")
		} else if n = 2; !stop.ShouldStop() {
			t.Fatal("expected stop")
		}
	})

	t.Run("Coverage", func(t *testing.T) {
		opts := dse.DefaultOptions()
		run := dse.NewRun[string, string](diamond(), "main")
		stop := dse.NewStopStrategy(opts, run, nil, nil)

		run.Coverage.OnStateTerminated(walk("main.0", "main.1", "main.2", "main.4"), true)
		if stop.ShouldStop() {
			t.Fatal("stopped early")
		}
		run.Coverage.OnStateTerminated(walk("main.0", "main.1", "main.3", "main.4"), true)
		if !stop.ShouldStop() {
			t.Fatal("expected stop")
		}
	})

	// With targets, coverage no longer stops the run.
	t.Run("Targets", func(t *testing.T) {
		opts := dse.DefaultOptions()
		run := dse.NewRun[string, string](diamond(), "main")
		target := dse.NewTarget[string]("main.3")
		stop := dse.NewStopStrategy(opts, run, []*Target{target}, nil)

		run.Coverage.OnStateTerminated(walk("main.0", "main.1", "main.2", "main.4"), true)
		run.Coverage.OnStateTerminated(walk("main.0", "main.1", "main.3", "main.4"), true)
		if stop.ShouldStop() {
			t.Fatal("stopped early")
		}
		target.Remove()
		if !stop.ShouldStop() {
			t.Fatal("expected stop")
		}
	})
}

func TestDistanceStatistics(t *testing.T) {
	d := dse.NewDistanceStatistics[string, string](diamond())
	if v := d.Distance("main.0", "main.4"); v != 3 {
		t.Fatalf("unexpected distance: %d", v)
	} else if v := d.Distance("main.2", "main.3"); v != dse.Infinite {
		t.Fatalf("unexpected distance: %d", v)
	} else if v := d.DistanceToExit("main.1"); v != 2 {
		t.Fatalf("unexpected distance to exit: %d", v)
	} else if v := d.Closest("main.0", []string{"main.4", "main.2"}); v != 2 {
		t.Fatalf("unexpected closest: %d", v)
	}
}

func TestCollectors(t *testing.T) {
	t.Run("All", func(t *testing.T) {
		c := dse.NewAllStatesCollector[string, string]()
		s := walk("main.0")
		c.OnStateTerminated(s, true)
		c.OnStateTerminated(s, true)
		c.OnStateTerminated(walk("main.0"), false)
		if n := c.Count(); n != 1 {
			t.Fatalf("unexpected count: %d", n)
		}
	})

	t.Run("CoveredNew", func(t *testing.T) {
		cov := dse.NewCoverageStatistics[string, string](diamond(), "main")
		c := dse.NewCoveredNewStatesCollector(cov, nil)
		notify := func(s *State) {
			cov.OnStateTerminated(s, true)
			c.OnStateTerminated(s, true)
		}

		a := walk("main.0", "main.1", "main.2", "main.4")
		b := walk("main.0", "main.1", "main.2", "main.4")
		e := walk("main.0", "main.1", "main.2", "main.4")
		e.SetResult(&dse.Exception{Ref: dse.NewConstantExpr64(0), Type: "error"})
		notify(a)
		notify(b)
		notify(e)

		states := c.CollectedStates()
		if len(states) != 2 || states[0] != a || states[1] != e {
			t.Fatalf("unexpected states: %v", states)
		}
	})

	t.Run("TargetsReached", func(t *testing.T) {
		c := dse.NewTargetsReachedStatesCollector[string, string]()
		s := walk("main.0")
		c.OnStateTerminated(s, true)
		c.OnTargetReached(s, dse.NewTarget[string]("main.0"))
		if states := c.CollectedStates(); len(states) != 1 || states[0] != s {
			t.Fatalf("unexpected states: %v", states)
		}
	})
}

func TestTargetsReachableBlackList(t *testing.T) {
	g := NewGraph().
		Method("main", "0->1", "1->2", "1->3", "2->4", "3->4").
		Method("f", "0->1").
		Call("main.2", "f")
	bl := dse.NewTargetsReachableBlackList[string, string](g)

	t.Run("NoTargets", func(t *testing.T) {
		if !bl.Sieve(walk("main.3"), "main.3") {
			t.Fatal("expected state without targets kept")
		}
	})

	t.Run("Reachable", func(t *testing.T) {
		s := dse.NewState("main", dse.NewTarget[string]("f.1"))
		if !bl.Sieve(s, "main.2") {
			t.Fatal("expected callee target reachable")
		} else if bl.Sieve(s, "main.3") {
			t.Fatal("expected unreachable state dropped")
		}
	})

	t.Run("Return", func(t *testing.T) {
		if !bl.Reachable("f.1", "main.4") {
			t.Fatal("expected caller successor reachable from callee exit")
		}
	})
}
