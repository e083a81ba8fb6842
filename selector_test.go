package dse_test

import (
	"testing"

	"github.com/benbjohnson/dse"
	"github.com/benbjohnson/dse/ps"
)

func TestNewPathSelector(t *testing.T) {
	strategies := []dse.PathSelectionStrategy{
		dse.BFS, dse.DFS, dse.RandomPath,
		dse.Depth, dse.DepthRandom,
		dse.ForkDepth, dse.ForkDepthRandom,
		dse.ClosestToUncovered, dse.ClosestToUncoveredRandom,
		dse.ClosestToTargets,
	}
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g := diamond()
			opts := dse.DefaultOptions()
			opts.PathSelectionStrategies = []dse.PathSelectionStrategy{strategy}
			s := MustInitialState(g, "main")

			sel, err := dse.NewPathSelector(opts, dse.NewRun[string, string](g, "main"), []*State{s})
			if err != nil {
				t.Fatal(err)
			} else if sel.IsEmpty() {
				t.Fatal("expected initial state")
			} else if sel.Peek() != s {
				t.Fatal("unexpected state")
			}
		})
	}

	t.Run("ClosestToUncovered", func(t *testing.T) {
		g := diamond()
		opts := dse.DefaultOptions()
		opts.PathSelectionStrategies = []dse.PathSelectionStrategy{dse.ClosestToUncovered}
		run := dse.NewRun[string, string](g, "main")
		run.Coverage.OnStateTerminated(walk("main.0", "main.1", "main.2", "main.4"), true)

		a := MustInitialState(g, "main")
		a.NewLocation("main.2")
		b := MustInitialState(g, "main")
		b.NewLocation("main.3")

		sel, err := dse.NewPathSelector(opts, run, []*State{a, b})
		if err != nil {
			t.Fatal(err)
		} else if sel.Peek() != b {
			t.Fatal("expected state at uncovered statement first")
		}
	})

	t.Run("Parallel", func(t *testing.T) {
		g := diamond()
		opts := dse.DefaultOptions()
		opts.PathSelectionStrategies = []dse.PathSelectionStrategy{dse.BFS, dse.DFS}
		opts.CombinationStrategy = dse.Parallel
		s := MustInitialState(g, "main")

		sel, err := dse.NewPathSelector(opts, dse.NewRun[string, string](g, "main"), []*State{s})
		if err != nil {
			t.Fatal(err)
		}
		p, ok := sel.(*ps.Parallel[*State])
		if !ok {
			t.Fatalf("unexpected selector: %T", sel)
		}

		children := p.Selectors()
		if len(children) != 2 {
			t.Fatalf("unexpected children: %d", len(children))
		} else if children[0].Peek() != s {
			t.Fatal("expected original in first child")
		} else if other := children[1].Peek(); other == s {
			t.Fatal("expected clone in second child")
		} else if other.Path() != s.Path() {
			t.Fatal("expected clone to share the path")
		}
	})

	t.Run("Interleaved", func(t *testing.T) {
		g := diamond()
		opts := dse.DefaultOptions()
		opts.PathSelectionStrategies = []dse.PathSelectionStrategy{dse.BFS, dse.DFS}
		sel, err := dse.NewPathSelector(opts, dse.NewRun[string, string](g, "main"), []*State{MustInitialState(g, "main")})
		if err != nil {
			t.Fatal(err)
		} else if _, ok := sel.(*ps.Interleaved[*State]); !ok {
			t.Fatalf("unexpected selector: %T", sel)
		}
	})

	t.Run("Fair", func(t *testing.T) {
		g := diamond()
		opts := dse.DefaultOptions()
		opts.PathSelectionStrategies = []dse.PathSelectionStrategy{dse.BFS, dse.DFS}
		opts.CombinationStrategy = dse.Fair
		sel, err := dse.NewPathSelector(opts, dse.NewRun[string, string](g, "main"), []*State{MustInitialState(g, "main")})
		if err != nil {
			t.Fatal(err)
		} else if _, ok := sel.(*ps.Fair[*State]); !ok {
			t.Fatalf("unexpected selector: %T", sel)
		}
	})

	t.Run("ErrUnknownStrategy", func(t *testing.T) {
		g := diamond()
		opts := dse.DefaultOptions()
		opts.PathSelectionStrategies = []dse.PathSelectionStrategy{"NOPE"}
		if _, err := dse.NewPathSelector(opts, dse.NewRun[string, string](g, "main"), nil); err == nil {
			t.Fatal("expected error")
		}
	})
}
