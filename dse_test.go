package dse_test

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/benbjohnson/dse"
)

type (
	State  = dse.State[string, string]
	Target = dse.Target[string, string]
)

// Graph is a test application graph. Statements are named "method.N" and
// "method.0" is the entry point of each method.
type Graph struct {
	order   map[string][]string
	succs   map[string][]string
	callees map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		order:   make(map[string][]string),
		succs:   make(map[string][]string),
		callees: make(map[string][]string),
	}
}

// Method adds a method with edges of the form "0->1".
func (g *Graph) Method(name string, edges ...string) *Graph {
	g.add(name + ".0")
	for _, e := range edges {
		from, to, _ := strings.Cut(e, "->")
		f, t := name+"."+from, name+"."+to
		g.add(f)
		g.add(t)
		g.succs[f] = append(g.succs[f], t)
	}
	return g
}

// Call marks stmt as a call to callee. The call returns to the first
// successor of stmt.
func (g *Graph) Call(stmt, callee string) *Graph {
	g.callees[stmt] = append(g.callees[stmt], callee)
	return g
}

func (g *Graph) add(stmt string) {
	method := methodOf(stmt)
	if !slices.Contains(g.order[method], stmt) {
		g.order[method] = append(g.order[method], stmt)
	}
}

func methodOf(stmt string) string {
	method, _, _ := strings.Cut(stmt, ".")
	return method
}

func (g *Graph) Predecessors(stmt string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, from := range slices.Sorted(maps.Keys(g.succs)) {
			if slices.Contains(g.succs[from], stmt) && !yield(from) {
				return
			}
		}
	}
}

func (g *Graph) Successors(stmt string) iter.Seq[string] {
	return slices.Values(g.succs[stmt])
}

func (g *Graph) Callees(stmt string) iter.Seq[string] {
	return slices.Values(g.callees[stmt])
}

func (g *Graph) Callers(method string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, stmt := range slices.Sorted(maps.Keys(g.callees)) {
			if slices.Contains(g.callees[stmt], method) && !yield(stmt) {
				return
			}
		}
	}
}

func (g *Graph) EntryPoints(method string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if len(g.order[method]) > 0 {
			yield(method + ".0")
		}
	}
}

func (g *Graph) ExitPoints(method string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, stmt := range g.order[method] {
			if len(g.succs[stmt]) == 0 && !yield(stmt) {
				return
			}
		}
	}
}

func (g *Graph) MethodOf(stmt string) string { return methodOf(stmt) }

// Interpreter is a control-flow level interpreter over Graph. Branches fork
// on Conds, taking the first successor when the condition holds. Branches
// without a condition fork on a fresh boolean input.
type Interpreter struct {
	Graph  *Graph
	Forker dse.Forker[string, string]
	Conds  map[string]dse.Expr
	Throws map[string]bool
	Errors map[string]error

	Steps atomic.Int64
}

// NewInterpreter returns an interpreter forking through solver.
func NewInterpreter(g *Graph, solver dse.Solver) *Interpreter {
	return &Interpreter{
		Graph:  g,
		Forker: dse.NewWithSolverForker[string, string](solver),
		Conds:  make(map[string]dse.Expr),
		Throws: make(map[string]bool),
		Errors: make(map[string]error),
	}
}

func (it *Interpreter) Step(ctx context.Context, s *State) (dse.StepResult[string, string], error) {
	it.Steps.Add(1)
	alive := dse.StepResult[string, string]{OriginalAlive: true}

	stmt, _ := s.CurrentStatement()
	if err := it.Errors[stmt]; err != nil {
		return dse.StepResult[string, string]{}, err
	} else if it.Throws[stmt] {
		s.SetResult(&dse.Exception{Ref: dse.NewConstantExpr64(0), Type: "error"})
		return alive, nil
	}

	if callees := it.Graph.callees[stmt]; len(callees) > 0 {
		s.PushFrame(callees[0], it.Graph.succs[stmt][0], nil, 0)
		s.NewLocation(callees[0] + ".0")
		return alive, nil
	}

	succs := it.Graph.succs[stmt]
	switch len(succs) {
	case 0:
		s.PopFrame()
		return alive, nil
	case 1:
		s.NewLocation(succs[0])
		return alive, nil
	}

	cond, ok := it.Conds[stmt]
	if !ok {
		cond = dse.NewSymbolExpr("c@"+stmt, dse.WidthBool)
	}
	res, err := it.Forker.Fork(ctx, s, cond)
	if err != nil {
		return dse.StepResult[string, string]{}, err
	}

	var result dse.StepResult[string, string]
	for i, child := range []*State{res.Positive, res.Negative} {
		if child == nil {
			continue
		}
		child.NewLocation(succs[i])
		if child == s {
			result.OriginalAlive = true
		} else {
			result.Forked = append(result.Forked, child)
		}
	}
	return result, nil
}

func (it *Interpreter) Terminated(s *State) bool {
	if s.IsExceptional() {
		return true
	}
	stmt, ok := s.CurrentStatement()
	return ok && len(it.Graph.succs[stmt]) == 0 && len(it.Graph.callees[stmt]) == 0 && s.CallStack().Len() <= 1
}

// Solver decides constraints by enumerating every assignment of their
// symbols. Booleans range over {0,1} and wider symbols over [0, Domain).
type Solver struct {
	Domain  uint64
	Unknown bool

	calls atomic.Int64
}

// NewSolver returns a solver enumerating [0, 16).
func NewSolver() *Solver { return &Solver{Domain: 16} }

// Calls returns the number of checks performed.
func (s *Solver) Calls() int { return int(s.calls.Load()) }

func (s *Solver) Check(ctx context.Context, constraints []dse.Expr) (dse.SolverResult, error) {
	s.calls.Add(1)
	if s.Unknown {
		return &dse.UnknownResult{Reason: dse.ErrSolverUnknown}, nil
	}

	syms := dse.FindSymbols(constraints...)
	model := dse.MapModel{}
	var search func(i int) bool
	search = func(i int) bool {
		if i == len(syms) {
			return dse.Satisfies(model, constraints...)
		}
		n := s.Domain
		if syms[i].Width == dse.WidthBool {
			n = 2
		}
		for v := uint64(0); v < n; v++ {
			model[syms[i].Name] = v
			if search(i + 1) {
				return true
			}
		}
		delete(model, syms[i].Name)
		return false
	}

	if search(0) {
		return &dse.SatResult{Model: maps.Clone(model)}, nil
	}
	return &dse.UnsatResult{}, nil
}

// MustInitialState returns the initial state of method. Panic on error.
func MustInitialState(g *Graph, method string, targets ...*Target) *State {
	s, err := dse.NewInitialState[string, string](g, method, targets...)
	if err != nil {
		panic(err)
	}
	return s
}

// Must8 returns an 8-bit symbol.
func Must8(name string) *dse.SymbolExpr { return dse.NewSymbolExpr(name, 8) }

// ULT returns x < v for an 8-bit constant v.
func ULT(x dse.Expr, v uint64) dse.Expr {
	return dse.NewBinaryExpr(dse.ULT, x, dse.NewConstantExpr8(v))
}
