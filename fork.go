package dse

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ForkResult holds the states continuing on each side of a branch. At least
// one of them is non-nil. When both sides are feasible Positive is the
// original state.
type ForkResult[M, S comparable] struct {
	Positive *State[M, S]
	Negative *State[M, S]
}

// Forker implements symbolic branching.
type Forker[M, S comparable] interface {
	// Fork splits state on cond. It issues at most one solver query.
	Fork(ctx context.Context, state *State[M, S], cond Expr) (ForkResult[M, S], error)

	// ForkMulti splits state over a list of disjoint conditions. The result
	// holds one entry per condition; nil marks an infeasible condition.
	ForkMulti(ctx context.Context, state *State[M, S], conds []Expr) ([]*State[M, S], error)
}

var (
	_ Forker[int, int] = (*WithSolverForker[int, int])(nil)
	_ Forker[int, int] = (*NoSolverForker[int, int])(nil)
)

// WithSolverForker forks states, consulting the solver when the cached
// models cannot witness both sides of a branch.
type WithSolverForker[M, S comparable] struct {
	Solver Solver
	Logger *slog.Logger
}

// NewWithSolverForker returns a forker backed by solver.
func NewWithSolverForker[M, S comparable](solver Solver) *WithSolverForker[M, S] {
	return &WithSolverForker[M, S]{Solver: solver}
}

func (f *WithSolverForker[M, S]) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fork splits state on cond.
func (f *WithSolverForker[M, S]) Fork(ctx context.Context, state *State[M, S], cond Expr) (ForkResult[M, S], error) {
	trueModels, falseModels := splitModels(state.models, cond)
	notCond := NewNotExpr(cond)

	switch {
	case len(trueModels) > 0 && len(falseModels) > 0:
		neg := state.Clone(nil)
		state.models, neg.models = trueModels, falseModels
		state.constraints.Add(cond)
		neg.constraints.Add(notCond)
		f.logger().Debug("fork", "state", state.id, "forked", neg.id, "solver", false)
		return ForkResult[M, S]{Positive: state, Negative: neg}, nil

	case len(trueModels) > 0:
		neg, err := f.forkIfSat(ctx, state, cond, notCond, true)
		if err != nil {
			return ForkResult[M, S]{}, err
		}
		return ForkResult[M, S]{Positive: state, Negative: neg}, nil

	default:
		assert(len(falseModels) > 0, "fork: state#%d has no models", state.id)
		neg, err := f.forkIfSat(ctx, state, cond, notCond, false)
		if err != nil {
			return ForkResult[M, S]{}, err
		} else if neg != nil {
			return ForkResult[M, S]{Positive: state, Negative: neg}, nil
		}
		return ForkResult[M, S]{Negative: state}, nil
	}
}

// ForkMulti splits state over conds. Each feasible condition gets a state;
// the original state continues as the first feasible one. The remainder is
// only cloned while later conditions are left to split.
func (f *WithSolverForker[M, S]) ForkMulti(ctx context.Context, state *State[M, S], conds []Expr) ([]*State[M, S], error) {
	cur := state
	result := make([]*State[M, S], 0, len(conds))
	for i, cond := range conds {
		trueModels, _ := splitModels(cur.models, cond)

		if i == len(conds)-1 {
			if len(trueModels) > 0 {
				cur.models = trueModels
				cur.constraints.Add(cond)
				result = append(result, cur)
				break
			}
			ok, err := f.assumeIfSat(ctx, cur, cond)
			if err != nil {
				return nil, err
			} else if !ok {
				cur = nil
			}
			result = append(result, cur)
			break
		}

		var next *State[M, S]
		if len(trueModels) > 0 {
			next = cur.Clone(nil)
			cur.models = trueModels
			cur.constraints.Add(cond)
		} else {
			var err error
			if next, err = f.forkIfSat(ctx, cur, cond, NewBoolConstantExpr(true), false); err != nil {
				return nil, err
			}
		}

		if next == nil {
			result = append(result, nil)
			continue
		}
		result = append(result, cur)
		cur = next
	}
	return result, nil
}

// check queries the solver for constraints unless they are trivially false.
func (f *WithSolverForker[M, S]) check(ctx context.Context, state *State[M, S], constraints *PathConstraints) (SolverResult, error) {
	if constraints.IsFalse() {
		return &UnsatResult{}, nil
	}
	result, err := f.Solver.Check(ctx, constraints.Constraints())
	if err != nil {
		return nil, fmt.Errorf("fork state#%d: %w", state.id, err)
	}
	trace.SpanFromContext(ctx).AddEvent("solver.check", trace.WithAttributes(
		attribute.Int64("state", int64(state.id)),
		attribute.String("result", fmt.Sprint(result)),
	))
	return result, nil
}

// assumeIfSat conjoins cond to state if the result is satisfiable, caching
// the model. Otherwise state is unchanged and false is returned.
func (f *WithSolverForker[M, S]) assumeIfSat(ctx context.Context, state *State[M, S], cond Expr) (bool, error) {
	result, err := f.check(ctx, state, state.constraints.With(cond, nil))
	if err != nil {
		return false, err
	}
	sat, ok := result.(*SatResult)
	if !ok {
		f.logger().Debug("fork", "state", state.id, "result", fmt.Sprint(result))
		return false, nil
	}
	state.constraints.Add(cond)
	state.models = []Model{sat.Model}
	return true, nil
}

// forkIfSat checks one side of a branch. When checkForked is true the side
// checked is state's constraints plus forkedCond, otherwise plus origCond.
//
// On sat the state is cloned: state takes origCond, the clone takes
// forkedCond, and the side that was checked caches the model. On unsat
// nothing changes and nil is returned. On unknown state takes the constraint
// of the side that was not checked and nil is returned.
func (f *WithSolverForker[M, S]) forkIfSat(ctx context.Context, state *State[M, S], origCond, forkedCond Expr, checkForked bool) (*State[M, S], error) {
	checked := origCond
	if checkForked {
		checked = forkedCond
	}
	toCheck := state.constraints.With(checked, nil)

	result, err := f.check(ctx, state, toCheck)
	if err != nil {
		return nil, err
	}

	switch result := result.(type) {
	case *UnsatResult:
		f.logger().Debug("fork", "state", state.id, "result", "unsat")
		return nil, nil

	case *SatResult:
		var forked *State[M, S]
		if checkForked {
			forked = state.Clone(toCheck)
			state.constraints.Add(origCond)
			forked.models = []Model{result.Model}
		} else {
			forked = state.Clone(nil)
			state.constraints.Add(origCond)
			state.models = []Model{result.Model}
			forked.constraints.Add(forkedCond)
		}
		f.logger().Debug("fork", "state", state.id, "forked", forked.id, "solver", true)
		return forked, nil

	case *UnknownResult:
		f.logger().Debug("fork", "state", state.id, "result", "unknown", "reason", result.Reason)
		if checkForked {
			state.constraints.Add(origCond)
		} else {
			state.constraints.Add(forkedCond)
		}
		return nil, nil

	default:
		panic(fmt.Sprintf("unexpected solver result: %T", result))
	}
}

// NoSolverForker forks on the constraint structure alone. A side is dropped
// only when its constraints are trivially false.
type NoSolverForker[M, S comparable] struct{}

// Fork splits state on cond without consulting a solver.
func (NoSolverForker[M, S]) Fork(ctx context.Context, state *State[M, S], cond Expr) (ForkResult[M, S], error) {
	trueModels, falseModels := splitModels(state.models, cond)
	notCond := NewNotExpr(cond)

	if state.constraints.With(cond, nil).IsFalse() {
		state.constraints.Add(notCond)
		state.models = nonEmptyModels(falseModels, state.models)
		if state.constraints.IsFalse() {
			return ForkResult[M, S]{}, nil
		}
		return ForkResult[M, S]{Negative: state}, nil
	}

	neg := state.Clone(nil)
	state.constraints.Add(cond)
	state.models = nonEmptyModels(trueModels, state.models)
	neg.constraints.Add(notCond)
	neg.models = nonEmptyModels(falseModels, neg.models)
	if neg.constraints.IsFalse() {
		neg = nil
	}
	return ForkResult[M, S]{Positive: state, Negative: neg}, nil
}

// ForkMulti splits state over conds without consulting a solver.
func (NoSolverForker[M, S]) ForkMulti(ctx context.Context, state *State[M, S], conds []Expr) ([]*State[M, S], error) {
	cur := state
	result := make([]*State[M, S], 0, len(conds))
	for i, cond := range conds {
		trueModels, _ := splitModels(cur.models, cond)

		if cur.constraints.With(cond, nil).IsFalse() {
			result = append(result, nil)
			continue
		}

		var next *State[M, S]
		if i < len(conds)-1 {
			next = cur.Clone(nil)
		}
		cur.models = nonEmptyModels(trueModels, cur.models)
		cur.constraints.Add(cond)
		result = append(result, cur)
		cur = next
	}
	return result, nil
}

// splitModels partitions models by the value of cond.
func splitModels(models []Model, cond Expr) (trueModels, falseModels []Model) {
	for _, m := range models {
		if m.Eval(cond).IsTrue() {
			trueModels = append(trueModels, m)
		} else {
			falseModels = append(falseModels, m)
		}
	}
	return trueModels, falseModels
}

// nonEmptyModels returns models, or fallback when models is empty. Without a
// solver the fallback models may no longer satisfy the path; they are kept so
// that the model list is never empty.
func nonEmptyModels(models, fallback []Model) []Model {
	if len(models) > 0 {
		return models
	}
	return fallback
}
