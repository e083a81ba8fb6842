package dse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Solver represents a logical constraint solver.
//
// Unsatisfiable and unknown outcomes are results, not errors. An error is
// only returned when the solver itself failed to run.
type Solver interface {
	Check(ctx context.Context, constraints []Expr) (SolverResult, error)
}

// SoftSolver is a Solver that additionally tries to satisfy a list of soft
// constraints on a best-effort basis. Soft constraints never make a
// satisfiable hard set unsatisfiable.
type SoftSolver interface {
	Solver
	CheckSoft(ctx context.Context, hard, soft []Expr) (SolverResult, error)
}

// SolverResult is the outcome of a solver check. It is one of *SatResult,
// *UnsatResult or *UnknownResult.
type SolverResult interface {
	solverResult()
}

func (*SatResult) solverResult()     {}
func (*UnsatResult) solverResult()   {}
func (*UnknownResult) solverResult() {}

// SatResult holds the model witnessing satisfiability.
type SatResult struct {
	Model Model
}

// UnsatResult reports that the constraints cannot be satisfied.
type UnsatResult struct{}

// UnknownResult reports that the solver could not decide. Reason is one of
// the ErrSolver* errors or a solver specific error.
type UnknownResult struct {
	Reason error
}

func (r *SatResult) String() string     { return fmt.Sprintf("sat %v", r.Model) }
func (r *UnsatResult) String() string   { return "unsat" }
func (r *UnknownResult) String() string { return fmt.Sprintf("unknown (%v)", r.Reason) }

// checkSoft calls CheckSoft when solver supports it and falls back to a
// plain check of the hard constraints otherwise.
func checkSoft(ctx context.Context, solver Solver, hard, soft []Expr) (SolverResult, error) {
	if s, ok := solver.(SoftSolver); ok && len(soft) > 0 {
		return s.CheckSoft(ctx, hard, soft)
	}
	return solver.Check(ctx, hard)
}

// TimeoutSolver bounds every check of the wrapped solver by Timeout. A
// check cut short by the deadline yields an unknown result with reason
// ErrSolverTimeout; cancellation of the caller's context yields
// ErrSolverCanceled.
type TimeoutSolver struct {
	Solver  Solver
	Timeout time.Duration
}

var _ SoftSolver = (*TimeoutSolver)(nil)

// NewTimeoutSolver wraps solver. A non-positive timeout returns solver as is.
func NewTimeoutSolver(solver Solver, timeout time.Duration) Solver {
	if timeout <= 0 {
		return solver
	}
	return &TimeoutSolver{Solver: solver, Timeout: timeout}
}

func (s *TimeoutSolver) Check(ctx context.Context, constraints []Expr) (SolverResult, error) {
	return s.run(ctx, func(ctx context.Context) (SolverResult, error) {
		return s.Solver.Check(ctx, constraints)
	})
}

func (s *TimeoutSolver) CheckSoft(ctx context.Context, hard, soft []Expr) (SolverResult, error) {
	return s.run(ctx, func(ctx context.Context) (SolverResult, error) {
		return checkSoft(ctx, s.Solver, hard, soft)
	})
}

func (s *TimeoutSolver) run(ctx context.Context, fn func(context.Context) (SolverResult, error)) (SolverResult, error) {
	if err := ctx.Err(); err != nil {
		return &UnknownResult{Reason: ErrSolverCanceled}, nil
	}

	tctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	result, err := fn(tctx)
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return &UnknownResult{Reason: ErrSolverCanceled}, nil
	case errors.Is(err, context.DeadlineExceeded):
		return &UnknownResult{Reason: ErrSolverTimeout}, nil
	default:
		return nil, err
	}
}
