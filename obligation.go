package dse

import (
	"context"
	"fmt"
)

// ProofObligation is a target carrying a snapshot of path constraints. It is
// propagated backward: a predecessor state satisfies the obligation when its
// own constraints together with the obligation's remain satisfiable.
type ProofObligation[M, S comparable] struct {
	*Target[M, S]
	constraints []Expr
}

// NewProofObligation returns an obligation at location requiring constraints.
func NewProofObligation[M, S comparable](location S, constraints ...Expr) *ProofObligation[M, S] {
	o := &ProofObligation[M, S]{
		Target:      NewTarget[M](location),
		constraints: constraints,
	}
	o.Target.obligation = o
	return o
}

// Constraints returns the constraint snapshot.
func (o *ProofObligation[M, S]) Constraints() []Expr { return o.constraints }

// AddChild appends child to the obligation tree and returns it.
func (o *ProofObligation[M, S]) AddChild(child *ProofObligation[M, S]) *ProofObligation[M, S] {
	o.Target.AddChild(child.Target)
	return child
}

// WeakestPrecondition checks whether state can precede the obligation. If
// so, a child obligation at the state's current statement carrying the
// merged constraints is attached and returned; otherwise nil is returned.
//
// Cached models of state are tried first and the solver is queried at most
// once. A model found by the solver is added to the state's models.
func (o *ProofObligation[M, S]) WeakestPrecondition(ctx context.Context, solver Solver, state *State[M, S]) (*ProofObligation[M, S], error) {
	merged := state.constraints.With(NewAndExpr(o.constraints...), nil)
	if merged.IsFalse() {
		return nil, nil
	}
	constraints := merged.Constraints()

	for _, model := range state.models {
		if Satisfies(model, constraints...) {
			return o.AddChild(o.newChild(state, constraints)), nil
		}
	}

	result, err := solver.Check(ctx, constraints)
	if err != nil {
		return nil, fmt.Errorf("weakest precondition: %w", err)
	}
	if result, ok := result.(*SatResult); ok {
		state.AddModel(result.Model)
		return o.AddChild(o.newChild(state, constraints)), nil
	}
	return nil, nil
}

func (o *ProofObligation[M, S]) newChild(state *State[M, S], constraints []Expr) *ProofObligation[M, S] {
	location, ok := state.CurrentStatement()
	if !ok {
		location = o.Location()
	}
	return NewProofObligation[M](location, constraints...)
}
