package dse

import (
	"context"
	"iter"
)

// ApplicationGraph is the front-end's view of the analyzed program. All
// sequences are lazy.
type ApplicationGraph[M, S comparable] interface {
	Predecessors(stmt S) iter.Seq[S]
	Successors(stmt S) iter.Seq[S]
	Callees(stmt S) iter.Seq[M]
	Callers(method M) iter.Seq[S]
	EntryPoints(method M) iter.Seq[S]
	ExitPoints(method M) iter.Seq[S]
	MethodOf(stmt S) M
}

// StepResult describes the outcome of one interpreter step.
type StepResult[M, S comparable] struct {
	// Forked holds new states produced by the step, excluding the original.
	Forked []*State[M, S]

	// OriginalAlive is false when the stepped state was found infeasible
	// and must be dropped.
	OriginalAlive bool
}

// Interpreter executes target language statements. It is the only place
// language semantics enter the engine.
type Interpreter[M, S comparable] interface {
	// Step executes the statement the state is positioned at.
	Step(ctx context.Context, state *State[M, S]) (StepResult[M, S], error)

	// Terminated returns true if the state has finished executing.
	Terminated(state *State[M, S]) bool
}

// first returns the first element of seq.
func first[T any](seq iter.Seq[T]) (v T, ok bool) {
	for v := range seq {
		return v, true
	}
	return v, false
}
