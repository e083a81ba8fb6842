package dse

import (
	"fmt"
)

// MethodResult is the outcome of the last invoked method. It is one of
// NoCall, *Success or *Exception.
type MethodResult interface {
	methodResult()
}

func (NoCall) methodResult()     {}
func (*Success) methodResult()   {}
func (*Exception) methodResult() {}

// NoCall means no method result is pending.
type NoCall struct{}

// Success is a normal return carrying a value of a front-end type.
type Success struct {
	Value Expr
	Type  any
}

// Exception is an abnormal return carrying a heap reference to the thrown
// value and its dynamic type.
type Exception struct {
	Ref  Expr
	Type any
}

func (NoCall) String() string { return "no call" }

func (r *Success) String() string {
	return fmt.Sprintf("success %v: %s", r.Type, r.Value)
}

func (r *Exception) String() string {
	return fmt.Sprintf("exception %v: %s", r.Type, r.Ref)
}

// ResultHolder gives interpreters access to a state's pending method result.
// Callers consume the result once per step with TakeResult.
type ResultHolder interface {
	Result() MethodResult
	SetResult(MethodResult)
	ClearResult()
	TakeResult() MethodResult
}
