package dse

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout       = errors.New("dse: solver timeout")
	ErrSolverCanceled      = errors.New("dse: solver canceled")
	ErrSolverResourceLimit = errors.New("dse: solver resource limit")
	ErrSolverUnknown       = errors.New("dse: solver unknown error")

	ErrMissingEntryPoint = errors.New("dse: missing entry point")
	ErrNoInitialState    = errors.New("dse: no initial state")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
