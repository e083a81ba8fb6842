package ssagraph

import (
	"context"
	"fmt"

	"github.com/benbjohnson/dse"
	"golang.org/x/tools/go/ssa"
)

// DefaultMaxCallDepth is the call depth past which calls are stepped over.
const DefaultMaxCallDepth = 32

// State is an SSA-level symbolic state.
type State = dse.State[*ssa.Function, ssa.Instruction]

var _ dse.Interpreter[*ssa.Function, ssa.Instruction] = (*Stepper)(nil)

// Stepper interprets SSA at the control-flow level. Values are not
// modeled: every conditional branch forks on a fresh boolean input, calls
// with a static callee are entered and returns resume at the call site.
// A panic ends the state with an exception result.
type Stepper struct {
	Forker dse.Forker[*ssa.Function, ssa.Instruction]

	// MaxCallDepth bounds call nesting. Zero means DefaultMaxCallDepth.
	MaxCallDepth int
}

// NewStepper returns a stepper forking through forker.
func NewStepper(forker dse.Forker[*ssa.Function, ssa.Instruction]) *Stepper {
	return &Stepper{Forker: forker}
}

func (s *Stepper) maxCallDepth() int {
	if s.MaxCallDepth > 0 {
		return s.MaxCallDepth
	}
	return DefaultMaxCallDepth
}

// Step executes the state's current instruction.
func (s *Stepper) Step(ctx context.Context, state *State) (dse.StepResult[*ssa.Function, ssa.Instruction], error) {
	alive := dse.StepResult[*ssa.Function, ssa.Instruction]{OriginalAlive: true}

	instr, ok := state.CurrentStatement()
	if !ok {
		return alive, fmt.Errorf("ssagraph: state %d has no location", state.ID())
	}

	switch instr := instr.(type) {
	case *ssa.If:
		return s.branch(ctx, state, instr)

	case *ssa.Jump:
		state.NewLocation(instr.Block().Succs[0].Instrs[0])

	case *ssa.Return:
		state.PopFrame()

	case *ssa.Panic:
		state.SetResult(&dse.Exception{
			Ref:  dse.NewConstantExpr64(0),
			Type: instr.X.Type(),
		})

	default:
		if callee := staticCallee(instr); callee != nil && state.CallStack().Len() < s.maxCallDepth() {
			state.PushFrame(callee, next(instr), nil, 0)
			state.NewLocation(callee.Blocks[0].Instrs[0])
			break
		}
		state.NewLocation(next(instr))
	}
	return alive, nil
}

// branch forks state on a fresh boolean symbol. The true side continues in
// the first successor block.
func (s *Stepper) branch(ctx context.Context, state *State, instr *ssa.If) (dse.StepResult[*ssa.Function, ssa.Instruction], error) {
	cond := dse.NewSymbolExpr(condName(state, instr), dse.WidthBool)
	res, err := s.Forker.Fork(ctx, state, cond)
	if err != nil {
		return dse.StepResult[*ssa.Function, ssa.Instruction]{}, err
	}

	var result dse.StepResult[*ssa.Function, ssa.Instruction]
	succs := instr.Block().Succs
	for i, child := range []*State{res.Positive, res.Negative} {
		if child == nil {
			continue
		}
		child.MarkForkPoint(instr)
		child.NewLocation(succs[i].Instrs[0])
		if child == state {
			result.OriginalAlive = true
		} else {
			result.Forked = append(result.Forked, child)
		}
	}
	return result, nil
}

// condName names the branch input by function, block and path depth so
// that a loop revisiting a branch gets a new input each time.
func condName(state *State, instr *ssa.If) string {
	return fmt.Sprintf("%s:%d#%d", instr.Parent().String(), instr.Block().Index, state.Path().Depth())
}

// Terminated returns true once the state panicked or reached a return from
// its bottom frame.
func (s *Stepper) Terminated(state *State) bool {
	if state.IsExceptional() {
		return true
	}
	instr, ok := state.CurrentStatement()
	if !ok {
		return true
	}
	_, ok = instr.(*ssa.Return)
	return ok && state.CallStack().Len() <= 1
}
