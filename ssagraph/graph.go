// Package ssagraph exposes Go SSA programs to the dse engine. Methods are
// *ssa.Function values and statements are ssa.Instruction values.
package ssagraph

import (
	"iter"
	"sync"

	"github.com/benbjohnson/dse"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

var _ dse.ApplicationGraph[*ssa.Function, ssa.Instruction] = (*Graph)(nil)

// Graph implements dse.ApplicationGraph over an SSA program.
type Graph struct {
	prog *ssa.Program

	once    sync.Once
	callers map[*ssa.Function][]ssa.Instruction
}

// NewGraph returns a graph over prog. The program must be built.
func NewGraph(prog *ssa.Program) *Graph {
	return &Graph{prog: prog}
}

// Program returns the underlying program.
func (g *Graph) Program() *ssa.Program { return g.prog }

// Predecessors returns the previous instruction in the block, or the last
// instruction of every predecessor block.
func (g *Graph) Predecessors(instr ssa.Instruction) iter.Seq[ssa.Instruction] {
	return func(yield func(ssa.Instruction) bool) {
		b := instr.Block()
		if i := indexOf(instr); i > 0 {
			yield(b.Instrs[i-1])
			return
		}
		for _, pred := range b.Preds {
			if len(pred.Instrs) > 0 && !yield(pred.Instrs[len(pred.Instrs)-1]) {
				return
			}
		}
	}
}

// Successors returns the next instruction in the block, or the first
// instruction of every successor block after a terminator.
func (g *Graph) Successors(instr ssa.Instruction) iter.Seq[ssa.Instruction] {
	return func(yield func(ssa.Instruction) bool) {
		b := instr.Block()
		if i := indexOf(instr); i < len(b.Instrs)-1 {
			yield(b.Instrs[i+1])
			return
		}
		for _, succ := range b.Succs {
			if len(succ.Instrs) > 0 && !yield(succ.Instrs[0]) {
				return
			}
		}
	}
}

// Callees returns the static callee of a call instruction, if it has a body.
func (g *Graph) Callees(instr ssa.Instruction) iter.Seq[*ssa.Function] {
	return func(yield func(*ssa.Function) bool) {
		if fn := staticCallee(instr); fn != nil {
			yield(fn)
		}
	}
}

// Callers returns every call instruction whose static callee is fn.
func (g *Graph) Callers(fn *ssa.Function) iter.Seq[ssa.Instruction] {
	g.once.Do(g.indexCallers)
	return func(yield func(ssa.Instruction) bool) {
		for _, instr := range g.callers[fn] {
			if !yield(instr) {
				return
			}
		}
	}
}

func (g *Graph) indexCallers() {
	g.callers = make(map[*ssa.Function][]ssa.Instruction)
	for fn := range ssautil.AllFunctions(g.prog) {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if callee := staticCallee(instr); callee != nil {
					g.callers[callee] = append(g.callers[callee], instr)
				}
			}
		}
	}
}

// EntryPoints returns the first instruction of fn.
func (g *Graph) EntryPoints(fn *ssa.Function) iter.Seq[ssa.Instruction] {
	return func(yield func(ssa.Instruction) bool) {
		if len(fn.Blocks) > 0 && len(fn.Blocks[0].Instrs) > 0 {
			yield(fn.Blocks[0].Instrs[0])
		}
	}
}

// ExitPoints returns the return and panic instructions of fn.
func (g *Graph) ExitPoints(fn *ssa.Function) iter.Seq[ssa.Instruction] {
	return func(yield func(ssa.Instruction) bool) {
		for _, b := range fn.Blocks {
			if len(b.Instrs) == 0 {
				continue
			}
			switch instr := b.Instrs[len(b.Instrs)-1].(type) {
			case *ssa.Return, *ssa.Panic:
				if !yield(instr) {
					return
				}
			}
		}
	}
}

// MethodOf returns the function containing instr.
func (g *Graph) MethodOf(instr ssa.Instruction) *ssa.Function { return instr.Parent() }

// indexOf returns the position of instr in its block.
func indexOf(instr ssa.Instruction) int {
	for i, other := range instr.Block().Instrs {
		if other == instr {
			return i
		}
	}
	panic("ssagraph: instruction not in its block")
}

// next returns the instruction following instr in its block. Calls are
// never block terminators so a call always has one.
func next(instr ssa.Instruction) ssa.Instruction {
	return instr.Block().Instrs[indexOf(instr)+1]
}

// staticCallee returns the function called by a plain call instruction if
// it is statically known and has a body.
func staticCallee(instr ssa.Instruction) *ssa.Function {
	call, ok := instr.(*ssa.Call)
	if !ok {
		return nil
	}
	fn := call.Common().StaticCallee()
	if fn == nil || len(fn.Blocks) == 0 {
		return nil
	}
	return fn
}
