package dse

import (
	"bytes"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
)

var stateSeq atomic.Uint64

// StateData is the language specific part of a state. Clone must return a
// value whose later mutation is not observable through the receiver.
type StateData interface {
	Clone() StateData
}

// State represents a single symbolic execution path. M and S are the
// front-end's method and statement types.
//
// A State is confined to one goroutine at a time. Clone yields a state that
// is logically independent of the receiver while sharing all persistent
// substructure with it.
type State[M, S comparable] struct {
	id    uint64
	owner *Ownership

	entry       M
	callStack   CallStack[M, S]
	constraints *PathConstraints
	memory      *Memory
	models      []Model

	path       *PathNode[S]
	forkPoints *PathNode[S]

	result  MethodResult
	targets TargetSet[M, S]

	// Data holds front-end specific state.
	Data StateData
}

var _ ResultHolder = (*State[int, int])(nil)

// NewState returns a fresh state entering method entry with the given
// targets active. The state starts with a single empty model, which
// satisfies its empty constraint set.
func NewState[M, S comparable](entry M, targets ...*Target[M, S]) *State[M, S] {
	owner := NewOwnership()
	return &State[M, S]{
		id:          stateSeq.Add(1),
		owner:       owner,
		entry:       entry,
		constraints: NewPathConstraints(owner),
		memory:      NewMemory(owner),
		models:      []Model{MapModel{}},
		result:      NoCall{},
		targets:     NewTargetSet(targets...),
	}
}

// ID returns the unique state identifier.
func (s *State[M, S]) ID() uint64 { return s.id }

// Owner returns the state's current ownership token.
func (s *State[M, S]) Owner() *Ownership { return s.owner }

// Entry returns the method the state started in.
func (s *State[M, S]) Entry() M { return s.entry }

// CallStack returns the call stack.
func (s *State[M, S]) CallStack() CallStack[M, S] { return s.callStack }

// Constraints returns the path constraints.
func (s *State[M, S]) Constraints() *PathConstraints { return s.constraints }

// Memory returns the symbolic memory.
func (s *State[M, S]) Memory() *Memory { return s.memory }

// Models returns the satisfying models found for the path so far.
func (s *State[M, S]) Models() []Model { return s.models }

// SetModels replaces the cached models.
func (s *State[M, S]) SetModels(models []Model) { s.models = models }

// AddModel appends a model to the cache.
func (s *State[M, S]) AddModel(model Model) { s.models = append(s.models, model) }

// Path returns the visited statements.
func (s *State[M, S]) Path() *PathNode[S] { return s.path }

// ForkPoints returns the statements at which the state's lineage forked.
func (s *State[M, S]) ForkPoints() *PathNode[S] { return s.forkPoints }

// Targets returns the active target set.
func (s *State[M, S]) Targets() TargetSet[M, S] { return s.targets }

// SetTargets replaces the active target set.
func (s *State[M, S]) SetTargets(ts TargetSet[M, S]) { s.targets = ts }

// Clone returns a copy of the state. If constraints is non-nil it becomes
// the clone's constraint set; otherwise the clone copies the receiver's.
//
// Both states receive fresh ownership tokens, so any region shared at this
// point is copied on its first write through either state.
func (s *State[M, S]) Clone(constraints *PathConstraints) *State[M, S] {
	thisOwner, cloneOwner := NewOwnership(), NewOwnership()

	other := *s
	other.id = stateSeq.Add(1)
	s.owner, other.owner = thisOwner, cloneOwner

	if constraints != nil {
		s.constraints.owner = thisOwner
		constraints.owner = cloneOwner
		other.constraints = constraints
	} else {
		other.constraints = s.constraints.Clone(thisOwner, cloneOwner)
	}
	other.memory = s.memory.Clone(thisOwner, cloneOwner)
	other.models = slices.Clone(s.models)
	if s.Data != nil {
		other.Data = s.Data.Clone()
	}
	return &other
}

// NewLocation appends stmt to the visited path.
func (s *State[M, S]) NewLocation(stmt S) {
	s.path = s.path.Push(stmt)
}

// MarkForkPoint records stmt as a fork point of this state's lineage.
func (s *State[M, S]) MarkForkPoint(stmt S) {
	s.forkPoints = s.forkPoints.Push(stmt)
}

// CurrentStatement returns the last visited statement.
func (s *State[M, S]) CurrentStatement() (stmt S, ok bool) {
	if s.path == nil {
		return stmt, false
	}
	return s.path.Statement(), true
}

// LastEnteredMethod returns the method of the top call frame, or the entry
// method if the call stack is empty.
func (s *State[M, S]) LastEnteredMethod() M {
	if frame, ok := s.callStack.Top(); ok {
		return frame.Method
	}
	return s.entry
}

// PushFrame enters method. The call stack and register frames are updated
// together; args are followed by locals unwritten registers.
func (s *State[M, S]) PushFrame(method M, returnSite S, args []Expr, locals int) {
	s.callStack = s.callStack.Push(CallFrame[M, S]{Method: method, ReturnSite: returnSite})
	s.memory.PushFrame(args, locals)
}

// PopFrame leaves the current method. If the frame has a return site the
// state re-enters it in the caller.
func (s *State[M, S]) PopFrame() (frame CallFrame[M, S]) {
	s.callStack, frame = s.callStack.Pop()
	s.memory.PopFrame()

	var zero S
	if frame.ReturnSite != zero {
		s.NewLocation(frame.ReturnSite)
	}
	return frame
}

// Result returns the pending method result.
func (s *State[M, S]) Result() MethodResult { return s.result }

// SetResult sets the pending method result.
func (s *State[M, S]) SetResult(r MethodResult) {
	if r == nil {
		r = NoCall{}
	}
	s.result = r
}

// ClearResult resets the pending method result to NoCall.
func (s *State[M, S]) ClearResult() { s.result = NoCall{} }

// TakeResult returns the pending method result and clears it.
func (s *State[M, S]) TakeResult() MethodResult {
	r := s.result
	s.result = NoCall{}
	return r
}

// IsExceptional returns true if the pending result is an exception.
func (s *State[M, S]) IsExceptional() bool {
	_, ok := s.result.(*Exception)
	return ok
}

// String returns a short description of the state.
func (s *State[M, S]) String() string {
	return fmt.Sprintf("state#%d", s.id)
}

// Dump returns the contents of the state as a string.
func (s *State[M, S]) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "SYMBOLIC STATE")
	fmt.Fprintln(&buf, "==============")
	fmt.Fprintf(&buf, "id=%d entry=%v depth=%d\n", s.id, s.entry, s.path.Depth())
	fmt.Fprintf(&buf, "result=%v\n", s.result)
	fmt.Fprintln(&buf, "")

	frames := s.callStack.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "== FRAME #%d %v (return %v)\n", i, frames[i].Method, frames[i].ReturnSite)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprint(&buf, s.memory.Dump())
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints.Constraints() {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}

	fmt.Fprintln(&buf, "== TARGETS")
	for _, t := range s.targets.Active() {
		fmt.Fprintf(&buf, "%s\n", t)
	}

	if s.Data != nil {
		fmt.Fprintln(&buf, "== DATA")
		fmt.Fprint(&buf, spew.Sdump(s.Data))
	}
	return buf.String()
}
