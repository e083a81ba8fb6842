package dse

import (
	"github.com/benbjohnson/immutable"
)

// CallFrame is one entry of the call stack: the invoked method and the
// statement execution resumes at in the caller on return.
//
// The zero S means there is no return site.
type CallFrame[M, S comparable] struct {
	Method     M
	ReturnSite S
}

// CallStack is a persistent stack of call frames. The zero value is an
// empty stack. Push and Pop return new stacks and leave the receiver intact.
type CallStack[M, S comparable] struct {
	frames *immutable.List[CallFrame[M, S]]
}

// Len returns the number of frames.
func (cs CallStack[M, S]) Len() int {
	if cs.frames == nil {
		return 0
	}
	return cs.frames.Len()
}

// Push returns a stack with frame on top.
func (cs CallStack[M, S]) Push(frame CallFrame[M, S]) CallStack[M, S] {
	frames := cs.frames
	if frames == nil {
		frames = immutable.NewList[CallFrame[M, S]]()
	}
	return CallStack[M, S]{frames: frames.Append(frame)}
}

// Pop returns the stack without its top frame and the removed frame.
func (cs CallStack[M, S]) Pop() (CallStack[M, S], CallFrame[M, S]) {
	n := cs.Len()
	assert(n > 0, "pop: empty call stack")
	top := cs.frames.Get(n - 1)
	return CallStack[M, S]{frames: cs.frames.Slice(0, n-1)}, top
}

// Top returns the top frame.
func (cs CallStack[M, S]) Top() (frame CallFrame[M, S], ok bool) {
	if n := cs.Len(); n > 0 {
		return cs.frames.Get(n - 1), true
	}
	return frame, false
}

// Frames returns the frames from bottom to top.
func (cs CallStack[M, S]) Frames() []CallFrame[M, S] {
	a := make([]CallFrame[M, S], 0, cs.Len())
	for i := 0; i < cs.Len(); i++ {
		a = append(a, cs.frames.Get(i))
	}
	return a
}
