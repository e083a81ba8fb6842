package dse

import (
	"iter"
	"slices"
)

// PathNode is a persistent, parent-linked sequence of statements. Children
// share their parent's prefix. A nil *PathNode is the empty path.
type PathNode[S comparable] struct {
	parent *PathNode[S]
	stmt   S
	depth  int
}

// Push returns a path extending n with stmt.
func (n *PathNode[S]) Push(stmt S) *PathNode[S] {
	return &PathNode[S]{parent: n, stmt: stmt, depth: n.Depth() + 1}
}

// Statement returns the last statement of the path.
func (n *PathNode[S]) Statement() S { return n.stmt }

// Parent returns the path without its last statement.
func (n *PathNode[S]) Parent() *PathNode[S] { return n.parent }

// Depth returns the number of statements on the path.
func (n *PathNode[S]) Depth() int {
	if n == nil {
		return 0
	}
	return n.depth
}

// Backward iterates from the last statement to the first.
func (n *PathNode[S]) Backward() iter.Seq[S] {
	return func(yield func(S) bool) {
		for p := n; p != nil; p = p.parent {
			if !yield(p.stmt) {
				return
			}
		}
	}
}

// Statements returns the statements from first to last.
func (n *PathNode[S]) Statements() []S {
	a := make([]S, 0, n.Depth())
	for stmt := range n.Backward() {
		a = append(a, stmt)
	}
	slices.Reverse(a)
	return a
}
