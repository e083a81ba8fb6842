package dse

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

var targetSeq atomic.Uint64

// Target is a node in a tree of exploration goals bound to a statement.
// A target without children is terminal.
//
// Removal is global and permanent: once removed, a target is never reached
// again by any state. A parent is removed when all of its children are.
type Target[M, S comparable] struct {
	id       uint64
	location S

	mu       sync.Mutex
	parent   *Target[M, S]
	children []*Target[M, S]

	removed    atomic.Bool
	obligation *ProofObligation[M, S]
}

// NewTarget returns a new target bound to location.
func NewTarget[M, S comparable](location S) *Target[M, S] {
	return &Target[M, S]{
		id:       targetSeq.Add(1),
		location: location,
	}
}

// ID returns a process-unique identifier for the target.
func (t *Target[M, S]) ID() uint64 { return t.id }

// Location returns the statement the target is bound to.
func (t *Target[M, S]) Location() S { return t.location }

// Parent returns the parent target, if any.
func (t *Target[M, S]) Parent() *Target[M, S] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parent
}

// Children returns a copy of the child list.
func (t *Target[M, S]) Children() []*Target[M, S] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.children)
}

// AddChild appends child and returns it.
func (t *Target[M, S]) AddChild(child *Target[M, S]) *Target[M, S] {
	assert(child != t, "target: cannot add target as its own child")

	child.mu.Lock()
	assert(child.parent == nil, "target: child already has a parent")
	child.parent = t
	child.mu.Unlock()

	t.mu.Lock()
	t.children = append(t.children, child)
	t.mu.Unlock()
	return child
}

// IsTerminal returns true if the target has no children.
func (t *Target[M, S]) IsTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children) == 0
}

// IsRemoved returns true if the target has been removed.
func (t *Target[M, S]) IsRemoved() bool { return t.removed.Load() }

// Remove marks the target removed. Returns true only for the call that
// performed the removal.
func (t *Target[M, S]) Remove() bool {
	if !t.removed.CompareAndSwap(false, true) {
		return false
	}
	if parent := t.Parent(); parent != nil {
		parent.childRemoved()
	}
	return true
}

func (t *Target[M, S]) childRemoved() {
	for _, child := range t.Children() {
		if !child.IsRemoved() {
			return
		}
	}
	t.Remove()
}

// Obligation returns the proof obligation this target belongs to, if any.
func (t *Target[M, S]) Obligation() (*ProofObligation[M, S], bool) {
	return t.obligation, t.obligation != nil
}

// String returns a short description of the target.
func (t *Target[M, S]) String() string {
	return fmt.Sprintf("target#%d@%v", t.id, t.location)
}

type targetIDHasher struct{}

func (targetIDHasher) Hash(id uint64) uint32 { return uint32(id ^ id>>32) }
func (targetIDHasher) Equal(a, b uint64) bool { return a == b }

// TargetSet is a persistent set of the targets a state is still heading
// for. The zero value is an empty set.
type TargetSet[M, S comparable] struct {
	m *immutable.Map[uint64, *Target[M, S]]
}

// NewTargetSet returns a set holding targets.
func NewTargetSet[M, S comparable](targets ...*Target[M, S]) TargetSet[M, S] {
	var ts TargetSet[M, S]
	for _, t := range targets {
		ts = ts.Add(t)
	}
	return ts
}

// Len returns the number of targets in the set, including removed ones not
// yet visited.
func (ts TargetSet[M, S]) Len() int {
	if ts.m == nil {
		return 0
	}
	return ts.m.Len()
}

// Add returns a set including t.
func (ts TargetSet[M, S]) Add(t *Target[M, S]) TargetSet[M, S] {
	m := ts.m
	if m == nil {
		m = immutable.NewMap[uint64, *Target[M, S]](targetIDHasher{})
	}
	return TargetSet[M, S]{m: m.Set(t.id, t)}
}

// Delete returns a set without t.
func (ts TargetSet[M, S]) Delete(t *Target[M, S]) TargetSet[M, S] {
	if ts.m == nil {
		return ts
	}
	return TargetSet[M, S]{m: ts.m.Delete(t.id)}
}

// Contains returns true if t is in the set.
func (ts TargetSet[M, S]) Contains(t *Target[M, S]) bool {
	if ts.m == nil {
		return false
	}
	_, ok := ts.m.Get(t.id)
	return ok
}

// Active returns the non-removed targets ordered by id.
func (ts TargetSet[M, S]) Active() []*Target[M, S] {
	if ts.m == nil {
		return nil
	}
	var a []*Target[M, S]
	itr := ts.m.Iterator()
	for !itr.Done() {
		_, t, _ := itr.Next()
		if !t.IsRemoved() {
			a = append(a, t)
		}
	}
	slices.SortFunc(a, func(x, y *Target[M, S]) int { return compareUint(x.id, y.id) })
	return a
}

// Visit propagates the set over a visit of stmt. Targets bound to stmt leave
// the set: non-terminal targets activate their children and terminal targets
// are removed and returned as reached. A terminal target is returned by at
// most one Visit call over all sets. Removed targets are dropped silently.
func (ts TargetSet[M, S]) Visit(stmt S) (TargetSet[M, S], []*Target[M, S]) {
	if ts.m == nil {
		return ts, nil
	}

	var reached []*Target[M, S]
	var matched []*Target[M, S]
	itr := ts.m.Iterator()
	for !itr.Done() {
		_, t, _ := itr.Next()
		if t.IsRemoved() || t.location == stmt {
			matched = append(matched, t)
		}
	}
	slices.SortFunc(matched, func(x, y *Target[M, S]) int { return compareUint(x.id, y.id) })

	for _, t := range matched {
		ts = ts.Delete(t)
		if t.IsRemoved() {
			continue
		}

		if children := t.Children(); len(children) > 0 {
			for _, child := range children {
				if !child.IsRemoved() {
					ts = ts.Add(child)
				}
			}
		} else if t.Remove() {
			reached = append(reached, t)
		}
	}
	return ts, reached
}
