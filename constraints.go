package dse

import (
	"strings"

	"github.com/benbjohnson/immutable"
)

// PathConstraints is the conjunction of boolean constraints accumulated along
// a path. Conjunctions are split, constant true is dropped and duplicates are
// ignored. Adding constant false, or both x and (not x), makes the set false.
type PathConstraints struct {
	owner   *Ownership
	list    *immutable.List[Expr]
	index   *immutable.Map[string, struct{}]
	isFalse bool
}

// NewPathConstraints returns an empty (true) constraint set owned by owner.
func NewPathConstraints(owner *Ownership) *PathConstraints {
	return &PathConstraints{
		owner: owner,
		list:  immutable.NewList[Expr](),
		index: immutable.NewMap[string, struct{}](nil),
	}
}

// Owner returns the current ownership token.
func (pc *PathConstraints) Owner() *Ownership { return pc.owner }

// Clone returns a copy. The receiver takes thisOwner and the copy takes
// cloneOwner; the underlying lists are shared.
func (pc *PathConstraints) Clone(thisOwner, cloneOwner *Ownership) *PathConstraints {
	other := *pc
	pc.owner, other.owner = thisOwner, cloneOwner
	return &other
}

// With conjoins expr under owner. If owner matches the set's owner the set
// is updated in place and returned. Otherwise the receiver is left untouched
// and a structurally shared copy tagged with owner is returned. A nil owner
// never matches.
func (pc *PathConstraints) With(expr Expr, owner *Ownership) *PathConstraints {
	if owner != nil && owner == pc.owner {
		pc.Add(expr)
		return pc
	}
	other := *pc
	other.owner = owner
	other.Add(expr)
	return &other
}

// Add conjoins expr to the set in place. The caller must hold the set's
// ownership token; other holders use With.
func (pc *PathConstraints) Add(expr Expr) {
	assert(ExprWidth(expr) == WidthBool, "constraint must be boolean: %s", expr)
	if pc.isFalse {
		return
	}

	// Split conjunctions.
	if e, ok := expr.(*BinaryExpr); ok && e.Op == AND {
		pc.Add(e.LHS)
		pc.Add(e.RHS)
		return
	}

	if c, ok := expr.(*ConstantExpr); ok {
		if c.IsFalse() {
			pc.isFalse = true
		}
		return
	}

	key := expr.String()
	if _, ok := pc.index.Get(key); ok {
		return
	} else if _, ok := pc.index.Get(NewNotExpr(expr).String()); ok {
		pc.isFalse = true
		return
	}

	pc.list = pc.list.Append(expr)
	pc.index = pc.index.Set(key, struct{}{})
}

// AddAll conjoins every expression in exprs.
func (pc *PathConstraints) AddAll(exprs ...Expr) {
	for _, expr := range exprs {
		pc.Add(expr)
	}
}

// IsFalse returns true if the set is trivially unsatisfiable.
func (pc *PathConstraints) IsFalse() bool { return pc.isFalse }

// Len returns the number of conjuncts.
func (pc *PathConstraints) Len() int { return pc.list.Len() }

// Constraints returns the conjuncts in insertion order. A false set returns a
// single false constant.
func (pc *PathConstraints) Constraints() []Expr {
	if pc.isFalse {
		return []Expr{NewBoolConstantExpr(false)}
	}
	a := make([]Expr, 0, pc.list.Len())
	itr := pc.list.Iterator()
	for !itr.Done() {
		_, e := itr.Next()
		a = append(a, e)
	}
	return a
}

// Expr returns the constraints as a single conjunction.
func (pc *PathConstraints) Expr() Expr {
	return NewAndExpr(pc.Constraints()...)
}

// String returns the conjuncts separated by " && ".
func (pc *PathConstraints) String() string {
	if pc.isFalse {
		return "false"
	} else if pc.list.Len() == 0 {
		return "true"
	}
	a := make([]string, 0, pc.list.Len())
	for _, e := range pc.Constraints() {
		a = append(a, e.String())
	}
	return strings.Join(a, " && ")
}
