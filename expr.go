package dse

import (
	"fmt"
	"sort"
	"strings"
)

// Expr represents a symbolic bit-vector expression. Boolean expressions are
// bit-vectors of width WidthBool.
type Expr interface {
	String() string
	expr()
}

func (*BinaryExpr) expr()   {}
func (*CastExpr) expr()     {}
func (*ConstantExpr) expr() {}
func (*IteExpr) expr()      {}
func (*NotExpr) expr()      {}
func (*SymbolExpr) expr()   {}

// ExprWidth returns the bit width of the expression.
func ExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Width
	case *SymbolExpr:
		return expr.Width
	case *NotExpr:
		return ExprWidth(expr.Expr)
	case *CastExpr:
		return expr.Width
	case *IteExpr:
		return ExprWidth(expr.Then)
	case *BinaryExpr:
		if expr.Op.IsCompare() {
			return WidthBool
		}
		return ExprWidth(expr.LHS)
	default:
		panic("unreachable")
	}
}

// BinaryOp represents a binary expression operations.
type BinaryOp int

// BinaryExpr operations.
const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	UDIV
	SDIV
	UREM
	SREM
	AND
	OR
	XOR
	SHL
	LSHR
	ASHR
	arithmetic_op_end

	compare_op_begin
	EQ
	NE
	ULT
	ULE
	UGT
	UGE
	SLT
	SLE
	SGT
	SGE
	compare_op_end
)

var binaryOps = [...]string{
	ADD:  "add",
	SUB:  "sub",
	MUL:  "mul",
	UDIV: "udiv",
	SDIV: "sdiv",
	UREM: "urem",
	SREM: "srem",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	SHL:  "shl",
	LSHR: "lshr",
	ASHR: "ashr",
	EQ:   "eq",
	NE:   "ne",
	ULT:  "ult",
	ULE:  "ule",
	UGT:  "ugt",
	UGE:  "uge",
	SLT:  "slt",
	SLE:  "sle",
	SGT:  "sgt",
	SGE:  "sge",
}

// String returns the string representation of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op BinaryOp) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// BinaryExpr represents an operation on two expressions.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

// NewBinaryExpr returns a simplified expression for op applied to lhs & rhs.
// Only EQ, ULT, ULE, SLT & SLE are kept as comparison nodes; the remaining
// comparisons are rewritten in terms of them.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	assert(ExprWidth(lhs) == ExprWidth(rhs), "binary expr width mismatch: op=%s %d != %d", op, ExprWidth(lhs), ExprWidth(rhs))

	switch op {
	case NE:
		return NewNotExpr(NewBinaryExpr(EQ, lhs, rhs))
	case UGT:
		return NewBinaryExpr(ULT, rhs, lhs) // reverse
	case UGE:
		return NewBinaryExpr(ULE, rhs, lhs) // reverse
	case SGT:
		return NewBinaryExpr(SLT, rhs, lhs) // reverse
	case SGE:
		return NewBinaryExpr(SLE, rhs, lhs) // reverse
	}

	// Compute constant if both sides are constant.
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.apply(op, rhs)
		}
	}

	switch op {
	case ADD, OR, XOR:
		// Move constant expression to left hand side.
		if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
			lhs, rhs = rhs, lhs
		}
		if c, ok := lhs.(*ConstantExpr); ok {
			if c.Value == 0 {
				return rhs
			} else if op == OR && c.IsAllOnes() {
				return c
			}
		}
	case SUB:
		if CompareExpr(lhs, rhs) == 0 {
			return NewConstantExpr(0, ExprWidth(lhs))
		} else if c, ok := rhs.(*ConstantExpr); ok && c.Value == 0 {
			return lhs
		}
	case MUL, AND:
		if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
			lhs, rhs = rhs, lhs
		}
		if c, ok := lhs.(*ConstantExpr); ok {
			if c.Value == 0 {
				return c
			} else if (op == MUL && c.Value == 1) || (op == AND && c.IsAllOnes()) {
				return rhs
			}
		}
	case EQ:
		if CompareExpr(lhs, rhs) == 0 {
			return NewBoolConstantExpr(true)
		}
		if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
			lhs, rhs = rhs, lhs
		}

		// Boolean comparison against a constant reduces to the expression or its negation.
		if c, ok := lhs.(*ConstantExpr); ok && c.Width == WidthBool {
			if c.IsTrue() {
				return rhs
			}
			return NewNotExpr(rhs)
		}
	}

	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

// String returns the string representation of the expression.
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// NewAndExpr returns the conjunction of one or more boolean expressions.
func NewAndExpr(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return NewBoolConstantExpr(true)
	}
	result := exprs[0]
	for _, expr := range exprs[1:] {
		result = NewBinaryExpr(AND, result, expr)
	}
	return result
}

// NewOrExpr returns the disjunction of one or more boolean expressions.
func NewOrExpr(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return NewBoolConstantExpr(false)
	}
	result := exprs[0]
	for _, expr := range exprs[1:] {
		result = NewBinaryExpr(OR, result, expr)
	}
	return result
}

// SymbolExpr represents a free symbolic input of a fixed width.
type SymbolExpr struct {
	Name  string
	Width uint
}

// NewSymbolExpr returns a new instance of SymbolExpr.
func NewSymbolExpr(name string, width uint) *SymbolExpr {
	assert(width > 0 && width <= Width64, "symbol: invalid width: %d", width)
	return &SymbolExpr{Name: name, Width: width}
}

// String returns the string representation of the expression.
func (e *SymbolExpr) String() string {
	return fmt.Sprintf("(sym %s %d)", e.Name, e.Width)
}

// NotExpr represents a bitwise (or boolean) negation.
type NotExpr struct {
	Expr Expr
}

// NewNotExpr returns the negation of expr. Constants and double negations fold.
func NewNotExpr(expr Expr) Expr {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Not()
	case *NotExpr:
		return expr.Expr
	}
	return &NotExpr{Expr: expr}
}

// String returns the string representation of the expression.
func (e *NotExpr) String() string {
	return fmt.Sprintf("(not %s)", e.Expr)
}

// CastExpr represents a width change. Widening zero or sign extends,
// narrowing truncates to the low bits.
type CastExpr struct {
	Src    Expr
	Width  uint
	Signed bool
}

// NewCastExpr returns src converted to width bits.
func NewCastExpr(src Expr, width uint, signed bool) Expr {
	if ExprWidth(src) == width {
		return src
	}
	if src, ok := src.(*ConstantExpr); ok {
		if signed {
			return src.SExt(width)
		}
		return src.ZExt(width)
	}
	return &CastExpr{Src: src, Width: width, Signed: signed}
}

// String returns the string representation of the expression.
func (e *CastExpr) String() string {
	if e.Signed {
		return fmt.Sprintf("(sext %s %d)", e.Src, e.Width)
	}
	return fmt.Sprintf("(zext %s %d)", e.Src, e.Width)
}

// IteExpr represents an if-then-else selection between two values.
type IteExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// NewIteExpr returns an expression selecting then when cond holds and els otherwise.
func NewIteExpr(cond, then, els Expr) Expr {
	assert(ExprWidth(cond) == WidthBool, "ite: condition must be boolean")
	assert(ExprWidth(then) == ExprWidth(els), "ite: width mismatch: %d != %d", ExprWidth(then), ExprWidth(els))

	if c, ok := cond.(*ConstantExpr); ok {
		if c.IsTrue() {
			return then
		}
		return els
	} else if CompareExpr(then, els) == 0 {
		return then
	}
	return &IteExpr{Cond: cond, Then: then, Else: els}
}

// String returns the string representation of the expression.
func (e *IteExpr) String() string {
	return fmt.Sprintf("(ite %s %s %s)", e.Cond, e.Then, e.Else)
}

// ConstantExpr represents a concrete bit-vector value of up to 64 bits.
type ConstantExpr struct {
	Value uint64 `json:"value"`
	Width uint   `json:"width"`
}

// NewConstantExpr returns a new instance of ConstantExpr.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	return &ConstantExpr{
		Value: value & bitmask(width),
		Width: width,
	}
}

// NewConstantExpr8 returns a 8-bit constant expression.
func NewConstantExpr8(value uint64) *ConstantExpr { return NewConstantExpr(value, 8) }

// NewConstantExpr32 returns a 32-bit constant expression.
func NewConstantExpr32(value uint64) *ConstantExpr { return NewConstantExpr(value, 32) }

// NewConstantExpr64 returns a 64-bit constant expression.
func NewConstantExpr64(value uint64) *ConstantExpr { return NewConstantExpr(value, 64) }

// NewBoolConstantExpr is an ease of use function for creating constant boolean expressions.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Width: WidthBool}
	}
	return &ConstantExpr{Value: 0, Width: WidthBool}
}

// String returns the string representation of the expression.
func (e *ConstantExpr) String() string {
	return fmt.Sprintf("(const %d %d)", e.Value, e.Width)
}

// IsTrue returns true if this is a boolean true expression.
func (e *ConstantExpr) IsTrue() bool {
	return e.Width == WidthBool && e.Value != 0
}

// IsFalse returns true if this is a boolean false expression.
func (e *ConstantExpr) IsFalse() bool {
	return e.Width == WidthBool && e.Value == 0
}

// IsAllOnes returns true if all bits in the value are one.
func (e *ConstantExpr) IsAllOnes() bool {
	return e.Value == bitmask(e.Width)
}

// Int64 returns the value interpreted as a two's complement signed integer.
func (e *ConstantExpr) Int64() int64 {
	if e.Width == Width64 || e.Width == 0 {
		return int64(e.Value)
	}
	shift := Width64 - e.Width
	return int64(e.Value<<shift) >> shift
}

// Not returns the bitwise negation of e.
func (e *ConstantExpr) Not() *ConstantExpr {
	return NewConstantExpr(^e.Value, e.Width)
}

// ZExt returns e zero extended (or truncated) to width bits.
func (e *ConstantExpr) ZExt(width uint) *ConstantExpr {
	return NewConstantExpr(e.Value, width)
}

// SExt returns e sign extended (or truncated) to width bits.
func (e *ConstantExpr) SExt(width uint) *ConstantExpr {
	return NewConstantExpr(uint64(e.Int64()), width)
}

// apply computes op over two constants. Division and remainder by zero follow
// SMT-LIB bit-vector semantics so that evaluation is total.
func (e *ConstantExpr) apply(op BinaryOp, other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "%s: width mismatch: %d != %d", op, e.Width, other.Width)

	w := e.Width
	x, y := e.Value, other.Value
	sx, sy := e.Int64(), other.Int64()

	switch op {
	case ADD:
		return NewConstantExpr(x+y, w)
	case SUB:
		return NewConstantExpr(x-y, w)
	case MUL:
		return NewConstantExpr(x*y, w)
	case UDIV:
		if y == 0 {
			return NewConstantExpr(bitmask(w), w)
		}
		return NewConstantExpr(x/y, w)
	case SDIV:
		if sy == 0 {
			if sx < 0 {
				return NewConstantExpr(1, w)
			}
			return NewConstantExpr(bitmask(w), w)
		} else if sy == -1 {
			return NewConstantExpr(uint64(-sx), w) // avoid MinInt64 / -1 trap
		}
		return NewConstantExpr(uint64(sx/sy), w)
	case UREM:
		if y == 0 {
			return e
		}
		return NewConstantExpr(x%y, w)
	case SREM:
		if sy == 0 {
			return e
		} else if sy == -1 {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(uint64(sx%sy), w)
	case AND:
		return NewConstantExpr(x&y, w)
	case OR:
		return NewConstantExpr(x|y, w)
	case XOR:
		return NewConstantExpr(x^y, w)
	case SHL:
		if y >= uint64(w) {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x<<y, w)
	case LSHR:
		if y >= uint64(w) {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x>>y, w)
	case ASHR:
		if y >= uint64(w) {
			y = uint64(w) - 1
		}
		return NewConstantExpr(uint64(sx>>y), w)
	case EQ:
		return NewBoolConstantExpr(x == y)
	case ULT:
		return NewBoolConstantExpr(x < y)
	case ULE:
		return NewBoolConstantExpr(x <= y)
	case SLT:
		return NewBoolConstantExpr(sx < sy)
	case SLE:
		return NewBoolConstantExpr(sx <= sy)
	case NE:
		return NewBoolConstantExpr(x != y)
	case UGT:
		return NewBoolConstantExpr(x > y)
	case UGE:
		return NewBoolConstantExpr(x >= y)
	case SGT:
		return NewBoolConstantExpr(sx > sy)
	case SGE:
		return NewBoolConstantExpr(sx >= sy)
	default:
		panic(fmt.Sprintf("unexpected constant operation: %s", op))
	}
}

func bitmask(width uint) uint64 {
	if width >= Width64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// IsConstantExpr returns true if expr is a constant.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is a constant boolean true.
func IsConstantTrue(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.IsTrue()
}

// IsConstantFalse returns true if expr is a constant boolean false.
func IsConstantFalse(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.IsFalse()
}

// CompareExpr returns an integer comparing two expressions structurally.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	if a == b {
		return 0
	} else if a == nil {
		return -1
	} else if b == nil {
		return 1
	}

	if ak, bk := exprKind(a), exprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}

	switch a := a.(type) {
	case *ConstantExpr:
		b := b.(*ConstantExpr)
		if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
			return cmp
		}
		return compareUint(a.Value, b.Value)
	case *SymbolExpr:
		b := b.(*SymbolExpr)
		if cmp := strings.Compare(a.Name, b.Name); cmp != 0 {
			return cmp
		}
		return compareUint(uint64(a.Width), uint64(b.Width))
	case *NotExpr:
		return CompareExpr(a.Expr, b.(*NotExpr).Expr)
	case *CastExpr:
		b := b.(*CastExpr)
		if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
			return cmp
		} else if a.Signed != b.Signed {
			if !a.Signed {
				return -1
			}
			return 1
		}
		return CompareExpr(a.Src, b.Src)
	case *IteExpr:
		b := b.(*IteExpr)
		if cmp := CompareExpr(a.Cond, b.Cond); cmp != 0 {
			return cmp
		} else if cmp := CompareExpr(a.Then, b.Then); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.Else, b.Else)
	case *BinaryExpr:
		b := b.(*BinaryExpr)
		if cmp := compareUint(uint64(a.Op), uint64(b.Op)); cmp != 0 {
			return cmp
		} else if cmp := CompareExpr(a.LHS, b.LHS); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.RHS, b.RHS)
	default:
		panic("unreachable")
	}
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *SymbolExpr:
		return 2
	case *NotExpr:
		return 3
	case *CastExpr:
		return 4
	case *IteExpr:
		return 5
	case *BinaryExpr:
		return 6
	default:
		panic("unreachable")
	}
}

// WalkExpr calls fn for expr and each of its subexpressions in depth-first
// order. Children are skipped when fn returns false.
func WalkExpr(expr Expr, fn func(Expr) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch expr := expr.(type) {
	case *NotExpr:
		WalkExpr(expr.Expr, fn)
	case *CastExpr:
		WalkExpr(expr.Src, fn)
	case *IteExpr:
		WalkExpr(expr.Cond, fn)
		WalkExpr(expr.Then, fn)
		WalkExpr(expr.Else, fn)
	case *BinaryExpr:
		WalkExpr(expr.LHS, fn)
		WalkExpr(expr.RHS, fn)
	}
}

// FindSymbols returns all distinct symbols in the expressions, sorted by name.
func FindSymbols(exprs ...Expr) []*SymbolExpr {
	m := make(map[string]*SymbolExpr)
	for _, expr := range exprs {
		WalkExpr(expr, func(e Expr) bool {
			if sym, ok := e.(*SymbolExpr); ok {
				m[sym.Name] = sym
			}
			return true
		})
	}

	a := make([]*SymbolExpr, 0, len(m))
	for _, sym := range m {
		a = append(a, sym)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].Name < a[j].Name })
	return a
}
