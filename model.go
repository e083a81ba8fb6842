package dse

import (
	"fmt"
	"sort"
	"strings"
)

// Model resolves symbolic expressions to concrete values. Evaluation never
// fails: symbols unbound by the model take the canonical sample value zero.
type Model interface {
	Eval(expr Expr) *ConstantExpr
}

// MapModel is a Model backed by a concrete assignment of symbol names.
type MapModel map[string]uint64

var _ Model = MapModel(nil)

// Eval evaluates expr under the assignment.
func (m MapModel) Eval(expr Expr) *ConstantExpr {
	return evalExpr(expr, func(sym *SymbolExpr) *ConstantExpr {
		return NewConstantExpr(m[sym.Name], sym.Width)
	})
}

// String returns the assignment sorted by symbol name.
func (m MapModel) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	buf.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%s=%d", k, m[k])
	}
	buf.WriteString("}")
	return buf.String()
}

// Satisfies returns true if every constraint evaluates to true under model.
func Satisfies(model Model, constraints ...Expr) bool {
	for _, c := range constraints {
		if !model.Eval(c).IsTrue() {
			return false
		}
	}
	return true
}

// evalExpr folds expr bottom-up, resolving symbols through lookup.
func evalExpr(expr Expr, lookup func(*SymbolExpr) *ConstantExpr) *ConstantExpr {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr
	case *SymbolExpr:
		return lookup(expr)
	case *NotExpr:
		return evalExpr(expr.Expr, lookup).Not()
	case *CastExpr:
		src := evalExpr(expr.Src, lookup)
		if expr.Signed {
			return src.SExt(expr.Width)
		}
		return src.ZExt(expr.Width)
	case *IteExpr:
		if evalExpr(expr.Cond, lookup).IsTrue() {
			return evalExpr(expr.Then, lookup)
		}
		return evalExpr(expr.Else, lookup)
	case *BinaryExpr:
		return evalExpr(expr.LHS, lookup).apply(expr.Op, evalExpr(expr.RHS, lookup))
	default:
		panic(fmt.Sprintf("unexpected expression type: %T", expr))
	}
}
