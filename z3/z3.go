package z3

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/benbjohnson/dse"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

// Ensure solver implements interface.
var _ dse.SoftSolver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver. Checks are
// serialized over a single Z3 context.
type Solver struct {
	mu    sync.Mutex
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Check decides the conjunction of constraints.
func (s *Solver) Check(ctx context.Context, constraints []dse.Expr) (dse.SolverResult, error) {
	return s.CheckSoft(ctx, constraints, nil)
}

// CheckSoft decides hard and then greedily adds each soft constraint that
// keeps the assertions satisfiable. The returned model satisfies hard and
// the accepted soft constraints.
func (s *Solver) CheckSoft(ctx context.Context, hard, soft []dse.Expr) (dse.SolverResult, error) {
	if ctx.Err() != nil {
		return &dse.UnknownResult{Reason: dse.ErrSolverCanceled}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	if err := s.ctx.setTimeout(ctx, solver); err != nil {
		return nil, err
	}

	// Interrupt the check when the caller gives up.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Wait()
	defer close(done)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			C.Z3_interrupt(s.ctx.raw)
		case <-done:
		}
	}()

	for _, constraint := range hard {
		if err := s.ctx.assert(solver, constraint); err != nil {
			return nil, err
		}
	}

	ret, err := s.ctx.check(solver)
	if err != nil || ret != C.Z3_L_TRUE {
		return s.ctx.result(solver, ret, err)
	}

	for _, constraint := range soft {
		C.Z3_solver_push(s.ctx.raw, solver)
		if err := s.ctx.assert(solver, constraint); err != nil {
			return nil, err
		}
		if ret, err = s.ctx.check(solver); err != nil {
			return nil, err
		} else if ret != C.Z3_L_TRUE {
			C.Z3_solver_pop(s.ctx.raw, solver, 1)
			if ret, err = s.ctx.check(solver); err != nil || ret != C.Z3_L_TRUE {
				return s.ctx.result(solver, ret, err)
			}
		}
	}

	model, err := s.ctx.model(solver, dse.FindSymbols(slices.Concat(hard, soft)...))
	if err != nil {
		return nil, err
	}
	return &dse.SatResult{Model: model}, nil
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// setTimeout bounds the solver by the deadline of c, if any.
func (ctx *Context) setTimeout(c context.Context, solver C.Z3_solver) error {
	deadline, ok := c.Deadline()
	if !ok {
		return nil
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		ms = 1
	}

	params := C.Z3_mk_params(ctx.raw)
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	name := C.CString("timeout")
	defer C.free(unsafe.Pointer(name))
	C.Z3_params_set_uint(ctx.raw, params, C.Z3_mk_string_symbol(ctx.raw, name), C.uint(ms))
	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

func (ctx *Context) assert(solver C.Z3_solver, constraint dse.Expr) error {
	ast, err := ctx.toAST(constraint)
	if err != nil {
		return err
	}
	C.Z3_solver_assert(ctx.raw, solver, ast)
	return ctx.err("Z3_solver_assert")
}

func (ctx *Context) check(solver C.Z3_solver) (C.Z3_lbool, error) {
	ret := C.Z3_solver_check(ctx.raw, solver)
	return ret, ctx.err("Z3_solver_check")
}

// result converts a failed or non-sat check into a solver result.
func (ctx *Context) result(solver C.Z3_solver, ret C.Z3_lbool, err error) (dse.SolverResult, error) {
	if err != nil {
		return nil, err
	} else if ret == C.Z3_L_FALSE {
		return &dse.UnsatResult{}, nil
	}

	reason := C.GoString(C.Z3_solver_get_reason_unknown(ctx.raw, solver))
	switch {
	case strings.Contains(reason, "timeout"):
		return &dse.UnknownResult{Reason: dse.ErrSolverTimeout}, nil
	case strings.Contains(reason, "canceled"), strings.Contains(reason, "interrupted"):
		return &dse.UnknownResult{Reason: dse.ErrSolverCanceled}, nil
	case strings.Contains(reason, "(resource limits reached)"):
		return &dse.UnknownResult{Reason: dse.ErrSolverResourceLimit}, nil
	case strings.Contains(reason, "unknown"):
		return &dse.UnknownResult{Reason: dse.ErrSolverUnknown}, nil
	default:
		return &dse.UnknownResult{Reason: fmt.Errorf("z3: %s", reason)}, nil
	}
}

// model evaluates syms under the solver's model with completion, so that
// symbols left unconstrained take a concrete value.
func (ctx *Context) model(solver C.Z3_solver, syms []*dse.SymbolExpr) (dse.MapModel, error) {
	m := make(dse.MapModel, len(syms))
	if len(syms) == 0 {
		return m, nil
	}

	model := C.Z3_solver_get_model(ctx.raw, solver)
	if err := ctx.err("Z3_solver_get_model"); err != nil {
		return nil, err
	}
	C.Z3_model_inc_ref(ctx.raw, model)
	defer C.Z3_model_dec_ref(ctx.raw, model)

	for _, sym := range syms {
		ast, err := ctx.toSymbolAST(sym)
		if err != nil {
			return nil, err
		}

		var value C.Z3_ast
		C.Z3_model_eval(ctx.raw, model, ast, C.bool(true), &value)
		if err := ctx.err("Z3_model_eval"); err != nil {
			return nil, err
		}

		if sym.Width == dse.WidthBool {
			if C.Z3_get_bool_value(ctx.raw, value) == C.Z3_L_TRUE {
				m[sym.Name] = 1
			} else {
				m[sym.Name] = 0
			}
			continue
		}

		var v C.uint64_t
		C.Z3_get_numeral_uint64(ctx.raw, value, &v)
		if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
			return nil, err
		}
		m[sym.Name] = uint64(v)
	}
	return m, nil
}

// toAST returns a new instance of Z3_ast from an expression. Width-one
// expressions map to the boolean sort.
func (ctx *Context) toAST(expr dse.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *dse.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *dse.SymbolExpr:
		return ctx.toSymbolAST(expr)
	case *dse.CastExpr:
		return ctx.toCastAST(expr)
	case *dse.NotExpr:
		return ctx.toNotAST(expr)
	case *dse.IteExpr:
		return ctx.toIteAST(expr)
	case *dse.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *dse.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == dse.WidthBool {
		if expr.IsTrue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	} else if expr.Width <= 64 {
		return ctx.makeUint64(expr.Width, expr.Value)
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

func (ctx *Context) toSymbolAST(expr *dse.SymbolExpr) (C.Z3_ast, error) {
	var sort C.Z3_sort
	if expr.Width == dse.WidthBool {
		sort = C.Z3_mk_bool_sort(ctx.raw)
	} else {
		sort = C.Z3_mk_bv_sort(ctx.raw, C.uint(expr.Width))
	}
	if err := ctx.err("Z3_mk_sort"); err != nil {
		return nil, err
	}

	name := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(name))
	return C.Z3_mk_const(ctx.raw, C.Z3_mk_string_symbol(ctx.raw, name), sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toCastAST(expr *dse.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if dse.ExprWidth(expr.Src) == dse.WidthBool {
		one := uint64(1)
		if expr.Signed {
			one = ^uint64(0)
		}
		whenTrue, err := ctx.makeUint64(expr.Width, one)
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	size := ctx.bvSize(src)
	switch {
	case expr.Width < size:
		return C.Z3_mk_extract(ctx.raw, C.uint(expr.Width-1), 0, src), ctx.err("Z3_mk_extract")
	case expr.Signed:
		return C.Z3_mk_sign_ext(ctx.raw, C.uint(expr.Width-size), src), ctx.err("Z3_mk_sign_ext")
	default:
		return C.Z3_mk_zero_ext(ctx.raw, C.uint(expr.Width-size), src), ctx.err("Z3_mk_zero_ext")
	}
}

func (ctx *Context) toNotAST(expr *dse.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if dse.ExprWidth(expr.Expr) == dse.WidthBool {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toIteAST(expr *dse.IteExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toBinaryAST(expr *dse.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	// Boolean operands use the boolean connectives.
	if dse.ExprWidth(expr.LHS) == dse.WidthBool {
		args := [2]C.Z3_ast{lhs, rhs}
		switch expr.Op {
		case dse.AND:
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		case dse.OR:
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		case dse.XOR:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		case dse.EQ:
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		case dse.NE:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		default:
			return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected boolean operation: %s", expr.Op)
		}
	}

	switch expr.Op {
	case dse.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case dse.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case dse.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case dse.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case dse.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case dse.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case dse.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case dse.AND:
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case dse.OR:
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case dse.XOR:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case dse.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case dse.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case dse.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case dse.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case dse.NE:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case dse.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case dse.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case dse.UGT:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case dse.UGE:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	case dse.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case dse.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case dse.SGT:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case dse.SGE:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t := C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
	if err := ctx.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

// bvSize returns the size of expr in bits. Panic if expr is not a bit-vector.
func (ctx *Context) bvSize(expr C.Z3_ast) uint {
	t := C.Z3_get_sort(ctx.raw, expr)
	if err := ctx.err("Z3_get_sort"); err != nil {
		panic(err)
	}
	sz := uint(C.Z3_get_bv_sort_size(ctx.raw, t))
	if err := ctx.err("Z3_get_bv_sort_size"); err != nil {
		panic(err)
	}
	return sz
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats holds counters for the checks performed by a Solver.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
