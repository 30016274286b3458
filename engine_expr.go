// engine_expr.go — expression evaluation (spec.md §4.5): precedence is
// already resolved by the AST's shape, so this is a straightforward
// recursive evaluator. The one piece of real policy here is promotion and
// overflow checking: char is always promoted to int before arithmetic (so
// overflow is checked at 32-bit width even when both operands are char),
// matching the original implementation's ops/binary.rs, which casts both
// sides `as i32` before every checked arithmetic op.
package crustty

import "fmt"

// execCtx bundles everything expression/statement evaluation needs,
// independent of whether the caller is the steppable driver or a
// synchronous nested call.
type execCtx struct {
	prog  *Program
	stack *Stack
	heap  *Heap
	term  *MockTerminal
	cfg   EngineConfig
	step  int

	scanfTokens []string
	scanfPos    int
	needInput   bool // set by scanf when the token queue runs dry

	lastLoc SourceLoc // source location of the statement the last step ran
}

func typeErr(loc SourceLoc, msg string) error {
	return errAt(loc, ErrTypeError, msg)
}

func evalExpr(ctx *execCtx, e *Expr) (Value, error) {
	switch e.Kind {
	case ExprIntLit:
		return Int(e.IntVal), nil
	case ExprCharLit:
		return Char(e.CharVal), nil
	case ExprStringLit:
		return evalStringLit(ctx, e)
	case ExprNullLit:
		return Null(), nil
	case ExprIdent:
		return ctx.stack.ReadLocal(e.Name, ctx.prog)
	case ExprUnary:
		return evalUnary(ctx, e)
	case ExprBinary:
		return evalBinary(ctx, e)
	case ExprAssign:
		return evalAssign(ctx, e)
	case ExprCompoundAssign:
		return evalCompoundAssign(ctx, e)
	case ExprIncDec:
		return evalIncDec(ctx, e)
	case ExprCall:
		return evalCall(ctx, e)
	case ExprIndex:
		loc, err := resolveLvalue(ctx, e)
		if err != nil {
			return Value{}, err
		}
		return readLocation(ctx, loc)
	case ExprMember:
		loc, err := resolveLvalue(ctx, e)
		if err != nil {
			return Value{}, err
		}
		return readLocation(ctx, loc)
	case ExprCast:
		v, err := evalExpr(ctx, e.X)
		if err != nil {
			return Value{}, err
		}
		return castValue(v, e.CastType, e.Loc)
	case ExprAddrOf:
		loc, err := resolveLvalue(ctx, e.X)
		if err != nil {
			return Value{}, err
		}
		return Pointer(loc.Addr, loc.Type), nil
	case ExprDeref:
		loc, err := resolveLvalue(ctx, e)
		if err != nil {
			return Value{}, err
		}
		return readLocation(ctx, loc)
	case ExprTernary:
		cv, err := evalExpr(ctx, e.X)
		if err != nil {
			return Value{}, err
		}
		truthy, err := cv.IsTruthy()
		if err != nil {
			return Value{}, err
		}
		if truthy {
			return evalExpr(ctx, e.Y)
		}
		return evalExpr(ctx, e.Z)
	case ExprSizeofType:
		return Int(int64(Sizeof(e.CastType, ctx.prog))), nil
	case ExprSizeofExpr:
		v, err := evalExpr(ctx, e.X)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(Sizeof(v.TypeOf(), ctx.prog))), nil
	default:
		return Value{}, typeErr(e.Loc, "unhandled expression kind")
	}
}

// evalStringLit materialises a string literal as a fresh, anonymous heap
// block (nul-terminated), mirroring how a C string literal decays to a
// char* wherever it is used. Re-evaluating the same literal twice yields
// two distinct blocks — harmless for a read-only literal, and far simpler
// than interning.
func evalStringLit(ctx *execCtx, e *Expr) (Value, error) {
	data := append([]byte(e.StrVal), 0)
	addr := ctx.heap.Alloc(len(data), CharType())
	if err := ctx.heap.Write(addr, data); err != nil {
		return Value{}, err
	}
	return Pointer(addr, CharType()), nil
}

func evalUnary(ctx *execCtx, e *Expr) (Value, error) {
	v, err := evalExpr(ctx, e.X)
	if err != nil {
		return Value{}, err
	}
	switch e.UnOp {
	case OpNeg:
		n, err := promoteInt(v, e.Loc)
		if err != nil {
			return Value{}, err
		}
		r, ok := checkedNeg(n)
		if !ok {
			return Value{}, errAt(e.Loc, ErrIntegerOverflow, "negation overflowed int")
		}
		return Int(r), nil
	case OpPlus:
		n, err := promoteInt(v, e.Loc)
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case OpNot:
		t, err := v.IsTruthy()
		if err != nil {
			return Value{}, err
		}
		if t {
			return Int(0), nil
		}
		return Int(1), nil
	default:
		return Value{}, typeErr(e.Loc, "unknown unary operator")
	}
}

func promoteInt(v Value, loc SourceLoc) (int64, error) {
	n, err := v.AsInt64()
	if err != nil {
		return 0, errAt(loc, ErrTypeError, err.Error())
	}
	return n, nil
}

func checkedNeg(n int64) (int64, bool) {
	r := -n
	if r < -2147483648 || r > 2147483647 {
		return 0, false
	}
	return r, true
}

func checkedArith(op BinOp, a, b int64, loc SourceLoc) (int64, error) {
	var r int64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			return 0, errAt(loc, ErrDivisionByZero, "")
		}
		r = a / b
	case OpMod:
		if b == 0 {
			return 0, errAt(loc, ErrDivisionByZero, "")
		}
		r = a % b
	}
	if r < -2147483648 || r > 2147483647 {
		return 0, errAt(loc, ErrIntegerOverflow, fmt.Sprintf("%d %s %d overflowed int", a, op, b))
	}
	return r, nil
}

func evalBinary(ctx *execCtx, e *Expr) (Value, error) {
	// && and || short-circuit: the right operand is not evaluated at all
	// when the left already decides the result.
	if e.BinOp == OpAndAnd || e.BinOp == OpOrOr {
		lv, err := evalExpr(ctx, e.X)
		if err != nil {
			return Value{}, err
		}
		lt, err := lv.IsTruthy()
		if err != nil {
			return Value{}, err
		}
		if e.BinOp == OpAndAnd && !lt {
			return Int(0), nil
		}
		if e.BinOp == OpOrOr && lt {
			return Int(1), nil
		}
		rv, err := evalExpr(ctx, e.Y)
		if err != nil {
			return Value{}, err
		}
		rt, err := rv.IsTruthy()
		if err != nil {
			return Value{}, err
		}
		if rt {
			return Int(1), nil
		}
		return Int(0), nil
	}

	lv, err := evalExpr(ctx, e.X)
	if err != nil {
		return Value{}, err
	}
	rv, err := evalExpr(ctx, e.Y)
	if err != nil {
		return Value{}, err
	}

	// Pointer arithmetic and comparisons are kept distinct from plain int
	// arithmetic since their scale depends on the pointee's size.
	if lv.Kind == VPointer || rv.Kind == VPointer || lv.Kind == VArrayRef || rv.Kind == VArrayRef {
		if v, handled, err := evalPointerBinary(ctx, e, lv, rv); handled {
			return v, err
		}
	}

	a, err := promoteInt(lv, e.Loc)
	if err != nil {
		return Value{}, err
	}
	b, err := promoteInt(rv, e.Loc)
	if err != nil {
		return Value{}, err
	}
	switch e.BinOp {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		r, err := checkedArith(e.BinOp, a, b, e.Loc)
		if err != nil {
			return Value{}, err
		}
		return Int(r), nil
	case OpEq:
		return boolInt(a == b), nil
	case OpNe:
		return boolInt(a != b), nil
	case OpLt:
		return boolInt(a < b), nil
	case OpLe:
		return boolInt(a <= b), nil
	case OpGt:
		return boolInt(a > b), nil
	case OpGe:
		return boolInt(a >= b), nil
	default:
		return Value{}, typeErr(e.Loc, "unknown binary operator")
	}
}

func boolInt(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// evalPointerBinary handles +, -, and the comparison operators when at
// least one operand is a pointer or decayed array, per spec.md §4.1.
// handled is false for the cases that fall through to plain int semantics
// on the raw addresses: a comparison between a pointer and a non-pointer,
// and the *, / and % operators.
func evalPointerBinary(ctx *execCtx, e *Expr, lv, rv Value) (Value, bool, error) {
	asPtr := func(v Value) (uint64, Type, bool) {
		switch v.Kind {
		case VPointer:
			return v.Addr, v.Pointee, true
		case VArrayRef:
			return v.Base, v.ElemTyp, true
		case VNull:
			return 0, VoidType(), true
		}
		return 0, Type{}, false
	}
	lAddr, lPointee, lIsPtr := asPtr(lv)
	rAddr, rPointee, rIsPtr := asPtr(rv)

	switch e.BinOp {
	case OpAdd:
		if lIsPtr && !rIsPtr {
			n, err := promoteInt(rv, e.Loc)
			if err != nil {
				return Value{}, true, err
			}
			return Pointer(PtrAdd(lAddr, n, lPointee, ctx.prog), lPointee), true, nil
		}
		if rIsPtr && !lIsPtr {
			n, err := promoteInt(lv, e.Loc)
			if err != nil {
				return Value{}, true, err
			}
			return Pointer(PtrAdd(rAddr, n, rPointee, ctx.prog), rPointee), true, nil
		}
		return Value{}, true, typeErr(e.Loc, "cannot add two pointers")
	case OpSub:
		if lIsPtr && rIsPtr {
			d := PtrDiff(lAddr, rAddr, lPointee, ctx.prog)
			return Int(d), true, nil
		}
		if lIsPtr && !rIsPtr {
			n, err := promoteInt(rv, e.Loc)
			if err != nil {
				return Value{}, true, err
			}
			return Pointer(PtrSub(lAddr, n, lPointee, ctx.prog), lPointee), true, nil
		}
		return Value{}, true, typeErr(e.Loc, "cannot subtract a pointer from a non-pointer")
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if lIsPtr && rIsPtr {
			switch e.BinOp {
			case OpEq:
				return boolInt(lAddr == rAddr), true, nil
			case OpNe:
				return boolInt(lAddr != rAddr), true, nil
			case OpLt:
				return boolInt(lAddr < rAddr), true, nil
			case OpLe:
				return boolInt(lAddr <= rAddr), true, nil
			case OpGt:
				return boolInt(lAddr > rAddr), true, nil
			case OpGe:
				return boolInt(lAddr >= rAddr), true, nil
			}
		}
	}
	return Value{}, false, nil
}

func evalAssign(ctx *execCtx, e *Expr) (Value, error) {
	loc, err := resolveLvalue(ctx, e.X)
	if err != nil {
		return Value{}, err
	}
	v, err := evalExpr(ctx, e.Y)
	if err != nil {
		return Value{}, err
	}
	v = coerceAssigned(v, loc.Type)
	if err := writeLocation(ctx, loc, v); err != nil {
		return Value{}, err
	}
	return readLocation(ctx, loc)
}

// coerceAssigned truncates an int being assigned into a char-typed
// location. This truncation is never itself an overflow error (spec.md
// §7's IntegerOverflow is about arithmetic results, not narrowing stores).
func coerceAssigned(v Value, t Type) Value {
	if t.Kind == TChar && v.Kind == VInt {
		return Char(int8(v.IntVal))
	}
	if t.Kind == TInt && v.Kind == VChar {
		return Int(int64(v.CharVal))
	}
	return v
}

func evalCompoundAssign(ctx *execCtx, e *Expr) (Value, error) {
	loc, err := resolveLvalue(ctx, e.X)
	if err != nil {
		return Value{}, err
	}
	old, err := readLocation(ctx, loc)
	if err != nil {
		return Value{}, err
	}
	rhs, err := evalExpr(ctx, e.Y)
	if err != nil {
		return Value{}, err
	}
	binExpr := &Expr{Kind: ExprBinary, Loc: e.Loc, BinOp: e.AssignOp}
	var result Value
	if old.Kind == VPointer || old.Kind == VArrayRef {
		result, _, err = evalPointerBinary(ctx, binExpr, old, rhs)
	} else {
		a, aerr := promoteInt(old, e.Loc)
		if aerr != nil {
			return Value{}, aerr
		}
		b, berr := promoteInt(rhs, e.Loc)
		if berr != nil {
			return Value{}, berr
		}
		n, cerr := checkedArith(e.AssignOp, a, b, e.Loc)
		if cerr != nil {
			return Value{}, cerr
		}
		result, err = Int(n), nil
	}
	if err != nil {
		return Value{}, err
	}
	result = coerceAssigned(result, loc.Type)
	if err := writeLocation(ctx, loc, result); err != nil {
		return Value{}, err
	}
	return readLocation(ctx, loc)
}

func evalIncDec(ctx *execCtx, e *Expr) (Value, error) {
	loc, err := resolveLvalue(ctx, e.X)
	if err != nil {
		return Value{}, err
	}
	old, err := readLocation(ctx, loc)
	if err != nil {
		return Value{}, err
	}
	delta := int64(1)
	if e.UnOp == OpPreDec || e.UnOp == OpPostDec {
		delta = -1
	}
	var fresh Value
	if old.Kind == VPointer {
		fresh = Pointer(PtrAdd(old.Addr, delta, old.Pointee, ctx.prog), old.Pointee)
	} else {
		n, err := promoteInt(old, e.Loc)
		if err != nil {
			return Value{}, err
		}
		op := OpAdd
		if delta < 0 {
			op = OpSub
		}
		r, err := checkedArith(op, n, 1, e.Loc)
		if err != nil {
			return Value{}, err
		}
		fresh = Int(r)
	}
	fresh = coerceAssigned(fresh, loc.Type)
	if err := writeLocation(ctx, loc, fresh); err != nil {
		return Value{}, err
	}
	if e.UnOp == OpPreInc || e.UnOp == OpPreDec {
		return readLocation(ctx, loc)
	}
	return old, nil
}

func castValue(v Value, t Type, loc SourceLoc) (Value, error) {
	switch t.Kind {
	case TInt:
		n, err := v.AsInt64()
		if err != nil {
			return Value{}, errAt(loc, ErrTypeError, err.Error())
		}
		return Int(int64(int32(n))), nil
	case TChar:
		n, err := v.AsInt64()
		if err != nil {
			return Value{}, errAt(loc, ErrTypeError, err.Error())
		}
		return Char(int8(n)), nil
	case TPointer:
		switch v.Kind {
		case VPointer:
			return Pointer(v.Addr, *t.Elem), nil
		case VArrayRef:
			return Pointer(v.Base, *t.Elem), nil
		case VNull:
			return Null(), nil
		case VInt:
			if v.IntVal == 0 {
				return Null(), nil
			}
			return Pointer(uint64(v.IntVal), *t.Elem), nil
		default:
			return Value{}, errAt(loc, ErrTypeError, "cannot cast to pointer")
		}
	default:
		return Value{}, errAt(loc, ErrTypeError, "unsupported cast target type")
	}
}
