// builtins.go — the fixed built-in dispatch table of spec.md §4.5
// ("Built-in functions"), grounded on the original implementation's
// interpreter/builtins.rs: malloc/free/printf/scanf are native, everything
// else is user-defined C. sizeof is NOT here — it is a compile-time-shaped
// operator already handled by evalExpr's ExprSizeofType/ExprSizeofExpr cases.
package crustty

import (
	"strconv"
	"strings"
)

type builtinFunc func(ctx *execCtx, e *Expr, args []Value) (Value, error)

var builtins = map[string]builtinFunc{
	"malloc": biMalloc,
	"free":   biFree,
	"printf": biPrintf,
	"scanf":  biScanf,
}

func biMalloc(ctx *execCtx, e *Expr, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, errAt(e.Loc, ErrTypeError, "malloc expects exactly one argument")
	}
	n, err := args[0].AsInt64()
	if err != nil {
		return Value{}, errAt(e.Loc, ErrTypeError, "malloc size must be an int")
	}
	if n < 0 {
		return Value{}, errAt(e.Loc, ErrUndefinedBehaviour, "malloc with negative size")
	}
	// HeapBlock.ElementType is display-only (value.go); a surrounding cast
	// like (int*)malloc(40) still retypes the resulting pointer correctly via
	// castValue, so leaving the block itself tagged void costs nothing
	// semantic — only the inspector's "what was this block allocated as"
	// label is less specific than a full cast-aware inference would give.
	addr := ctx.heap.Alloc(int(n), VoidType())
	return Pointer(addr, VoidType()), nil
}

func biFree(ctx *execCtx, e *Expr, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, errAt(e.Loc, ErrTypeError, "free expects exactly one argument")
	}
	switch args[0].Kind {
	case VNull:
		return Int(0), nil
	case VPointer:
		if args[0].Addr == 0 {
			return Int(0), nil
		}
		if err := ctx.heap.Free(args[0].Addr, ctx.step); err != nil {
			if re, ok := err.(*RuntimeError); ok {
				re.Loc = e.Loc
			}
			return Value{}, err
		}
		return Int(0), nil
	default:
		return Value{}, errAt(e.Loc, ErrTypeError, "free expects a pointer")
	}
}

func biPrintf(ctx *execCtx, e *Expr, args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errAt(e.Loc, ErrTypeError, "printf requires at least one argument")
	}
	format, err := readCString(ctx, args[0])
	if err != nil {
		return Value{}, err
	}
	out, err := formatPrintf(format, args[1:], e.Loc, ctx)
	if err != nil {
		return Value{}, err
	}
	ctx.term.Print(out, ctx.step)
	return Int(0), nil
}

func formatPrintf(format string, args []Value, loc SourceLoc, ctx *execCtx) (string, error) {
	var b strings.Builder
	argIdx := 0
	nextArg := func() (Value, error) {
		if argIdx >= len(args) {
			return Value{}, errAt(loc, ErrTypeError, "not enough arguments for format string")
		}
		v := args[argIdx]
		argIdx++
		return v, nil
	}
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch ch {
		case '%':
			if i+1 >= len(runes) {
				b.WriteByte('%')
				break
			}
			i++
			spec := runes[i]
			switch spec {
			case '%':
				b.WriteByte('%')
			case 'd':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				n, err := v.AsInt64()
				if err != nil {
					return "", errAt(loc, ErrTypeError, "%d expects an int")
				}
				b.WriteString(strconv.FormatInt(int64(int32(n)), 10))
			case 'u':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				n, err := v.AsInt64()
				if err != nil {
					return "", errAt(loc, ErrTypeError, "%u expects an int")
				}
				b.WriteString(strconv.FormatUint(uint64(uint32(n)), 10))
			case 'x':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				n, err := v.AsInt64()
				if err != nil {
					return "", errAt(loc, ErrTypeError, "%x expects an int")
				}
				b.WriteString(strconv.FormatUint(uint64(uint32(n)), 16))
			case 'c':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				n, err := v.AsInt64()
				if err != nil {
					return "", errAt(loc, ErrTypeError, "%c expects an int or char")
				}
				b.WriteByte(byte(n))
			case 's':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				s, err := readCString(ctx, v)
				if err != nil {
					return "", err
				}
				b.WriteString(s)
			case 'p':
				v, err := nextArg()
				if err != nil {
					return "", err
				}
				addr, _, err := ptrTarget(v, loc)
				if err != nil {
					return "", err
				}
				b.WriteString("0x" + strconv.FormatUint(addr, 16))
			default:
				return "", errAt(loc, ErrUnknownFormatSpecifier, "%"+string(spec))
			}
		case '\\':
			if i+1 < len(runes) {
				i++
				switch runes[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				case 'r':
					b.WriteByte('\r')
				case '\\':
					b.WriteByte('\\')
				case '"':
					b.WriteByte('"')
				default:
					b.WriteByte('\\')
					b.WriteRune(runes[i])
				}
			} else {
				b.WriteByte('\\')
			}
		default:
			b.WriteRune(ch)
		}
	}
	return b.String(), nil
}

const maxCStringLen = 10000

// readCString reads a nul-terminated byte string starting at v's address,
// through whichever region (stack or heap) owns it.
func readCString(ctx *execCtx, v Value) (string, error) {
	addr, _, err := ptrTarget(v, SourceLoc{})
	if err != nil {
		return "", err
	}
	var out []byte
	for len(out) < maxCStringLen {
		b, err := readBytesAt(ctx, addr, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
		addr++
	}
	return "", &RuntimeError{Kind: ErrUndefinedBehaviour, Message: "string too long or missing null terminator"}
}

// countScanfSpecifiers returns how many tokens format requires, so scanf can
// check up front whether enough input is already queued — see biScanf.
func countScanfSpecifiers(format string) int {
	n := 0
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i+1 >= len(runes) {
			continue
		}
		i++
		if runes[i] != '%' {
			n++
		}
	}
	return n
}

// biScanf is all-or-nothing: it checks the token queue holds enough tokens
// for every specifier before consuming or writing anything. If it doesn't,
// it consumes nothing and sets ctx.needInput so the stepping driver retries
// this same statement once the UI supplies more input (see dispatchStmt's
// StmtExpr case and Engine.ProvideInput) — this sidesteps the question of
// what a half-satisfied scanf call should leave behind on a later retry.
func biScanf(ctx *execCtx, e *Expr, args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, errAt(e.Loc, ErrTypeError, "scanf requires at least one argument")
	}
	format, err := readCString(ctx, args[0])
	if err != nil {
		return Value{}, err
	}
	need := countScanfSpecifiers(format)
	if len(ctx.scanfTokens)-ctx.scanfPos < need {
		ctx.needInput = true
		return Int(0), nil
	}

	ptrArgs := args[1:]
	startPos := ctx.scanfPos
	argIdx := 0
	matched := 0
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i+1 >= len(runes) {
			continue
		}
		i++
		spec := runes[i]
		if spec == '%' {
			continue
		}
		if argIdx >= len(ptrArgs) {
			break
		}
		token := ctx.scanfTokens[ctx.scanfPos]
		ctx.scanfPos++

		dest := ptrArgs[argIdx]
		argIdx++
		switch spec {
		case 'd', 'i':
			n, perr := strconv.ParseInt(token, 10, 64)
			if perr == nil {
				if werr := writeScanfScalar(ctx, dest, Int(n), e.Loc); werr != nil {
					return Value{}, werr
				}
				matched++
			}
		case 'u':
			n, perr := strconv.ParseUint(token, 10, 64)
			if perr == nil {
				if werr := writeScanfScalar(ctx, dest, Int(int64(uint32(n))), e.Loc); werr != nil {
					return Value{}, werr
				}
				matched++
			}
		case 'x', 'X':
			n, perr := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(token, "0x"), "0X"), 16, 64)
			if perr == nil {
				if werr := writeScanfScalar(ctx, dest, Int(int64(uint32(n))), e.Loc); werr != nil {
					return Value{}, werr
				}
				matched++
			}
		case 'c':
			if len(token) > 0 {
				if werr := writeScanfScalar(ctx, dest, Char(int8(token[0])), e.Loc); werr != nil {
					return Value{}, werr
				}
				matched++
			}
		case 's':
			if werr := writeScanfString(ctx, dest, token, e.Loc); werr != nil {
				return Value{}, werr
			}
			matched++
		default:
			return Value{}, errAt(e.Loc, ErrUnknownFormatSpecifier, "%"+string(spec))
		}
	}

	echo := strings.Join(ctx.scanfTokens[startPos:ctx.scanfPos], " ")
	if echo != "" {
		ctx.term.Echo(echo+"\n", ctx.step)
	}
	return Int(int64(matched)), nil
}

// writeScanfScalar writes a single parsed value through a scanf pointer
// argument, which is always the address of the destination (e.g. &x).
func writeScanfScalar(ctx *execCtx, dest Value, v Value, loc SourceLoc) error {
	addr, pointee, err := ptrTarget(dest, loc)
	if err != nil {
		return err
	}
	if addr == 0 {
		return errAt(loc, ErrNullDereference, "scanf wrote through a null pointer")
	}
	if slot, ok := ctx.stack.ResolveAddress(addr); ok && addr == slot.Address {
		return ctx.stack.AssignLocal(slot.Name, coerceAssigned(v, pointee), ctx.prog)
	}
	b, err := Encode(coerceAssigned(v, pointee), pointee, ctx.prog)
	if err != nil {
		return err
	}
	return writeBytesAt(ctx, addr, b)
}

// writeScanfString writes s, nul-terminated, into the char buffer dest
// decays to (a %s destination is a plain char*, from either an array decay
// or a malloc'd buffer).
func writeScanfString(ctx *execCtx, dest Value, s string, loc SourceLoc) error {
	addr, _, err := ptrTarget(dest, loc)
	if err != nil {
		return err
	}
	data := append([]byte(s), 0)
	return writeBytesAt(ctx, addr, data)
}
