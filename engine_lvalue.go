// engine_lvalue.go — lvalue resolution: turning an Ident/Deref/Index/Member
// expression into an addressable Location, and reading/writing through it.
// Grounded on the address-space split of spec.md §3: a Location never cares
// whether its address falls in the stack or heap region, it just resolves
// through whichever one owns it.
package crustty

// Location is a resolved lvalue: either a named stack local (LocalName set,
// used so whole-value reads/writes go through Stack.ReadLocal/AssignLocal
// and respect array-decay and the const flag) or a raw address anywhere in
// the address space.
type Location struct {
	Addr      uint64
	Type      Type
	LocalName string
}

func readBytesAt(ctx *execCtx, addr uint64, n int) ([]byte, error) {
	if addr >= HeapAddressStart {
		return ctx.heap.Read(addr, n)
	}
	return ctx.stack.ReadBytes(addr, n)
}

func writeBytesAt(ctx *execCtx, addr uint64, data []byte) error {
	if addr >= HeapAddressStart {
		return ctx.heap.Write(addr, data)
	}
	return ctx.stack.WriteBytes(addr, data)
}

// ptrTarget extracts the address and pointee type a dereference follows.
func ptrTarget(v Value, loc SourceLoc) (uint64, Type, error) {
	switch v.Kind {
	case VPointer:
		return v.Addr, v.Pointee, nil
	case VArrayRef:
		return v.Base, v.ElemTyp, nil
	case VNull:
		return 0, VoidType(), nil
	default:
		return 0, Type{}, errAt(loc, ErrTypeError, "not a pointer")
	}
}

// indexTarget extracts the address and element type an index expression
// reads through, for both decayed arrays and plain pointers.
func indexTarget(v Value, idx int64, loc SourceLoc, prog *Program) (uint64, Type, error) {
	switch v.Kind {
	case VArrayRef:
		return PtrAdd(v.Base, idx, v.ElemTyp, prog), v.ElemTyp, nil
	case VPointer:
		if v.Addr == 0 {
			return 0, Type{}, errAt(loc, ErrNullDereference, "indexed through a null pointer")
		}
		return PtrAdd(v.Addr, idx, v.Pointee, prog), v.Pointee, nil
	case VNull:
		return 0, Type{}, errAt(loc, ErrNullDereference, "indexed through a null pointer")
	default:
		return 0, Type{}, errAt(loc, ErrTypeError, "value is not indexable")
	}
}

func resolveLvalue(ctx *execCtx, e *Expr) (Location, error) {
	switch e.Kind {
	case ExprIdent:
		f := ctx.stack.Current()
		slot, ok := f.Locals[e.Name]
		if !ok {
			return Location{}, errIdent(e.Loc, ErrUndeclaredIdentifier, e.Name)
		}
		return Location{Addr: slot.Address, Type: slot.Type, LocalName: e.Name}, nil

	case ExprDeref:
		v, err := evalExpr(ctx, e.X)
		if err != nil {
			return Location{}, err
		}
		addr, pointee, err := ptrTarget(v, e.Loc)
		if err != nil {
			return Location{}, err
		}
		if addr == 0 {
			return Location{}, errAt(e.Loc, ErrNullDereference, "dereferenced a null pointer")
		}
		return Location{Addr: addr, Type: pointee}, nil

	case ExprIndex:
		base, err := evalExpr(ctx, e.X)
		if err != nil {
			return Location{}, err
		}
		iv, err := evalExpr(ctx, e.Y)
		if err != nil {
			return Location{}, err
		}
		idx, err := iv.AsInt64()
		if err != nil {
			return Location{}, err
		}
		addr, elemType, err := indexTarget(base, idx, e.Loc, ctx.prog)
		if err != nil {
			return Location{}, err
		}
		return Location{Addr: addr, Type: elemType}, nil

	case ExprMember:
		var baseAddr uint64
		var baseTag string
		if e.Arrow {
			pv, err := evalExpr(ctx, e.X)
			if err != nil {
				return Location{}, err
			}
			addr, pointee, err := ptrTarget(pv, e.Loc)
			if err != nil {
				return Location{}, err
			}
			if addr == 0 {
				return Location{}, errAt(e.Loc, ErrNullDereference, "member access through a null pointer")
			}
			if pointee.Kind != TStruct {
				return Location{}, errAt(e.Loc, ErrTypeError, "-> on a non-struct pointer")
			}
			baseAddr, baseTag = addr, pointee.Tag
		} else {
			baseLoc, err := resolveLvalue(ctx, e.X)
			if err != nil {
				return Location{}, err
			}
			if baseLoc.Type.Kind != TStruct {
				return Location{}, errAt(e.Loc, ErrTypeError, ". on a non-struct value")
			}
			baseAddr, baseTag = baseLoc.Addr, baseLoc.Type.Tag
		}
		off, ftype, ok := StructFieldOffset(baseTag, e.Name, ctx.prog)
		if !ok {
			return Location{}, errAt(e.Loc, ErrTypeError, "struct "+baseTag+" has no field "+e.Name)
		}
		return Location{Addr: baseAddr + uint64(off), Type: ftype}, nil

	default:
		return Location{}, errAt(e.Loc, ErrTypeError, "expression is not assignable")
	}
}

func readLocation(ctx *execCtx, loc Location) (Value, error) {
	if loc.LocalName != "" {
		return ctx.stack.ReadLocal(loc.LocalName, ctx.prog)
	}
	if loc.Type.Kind == TArray {
		return ArrayRef(loc.Addr, *loc.Type.Elem, loc.Type.ArrayLen), nil
	}
	n := Sizeof(loc.Type, ctx.prog)
	b, err := readBytesAt(ctx, loc.Addr, n)
	if err != nil {
		return Value{}, err
	}
	init := make([]bool, n)
	for i := range init {
		init[i] = true
	}
	return Decode(b, init, loc.Type, ctx.prog)
}

func writeLocation(ctx *execCtx, loc Location, v Value) error {
	if loc.LocalName != "" {
		return ctx.stack.AssignLocal(loc.LocalName, v, ctx.prog)
	}
	b, err := Encode(v, loc.Type, ctx.prog)
	if err != nil {
		return err
	}
	return writeBytesAt(ctx, loc.Addr, b)
}
