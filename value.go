// value.go — the runtime value model and the Type/sizeof/encode/decode/pointer
// helpers of spec.md §4.1.
//
// Values are a small tagged union, deliberately not a Go interface: the
// engine needs to pattern-match on "what kind of C value is this" constantly
// (lvalue stores, printf formatting, equality for switch, pointer bounds
// checks), and a closed tag+payload struct makes every one of those switches
// exhaustive and cheap, the same tradeoff the teacher's own Value type makes
// for its own runtime.
package crustty

import (
	"encoding/binary"
	"fmt"
)

// TypeKind discriminates the Type tagged union of spec.md §3.
type TypeKind int

const (
	TInt TypeKind = iota
	TChar
	TVoid
	TPointer
	TArray
	TStruct
)

// Type is a tagged union: Int, Char, Void, Pointer(Type), Array(Type, N),
// Struct(tag), optionally const. Types are plain values (no identity), so
// two Types with the same shape compare equal field-by-field.
type Type struct {
	Kind     TypeKind
	Const    bool
	Elem     *Type  // TPointer, TArray
	ArrayLen int    // TArray
	Tag      string // TStruct
}

func IntType() Type              { return Type{Kind: TInt} }
func CharType() Type             { return Type{Kind: TChar} }
func VoidType() Type             { return Type{Kind: TVoid} }
func PointerType(elem Type) Type { return Type{Kind: TPointer, Elem: &elem} }
func ArrayType(elem Type, n int) Type {
	return Type{Kind: TArray, Elem: &elem, ArrayLen: n}
}
func StructType(tag string) Type { return Type{Kind: TStruct, Tag: tag} }

// AsConst returns a copy of t marked const.
func (t Type) AsConst() Type {
	t.Const = true
	return t
}

func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TPointer, TArray:
		if t.Kind == TArray && t.ArrayLen != o.ArrayLen {
			return false
		}
		return t.Elem.Equal(*o.Elem)
	case TStruct:
		return t.Tag == o.Tag
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case TInt:
		return "int"
	case TChar:
		return "char"
	case TVoid:
		return "void"
	case TPointer:
		return t.Elem.String() + "*"
	case TArray:
		return fmt.Sprintf("%s[%d]", t.Elem.String(), t.ArrayLen)
	case TStruct:
		return "struct " + t.Tag
	default:
		return "?"
	}
}

// Sizeof returns the size in bytes of t, per spec.md §3: int=4, char=1,
// pointer=8, struct = unpadded sum of field sizes, array[N] of T = N*sizeof(T).
// Struct sizes require the program's struct table; pass nil only for types
// that cannot be TStruct.
func Sizeof(t Type, prog *Program) int {
	switch t.Kind {
	case TInt:
		return 4
	case TChar:
		return 1
	case TPointer:
		return 8
	case TArray:
		return t.ArrayLen * Sizeof(*t.Elem, prog)
	case TStruct:
		decl := prog.StructByTag(t.Tag)
		if decl == nil {
			return 0
		}
		total := 0
		for _, f := range decl.Fields {
			total += Sizeof(f.Type, prog)
		}
		return total
	default:
		return 0
	}
}

// StructFieldOffset returns the unpadded byte offset of field within the
// struct tagged by tag, used by lvalue resolution for "." and "->".
func StructFieldOffset(tag, field string, prog *Program) (offset int, ftype Type, ok bool) {
	decl := prog.StructByTag(tag)
	if decl == nil {
		return 0, Type{}, false
	}
	off := 0
	for _, f := range decl.Fields {
		if f.Name == field {
			return off, f.Type, true
		}
		off += Sizeof(f.Type, prog)
	}
	return 0, Type{}, false
}

// ---------------------------------------------------------------------------
// Value
// ---------------------------------------------------------------------------

type ValueKind int

const (
	VInt ValueKind = iota
	VChar
	VPointer
	VStruct
	VArrayRef
	VUninitialised
	VNull
)

// Value is the tagged runtime value of spec.md §3. Booleans are represented
// as VInt (0 / non-0), matching C.
type Value struct {
	Kind ValueKind

	IntVal  int64 // VInt
	CharVal int8  // VChar

	// VPointer
	Addr    uint64
	Pointee Type

	// VStruct: ordered fields, field order matches the struct declaration.
	StructTag   string
	FieldNames  []string
	FieldValues []Value

	// VArrayRef: a reference to a contiguous run of elements, base address +
	// element type + length. Used for decaying array locals and for
	// pointer-into-array results; the actual bytes live in whichever region
	// (stack or heap) owns Base.
	Base    uint64
	ElemTyp Type
	Length  int

	// VUninitialised carries the declared type so display code and error
	// messages can still say "int x is uninitialised" usefully.
	UninitType Type
}

func Int(n int64) Value           { return Value{Kind: VInt, IntVal: n} }
func Char(c int8) Value           { return Value{Kind: VChar, CharVal: c} }
func Null() Value                 { return Value{Kind: VNull} }
func Uninitialised(t Type) Value  { return Value{Kind: VUninitialised, UninitType: t} }
func Pointer(addr uint64, pointee Type) Value {
	return Value{Kind: VPointer, Addr: addr, Pointee: pointee}
}
func ArrayRef(base uint64, elem Type, length int) Value {
	return Value{Kind: VArrayRef, Base: base, ElemTyp: elem, Length: length}
}

// IsTruthy implements C's "any non-zero value is true" rule, used by if/
// while/for conditions and by &&/||/?:.
func (v Value) IsTruthy() (bool, error) {
	switch v.Kind {
	case VInt:
		return v.IntVal != 0, nil
	case VChar:
		return v.CharVal != 0, nil
	case VPointer:
		return v.Addr != 0, nil
	case VNull:
		return false, nil
	case VUninitialised:
		return false, &RuntimeError{Kind: ErrUninitialisedRead, Message: "use of uninitialised value in condition"}
	default:
		return false, &RuntimeError{Kind: ErrTypeError, Message: fmt.Sprintf("value of kind %v is not a valid condition", v.Kind)}
	}
}

// AsInt64 extracts an integer from an Int/Char/Pointer/Null value, promoting
// char to int and pointer/null to its address, for arithmetic and comparisons.
func (v Value) AsInt64() (int64, error) {
	switch v.Kind {
	case VInt:
		return v.IntVal, nil
	case VChar:
		return int64(v.CharVal), nil
	case VPointer:
		return int64(v.Addr), nil
	case VNull:
		return 0, nil
	default:
		return 0, &RuntimeError{Kind: ErrTypeError, Message: fmt.Sprintf("expected an integer-like value, got %v", v.Kind)}
	}
}

// TypeOf reports the static Type a Value carries, used to re-type a freshly
// loaded lvalue and for display.
func (v Value) TypeOf() Type {
	switch v.Kind {
	case VInt:
		return IntType()
	case VChar:
		return CharType()
	case VPointer:
		return PointerType(v.Pointee)
	case VNull:
		return PointerType(VoidType())
	case VStruct:
		return StructType(v.StructTag)
	case VArrayRef:
		return ArrayType(v.ElemTyp, v.Length)
	case VUninitialised:
		return v.UninitType
	default:
		return VoidType()
	}
}

// ---------------------------------------------------------------------------
// Encode / decode (little-endian, width-exact, unpadded)
// ---------------------------------------------------------------------------

// Encode serialises v as t's byte representation, per spec.md §4.1.
func Encode(v Value, t Type, prog *Program) ([]byte, error) {
	switch t.Kind {
	case TInt:
		n, err := v.AsInt64()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case TChar:
		n, err := v.AsInt64()
		if err != nil {
			return nil, err
		}
		return []byte{byte(int8(n))}, nil
	case TPointer:
		addr, err := v.AsInt64()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(addr))
		return buf, nil
	case TStruct:
		if v.Kind != VStruct {
			return nil, &RuntimeError{Kind: ErrTypeError, Message: "expected struct value"}
		}
		decl := prog.StructByTag(t.Tag)
		if decl == nil {
			return nil, &RuntimeError{Kind: ErrTypeError, Message: "unknown struct " + t.Tag}
		}
		var out []byte
		for _, f := range decl.Fields {
			fv, ok := v.lookupField(f.Name)
			if !ok {
				return nil, &RuntimeError{Kind: ErrTypeError, Message: "missing field " + f.Name}
			}
			b, err := Encode(fv, f.Type, prog)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	case TArray:
		if v.Kind != VArrayRef {
			return nil, &RuntimeError{Kind: ErrTypeError, Message: "expected array value"}
		}
		return nil, &RuntimeError{Kind: ErrTypeError, Message: "arrays are encoded element-by-element through the owning region, not directly"}
	default:
		return nil, &RuntimeError{Kind: ErrTypeError, Message: "cannot encode void"}
	}
}

func (v Value) lookupField(name string) (Value, bool) {
	for i, n := range v.FieldNames {
		if n == name {
			return v.FieldValues[i], true
		}
	}
	return Value{}, false
}

// Decode deserialises bytes as t. initOK must be true for every byte
// consumed; if any source byte is uninitialised, decoding fails with
// UninitialisedRead per spec.md §4.1.
func Decode(bytes []byte, initOK []bool, t Type, prog *Program) (Value, error) {
	n := Sizeof(t, prog)
	if len(bytes) < n || len(initOK) < n {
		return Value{}, &RuntimeError{Kind: ErrInvalidMemoryAccess, Message: "short read while decoding"}
	}
	for i := 0; i < n; i++ {
		if !initOK[i] {
			return Value{}, &RuntimeError{Kind: ErrUninitialisedRead, Message: "read of uninitialised bytes"}
		}
	}
	switch t.Kind {
	case TInt:
		return Int(int64(int32(binary.LittleEndian.Uint32(bytes[:4])))), nil
	case TChar:
		return Char(int8(bytes[0])), nil
	case TPointer:
		addr := binary.LittleEndian.Uint64(bytes[:8])
		if addr == 0 {
			return Null(), nil
		}
		return Pointer(addr, *t.Elem), nil
	case TStruct:
		decl := prog.StructByTag(t.Tag)
		if decl == nil {
			return Value{}, &RuntimeError{Kind: ErrTypeError, Message: "unknown struct " + t.Tag}
		}
		sv := Value{Kind: VStruct, StructTag: t.Tag}
		off := 0
		for _, f := range decl.Fields {
			fs := Sizeof(f.Type, prog)
			fv, err := Decode(bytes[off:off+fs], initOK[off:off+fs], f.Type, prog)
			if err != nil {
				return Value{}, err
			}
			sv.FieldNames = append(sv.FieldNames, f.Name)
			sv.FieldValues = append(sv.FieldValues, fv)
			off += fs
		}
		return sv, nil
	default:
		return Value{}, &RuntimeError{Kind: ErrTypeError, Message: "cannot decode void"}
	}
}

// ---------------------------------------------------------------------------
// Pointer arithmetic (spec.md §4.1, §4.5)
// ---------------------------------------------------------------------------

// PtrAdd scales n by sizeof(pointee) and returns the resulting address.
// Forming a one-past-the-end pointer is legal; only dereferencing it fails.
func PtrAdd(addr uint64, n int64, pointee Type, prog *Program) uint64 {
	size := int64(Sizeof(pointee, prog))
	return uint64(int64(addr) + n*size)
}

// PtrSub is PtrAdd with the offset negated.
func PtrSub(addr uint64, n int64, pointee Type, prog *Program) uint64 {
	return PtrAdd(addr, -n, pointee, prog)
}

// PtrDiff returns the element count between two pointers of the same pointee
// type. The caller is responsible for checking both addresses resolve into
// the same block (spec.md §4.1: "fails if pointers refer to different
// blocks"); this helper only does the arithmetic.
func PtrDiff(a, b uint64, pointee Type, prog *Program) int64 {
	size := int64(Sizeof(pointee, prog))
	if size == 0 {
		return 0
	}
	return (int64(a) - int64(b)) / size
}
