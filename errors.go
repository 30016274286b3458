// errors.go: the runtime error taxonomy (spec.md §7) and a caret-snippet
// renderer in the same spirit as the teacher's own lex/parse error
// formatter — adapted here to point at a *runtime* statement/expression
// instead of a lexer/parser token, since this repo never lexes or parses.
package crustty

import (
	"fmt"
	"strings"
)

// ErrorKind enumerates every distinct, match-able runtime error kind named
// in spec.md §7.
type ErrorKind int

const (
	ErrUninitialisedRead ErrorKind = iota
	ErrNullDereference
	ErrUseAfterFree
	ErrDoubleFree
	ErrInvalidFree
	ErrInvalidMemoryAccess
	ErrBufferOverrun
	ErrIntegerOverflow
	ErrDivisionByZero
	ErrConstModification
	ErrStackOverflow
	ErrSnapshotLimitExceeded
	ErrTypeError
	ErrUndefinedBehaviour
	ErrFunctionNotFound
	ErrUndeclaredIdentifier
	ErrUnknownFormatSpecifier
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUninitialisedRead:
		return "UninitialisedRead"
	case ErrNullDereference:
		return "NullDereference"
	case ErrUseAfterFree:
		return "UseAfterFree"
	case ErrDoubleFree:
		return "DoubleFree"
	case ErrInvalidFree:
		return "InvalidFree"
	case ErrInvalidMemoryAccess:
		return "InvalidMemoryAccess"
	case ErrBufferOverrun:
		return "BufferOverrun"
	case ErrIntegerOverflow:
		return "IntegerOverflow"
	case ErrDivisionByZero:
		return "DivisionByZero"
	case ErrConstModification:
		return "ConstModification"
	case ErrStackOverflow:
		return "StackOverflow"
	case ErrSnapshotLimitExceeded:
		return "SnapshotLimitExceeded"
	case ErrTypeError:
		return "TypeError"
	case ErrUndefinedBehaviour:
		return "UndefinedBehaviour"
	case ErrFunctionNotFound:
		return "FunctionNotFound"
	case ErrUndeclaredIdentifier:
		return "UndeclaredIdentifier"
	case ErrUnknownFormatSpecifier:
		return "UnknownFormatSpecifier"
	case ErrCancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// RuntimeError is the single error type every fallible engine operation
// returns. Address and Identifier are populated according to Kind (e.g.
// BufferOverrun carries Address + BlockBase/BlockLen; UndeclaredIdentifier
// carries Identifier); both are left zero-valued when not applicable.
type RuntimeError struct {
	Kind       ErrorKind
	Message    string
	Address    uint64
	Identifier string
	Loc        SourceLoc
	HasAddress bool

	BlockBase uint64
	BlockLen  int
}

func (e *RuntimeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	switch e.Kind {
	case ErrUndeclaredIdentifier, ErrFunctionNotFound:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Identifier)
	case ErrUninitialisedRead:
		if e.Identifier != "" {
			return fmt.Sprintf("%s(%q)", e.Kind, e.Identifier)
		}
		return fmt.Sprintf("%s(0x%x)", e.Kind, e.Address)
	case ErrUseAfterFree, ErrDoubleFree, ErrInvalidFree, ErrInvalidMemoryAccess:
		return fmt.Sprintf("%s(0x%x)", e.Kind, e.Address)
	case ErrBufferOverrun:
		return fmt.Sprintf("%s(0x%x, [0x%x, 0x%x))", e.Kind, e.Address, e.BlockBase, e.BlockBase+uint64(e.BlockLen))
	default:
		return e.Kind.String()
	}
}

// Is lets errors.Is match on Kind alone, so callers can write
// errors.Is(err, &RuntimeError{Kind: ErrDoubleFree}).
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func errAt(loc SourceLoc, kind ErrorKind, msg string) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: msg, Loc: loc}
}

// errIdent builds an error whose rendering is keyed off an identifier name
// rather than a free-form message (ErrUndeclaredIdentifier, ErrFunctionNotFound).
func errIdent(loc SourceLoc, kind ErrorKind, name string) *RuntimeError {
	return &RuntimeError{Kind: kind, Identifier: name, Loc: loc}
}

// FormatWithSource renders err as a caret-annotated snippet of src, the same
// presentation idiom the ambient stack uses for lex/parse errors (this repo
// has neither — the snippet always points at a runtime statement/expression
// location instead). If err is not a *RuntimeError, or its location is
// zero-valued, the plain error message is returned unchanged.
func FormatWithSource(err error, src string) string {
	re, ok := err.(*RuntimeError)
	if !ok || re.Loc.Line <= 0 {
		return err.Error()
	}
	lines := strings.Split(src, "\n")
	line := re.Loc.Line
	var b strings.Builder
	fmt.Fprintf(&b, "RUNTIME ERROR at %d:%d: %s\n\n", re.Loc.Line, re.Loc.Col, re.Error())
	writeLine := func(n int) {
		if n < 1 || n > len(lines) {
			return
		}
		fmt.Fprintf(&b, "%4d | %s\n", n, lines[n-1])
	}
	writeLine(line - 1)
	writeLine(line)
	col := re.Loc.Col
	if col < 1 {
		col = 1
	}
	b.WriteString("     | ")
	b.WriteString(strings.Repeat(" ", col-1))
	b.WriteString("^\n")
	writeLine(line + 1)
	return b.String()
}
