package crustty

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, prog *Program) *Engine {
	t.Helper()
	eng, err := New(prog, DefaultConfig())
	require.NoError(t, err)
	return eng
}

func runToHaltedOrFaulted(t *testing.T, eng *Engine) (Status, error) {
	t.Helper()
	status, err := eng.RunToEnd(nil)
	require.NotEqual(t, StatusAwaitingInput, status)
	return status, err
}

// stmtPtr takes the address of a Stmt value, for the handful of AST fields
// (For's init clause) that want a *Stmt rather than a Stmt.
func stmtPtr(s Stmt) *Stmt { return &s }

// ---------------------------------------------------------------------------
// Program builders for the spec.md §8 end-to-end scenarios.
// ---------------------------------------------------------------------------

// fibDPProgram is S1: an iterative, memoised fibonacci that prints fib(0..15)
// then fib(20), all from a stack-allocated array (no heap involved).
func fibDPProgram() *Program {
	I := Ident
	memoT := ArrayType(IntType(), 21)
	body := []Stmt{
		VarDecl("memo", memoT, nil),
		ExprStmt(Assign(Index(I("memo"), IntLit(0)), IntLit(0))),
		ExprStmt(Assign(Index(I("memo"), IntLit(1)), IntLit(1))),
		For(stmtPtr(VarDecl("i", IntType(), IntLit(2))),
			Bin(OpLe, I("i"), IntLit(20)),
			IncDec(OpPostInc, I("i")),
			[]Stmt{
				ExprStmt(Assign(Index(I("memo"), I("i")),
					Bin(OpAdd,
						Index(I("memo"), Bin(OpSub, I("i"), IntLit(1))),
						Index(I("memo"), Bin(OpSub, I("i"), IntLit(2)))))),
			}),
		VarDecl("j", IntType(), IntLit(0)),
		While(Bin(OpLe, I("j"), IntLit(15)), []Stmt{
			ExprStmt(Call("printf", StringLit("fib(%d) = %d\n"), I("j"), Index(I("memo"), I("j")))),
			ExprStmt(IncDec(OpPostInc, I("j"))),
		}),
		ExprStmt(Call("printf", StringLit("fib(%d) = %d\n"), IntLit(20), Index(I("memo"), IntLit(20)))),
		Return(IntLit(0)),
	}
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

func mallocFreeProgram(double bool) *Program {
	I := Ident
	intPtr := PointerType(IntType())
	body := []Stmt{
		VarDecl("p", intPtr, Cast(intPtr, Call("malloc", IntLit(4)))),
		ExprStmt(Call("free", I("p"))),
	}
	if double {
		body = append(body, ExprStmt(Call("free", I("p"))))
	}
	body = append(body, Return(IntLit(0)))
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

func useAfterFreeProgram() *Program {
	I := Ident
	intPtr := PointerType(IntType())
	body := []Stmt{
		VarDecl("p", intPtr, Cast(intPtr, Call("malloc", IntLit(4)))),
		ExprStmt(Assign(Deref(I("p")), IntLit(5))),
		ExprStmt(Call("free", I("p"))),
		VarDecl("x", IntType(), Deref(I("p"))),
		Return(IntLit(0)),
	}
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

func nullDerefProgram() *Program {
	I := Ident
	intPtr := PointerType(IntType())
	body := []Stmt{
		VarDecl("p", intPtr, NullLit()),
		ExprStmt(Assign(Deref(I("p")), IntLit(1))),
		Return(IntLit(0)),
	}
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

func uninitialisedReadProgram() *Program {
	I := Ident
	body := []Stmt{
		VarDecl("x", IntType(), nil),
		VarDecl("y", IntType(), Bin(OpAdd, I("x"), IntLit(1))),
		Return(IntLit(0)),
	}
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

func integerOverflowProgram() *Program {
	I := Ident
	body := []Stmt{
		VarDecl("x", IntType(), IntLit(2147483647)),
		VarDecl("y", IntType(), Bin(OpAdd, I("x"), IntLit(1))),
		Return(IntLit(0)),
	}
	return &Program{Functions: []FuncDecl{{Name: "main", ReturnType: IntType(), Body: body}}}
}

// ---------------------------------------------------------------------------
// S1 — fibonacci with memoisation
// ---------------------------------------------------------------------------

func TestS1FibonacciMemoisation(t *testing.T) {
	eng := newEngine(t, fibDPProgram())
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)

	lines := eng.Terminal().Lines()
	want := []string{
		"fib(0) = 0", "fib(1) = 1", "fib(2) = 1", "fib(3) = 2", "fib(4) = 3",
		"fib(5) = 5", "fib(6) = 8", "fib(7) = 13", "fib(8) = 21", "fib(9) = 34",
		"fib(10) = 55", "fib(11) = 89", "fib(12) = 144", "fib(13) = 233",
		"fib(14) = 377", "fib(15) = 610", "fib(20) = 6765",
	}
	assert.Equal(t, want, lines)
	assert.Equal(t, 0, eng.Heap().LiveBlockCount())
}

// ---------------------------------------------------------------------------
// S2 — double-free detection
// ---------------------------------------------------------------------------

func TestS2DoubleFree(t *testing.T) {
	eng := newEngine(t, mallocFreeProgram(true))
	status, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	assert.Equal(t, StatusFaulted, status)
	assert.Equal(t, ErrDoubleFree, err.(*RuntimeError).Kind)
	assert.True(t, eng.IsFaulted())
}

func TestS2SingleFreeDoesNotFault(t *testing.T) {
	eng := newEngine(t, mallocFreeProgram(false))
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
}

// ---------------------------------------------------------------------------
// S3 — use-after-free
// ---------------------------------------------------------------------------

func TestS3UseAfterFree(t *testing.T) {
	eng := newEngine(t, useAfterFreeProgram())
	_, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	assert.Equal(t, ErrUseAfterFree, err.(*RuntimeError).Kind)
}

// ---------------------------------------------------------------------------
// S4 — null dereference
// ---------------------------------------------------------------------------

func TestS4NullDereference(t *testing.T) {
	eng := newEngine(t, nullDerefProgram())
	_, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	assert.Equal(t, ErrNullDereference, err.(*RuntimeError).Kind)
}

// ---------------------------------------------------------------------------
// S5 — uninitialised read
// ---------------------------------------------------------------------------

func TestS5UninitialisedRead(t *testing.T) {
	eng := newEngine(t, uninitialisedReadProgram())
	_, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	re := err.(*RuntimeError)
	assert.Equal(t, ErrUninitialisedRead, re.Kind)
	assert.Equal(t, "x", re.Identifier)
}

// ---------------------------------------------------------------------------
// S7 — integer overflow
// ---------------------------------------------------------------------------

func TestS7IntegerOverflow(t *testing.T) {
	eng := newEngine(t, integerOverflowProgram())
	_, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	assert.Equal(t, ErrIntegerOverflow, err.(*RuntimeError).Kind)
}

// ---------------------------------------------------------------------------
// S6 — reverse and replay
// ---------------------------------------------------------------------------

func TestS6ReverseAndReplay(t *testing.T) {
	eng := newEngine(t, fibDPProgram())
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	require.Equal(t, StatusHalted, status)

	wantLines := eng.Terminal().Lines()
	wantLive := eng.Heap().LiveBlockCount()
	wantStep := eng.StepIndex()

	for i := 0; i < 10; i++ {
		_, err := eng.StepBackward()
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := eng.StepForward()
		require.NoError(t, err)
	}

	assert.Equal(t, wantLines, eng.Terminal().Lines())
	assert.Equal(t, wantLive, eng.Heap().LiveBlockCount())
	assert.Equal(t, wantStep, eng.StepIndex())
}

// ---------------------------------------------------------------------------
// Property 1 — reversibility: for any K <= N, K backward then K forward
// reproduces byte-identical state (here: every observable projection of it).
// ---------------------------------------------------------------------------

// fingerprint renders every observable projection of an Engine's state into
// a single comparable string, used to assert that rewinding and replaying
// reproduces identical state (spec.md §8's reversibility property) and that
// two independent runs of the same program diverge nowhere (determinism).
func fingerprint(eng *Engine) string {
	var addrs []uint64
	for addr := range eng.Heap().Blocks {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "step=%d\n", eng.StepIndex())
	fmt.Fprintf(&b, "terminal=%s\n", strings.Join(eng.Terminal().Lines(), "|"))
	for _, addr := range addrs {
		blk := eng.Heap().Blocks[addr]
		fmt.Fprintf(&b, "block@0x%x len=%d state=%d\n", addr, blk.Len, blk.State)
	}
	return b.String()
}

func TestReversibilityAtEveryPrefix(t *testing.T) {
	eng := newEngine(t, fibDPProgram())

	var fingerprints []string
	for {
		status, err := eng.StepForward()
		require.NoError(t, err)
		fingerprints = append(fingerprints, fingerprint(eng))
		if status == StatusHalted {
			break
		}
	}
	n := len(fingerprints)

	for k := 1; k <= n; k++ {
		for i := 0; i < k; i++ {
			_, err := eng.StepBackward()
			require.NoError(t, err)
		}
		for i := 0; i < k; i++ {
			_, err := eng.StepForward()
			require.NoError(t, err)
		}
		assert.Equal(t, fingerprints[n-1], fingerprint(eng), "mismatch after %d back/%d forward", k, k)
	}
}

// ---------------------------------------------------------------------------
// Property 2 — determinism: same program, same input, same snapshot sequence.
// ---------------------------------------------------------------------------

func TestDeterminism(t *testing.T) {
	run := func() []string {
		eng := newEngine(t, fibDPProgram())
		var out []string
		for {
			status, err := eng.StepForward()
			require.NoError(t, err)
			out = append(out, fingerprint(eng))
			if status == StatusHalted {
				break
			}
		}
		return out
	}
	assert.Equal(t, run(), run())
}

// ---------------------------------------------------------------------------
// Property 3 — disjoint address spaces.
// ---------------------------------------------------------------------------

func TestDisjointAddressSpaces(t *testing.T) {
	intPtr := PointerType(IntType())
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("x", IntType(), IntLit(1)),
			VarDecl("p", intPtr, Cast(intPtr, Call("malloc", IntLit(4)))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	_, err := eng.StepForward() // declare x
	require.NoError(t, err)
	_, err = eng.StepForward() // declare p = malloc
	require.NoError(t, err)

	xAddr, err := eng.Stack().AddressOf("x")
	require.NoError(t, err)
	assert.Less(t, xAddr, HeapAddressStart)

	for addr := range eng.Heap().Blocks {
		assert.GreaterOrEqual(t, addr, HeapAddressStart)
		assert.NotEqual(t, xAddr, addr)
	}
	assert.Less(t, StackAddressStart, HeapAddressStart)
}

// ---------------------------------------------------------------------------
// Property 4 — init monotonicity, observed through the engine (free+malloc
// resets it, since a freed block's address is never reused in this
// allocator — so re-running malloc always yields an honestly fresh block).
// ---------------------------------------------------------------------------

func TestInitMonotonicityAcrossReads(t *testing.T) {
	I := Ident
	intPtr := PointerType(IntType())
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("p", intPtr, Cast(intPtr, Call("malloc", IntLit(4)))),
			ExprStmt(Assign(Deref(I("p")), IntLit(7))),
			VarDecl("a", IntType(), Deref(I("p"))),
			VarDecl("b", IntType(), Deref(I("p"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
}

// ---------------------------------------------------------------------------
// Control flow: break/continue/switch fallthrough/goto.
// ---------------------------------------------------------------------------

func TestSwitchFallthroughIsMandatoryWithoutBreak(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("total", IntType(), IntLit(0)),
			Switch(IntLit(1),
				Case(IntLit(1), ExprStmt(CompoundAssign(OpAdd, I("total"), IntLit(1)))),
				Case(IntLit(2), ExprStmt(CompoundAssign(OpAdd, I("total"), IntLit(10))), Break()),
				Default(ExprStmt(CompoundAssign(OpAdd, I("total"), IntLit(100)))),
			),
			ExprStmt(Call("printf", StringLit("%d\n"), I("total"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	// case 1 matches (+1, total=1); no break, falls through into case 2's
	// body (+10, total=11); case 2's break stops before reaching default.
	assert.Equal(t, []string{"11"}, eng.Terminal().Lines())
}

func TestBreakExitsInnermostLoopOnly(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("count", IntType(), IntLit(0)),
			For(stmtPtr(VarDecl("i", IntType(), IntLit(0))), Bin(OpLt, I("i"), IntLit(3)), IncDec(OpPostInc, I("i")),
				[]Stmt{
					For(stmtPtr(VarDecl("j", IntType(), IntLit(0))), Bin(OpLt, I("j"), IntLit(10)), IncDec(OpPostInc, I("j")),
						[]Stmt{
							If(Bin(OpGe, I("j"), IntLit(2)), []Stmt{Break()}),
							ExprStmt(IncDec(OpPostInc, I("count"))),
						}),
				}),
			ExprStmt(Call("printf", StringLit("%d\n"), I("count"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"6"}, eng.Terminal().Lines()) // 3 outer iters * 2 inner increments
}

func TestContinueSkipsToNextIteration(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("sum", IntType(), IntLit(0)),
			For(stmtPtr(VarDecl("i", IntType(), IntLit(0))), Bin(OpLt, I("i"), IntLit(5)), IncDec(OpPostInc, I("i")),
				[]Stmt{
					If(Bin(OpEq, Bin(OpMod, I("i"), IntLit(2)), IntLit(0)), []Stmt{Continue()}),
					ExprStmt(CompoundAssign(OpAdd, I("sum"), I("i"))),
				}),
			ExprStmt(Call("printf", StringLit("%d\n"), I("sum"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"4"}, eng.Terminal().Lines()) // even i (0,2,4) skipped; 1 + 3 = 4
}

func TestGotoForwardAndBackwardWithinSameFunction(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("i", IntType(), IntLit(0)),
			LabelStmt("loop"),
			ExprStmt(IncDec(OpPostInc, I("i"))),
			IfElse(Bin(OpLt, I("i"), IntLit(3)), []Stmt{Goto("loop")}, []Stmt{Goto("done")}),
			ExprStmt(Call("printf", StringLit("unreachable\n"))),
			LabelStmt("done"),
			ExprStmt(Call("printf", StringLit("%d\n"), I("i"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"3"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// Function calls, recursion, and the stack overflow guard.
// ---------------------------------------------------------------------------

func TestRecursiveCallAndReturn(t *testing.T) {
	I := Ident
	fib := FuncDecl{
		Name: "fib", Params: []Param{{Name: "n", Type: IntType()}}, ReturnType: IntType(),
		Body: []Stmt{
			If(Bin(OpLt, I("n"), IntLit(2)), []Stmt{Return(I("n"))}),
			Return(Bin(OpAdd,
				Call("fib", Bin(OpSub, I("n"), IntLit(1))),
				Call("fib", Bin(OpSub, I("n"), IntLit(2))))),
		},
	}
	main := FuncDecl{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("r", IntType(), Call("fib", IntLit(10))),
			ExprStmt(Call("printf", StringLit("%d\n"), I("r"))),
			Return(IntLit(0)),
		},
	}
	eng := newEngine(t, &Program{Functions: []FuncDecl{fib, main}})
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"55"}, eng.Terminal().Lines())
}

func TestStackOverflowGuard(t *testing.T) {
	I := Ident
	runaway := FuncDecl{
		Name: "runaway", ReturnType: IntType(),
		Body: []Stmt{Return(Call("runaway"))},
	}
	main := FuncDecl{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("r", IntType(), Call("runaway")),
			Return(I("r")),
		},
	}
	cfg := DefaultConfig()
	cfg.MaxCallDepth = 16
	eng, err := New(&Program{Functions: []FuncDecl{runaway, main}}, cfg)
	require.NoError(t, err)
	_, err = eng.RunToEnd(nil)
	require.Error(t, err)
	assert.Equal(t, ErrStackOverflow, err.(*RuntimeError).Kind)
}

// ---------------------------------------------------------------------------
// scanf / AwaitingInput flow.
// ---------------------------------------------------------------------------

func scanfEchoProgram() *Program {
	I := Ident
	return &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("x", IntType(), nil),
			ExprStmt(Call("scanf", StringLit("%d"), AddrOf(I("x")))),
			ExprStmt(Call("printf", StringLit("got %d\n"), I("x"))),
			Return(IntLit(0)),
		},
	}}}
}

func TestScanfSuspendsAndResumesWithProvidedInput(t *testing.T) {
	eng := newEngine(t, scanfEchoProgram())
	status, err := eng.StepForward() // declare x
	require.NoError(t, err)
	assert.Equal(t, StatusAdvanced, status)

	status, err = eng.StepForward() // scanf, no input queued yet
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingInput, status)

	eng.ProvideInput("42")
	status, err = eng.StepForward() // scanf retried, now satisfied
	require.NoError(t, err)
	assert.Equal(t, StatusAdvanced, status)

	status, err = eng.StepForward() // printf
	require.NoError(t, err)
	assert.Equal(t, StatusAdvanced, status)
	assert.Equal(t, []string{"got 42"}, eng.Terminal().Lines())
}

func TestScanfInitialInputSourceSatisfiesImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanfSource = strings.NewReader("7")
	eng, err := New(scanfEchoProgram(), cfg)
	require.NoError(t, err)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"got 7"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// Faulted state machine: StepForward refused, StepBackward/Restart allowed.
// ---------------------------------------------------------------------------

func TestFaultedRefusesForwardButAllowsBackwardAndRestart(t *testing.T) {
	eng := newEngine(t, mallocFreeProgram(true))
	_, err := runToHaltedOrFaulted(t, eng)
	require.Error(t, err)
	require.True(t, eng.IsFaulted())

	status, err := eng.StepForward()
	require.NoError(t, err)
	assert.Equal(t, StatusRefused, status)

	status, err = eng.StepBackward()
	require.NoError(t, err)
	assert.Equal(t, StatusAdvanced, status)
	assert.False(t, eng.IsFaulted())

	eng.Restart()
	assert.Equal(t, 0, eng.StepIndex())
	assert.False(t, eng.IsFaulted())
}

// ---------------------------------------------------------------------------
// Struct field access and pointer/array/member lvalues.
// ---------------------------------------------------------------------------

func TestStructFieldReadWrite(t *testing.T) {
	I := Ident
	prog := &Program{
		Structs: []StructDecl{{Tag: "point", Fields: []Field{
			{Name: "x", Type: IntType()},
			{Name: "y", Type: IntType()},
		}}},
		Functions: []FuncDecl{{
			Name: "main", ReturnType: IntType(),
			Body: []Stmt{
				VarDecl("p", StructType("point"), nil),
				ExprStmt(Assign(Member(I("p"), "x", false), IntLit(3))),
				ExprStmt(Assign(Member(I("p"), "y", false), IntLit(4))),
				ExprStmt(Call("printf", StringLit("%d,%d\n"), Member(I("p"), "x", false), Member(I("p"), "y", false))),
				Return(IntLit(0)),
			},
		}},
	}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"3,4"}, eng.Terminal().Lines())
}

func TestArrayIndexAndPointerAliasSameBytes(t *testing.T) {
	I := Ident
	intPtr := PointerType(IntType())
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("arr", ArrayType(IntType(), 3), nil),
			ExprStmt(Assign(Index(I("arr"), IntLit(1)), IntLit(9))),
			VarDecl("p", intPtr, AddrOf(Index(I("arr"), IntLit(1)))),
			ExprStmt(Call("printf", StringLit("%d\n"), Deref(I("p")))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"9"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// Struct-by-value semantics: plain assignment, parameter passing, and
// returning a struct are all whole-value byte copies, never aliases.
// ---------------------------------------------------------------------------

func pointStructDecl() StructDecl {
	return StructDecl{Tag: "point", Fields: []Field{
		{Name: "x", Type: IntType()},
		{Name: "y", Type: IntType()},
	}}
}

func TestStructAssignmentIsADeepCopyNotAnAlias(t *testing.T) {
	I := Ident
	prog := &Program{
		Structs: []StructDecl{pointStructDecl()},
		Functions: []FuncDecl{{
			Name: "main", ReturnType: IntType(),
			Body: []Stmt{
				VarDecl("s1", StructType("point"), nil),
				ExprStmt(Assign(Member(I("s1"), "x", false), IntLit(3))),
				ExprStmt(Assign(Member(I("s1"), "y", false), IntLit(4))),
				VarDecl("s2", StructType("point"), I("s1")),
				ExprStmt(Assign(Member(I("s2"), "x", false), IntLit(99))),
				ExprStmt(Call("printf", StringLit("%d,%d %d,%d\n"),
					Member(I("s1"), "x", false), Member(I("s1"), "y", false),
					Member(I("s2"), "x", false), Member(I("s2"), "y", false))),
				Return(IntLit(0)),
			},
		}},
	}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	// s2 := s1 copies bytes; mutating s2.x afterward must leave s1 untouched.
	assert.Equal(t, []string{"3,4 99,4"}, eng.Terminal().Lines())
}

func TestStructPassedByValueDoesNotMutateCaller(t *testing.T) {
	I := Ident
	bump := FuncDecl{
		Name: "bump", Params: []Param{{Name: "p", Type: StructType("point")}}, ReturnType: IntType(),
		Body: []Stmt{
			ExprStmt(Assign(Member(I("p"), "x", false), Bin(OpAdd, Member(I("p"), "x", false), IntLit(100)))),
			Return(Member(I("p"), "x", false)),
		},
	}
	main := FuncDecl{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("s", StructType("point"), nil),
			ExprStmt(Assign(Member(I("s"), "x", false), IntLit(3))),
			ExprStmt(Assign(Member(I("s"), "y", false), IntLit(4))),
			VarDecl("bumped", IntType(), Call("bump", I("s"))),
			ExprStmt(Call("printf", StringLit("%d %d\n"), I("bumped"), Member(I("s"), "x", false))),
			Return(IntLit(0)),
		},
	}
	eng := newEngine(t, &Program{Structs: []StructDecl{pointStructDecl()}, Functions: []FuncDecl{bump, main}})
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	// bump() sees its own copy of s and returns 103; s.x in main stays 3.
	assert.Equal(t, []string{"103 3"}, eng.Terminal().Lines())
}

func TestStructReturnedByValue(t *testing.T) {
	I := Ident
	makePoint := FuncDecl{
		Name: "makePoint",
		Params: []Param{{Name: "a", Type: IntType()}, {Name: "b", Type: IntType()}},
		ReturnType: StructType("point"),
		Body: []Stmt{
			VarDecl("r", StructType("point"), nil),
			ExprStmt(Assign(Member(I("r"), "x", false), I("a"))),
			ExprStmt(Assign(Member(I("r"), "y", false), I("b"))),
			Return(I("r")),
		},
	}
	main := FuncDecl{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("s", StructType("point"), Call("makePoint", IntLit(5), IntLit(6))),
			ExprStmt(Call("printf", StringLit("%d,%d\n"), Member(I("s"), "x", false), Member(I("s"), "y", false))),
			Return(IntLit(0)),
		},
	}
	eng := newEngine(t, &Program{Structs: []StructDecl{pointStructDecl()}, Functions: []FuncDecl{makePoint, main}})
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"5,6"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// arr[i].field: member access through a computed array index, the lvalue
// composition rule of spec.md §4.5 applied recursively.
// ---------------------------------------------------------------------------

func TestArrayOfStructFieldAccess(t *testing.T) {
	I := Ident
	prog := &Program{
		Structs: []StructDecl{pointStructDecl()},
		Functions: []FuncDecl{{
			Name: "main", ReturnType: IntType(),
			Body: []Stmt{
				VarDecl("pts", ArrayType(StructType("point"), 3), nil),
				ExprStmt(Assign(Member(Index(I("pts"), IntLit(1)), "x", false), IntLit(7))),
				ExprStmt(Assign(Member(Index(I("pts"), IntLit(1)), "y", false), IntLit(8))),
				ExprStmt(Assign(Member(Index(I("pts"), IntLit(2)), "x", false), IntLit(42))),
				ExprStmt(Call("printf", StringLit("%d,%d %d\n"),
					Member(Index(I("pts"), IntLit(1)), "x", false),
					Member(Index(I("pts"), IntLit(1)), "y", false),
					Member(Index(I("pts"), IntLit(2)), "x", false))),
				Return(IntLit(0)),
			},
		}},
	}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"7,8 42"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// goto re-entering a while loop's header from behind it: a backward jump
// that restarts the loop condition check, not just a jump within a
// statement list with no loop involved.
// ---------------------------------------------------------------------------

func TestGotoBackwardReentersWhileLoopHeader(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("count", IntType(), IntLit(0)),
			VarDecl("pass", IntType(), IntLit(0)),
			VarDecl("i", IntType(), IntLit(0)),
			LabelStmt("retry"),
			ExprStmt(Assign(I("i"), IntLit(0))),
			While(Bin(OpLt, I("i"), IntLit(3)), []Stmt{
				ExprStmt(CompoundAssign(OpAdd, I("count"), IntLit(1))),
				ExprStmt(IncDec(OpPostInc, I("i"))),
			}),
			ExprStmt(IncDec(OpPostInc, I("pass"))),
			If(Bin(OpLt, I("pass"), IntLit(2)), []Stmt{Goto("retry")}),
			ExprStmt(Call("printf", StringLit("%d %d\n"), I("count"), I("pass"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	// the loop runs to completion (3 iterations, count=3) once per pass;
	// the backward goto re-enters the while header for a second pass,
	// resetting i and running it 3 more times (count=6) before falling through.
	assert.Equal(t, []string{"6 2"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// %p: a printf specifier rendering a pointer value as a hex address,
// matching "addresses presented as 64-bit hex" in terminal output too.
// ---------------------------------------------------------------------------

func TestPrintfPointerSpecifier(t *testing.T) {
	I := Ident
	intPtr := PointerType(IntType())
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("p", intPtr, Cast(intPtr, Call("malloc", IntLit(4)))),
			ExprStmt(Assign(Deref(I("p")), IntLit(5))),
			ExprStmt(Call("printf", StringLit("%d @ %p\n"), Deref(I("p")), I("p"))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	want := fmt.Sprintf("5 @ 0x%x", HeapAddressStart)
	assert.Equal(t, []string{want}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// sizeof, as an operator evaluated at runtime.
// ---------------------------------------------------------------------------

func TestSizeofTypeAndExprAtRuntime(t *testing.T) {
	I := Ident
	prog := &Program{Functions: []FuncDecl{{
		Name: "main", ReturnType: IntType(),
		Body: []Stmt{
			VarDecl("x", IntType(), IntLit(1)),
			ExprStmt(Call("printf", StringLit("%d %d\n"), SizeofType(IntType()), SizeofExpr(I("x")))),
			Return(IntLit(0)),
		},
	}}}
	eng := newEngine(t, prog)
	status, err := runToHaltedOrFaulted(t, eng)
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, status)
	assert.Equal(t, []string{"4 4"}, eng.Terminal().Lines())
}

// ---------------------------------------------------------------------------
// Snapshot ceiling: a tiny limit must surface SnapshotLimitExceeded and
// leave the engine usable for stepping backward.
// ---------------------------------------------------------------------------

func TestSnapshotLimitExceededDuringRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotLimitBytes = 1 // impossibly tiny
	eng, err := New(fibDPProgram(), cfg)
	require.NoError(t, err)
	status, err := eng.RunToEnd(nil)
	require.Error(t, err)
	assert.Equal(t, StatusFaulted, status)
	assert.Equal(t, ErrSnapshotLimitExceeded, err.(*RuntimeError).Kind)
}

// ---------------------------------------------------------------------------
// Cancellation: RunToEnd must stop between statements and preserve progress.
// ---------------------------------------------------------------------------

func TestRunToEndCancellationPreservesProgress(t *testing.T) {
	eng := newEngine(t, fibDPProgram())
	calls := 0
	status, err := eng.RunToEnd(func() bool {
		calls++
		return calls > 3
	})
	require.Error(t, err)
	assert.Equal(t, ErrCancelled, err.(*RuntimeError).Kind)
	assert.Equal(t, StatusRefused, status)
	assert.Greater(t, eng.StepIndex(), 0)
	assert.False(t, eng.IsFaulted())
}
