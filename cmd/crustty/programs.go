// programs.go — a small embedded library of example programs the demo CLI
// can load by name. There is no lexer/parser anywhere in this module (see
// ast.go's package doc comment), so every example is built directly as a
// crustty.Program value using crustty's AST hand-construction helpers —
// this is the only form of "source" cmd/crustty accepts.
package main

import (
	"github.com/aicheye/crustty"
)

type example struct {
	name string
	doc  string
	prog func() *crustty.Program
}

var examples = []example{
	{"sum", "loop-accumulate 0..4 and print the total", sumProgram},
	{"fib", "recursive fibonacci, exercising the synchronous call driver", fibProgram},
	{"heapbug", "malloc/free followed by a use-after-free read", heapBugProgram},
	{"scanf", "prompts for a number and echoes it back", scanfProgram},
}

func findExample(name string) *example {
	for i := range examples {
		if examples[i].name == name {
			return &examples[i]
		}
	}
	return nil
}

func sumProgram() *crustty.Program {
	I := crustty.Ident
	return &crustty.Program{Functions: []crustty.FuncDecl{{
		Name:       "main",
		ReturnType: crustty.IntType(),
		Body: []crustty.Stmt{
			crustty.VarDecl("n", crustty.IntType(), crustty.IntLit(5)),
			crustty.VarDecl("total", crustty.IntType(), crustty.IntLit(0)),
			crustty.VarDecl("i", crustty.IntType(), crustty.IntLit(0)),
			crustty.While(crustty.Bin(crustty.OpLt, I("i"), I("n")), []crustty.Stmt{
				crustty.ExprStmt(crustty.Assign(I("total"), crustty.Bin(crustty.OpAdd, I("total"), I("i")))),
				crustty.ExprStmt(crustty.IncDec(crustty.OpPostInc, I("i"))),
			}),
			crustty.ExprStmt(crustty.Call("printf", crustty.StringLit("total=%d\n"), I("total"))),
			crustty.Return(crustty.IntLit(0)),
		},
	}}}
}

func fibProgram() *crustty.Program {
	I := crustty.Ident
	fib := crustty.FuncDecl{
		Name:       "fib",
		Params:     []crustty.Param{{Name: "n", Type: crustty.IntType()}},
		ReturnType: crustty.IntType(),
		Body: []crustty.Stmt{
			crustty.If(crustty.Bin(crustty.OpLt, I("n"), crustty.IntLit(2)), []crustty.Stmt{
				crustty.Return(I("n")),
			}),
			crustty.Return(crustty.Bin(crustty.OpAdd,
				crustty.Call("fib", crustty.Bin(crustty.OpSub, I("n"), crustty.IntLit(1))),
				crustty.Call("fib", crustty.Bin(crustty.OpSub, I("n"), crustty.IntLit(2))),
			)),
		},
	}
	main := crustty.FuncDecl{
		Name:       "main",
		ReturnType: crustty.IntType(),
		Body: []crustty.Stmt{
			crustty.VarDecl("r", crustty.IntType(), crustty.Call("fib", crustty.IntLit(8))),
			crustty.ExprStmt(crustty.Call("printf", crustty.StringLit("fib=%d\n"), I("r"))),
			crustty.Return(crustty.IntLit(0)),
		},
	}
	return &crustty.Program{Functions: []crustty.FuncDecl{fib, main}}
}

func heapBugProgram() *crustty.Program {
	I := crustty.Ident
	intPtr := crustty.PointerType(crustty.IntType())
	return &crustty.Program{Functions: []crustty.FuncDecl{{
		Name:       "main",
		ReturnType: crustty.IntType(),
		Body: []crustty.Stmt{
			crustty.VarDecl("p", intPtr, crustty.Cast(intPtr,
				crustty.Call("malloc", crustty.Bin(crustty.OpMul, crustty.IntLit(4), crustty.SizeofType(crustty.IntType()))))),
			crustty.ExprStmt(crustty.Assign(crustty.Index(I("p"), crustty.IntLit(0)), crustty.IntLit(10))),
			crustty.ExprStmt(crustty.Call("free", I("p"))),
			crustty.ExprStmt(crustty.Call("printf", crustty.StringLit("%d\n"), crustty.Index(I("p"), crustty.IntLit(0)))),
			crustty.Return(crustty.IntLit(0)),
		},
	}}}
}

func scanfProgram() *crustty.Program {
	I := crustty.Ident
	return &crustty.Program{Functions: []crustty.FuncDecl{{
		Name:       "main",
		ReturnType: crustty.IntType(),
		Body: []crustty.Stmt{
			crustty.VarDecl("x", crustty.IntType(), nil),
			crustty.ExprStmt(crustty.Call("printf", crustty.StringLit("enter a number: "))),
			crustty.ExprStmt(crustty.Call("scanf", crustty.StringLit("%d"), crustty.AddrOf(I("x")))),
			crustty.ExprStmt(crustty.Call("printf", crustty.StringLit("you entered %d\n"), I("x"))),
			crustty.Return(crustty.IntLit(0)),
		},
	}}}
}
