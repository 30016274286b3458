// engine_call.go — function call dispatch and the fully-synchronous
// statement executor used for any call that is not the entire expression
// of a top-level statement (spec.md §4.5: "a function call expression
// consumed as a full statement counts as one step for the caller; inside
// the callee, each of its statements steps normally"). Read literally,
// that sentence describes exactly one steppable shape; a call buried
// inside a larger expression (an argument, an operand, a nested call)
// still runs with full memory-model and error-detection fidelity, but runs
// to completion within the single step of its enclosing statement rather
// than pausing between its own statements. See DESIGN.md for the
// rationale — the alternative is an expression-level continuation machine
// with no grounding anywhere in the retrieved corpus.
package crustty

func evalCall(ctx *execCtx, e *Expr) (Value, error) {
	if bi, ok := builtins[e.Name]; ok {
		args := make([]Value, len(e.Args))
		for i := range e.Args {
			v, err := evalExpr(ctx, &e.Args[i])
			if err != nil {
				return Value{}, err
			}
			args[i] = v
		}
		return bi(ctx, e, args)
	}

	fn := ctx.prog.FuncByName(e.Name)
	if fn == nil {
		return Value{}, errIdent(e.Loc, ErrFunctionNotFound, e.Name)
	}
	args := make([]Value, len(e.Args))
	for i := range e.Args {
		v, err := evalExpr(ctx, &e.Args[i])
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return runCalleeSync(ctx, fn, args, e.Loc)
}

// runCalleeSync pushes a frame, binds parameters, runs fn's body to
// completion (recursively, via Go's own call stack), pops the frame, and
// returns its result.
func runCalleeSync(ctx *execCtx, fn *FuncDecl, args []Value, callSite SourceLoc) (Value, error) {
	if ctx.stack.Depth() >= ctx.cfg.MaxCallDepth {
		return Value{}, errAt(callSite, ErrStackOverflow, "")
	}
	if len(args) != len(fn.Params) {
		return Value{}, errAt(callSite, ErrTypeError, "argument count mismatch calling "+fn.Name)
	}
	ctx.stack.PushFrame(fn.Name, callSite)
	for i, p := range fn.Params {
		ctx.stack.DeclareLocal(p.Name, p.Type, false, ctx.prog)
		if err := ctx.stack.AssignLocal(p.Name, coerceAssigned(args[i], p.Type), ctx.prog); err != nil {
			ctx.stack.PopFrame()
			return Value{}, err
		}
	}

	sig, err := execStmtsSync(ctx, fn.Body)
	frame := ctx.stack.PopFrame()
	if err != nil {
		return Value{}, err
	}
	if sig.kind == ctrlReturn && frame.PendingReturn != nil {
		return *frame.PendingReturn, nil
	}
	if fn.ReturnType.Kind == TChar {
		return Char(0), nil
	}
	return Int(0), nil
}

// execStmtsSync runs stmts to completion, handling every control
// construct via ordinary recursion since nothing here needs to be
// individually steppable (see the package doc comment above).
func execStmtsSync(ctx *execCtx, stmts []Stmt) (ctrlSignal, error) {
	for i := 0; i < len(stmts); i++ {
		sig, err := execStmtSync(ctx, &stmts[i])
		if err != nil {
			return ctrlSignal{}, err
		}
		if sig.kind == ctrlGoto {
			if idx, ok := findLabel(stmts, sig.gotoLabel); ok {
				i = idx
				continue
			}
			return sig, nil
		}
		if sig.kind != ctrlNone {
			return sig, nil
		}
	}
	return ctrlSignal{}, nil
}

func findLabel(stmts []Stmt, label string) (int, bool) {
	for i := range stmts {
		if stmts[i].Kind == StmtLabel && stmts[i].Label == label {
			return i, true
		}
	}
	return 0, false
}

func execStmtSync(ctx *execCtx, s *Stmt) (ctrlSignal, error) {
	switch s.Kind {
	case StmtVarDecl:
		ctx.stack.DeclareLocal(s.VarName, s.VarType, s.VarConst, ctx.prog)
		if s.VarInit != nil {
			v, err := evalExpr(ctx, s.VarInit)
			if err != nil {
				return ctrlSignal{}, err
			}
			if err := ctx.stack.AssignLocal(s.VarName, coerceAssigned(v, s.VarType), ctx.prog); err != nil {
				return ctrlSignal{}, err
			}
		}
		return ctrlSignal{}, nil

	case StmtExpr:
		_, err := evalExpr(ctx, s.Expr)
		return ctrlSignal{}, err

	case StmtBlock:
		ctx.stack.Current().PushScope()
		sig, err := execStmtsSync(ctx, s.Block)
		ctx.stack.Current().PopScope()
		return sig, err

	case StmtIf:
		cv, err := evalExpr(ctx, s.Cond)
		if err != nil {
			return ctrlSignal{}, err
		}
		truthy, err := cv.IsTruthy()
		if err != nil {
			return ctrlSignal{}, err
		}
		ctx.stack.Current().PushScope()
		defer ctx.stack.Current().PopScope()
		if truthy {
			return execStmtsSync(ctx, s.Then)
		}
		if s.HasElse {
			return execStmtsSync(ctx, s.Else)
		}
		return ctrlSignal{}, nil

	case StmtWhile:
		for {
			cv, err := evalExpr(ctx, s.Cond)
			if err != nil {
				return ctrlSignal{}, err
			}
			truthy, err := cv.IsTruthy()
			if err != nil {
				return ctrlSignal{}, err
			}
			if !truthy {
				return ctrlSignal{}, nil
			}
			ctx.stack.Current().PushScope()
			sig, err := execStmtsSync(ctx, s.Body)
			ctx.stack.Current().PopScope()
			if err != nil {
				return ctrlSignal{}, err
			}
			if sig.kind == ctrlBreak {
				return ctrlSignal{}, nil
			}
			if sig.kind == ctrlReturn || sig.kind == ctrlGoto {
				return sig, nil
			}
		}

	case StmtDoWhile:
		for {
			ctx.stack.Current().PushScope()
			sig, err := execStmtsSync(ctx, s.Body)
			ctx.stack.Current().PopScope()
			if err != nil {
				return ctrlSignal{}, err
			}
			if sig.kind == ctrlBreak {
				return ctrlSignal{}, nil
			}
			if sig.kind == ctrlReturn || sig.kind == ctrlGoto {
				return sig, nil
			}
			cv, err := evalExpr(ctx, s.Cond)
			if err != nil {
				return ctrlSignal{}, err
			}
			truthy, err := cv.IsTruthy()
			if err != nil {
				return ctrlSignal{}, err
			}
			if !truthy {
				return ctrlSignal{}, nil
			}
		}

	case StmtFor:
		ctx.stack.Current().PushScope()
		defer ctx.stack.Current().PopScope()
		if s.ForInit != nil {
			if _, err := execStmtSync(ctx, s.ForInit); err != nil {
				return ctrlSignal{}, err
			}
		}
		for {
			if s.ForCond != nil {
				cv, err := evalExpr(ctx, s.ForCond)
				if err != nil {
					return ctrlSignal{}, err
				}
				truthy, err := cv.IsTruthy()
				if err != nil {
					return ctrlSignal{}, err
				}
				if !truthy {
					return ctrlSignal{}, nil
				}
			}
			ctx.stack.Current().PushScope()
			sig, err := execStmtsSync(ctx, s.Body)
			ctx.stack.Current().PopScope()
			if err != nil {
				return ctrlSignal{}, err
			}
			if sig.kind == ctrlBreak {
				return ctrlSignal{}, nil
			}
			if sig.kind == ctrlReturn || sig.kind == ctrlGoto {
				return sig, nil
			}
			if s.ForIncr != nil {
				if _, err := evalExpr(ctx, s.ForIncr); err != nil {
					return ctrlSignal{}, err
				}
			}
		}

	case StmtSwitch:
		sv, err := evalExpr(ctx, s.SwitchExpr)
		if err != nil {
			return ctrlSignal{}, err
		}
		start, ok := selectSwitchCase(ctx, s.Cases, sv)
		if !ok {
			return ctrlSignal{}, nil
		}
		ctx.stack.Current().PushScope()
		defer ctx.stack.Current().PopScope()
		for i := start; i < len(s.Cases); i++ {
			sig, err := execStmtsSync(ctx, s.Cases[i].Body)
			if err != nil {
				return ctrlSignal{}, err
			}
			if sig.kind == ctrlBreak {
				return ctrlSignal{}, nil
			}
			if sig.kind != ctrlNone {
				return sig, nil
			}
		}
		return ctrlSignal{}, nil

	case StmtBreak:
		return ctrlSignal{kind: ctrlBreak}, nil
	case StmtContinue:
		return ctrlSignal{kind: ctrlContinue}, nil

	case StmtReturn:
		if s.ReturnExpr != nil {
			v, err := evalExpr(ctx, s.ReturnExpr)
			if err != nil {
				return ctrlSignal{}, err
			}
			ctx.stack.Current().PendingReturn = &v
		}
		return ctrlSignal{kind: ctrlReturn}, nil

	case StmtGoto:
		return ctrlSignal{kind: ctrlGoto, gotoLabel: s.Label}, nil

	case StmtLabel:
		return ctrlSignal{}, nil

	default:
		return ctrlSignal{}, typeErr(s.Loc, "unhandled statement kind")
	}
}

// selectSwitchCase finds the first case whose constant matches v, falling
// back to default if present, matching C's switch semantics (default may
// appear anywhere among the cases, is tried last).
func selectSwitchCase(ctx *execCtx, cases []SwitchCase, v Value) (int, bool) {
	n, err := v.AsInt64()
	if err != nil {
		return 0, false
	}
	defaultIdx := -1
	for i, c := range cases {
		if c.IsDefault {
			defaultIdx = i
			continue
		}
		cv, err := evalExpr(ctx, c.Value)
		if err != nil {
			continue
		}
		cn, err := cv.AsInt64()
		if err == nil && cn == n {
			return i, true
		}
	}
	if defaultIdx >= 0 {
		return defaultIdx, true
	}
	return 0, false
}
