// engine_step.go — the steppable driver: advances the Control/Stack pair
// by exactly one observable unit of work (spec.md §4.5's "statement
// granularity"), used by Engine.StepForward. Loop and for-header
// components each get their own unit, matching the original
// implementation's interpreter/loops.rs, which snapshots at every
// condition check and every increment, not just once per loop statement.
package crustty

// stepOutcome reports what advanceOnce actually did.
type stepOutcome int

const (
	stepAdvanced      stepOutcome = iota // a new, observable unit of work ran — caller should snapshot
	stepHalted                           // the program (main) has returned — nothing left to run
	stepAwaitingInput                    // a scanf ran dry of tokens; its statement is rewound to retry
)

// advanceOnce runs until it either completes one snapshot-worthy unit of
// work or the program halts. Structural bookkeeping (popping an exhausted
// block cursor, pushing a branch's cursor) is transparent and looped over
// internally without being mistaken for a step.
func advanceOnce(ctx *execCtx, ctrl *Control) (stepOutcome, error) {
	for {
		fc := ctrl.top()
		if fc == nil {
			return stepHalted, nil
		}
		cur := fc.top()
		if cur == nil {
			// This frame's continuation is exhausted: the function fell off
			// the end of its body without an explicit return.
			if err := popCallFrame(ctx, ctrl); err != nil {
				return stepHalted, err
			}
			if len(ctrl.Frames) == 0 {
				return stepHalted, nil
			}
			continue
		}

		switch cur.Kind {
		case CurBlock, CurSwitchBody:
			if cur.Idx >= len(cur.Stmts) {
				popped := fc.pop()
				if popped.popScope {
					ctx.stack.Current().PopScope()
				}
				if popped.isLoopBody {
					if loop := fc.top(); loop != nil {
						switch loop.Kind {
						case CurWhile, CurDoWhile:
							loop.Phase = phaseCheckCond
						case CurFor:
							loop.Phase = phaseRunIncr
						}
					}
				}
				continue
			}
			stmt := &cur.Stmts[cur.Idx]
			cur.Idx++
			ctx.lastLoc = stmt.Loc
			advanced, err := dispatchStmt(ctx, ctrl, fc, cur, stmt)
			if err != nil {
				return stepHalted, err
			}
			if ctx.needInput {
				return stepAwaitingInput, nil
			}
			if advanced {
				return stepAdvanced, nil
			}
			continue

		case CurWhile:
			ctx.lastLoc = cur.Src.Loc
			advanced, err := stepWhile(ctx, fc, cur)
			if err != nil {
				return stepHalted, err
			}
			if advanced {
				return stepAdvanced, nil
			}
			continue

		case CurDoWhile:
			ctx.lastLoc = cur.Src.Loc
			advanced, err := stepDoWhile(ctx, fc, cur)
			if err != nil {
				return stepHalted, err
			}
			if advanced {
				return stepAdvanced, nil
			}
			continue

		case CurFor:
			ctx.lastLoc = cur.Src.Loc
			advanced, err := stepFor(ctx, fc, cur)
			if err != nil {
				return stepHalted, err
			}
			if advanced {
				return stepAdvanced, nil
			}
			continue
		}
	}
}

// pushLoopBody pushes one iteration of a while/do-while/for body as its own
// CurBlock cursor. The caller must have already opened the matching Stack
// scope (PushScope) before calling this.
func pushLoopBody(fc *FrameControl, body []Stmt) {
	c := newBlockCursor(body)
	c.isLoopBody = true
	c.popScope = true
	fc.push(c)
}

func stepWhile(ctx *execCtx, fc *FrameControl, cur *Cursor) (bool, error) {
	src := cur.Src
	cv, err := evalExpr(ctx, src.Cond)
	if err != nil {
		return false, err
	}
	truthy, err := cv.IsTruthy()
	if err != nil {
		return false, err
	}
	if !truthy {
		fc.pop()
		return true, nil
	}
	ctx.stack.Current().PushScope()
	pushLoopBody(fc, src.Body)
	return true, nil
}

func stepDoWhile(ctx *execCtx, fc *FrameControl, cur *Cursor) (bool, error) {
	switch cur.Phase {
	case phaseDone:
		ctx.stack.Current().PushScope()
		pushLoopBody(fc, cur.Src.Body)
		cur.Phase = phaseCheckCond
		return false, nil
	default:
		cv, err := evalExpr(ctx, cur.Src.Cond)
		if err != nil {
			return false, err
		}
		truthy, err := cv.IsTruthy()
		if err != nil {
			return false, err
		}
		if !truthy {
			fc.pop()
			return true, nil
		}
		cur.Phase = phaseDone
		return true, nil
	}
}

func stepFor(ctx *execCtx, fc *FrameControl, cur *Cursor) (bool, error) {
	src := cur.Src
	switch cur.Phase {
	case phaseRunIncr:
		if src.ForIncr != nil {
			if _, err := evalExpr(ctx, src.ForIncr); err != nil {
				return false, err
			}
		}
		cur.Phase = phaseCheckCond
		return src.ForIncr != nil, nil
	default:
		if src.ForCond != nil {
			cv, err := evalExpr(ctx, src.ForCond)
			if err != nil {
				return false, err
			}
			truthy, err := cv.IsTruthy()
			if err != nil {
				return false, err
			}
			if !truthy {
				fc.pop()
				return true, nil
			}
		}
		ctx.stack.Current().PushScope()
		pushLoopBody(fc, src.Body)
		return true, nil
	}
}

// dispatchStmt executes one statement pulled from a CurBlock/CurSwitchBody
// cursor. Returns advanced=true when this call produced an observable,
// snapshot-worthy change.
func dispatchStmt(ctx *execCtx, ctrl *Control, fc *FrameControl, cur *Cursor, s *Stmt) (bool, error) {
	switch s.Kind {
	case StmtBlock:
		ctx.stack.Current().PushScope()
		c := newBlockCursor(s.Block)
		c.popScope = true
		fc.push(c)
		return false, nil

	case StmtVarDecl:
		if s.VarInit != nil && s.VarInit.Kind == ExprCall {
			if _, handled := builtins[s.VarInit.Name]; !handled {
				ctx.stack.DeclareLocal(s.VarName, s.VarType, s.VarConst, ctx.prog)
				return pushSteppableCall(ctx, ctrl, fc, s.VarInit, pendingCompletion{kind: completeAssignLocal, localName: s.VarName})
			}
		}
		ctx.stack.DeclareLocal(s.VarName, s.VarType, s.VarConst, ctx.prog)
		if s.VarInit != nil {
			v, err := evalExpr(ctx, s.VarInit)
			if err != nil {
				return false, err
			}
			if err := ctx.stack.AssignLocal(s.VarName, coerceAssigned(v, s.VarType), ctx.prog); err != nil {
				return false, err
			}
		}
		return true, nil

	case StmtExpr:
		if s.Expr.Kind == ExprCall {
			if _, handled := builtins[s.Expr.Name]; !handled {
				return pushSteppableCall(ctx, ctrl, fc, s.Expr, pendingCompletion{kind: completeDiscard})
			}
		}
		if s.Expr.Kind == ExprAssign && s.Expr.Y.Kind == ExprCall {
			if _, handled := builtins[s.Expr.Y.Name]; !handled {
				loc, err := resolveLvalue(ctx, s.Expr.X)
				if err != nil {
					return false, err
				}
				return pushSteppableCall(ctx, ctrl, fc, s.Expr.Y, pendingCompletion{kind: completeAssignLvalue, loc: loc})
			}
		}
		_, err := evalExpr(ctx, s.Expr)
		if err != nil {
			return false, err
		}
		if ctx.needInput {
			// scanf ran dry of tokens without consuming any — rewind so this
			// same statement is what re-runs once more input arrives.
			cur.Idx--
			return false, nil
		}
		return true, nil

	case StmtIf:
		cv, err := evalExpr(ctx, s.Cond)
		if err != nil {
			return false, err
		}
		truthy, err := cv.IsTruthy()
		if err != nil {
			return false, err
		}
		ctx.stack.Current().PushScope()
		branch := s.Then
		if !truthy {
			branch = s.Else
			if !s.HasElse {
				ctx.stack.Current().PopScope()
				return true, nil
			}
		}
		c := newBlockCursor(branch)
		c.popScope = true
		fc.push(c)
		return true, nil

	case StmtWhile:
		fc.push(newWhileCursor(s))
		return false, nil
	case StmtDoWhile:
		fc.push(newDoWhileCursor(s))
		return false, nil
	case StmtFor:
		ctx.stack.Current().PushScope()
		c := newForCursor(s)
		c.popScope = true
		if s.ForInit != nil {
			if _, err := execStmtSync(ctx, s.ForInit); err != nil {
				ctx.stack.Current().PopScope()
				return false, err
			}
		}
		fc.push(c)
		return s.ForInit != nil, nil

	case StmtSwitch:
		sv, err := evalExpr(ctx, s.SwitchExpr)
		if err != nil {
			return false, err
		}
		start, ok := selectSwitchCase(ctx, s.Cases, sv)
		if !ok {
			return true, nil
		}
		var flat []Stmt
		for i := start; i < len(s.Cases); i++ {
			flat = append(flat, s.Cases[i].Body...)
		}
		ctx.stack.Current().PushScope()
		c := newSwitchCursor(flat)
		c.popScope = true
		fc.push(c)
		return true, nil

	case StmtBreak:
		propagateSignal(ctx, fc, ctrlSignal{kind: ctrlBreak})
		return true, nil
	case StmtContinue:
		propagateSignal(ctx, fc, ctrlSignal{kind: ctrlContinue})
		return true, nil

	case StmtReturn:
		if s.ReturnExpr != nil {
			if s.ReturnExpr.Kind == ExprCall {
				if _, handled := builtins[s.ReturnExpr.Name]; !handled {
					return pushSteppableCall(ctx, ctrl, fc, s.ReturnExpr, pendingCompletion{kind: completeDeclareLocal, localName: "$return"})
				}
			}
			v, err := evalExpr(ctx, s.ReturnExpr)
			if err != nil {
				return false, err
			}
			ctx.stack.Current().PendingReturn = &v
		}
		unwindFrameOnReturn(ctx, fc)
		return true, nil

	case StmtGoto:
		return stepGoto(ctx, fc, s.Label)

	case StmtLabel:
		return true, nil

	default:
		return false, typeErr(s.Loc, "unhandled statement kind in stepping driver")
	}
}
