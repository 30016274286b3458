// engine_frame.go — call-frame lifecycle for the steppable driver: entering
// a steppable call (pushSteppableCall), leaving one (popCallFrame) and
// applying whatever its caller asked to happen with the return value
// (pendingCompletion), and the break/continue/return/goto unwinding that
// walks a single frame's Cursor stack (propagateSignal, stepGoto).
package crustty

// pushSteppableCall evaluates call's arguments in the current frame, then
// pushes a fresh Stack frame and Control frame for the callee. Entering a
// call is transparent (returns false): the first actual statement inside
// the callee is what produces the next observable step.
func pushSteppableCall(ctx *execCtx, ctrl *Control, fc *FrameControl, call *Expr, completion pendingCompletion) (bool, error) {
	fn := ctx.prog.FuncByName(call.Name)
	if fn == nil {
		return false, errIdent(call.Loc, ErrFunctionNotFound, call.Name)
	}
	if ctx.stack.Depth() >= ctx.cfg.MaxCallDepth {
		return false, errAt(call.Loc, ErrStackOverflow, "")
	}
	if len(call.Args) != len(fn.Params) {
		return false, errAt(call.Loc, ErrTypeError, "argument count mismatch calling "+fn.Name)
	}
	args := make([]Value, len(call.Args))
	for i := range call.Args {
		v, err := evalExpr(ctx, &call.Args[i])
		if err != nil {
			return false, err
		}
		args[i] = v
	}

	ctx.stack.PushFrame(fn.Name, call.Loc)
	for i, p := range fn.Params {
		ctx.stack.DeclareLocal(p.Name, p.Type, false, ctx.prog)
		if err := ctx.stack.AssignLocal(p.Name, coerceAssigned(args[i], p.Type), ctx.prog); err != nil {
			ctx.stack.PopFrame()
			return false, err
		}
	}
	callee := ctrl.pushFrame(fn.Body)
	completion.declType = fn.ReturnType
	callee.Completion = &completion
	return false, nil
}

// popCallFrame removes the exhausted top Control/Stack frame pair — reached
// either by a function body falling off its end, or by propagateSignal
// unwinding every cursor in the frame after an explicit return — and applies
// whatever the caller's pendingCompletion asked for with the result.
func popCallFrame(ctx *execCtx, ctrl *Control) error {
	poppedCtrl := ctrl.popFrame()
	poppedStack := ctx.stack.PopFrame()
	if poppedStack == nil {
		return nil
	}

	result := Int(0)
	if poppedStack.PendingReturn != nil {
		result = *poppedStack.PendingReturn
	} else if fn := ctx.prog.FuncByName(poppedStack.FuncName); fn != nil && fn.ReturnType.Kind == TChar {
		result = Char(0)
	}

	if poppedCtrl == nil || poppedCtrl.Completion == nil {
		return nil
	}
	comp := poppedCtrl.Completion
	switch comp.kind {
	case completeDiscard:
		return nil
	case completeAssignLocal:
		return ctx.stack.AssignLocal(comp.localName, result, ctx.prog)
	case completeAssignLvalue:
		return writeLocation(ctx, comp.loc, result)
	case completeDeclareLocal:
		// "return foo();" — foo's result becomes this (now-current) frame's
		// own return value, and this frame unwinds in turn.
		ctx.stack.Current().PendingReturn = &result
		if parent := ctrl.top(); parent != nil {
			propagateSignal(ctx, parent, ctrlSignal{kind: ctrlReturn})
		}
		return nil
	default:
		return nil
	}
}

// propagateSignal applies a break/continue/return unwinding to fc's Cursor
// stack. Each popped cursor that owns a Stack scope closes it. goto is
// handled separately by stepGoto, since it needs to search for a target
// label rather than unwind unconditionally.
func propagateSignal(ctx *execCtx, fc *FrameControl, sig ctrlSignal) {
	switch sig.kind {
	case ctrlReturn:
		for len(fc.Cursors) > 0 {
			popped := fc.pop()
			if popped.popScope {
				ctx.stack.Current().PopScope()
			}
		}

	case ctrlBreak:
		for len(fc.Cursors) > 0 {
			popped := fc.pop()
			if popped.popScope {
				ctx.stack.Current().PopScope()
			}
			switch popped.Kind {
			case CurSwitchBody, CurWhile, CurDoWhile, CurFor:
				return
			}
		}

	case ctrlContinue:
		for len(fc.Cursors) > 0 {
			top := fc.top()
			switch top.Kind {
			case CurWhile, CurDoWhile:
				top.Phase = phaseCheckCond
				return
			case CurFor:
				top.Phase = phaseRunIncr
				return
			}
			popped := fc.pop()
			if popped.popScope {
				ctx.stack.Current().PopScope()
			}
		}
	}
}

func unwindFrameOnReturn(ctx *execCtx, fc *FrameControl) {
	propagateSignal(ctx, fc, ctrlSignal{kind: ctrlReturn})
}

// stepGoto relocates fc's innermost cursor that contains label to just past
// it, unwinding (with scope cleanup) every cursor above it. Only labels at
// the top level of a statement list (function body or bare block) are valid
// targets — jumping directly into a loop or switch body is out of scope,
// see DESIGN.md.
func stepGoto(ctx *execCtx, fc *FrameControl, label string) (bool, error) {
	for i := len(fc.Cursors) - 1; i >= 0; i-- {
		cur := fc.Cursors[i]
		if cur.Kind != CurBlock && cur.Kind != CurSwitchBody {
			continue
		}
		idx, ok := findLabel(cur.Stmts, label)
		if !ok {
			continue
		}
		for j := len(fc.Cursors) - 1; j > i; j-- {
			popped := fc.pop()
			if popped.popScope {
				ctx.stack.Current().PopScope()
			}
		}
		cur.Idx = idx + 1
		return true, nil
	}
	return false, errAt(SourceLoc{}, ErrUndefinedBehaviour, "goto target label not found: "+label)
}
