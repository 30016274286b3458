// engine.go — the public Engine API (spec.md §4.5's
// "new(program, snapshot_limit, initial_input_source)" plus step_forward/
// step_backward/run_to_end/restart), wiring the steppable driver
// (engine_step.go) to the SnapshotStore (snapshot.go) per the state machine
// of spec.md §4.4: [Ready] --step_forward--> [Running] --ok--> [Snapshot] or
// --error--> [Faulted] or --scanf--> [AwaitingInput].
//
// Replay is purely data-driven: stepping backward only ever moves the
// SnapshotStore's position pointer; stepping forward while behind the
// frontier restores a cached snapshot instead of re-executing anything.
// Only at the frontier does a forward step perform genuinely new work. This
// is what makes "K backward then K forward reproduces identical state"
// trivially true rather than something the driver has to work to preserve,
// and it means the engine never needs to support diverging from a prior
// run after a rewind — see DESIGN.md.
package crustty

import (
	"bufio"
	"io"
	"strings"
)

// Status reports what the most recent StepForward/StepBackward/RunToEnd
// call actually did, alongside the (nil unless Faulted) error.
type Status int

const (
	StatusAdvanced Status = iota
	StatusHalted          // the program has returned from main
	StatusAwaitingInput   // a scanf is waiting on ProvideInput
	StatusFaulted         // the last step raised a RuntimeError; only StepBackward/Restart are valid now
	StatusRefused         // the call was refused outright (e.g. step_forward while Faulted)
)

// Engine owns every piece of mutable state for one debugging session: the
// live Stack/Heap/Terminal/Control the stepping driver mutates in place, and
// the SnapshotStore recording every state reached so far.
type Engine struct {
	prog *Program
	cfg  EngineConfig

	stack *Stack
	heap  *Heap
	term  *MockTerminal
	ctrl  *Control

	step     int
	location SourceLoc

	scanfTokens []string
	scanfPos    int

	store   *SnapshotStore
	faulted bool
	lastErr error
}

// New builds an Engine ready to run prog's "main". cfg.ScanfSource is read
// to completion up front and tokenised on whitespace — spec.md §4.5's
// "initial_input_source" — additional tokens can be supplied later via
// ProvideInput once the engine reaches AwaitingInput.
func New(prog *Program, cfg EngineConfig) (*Engine, error) {
	main := prog.FuncByName("main")
	if main == nil {
		return nil, errIdent(SourceLoc{}, ErrFunctionNotFound, "main")
	}
	if len(main.Params) != 0 {
		return nil, errAt(SourceLoc{}, ErrTypeError, "main must take no parameters")
	}

	e := &Engine{
		prog:  prog,
		cfg:   cfg,
		stack: NewStack(),
		heap:  NewHeap(),
		term:  NewMockTerminal(),
		ctrl:  NewControl(),
		store: NewSnapshotStore(cfg.SnapshotLimitBytes),
	}
	e.scanfTokens = tokeniseInput(cfg.ScanfSource)

	e.stack.PushFrame(main.Name, SourceLoc{})
	e.ctrl.pushFrame(main.Body)

	if err := e.store.Push(e.snapshot()); err != nil {
		return nil, err
	}
	return e, nil
}

func tokeniseInput(r io.Reader) []string {
	if r == nil {
		return nil
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil
	}
	return strings.Fields(string(data))
}

func (e *Engine) snapshot() *Snapshot {
	return &Snapshot{
		Stack:    e.stack.Clone(),
		Heap:     e.heap.Clone(),
		Terminal: e.term.Clone(),
		Control:  e.ctrl.Clone(),
		Location: e.location,
		Step:     e.step,
	}
}

func (e *Engine) restore(snap *Snapshot) {
	e.stack = snap.Stack.Clone()
	e.heap = snap.Heap.Clone()
	e.term = snap.Terminal.Clone()
	e.ctrl = snap.Control.Clone()
	e.location = snap.Location
	e.step = snap.Step
}

// StepForward advances by exactly one statement, replaying a cached
// snapshot if the engine is currently behind the frontier of its own
// history, or genuinely executing the next statement if it is not.
func (e *Engine) StepForward() (Status, error) {
	if e.faulted {
		return StatusRefused, nil
	}
	if e.store.Position() < e.store.Len()-1 {
		snap, err := e.store.Restore(e.store.Position() + 1)
		if err != nil {
			return StatusRefused, err
		}
		e.restore(snap)
		return StatusAdvanced, nil
	}

	ctx := &execCtx{
		prog:        e.prog,
		stack:       e.stack,
		heap:        e.heap,
		term:        e.term,
		cfg:         e.cfg,
		step:        e.step + 1,
		scanfTokens: e.scanfTokens,
		scanfPos:    e.scanfPos,
	}
	outcome, err := advanceOnce(ctx, e.ctrl)
	e.scanfTokens = ctx.scanfTokens
	e.scanfPos = ctx.scanfPos
	if ctx.lastLoc != (SourceLoc{}) {
		e.location = ctx.lastLoc
	}

	if err != nil {
		e.restore(e.store.At(e.store.Position()))
		e.faulted = true
		e.lastErr = err
		if re, ok := err.(*RuntimeError); ok {
			e.location = re.Loc
		}
		return StatusFaulted, err
	}

	switch outcome {
	case stepAwaitingInput:
		if n := len(e.term.Records); n == 0 || e.term.Records[n-1].Kind != OutputInputPrompt {
			e.term.Prompt(pendingScanfPrompt(ctx), e.step)
		}
		return StatusAwaitingInput, nil
	case stepHalted:
		// Nothing executed this call — main's frame was already exhausted
		// by the previous step's return/fall-off-end. No new snapshot.
		return StatusHalted, nil
	default:
		e.step++
		if pushErr := e.store.Push(e.snapshot()); pushErr != nil {
			e.restore(e.store.At(e.store.Position()))
			e.faulted = true
			e.lastErr = pushErr
			return StatusFaulted, pushErr
		}
		return StatusAdvanced, nil
	}
}

// pendingScanfPrompt has no format string to surface beyond a generic
// marker — by the time advanceOnce returns stepAwaitingInput, the scanf
// call that set it has already unwound without keeping its argument list
// around. A concrete format string would require plumbing it back out of
// biScanf; the generic prompt is enough for the UI to know why it's stuck.
func pendingScanfPrompt(ctx *execCtx) string {
	return "(scanf) waiting for input"
}

// StepBackward moves the position pointer back one snapshot. Valid even
// after Faulted — only StepForward is refused there.
func (e *Engine) StepBackward() (Status, error) {
	if e.store.Position() <= 0 {
		return StatusRefused, nil
	}
	snap, err := e.store.Restore(e.store.Position() - 1)
	if err != nil {
		return StatusRefused, err
	}
	e.restore(snap)
	e.faulted = false
	e.lastErr = nil
	return StatusAdvanced, nil
}

// RunToEnd steps forward until halted, faulted, or awaiting input, or until
// cancel reports true between statements (spec.md §5's cooperative
// cancellation contract).
func (e *Engine) RunToEnd(cancel func() bool) (Status, error) {
	for {
		if cancel != nil && cancel() {
			return StatusRefused, &RuntimeError{Kind: ErrCancelled}
		}
		status, err := e.StepForward()
		if status != StatusAdvanced {
			return status, err
		}
	}
}

// Restart returns the engine to its initial snapshot, clearing Faulted.
func (e *Engine) Restart() {
	snap, err := e.store.Restore(0)
	if err != nil {
		return
	}
	e.restore(snap)
	e.faulted = false
	e.lastErr = nil
}

// ProvideInput appends whitespace-tokenised text to the pending scanf input
// queue, moving the engine from AwaitingInput back to a state where
// StepForward can retry the suspended scanf.
func (e *Engine) ProvideInput(text string) {
	e.scanfTokens = append(e.scanfTokens, strings.Fields(text)...)
}

func (e *Engine) Stack() *Stack              { return e.stack }
func (e *Engine) Heap() *Heap                { return e.heap }
func (e *Engine) Terminal() *MockTerminal    { return e.term }
func (e *Engine) CurrentLocation() SourceLoc { return e.location }
func (e *Engine) StepIndex() int             { return e.step }
func (e *Engine) HistoryLen() int            { return e.store.Len() }
func (e *Engine) LastError() error           { return e.lastErr }
func (e *Engine) IsFaulted() bool            { return e.faulted }
