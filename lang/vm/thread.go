package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/heap"
	"github.com/corolox/corolox/lang/value"
)

// CoroutineState is the lifecycle state of a Coroutine (spec.md §4.4).
type CoroutineState uint8

const (
	CoroutineReady CoroutineState = iota
	CoroutineRunning
	CoroutinePaused
	CoroutineComplete
	CoroutineError
)

func (s CoroutineState) String() string {
	switch s {
	case CoroutineReady:
		return "ready"
	case CoroutineRunning:
		return "running"
	case CoroutinePaused:
		return "paused"
	case CoroutineComplete:
		return "complete"
	case CoroutineError:
		return "error"
	default:
		return "unknown"
	}
}

// Coroutine is one cooperative thread of execution: its own growable
// operand stack, its own call-frame stack, its own open-upvalue list.
// Exactly one Coroutine is ever running at a time (spec.md §4.4,
// §5: "a single active coroutine, asymmetric resume/yield"); all others
// are READY, PAUSED, COMPLETE or ERROR.
//
// Coroutine is itself a heap Value like any other: a corolox program can
// hold a coroutine in a variable, store it in a list, pass it to a
// function, and once nothing references it any more it is collected like
// any other garbage (spec.md §4.5).
//
// Grounded on nenuphar's lang/machine/thread.go Thread (ctx/ctxCancel,
// cancelled atomic.Bool, steps/maxSteps budget), here split in two: the
// budget/IO/heap-level concerns stay on Thread (singular per run), while
// per-coroutine execution state (stack, frames, upvalues) moves onto this
// type, since spec.md §4.4 requires each coroutine to carry its own.
type Coroutine struct {
	value.Object

	fn     *Closure
	parent *Coroutine
	state  CoroutineState

	stack        []value.Value
	frames       []CallFrame
	openUpvalues *Upvalue

	err error
}

func newCoroutine(fn *Closure) *Coroutine {
	return &Coroutine{
		fn:    fn,
		state: CoroutineReady,
		stack: make([]value.Value, 0, 256),
	}
}

func (c *Coroutine) Type() string   { return "coroutine" }
func (c *Coroutine) String() string { return "<coroutine>" }
func (c *Coroutine) State() CoroutineState { return c.state }

// Children exposes the coroutine's entire operand stack (which, by
// construction, also transitively covers every closure and value any of
// its active frames can still reach) plus its parent, so a resumer
// chain stays alive for as long as any member of it is reachable
// (spec.md §4.5).
func (c *Coroutine) Children() []value.Value {
	out := make([]value.Value, 0, len(c.stack)+1)
	out = append(out, c.stack...)
	if c.parent != nil {
		out = append(out, c.parent)
	}
	return out
}

func (c *Coroutine) push(v value.Value) {
	c.stack = append(c.stack, v)
}

func (c *Coroutine) pop() value.Value {
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v
}

func (c *Coroutine) peek(distFromTop int) value.Value {
	return c.stack[len(c.stack)-1-distFromTop]
}

// Thread drives exactly one corolox program: it owns the heap, the
// globals table, the chain of coroutines created during the run, and the
// execution budget/cancellation plumbing. Multiple independent Threads
// never share a Heap (spec.md §5: "the heap, globals table and set of
// live coroutines are scoped to one Thread, not process-global").
//
// Grounded on nenuphar's lang/machine/thread.go Thread fields
// (Stdout/Stderr/Stdin, MaxSteps, ctx/ctxCancel, cancelled atomic.Bool,
// one-time init()).
type Thread struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxSteps bounds the number of bytecode instructions this thread will
	// execute before it cancels itself. A value <= 0 means no limit.
	MaxSteps int

	Heap    *heap.Heap
	Globals *Globals

	ctx       context.Context
	ctxCancel context.CancelFunc
	cancelled atomic.Bool

	steps, maxSteps uint64

	main    *Coroutine
	current *Coroutine
}

// NewThread returns a Thread with a fresh heap and globals table, with
// the standard native functions already registered (spec.md §6).
func NewThread() *Thread {
	th := &Thread{
		Heap:    heap.New(),
		Globals: newGlobals(),
	}
	registerNatives(th)
	return th
}

func (th *Thread) init() {
	if th.ctx != nil {
		return
	}
	if th.MaxSteps <= 0 {
		th.maxSteps--
	} else {
		th.maxSteps = uint64(th.MaxSteps)
	}
	if th.Stdout == nil {
		th.Stdout = os.Stdout
	}
	if th.Stderr == nil {
		th.Stderr = os.Stderr
	}
	if th.Stdin == nil {
		th.Stdin = os.Stdin
	}
}

// Cancel asynchronously stops execution at the next instruction boundary.
func (th *Thread) Cancel() { th.cancelled.Store(true) }

// Run wraps the compiled fn in a closure, runs it to completion as the thread's
// main coroutine, and returns its final value.
func (th *Thread) Run(ctx context.Context, fn *compiler.FunctionProto) (value.Value, error) {
	th.init()
	ctx, cancel := context.WithCancel(ctx)
	th.ctx = ctx
	th.ctxCancel = cancel
	defer cancel()

	closure := &Closure{Proto: fn}
	th.Heap.TrackManaged(closure.Header(), 48)

	co := newCoroutine(closure)
	th.Heap.TrackManaged(co.Header(), 256*8)
	co.push(closure) // slot 0 of the frame holds the callee
	co.frames = append(co.frames, CallFrame{Closure: closure, IP: 0, SlotsBase: 0})
	co.state = CoroutineRunning
	th.main = co
	th.current = co

	return th.runCurrent()
}

// gcRoots returns every Value directly reachable from outside the heap:
// the globals table and the currently-running coroutine (whose Children
// transitively covers its whole stack, its parent chain, and anything
// any live closure on that stack still references).
func (th *Thread) gcRoots() []value.Value {
	roots := th.Globals.roots()
	if th.current != nil {
		roots = append(roots, th.current)
	}
	return roots
}

func (th *Thread) runtimeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if th.current != nil && len(th.current.frames) > 0 {
		fr := &th.current.frames[len(th.current.frames)-1]
		return fmt.Errorf("[line %d] runtime error: %s", fr.Position(), msg)
	}
	return fmt.Errorf("runtime error: %s", msg)
}
