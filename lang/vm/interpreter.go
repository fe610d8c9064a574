package vm

import (
	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/value"
)

// maxCallDepth bounds the number of nested (non-coroutine) calls on a
// single coroutine's frame stack, guarding against a runaway recursive
// program exhausting memory instead of failing cleanly (spec.md §5).
const maxCallDepth = 1024

// runCurrent drives the fetch-decode-execute loop until the thread's main
// coroutine completes, executing exactly one instruction per iteration so
// that a coroutine resume or yield can retarget th.current between
// instructions with no special-casing in the loop itself.
//
// Grounded on nenuphar's lang/machine/machine.go run() (labeled for loop,
// per-step budget/cancellation check, sp-indexed operand stack), reshaped
// so the "current call frame" is re-derived from th.current every
// iteration instead of cached in local variables across the whole
// function: nenuphar never switches which logical thread of execution it
// is advancing mid-loop, but corolox's cooperative coroutines do
// (spec.md §4.4).
func (th *Thread) runCurrent() (value.Value, error) {
	for {
		th.steps++
		if th.steps > th.maxSteps {
			return nil, th.runtimeError("step limit exceeded")
		}
		if th.cancelled.Load() {
			return nil, th.runtimeError("cancelled")
		}

		done, result, err := th.step()
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}
}

// step executes exactly one instruction on th.current's top frame. It
// returns done=true once the thread's main coroutine has produced its
// final result and there is no parent coroutine to return control to.
func (th *Thread) step() (done bool, result value.Value, err error) {
	co := th.current
	fr := &co.frames[len(co.frames)-1]
	code := fr.Closure.Proto.Chunk.Code

	op := compiler.Opcode(code[fr.IP])
	fr.IP++

	switch op {
	case compiler.OP_CONSTANT, compiler.OP_CONSTANT_LONG:
		idx := readIdx(code, fr, op == compiler.OP_CONSTANT_LONG)
		v, err := th.constantValue(fr.Closure.Proto, idx)
		if err != nil {
			return false, nil, err
		}
		co.push(v)

	case compiler.OP_NIL:
		co.push(value.Nil)
	case compiler.OP_TRUE:
		co.push(value.Bool(true))
	case compiler.OP_FALSE:
		co.push(value.Bool(false))
	case compiler.OP_POP:
		co.pop()

	case compiler.OP_GET_LOCAL, compiler.OP_GET_LOCAL_LONG:
		idx := readIdx(code, fr, op == compiler.OP_GET_LOCAL_LONG)
		co.push(co.stack[fr.SlotsBase+idx])
	case compiler.OP_SET_LOCAL, compiler.OP_SET_LOCAL_LONG:
		idx := readIdx(code, fr, op == compiler.OP_SET_LOCAL_LONG)
		co.stack[fr.SlotsBase+idx] = co.peek(0)

	case compiler.OP_GET_GLOBAL, compiler.OP_GET_GLOBAL_LONG:
		name, err := th.constantName(fr, code, op == compiler.OP_GET_GLOBAL_LONG)
		if err != nil {
			return false, nil, err
		}
		co.push(th.Globals.Get(name))
	case compiler.OP_SET_GLOBAL, compiler.OP_SET_GLOBAL_LONG:
		name, err := th.constantName(fr, code, op == compiler.OP_SET_GLOBAL_LONG)
		if err != nil {
			return false, nil, err
		}
		if !th.Globals.Set(name, co.peek(0)) {
			return false, nil, th.runtimeError("undefined variable '%s'", name.Chars)
		}
	case compiler.OP_DEFINE_GLOBAL, compiler.OP_DEFINE_GLOBAL_LONG:
		name, err := th.constantName(fr, code, op == compiler.OP_DEFINE_GLOBAL_LONG)
		if err != nil {
			return false, nil, err
		}
		th.Globals.Define(name, co.pop())

	case compiler.OP_GET_UPVALUE:
		idx := int(code[fr.IP])
		fr.IP++
		co.push(fr.Closure.Upvalues[idx].Get())
	case compiler.OP_SET_UPVALUE:
		idx := int(code[fr.IP])
		fr.IP++
		fr.Closure.Upvalues[idx].Set(co.peek(0))
	case compiler.OP_CLOSE_UPVALUE:
		closeUpvaluesFrom(co, len(co.stack)-1)
		co.pop()

	case compiler.OP_EQUAL:
		b, a := co.pop(), co.pop()
		co.push(value.Bool(value.Equal(a, b)))
	case compiler.OP_GREATER, compiler.OP_LESS:
		b, a := co.pop(), co.pop()
		an, aok := a.(value.Number)
		bn, bok := b.(value.Number)
		if !aok || !bok {
			return false, nil, th.runtimeError("operands must be numbers")
		}
		if op == compiler.OP_GREATER {
			co.push(value.Bool(an > bn))
		} else {
			co.push(value.Bool(an < bn))
		}

	case compiler.OP_ADD:
		if err := th.execAdd(co); err != nil {
			return false, nil, err
		}
	case compiler.OP_SUBTRACT, compiler.OP_MULTIPLY, compiler.OP_DIVIDE:
		if err := th.execArith(co, op); err != nil {
			return false, nil, err
		}
	case compiler.OP_NEGATE:
		n, ok := co.peek(0).(value.Number)
		if !ok {
			return false, nil, th.runtimeError("operand must be a number")
		}
		co.pop()
		co.push(-n)
	case compiler.OP_NOT:
		co.push(value.Bool(!value.Truthy(co.pop())))

	case compiler.OP_JUMP:
		disp := compiler.ReadJumpDisplacement(code, fr.IP)
		fr.IP += 4 + int(disp)
	case compiler.OP_JUMP_IF_FALSE:
		disp := compiler.ReadJumpDisplacement(code, fr.IP)
		cond := co.peek(0)
		fr.IP += 4
		if !value.Truthy(cond) {
			fr.IP += int(disp)
		}
	case compiler.OP_LOOP:
		disp := compiler.ReadJumpDisplacement(code, fr.IP)
		fr.IP += 4 + int(disp)

	case compiler.OP_CALL:
		argc := int(code[fr.IP])
		fr.IP++
		if err := th.dispatchCall(argc); err != nil {
			return false, nil, err
		}

	case compiler.OP_RETURN:
		return th.execReturn(co, fr)

	case compiler.OP_CLOSURE, compiler.OP_CLOSURE_LONG:
		if err := th.execClosure(co, fr, code, op == compiler.OP_CLOSURE_LONG); err != nil {
			return false, nil, err
		}

	case compiler.OP_LIST, compiler.OP_LIST_LONG:
		n := readIdx(code, fr, op == compiler.OP_LIST_LONG)
		elems := make([]value.Value, n)
		copy(elems, co.stack[len(co.stack)-n:])
		co.stack = co.stack[:len(co.stack)-n]
		co.push(th.Heap.NewList(elems, th.gcRoots, elems...))

	case compiler.OP_DICT, compiler.OP_DICT_LONG:
		if err := th.execDict(co, fr, code, op == compiler.OP_DICT_LONG); err != nil {
			return false, nil, err
		}

	case compiler.OP_GET_FIELD:
		key, container := co.pop(), co.pop()
		v, err := th.getField(container, key)
		if err != nil {
			return false, nil, err
		}
		co.push(v)
	case compiler.OP_SET_FIELD:
		val, key, container := co.pop(), co.pop(), co.pop()
		if err := th.setField(container, key, val); err != nil {
			return false, nil, err
		}
		co.push(val)

	case compiler.OP_COROUTINE:
		v := co.pop()
		closure, ok := v.(*Closure)
		if !ok {
			return false, nil, th.runtimeError("can only wrap a function in a coroutine")
		}
		newCo := newCoroutine(closure)
		th.Heap.TrackManaged(newCo.Header(), 256*8)
		co.push(newCo)

	case compiler.OP_YIELD:
		return th.execYield(co)

	case compiler.OP_AWAIT:
		return false, nil, th.runtimeError("await is reserved and not yet supported")

	default:
		return false, nil, th.runtimeError("unknown opcode %s", op)
	}

	return false, nil, nil
}

func readIdx(code []byte, fr *CallFrame, wide bool) int {
	if wide {
		v := int(code[fr.IP])<<16 | int(code[fr.IP+1])<<8 | int(code[fr.IP+2])
		fr.IP += 3
		return v
	}
	v := int(code[fr.IP])
	fr.IP++
	return v
}

// constantValue converts a raw constant-pool entry into a runtime Value,
// interning strings on first use (spec.md §3: "the compiler's constant
// pool holds unintered literals; the interpreter interns them lazily").
func (th *Thread) constantValue(proto *compiler.FunctionProto, idx int) (value.Value, error) {
	switch c := proto.Chunk.Constants[idx].(type) {
	case float64:
		return value.Number(c), nil
	case string:
		return th.Heap.InternString(c, th.gcRoots), nil
	default:
		return nil, th.runtimeError("unexpected constant kind %T", c)
	}
}

func (th *Thread) constantName(fr *CallFrame, code []byte, wide bool) (*value.String, error) {
	idx := readIdx(code, fr, wide)
	v, err := th.constantValue(fr.Closure.Proto, idx)
	if err != nil {
		return nil, err
	}
	name, ok := v.(*value.String)
	if !ok {
		return nil, th.runtimeError("internal error: global name constant is not a string")
	}
	return name, nil
}

// execAdd implements OP_ADD's polymorphism over numbers and strings.
//
// The operands are not popped until after the possible string-concat
// allocation completes: spec.md §9 flags this exact hazard ("OP_ADD
// re-check-after-allocation") because interning the concatenated string
// may itself trigger a collection, and a collection that ran with the
// operands already off the stack and not otherwise rooted would free
// them out from under the instruction that still needs them. Passing
// them explicitly as heap.NewList-style protect arguments closes the gap
// even if a future refactor pops them earlier than this version does.
func (th *Thread) execAdd(co *Coroutine) error {
	b, a := co.peek(0), co.peek(1)
	switch av := a.(type) {
	case value.Number:
		bv, ok := b.(value.Number)
		if !ok {
			return th.runtimeError("operands must be two numbers or two strings")
		}
		co.pop()
		co.pop()
		co.push(av + bv)
	case *value.String:
		bv, ok := b.(*value.String)
		if !ok {
			return th.runtimeError("operands must be two numbers or two strings")
		}
		concatenated := th.Heap.InternString(av.Chars+bv.Chars, th.gcRoots, av, bv)
		co.pop()
		co.pop()
		co.push(concatenated)
	default:
		return th.runtimeError("operands must be two numbers or two strings")
	}
	return nil
}

func (th *Thread) execArith(co *Coroutine, op compiler.Opcode) error {
	b, a := co.pop(), co.pop()
	an, aok := a.(value.Number)
	bn, bok := b.(value.Number)
	if !aok || !bok {
		return th.runtimeError("operands must be numbers")
	}
	switch op {
	case compiler.OP_SUBTRACT:
		co.push(an - bn)
	case compiler.OP_MULTIPLY:
		co.push(an * bn)
	case compiler.OP_DIVIDE:
		co.push(an / bn)
	}
	return nil
}

func (th *Thread) execReturn(co *Coroutine, fr *CallFrame) (bool, value.Value, error) {
	result := co.pop()
	closeUpvaluesFrom(co, fr.SlotsBase)
	co.frames = co.frames[:len(co.frames)-1]

	if len(co.frames) > 0 {
		co.stack = co.stack[:fr.SlotsBase]
		co.push(result)
		return false, nil, nil
	}

	co.stack = co.stack[:fr.SlotsBase]
	return th.completeCoroutine(co, result)
}

// completeCoroutine finishes co with result: if co was the thread's main
// coroutine the whole run is done, otherwise control and the result
// transfer to whichever coroutine resumed co (spec.md §4.4: a coroutine
// running off the end of its body behaves like one final yield).
func (th *Thread) completeCoroutine(co *Coroutine, result value.Value) (bool, value.Value, error) {
	co.state = CoroutineComplete
	parent := co.parent
	co.parent = nil

	if parent == nil {
		th.current = nil
		return true, result, nil
	}
	parent.state = CoroutineRunning
	parent.push(result)
	th.current = parent
	return false, nil, nil
}

func (th *Thread) execYield(co *Coroutine) (bool, value.Value, error) {
	result := co.pop()
	parent := co.parent
	if parent == nil {
		return false, nil, th.runtimeError("cannot yield outside of a coroutine")
	}
	co.state = CoroutinePaused
	co.parent = nil
	parent.state = CoroutineRunning
	parent.push(result)
	th.current = parent
	return false, nil, nil
}

func (th *Thread) execClosure(co *Coroutine, fr *CallFrame, code []byte, wide bool) error {
	idx := readIdx(code, fr, wide)
	proto, ok := fr.Closure.Proto.Chunk.Constants[idx].(*compiler.FunctionProto)
	if !ok {
		return th.runtimeError("internal error: OP_CLOSURE constant is not a function")
	}

	closure := &Closure{Proto: proto, Upvalues: make([]*Upvalue, len(proto.Upvalues))}
	for i := range proto.Upvalues {
		isLocal := code[fr.IP] != 0
		idx := int(code[fr.IP+1])
		fr.IP += 2
		if proto.Upvalues[i].IsLocal != isLocal || int(proto.Upvalues[i].Index) != idx {
			// the compiler always emits the encoded pair in the same order
			// as proto.Upvalues; this should be unreachable.
			return th.runtimeError("internal error: inconsistent upvalue encoding")
		}
		if isLocal {
			closure.Upvalues[i] = captureUpvalue(co, fr.SlotsBase+idx)
		} else {
			closure.Upvalues[i] = fr.Closure.Upvalues[idx]
		}
	}

	th.Heap.TrackManaged(closure.Header(), 48+len(closure.Upvalues)*8)
	co.push(closure)
	return nil
}

func (th *Thread) execDict(co *Coroutine, fr *CallFrame, code []byte, wide bool) error {
	n := readIdx(code, fr, wide)
	base := len(co.stack) - 2*n
	dict := th.Heap.NewDict(n, th.gcRoots, co.stack[base:]...)
	for i := 0; i < n; i++ {
		k := co.stack[base+2*i]
		v := co.stack[base+2*i+1]
		keyStr, ok := k.(*value.String)
		if !ok {
			return th.runtimeError("dict keys must be strings")
		}
		dict.Set(keyStr, v)
	}
	co.stack = co.stack[:base]
	co.push(dict)
	return nil
}

func (th *Thread) getField(container, key value.Value) (value.Value, error) {
	switch c := container.(type) {
	case *value.List:
		n, ok := key.(value.Number)
		if !ok {
			return nil, th.runtimeError("list index must be a number")
		}
		v, ok := c.Get(int(n))
		if !ok {
			return nil, th.runtimeError("list index %d out of range (len %d)", int(n), c.Len())
		}
		return v, nil
	case *value.Dict:
		s, ok := key.(*value.String)
		if !ok {
			return nil, th.runtimeError("dict key must be a string")
		}
		v, ok := c.Get(s)
		if !ok {
			return value.Nil, nil
		}
		return v, nil
	default:
		return nil, th.runtimeError("cannot index a value of type %s", container.Type())
	}
}

func (th *Thread) setField(container, key, val value.Value) error {
	switch c := container.(type) {
	case *value.List:
		n, ok := key.(value.Number)
		if !ok {
			return th.runtimeError("list index must be a number")
		}
		if !c.Set(int(n), val) {
			return th.runtimeError("list index %d out of range (len %d)", int(n), c.Len())
		}
		return nil
	case *value.Dict:
		s, ok := key.(*value.String)
		if !ok {
			return th.runtimeError("dict key must be a string")
		}
		c.Set(s, val)
		return nil
	default:
		return th.runtimeError("cannot index a value of type %s", container.Type())
	}
}

// dispatchCall implements OP_CALL's polymorphism across the three
// callable kinds (spec.md §4.4): an ordinary closure call pushes a new
// frame onto the current coroutine; a native call runs synchronously and
// pushes its result; calling a coroutine value is a resume, and
// transfers control to it instead of producing an immediate result.
func (th *Thread) dispatchCall(argc int) error {
	co := th.current
	callee := co.peek(argc)
	switch c := callee.(type) {
	case *Closure:
		return th.callClosure(c, argc)
	case *Native:
		return th.callNative(c, argc)
	case *Coroutine:
		return th.resumeCoroutine(c, argc)
	default:
		return th.runtimeError("can only call functions, natives, and coroutines")
	}
}

func (th *Thread) callClosure(c *Closure, argc int) error {
	if argc != c.Proto.Arity {
		return th.runtimeError("expected %d arguments but got %d", c.Proto.Arity, argc)
	}
	co := th.current
	if len(co.frames) >= maxCallDepth {
		return th.runtimeError("stack overflow")
	}
	slotsBase := len(co.stack) - argc - 1
	co.frames = append(co.frames, CallFrame{Closure: c, IP: 0, SlotsBase: slotsBase})
	return nil
}

func (th *Thread) callNative(c *Native, argc int) error {
	if c.Arity >= 0 && argc != c.Arity {
		return th.runtimeError("expected %d arguments but got %d", c.Arity, argc)
	}
	co := th.current
	args := make([]value.Value, argc)
	copy(args, co.stack[len(co.stack)-argc:])

	result, err := c.Fn(th, args)
	if err != nil {
		return err
	}
	co.stack = co.stack[:len(co.stack)-argc-1]
	co.push(result)
	return nil
}

// resumeCoroutine implements resuming target, whether it has never run
// (CoroutineReady) or is suspended mid-yield (CoroutinePaused). The
// caller's own coroutine is left PAUSED with target as its (temporary)
// child until target yields or completes and hands control back.
func (th *Thread) resumeCoroutine(target *Coroutine, argc int) error {
	switch target.state {
	case CoroutineComplete, CoroutineError:
		return th.runtimeError("cannot resume a %s coroutine", target.state)
	case CoroutineRunning:
		return th.runtimeError("coroutine is already running")
	}

	caller := th.current
	args := make([]value.Value, argc)
	copy(args, caller.stack[len(caller.stack)-argc:])
	caller.stack = caller.stack[:len(caller.stack)-argc-1]

	if target.state == CoroutineReady {
		if argc != target.fn.Proto.Arity {
			return th.runtimeError("expected %d arguments but got %d", target.fn.Proto.Arity, argc)
		}
		target.push(target.fn)
		for _, a := range args {
			target.push(a)
		}
		target.frames = append(target.frames, CallFrame{Closure: target.fn, IP: 0, SlotsBase: 0})
	} else {
		var v value.Value = value.Nil
		if argc > 0 {
			v = args[0]
		}
		target.push(v)
	}

	target.parent = caller
	caller.state = CoroutinePaused
	target.state = CoroutineRunning
	th.current = target
	return nil
}
