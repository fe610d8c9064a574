package vm

import (
	"fmt"
	"time"

	"github.com/corolox/corolox/lang/value"
)

// registerNatives installs the standard native functions (spec.md §6):
// clock, print, type, is and reset.
//
// defineNative pushes the name and the freshly-built native object onto
// the stack of a temporary coroutine (installed as th.current only while
// registering) before writing them into the globals table, then pops them
// back off — exactly the sequence _examples/original_source/src/vm.c's
// define_native follows, where table_set can allocate and so trigger a
// collection (spec.md §9 names this exact hazard). Here Globals.Define
// grows a Go-managed swiss map and never allocates on the corolox heap,
// so no collection runs during the write; the pushes keep the name and
// native visible to gcRoots like any other live value all the same.
func registerNatives(th *Thread) {
	co := newCoroutine(nil)
	th.current = co

	defineNative(th, "clock", 0, nativeClock)
	defineNative(th, "print", -1, nativePrint)
	defineNative(th, "type", 1, nativeType)
	defineNative(th, "is", 2, nativeIs)
	defineNative(th, "reset", 1, nativeReset)

	th.current = nil
}

func defineNative(th *Thread, name string, arity int, fn NativeFunc) {
	nameVal := th.Heap.InternString(name, th.gcRoots)
	th.current.push(nameVal)

	native := &Native{Name: name, Arity: arity, Fn: fn}
	th.Heap.TrackManaged(native.Header(), 32)
	th.current.push(native)

	th.Globals.Define(nameVal, native)

	th.current.pop()
	th.current.pop()
}

func nativeClock(th *Thread, args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

func nativePrint(th *Thread, args []value.Value) (value.Value, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(th.Stdout, " ")
		}
		fmt.Fprint(th.Stdout, a.String())
	}
	fmt.Fprintln(th.Stdout)
	return value.Nil, nil
}

func nativeType(th *Thread, args []value.Value) (value.Value, error) {
	return th.Heap.InternString(args[0].Type(), th.gcRoots, args[0]), nil
}

func nativeIs(th *Thread, args []value.Value) (value.Value, error) {
	name, ok := args[1].(*value.String)
	if !ok {
		return nil, th.runtimeError("is() expects a string type name as its second argument")
	}
	return value.Bool(args[0].Type() == name.Chars), nil
}

// nativeReset resets its coroutine argument back to READY (spec.md §6:
// "reset(co) -> resets a coroutine to READY; returns nil"), discarding
// whatever frames and stack contents it still held. A coroutine that is
// currently RUNNING cannot be reset out from under itself.
func nativeReset(th *Thread, args []value.Value) (value.Value, error) {
	co, ok := args[0].(*Coroutine)
	if !ok {
		return nil, th.runtimeError("reset() expects a coroutine argument")
	}
	if co.state == CoroutineRunning {
		return nil, th.runtimeError("cannot reset a running coroutine")
	}
	co.state = CoroutineReady
	co.stack = co.stack[:0]
	co.frames = co.frames[:0]
	co.openUpvalues = nil
	co.parent = nil
	co.err = nil
	return value.Nil, nil
}
