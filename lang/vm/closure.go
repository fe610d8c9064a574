package vm

import (
	"fmt"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/value"
)

// Closure pairs a compiled FunctionProto with the upvalues it captured at
// the point OP_CLOSURE created it (spec.md §3, §4.2). It is a heap value
// like any other: callable, storable in a variable, comparable by
// identity.
//
// Grounded on nenuphar's lang/machine/function.go Function{Funcode,
// Module, Freevars} for the "compiled code plus captured environment"
// split, reshaped around spec.md §4.2's upvalue vocabulary (Freevars
// there are resolved once at load time against a Module; corolox upvalues
// are resolved per-closure-instance at OP_CLOSURE time since there is no
// separate module-load phase).
type Closure struct {
	value.Object
	Proto    *compiler.FunctionProto
	Upvalues []*Upvalue
}

func (c *Closure) Type() string { return "function" }

func (c *Closure) String() string {
	if c.Proto.Name == "" {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", c.Proto.Name)
}

// Children returns the current value behind each upvalue, so the
// collector keeps alive whatever a closure captured even after the frame
// that originally held it has returned (spec.md §4.5).
func (c *Closure) Children() []value.Value {
	out := make([]value.Value, 0, len(c.Upvalues))
	for _, uv := range c.Upvalues {
		if v := uv.Get(); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// NativeFunc is the signature every native (builtin) function implements.
type NativeFunc func(th *Thread, args []value.Value) (value.Value, error)

// Native wraps a Go function so it can be called from corolox code like
// any other Closure (spec.md §6's native-function ABI: clock, print,
// type, is, reset).
type Native struct {
	value.Object
	Name  string
	Arity int // -1 means variadic (any argument count is accepted)
	Fn    NativeFunc
}

func (n *Native) Type() string   { return "native" }
func (n *Native) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// Children: natives hold no references to other heap values.
func (n *Native) Children() []value.Value { return nil }
