// Package value defines the runtime value representation shared by the
// compiler's constant pool and the interpreter: the small set of
// non-heap values (nil, bool, number) plus the Object header every
// heap-allocated value embeds so the garbage collector can walk and
// reclaim them (spec.md §3).
package value

import "fmt"

// Value is implemented by every value the interpreter can push onto the
// operand stack. Deliberately much smaller than a capability-interface
// value system: spec.md §3 defines a closed set of kinds with no
// user-defined metamaps or classes, so there is no HasBinary/HasAttrs/
// Mapping-style extensibility to model.
type Value interface {
	Type() string
	String() string
}

// HeapObject is implemented by every Value that is allocated on the GC
// heap (spec.md §3.2: strings, lists, dicts, closures, coroutines). It
// gives the collector access to the object's header and to the set of
// Values it directly references, for tracing.
type HeapObject interface {
	Value
	Header() *Object
	// Children returns the Values this object directly holds a reference
	// to, so the tracer can push them onto its gray worklist. It must not
	// allocate.
	Children() []Value
}

// Object is the header every heap object embeds. The heap links all live
// objects through next into one intrusive list (for sweeping) and marks
// reachability by comparing marked against the heap's current generation
// value rather than clearing it between cycles (spec.md §4.5: "the mark
// bit is compared against a flipping generation value instead of being
// explicitly cleared before each collection").
type Object struct {
	next       *Object
	marked     bool
	ownsBuffer bool
	size       int // approximate bytes charged against the heap's allocation budget
}

func (o *Object) Next() *Object          { return o.next }
func (o *Object) SetNext(n *Object)      { o.next = n }
func (o *Object) MarkedAs(gen bool) bool { return o.marked == gen }
func (o *Object) SetMarked(gen bool)     { o.marked = gen }
func (o *Object) OwnsBuffer() bool       { return o.ownsBuffer }
func (o *Object) SetOwnsBuffer(b bool)   { o.ownsBuffer = b }
func (o *Object) Size() int              { return o.size }
func (o *Object) SetSize(n int)          { o.size = n }

// Header lets Object itself satisfy part of HeapObject's contract when
// embedded: embedding types get this method for free and only need to
// add Children (and Type/String).
func (o *Object) Header() *Object { return o }

// NilType is the type of the single nil value.
type NilType struct{}

func (NilType) Type() string   { return "nil" }
func (NilType) String() string { return "nil" }

// Nil is the sole nil value.
var Nil = NilType{}

// Bool is a boolean value. Not heap-allocated: there are only ever two
// distinct values, true and false (spec.md §3).
type Bool bool

func (b Bool) Type() string   { return "bool" }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Number is a double-precision float, the language's only numeric type
// (spec.md §3).
type Number float64

func (n Number) Type() string   { return "number" }
func (n Number) String() string { return formatNumber(float64(n)) }

func formatNumber(f float64) string {
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Truthy reports whether v is truthy: everything except nil and the
// boolean false is truthy (spec.md §3 — zero and the empty string are
// both truthy, unlike some scripting languages).
func Truthy(v Value) bool {
	switch x := v.(type) {
	case NilType:
		return false
	case Bool:
		return bool(x)
	default:
		return true
	}
}

// Equal reports whether a and b are the same value. Numbers, bools and
// nil compare by value; every heap type (string, list, dict, closure,
// coroutine) compares by identity, which Go's interface equality already
// gives us for free since every heap Value's dynamic type is a pointer
// (spec.md §3: strings are interned, so identity equality is also
// content equality for them; lists and dicts are compared by identity
// only, as the language has no deep-equality operator).
func Equal(a, b Value) bool {
	return a == b
}
