// Package heap implements corolox's allocator and tracing garbage
// collector: every string, list, dict, closure and coroutine the
// interpreter creates is allocated through a Heap, linked into one
// intrusive list for sweeping, and (for strings) deduplicated through a
// weak intern table (spec.md §4.5).
//
// There is no teacher equivalent for this package: github.com/mna/nenuphar
// is hosted on Go's own garbage collector and owns no heap of its own.
// heap.go is grounded directly on spec.md §4.5 ("mark-sweep, precise,
// non-generational, non-moving") and on the intern-table/mark/sweep
// vocabulary of _examples/original_source/src/memory.h
// (collect_garbage/mark_value/mark_object/free_objects).
package heap

import (
	"github.com/dolthub/swiss"

	"github.com/corolox/corolox/lang/value"
)

// growFactor is the multiple by which the next collection threshold
// grows past the live set measured at the end of the collection that
// just ran (spec.md §4.5: "the next collection threshold is the live
// byte count times a constant growth factor").
const growFactor = 2

// initialThreshold is the number of bytes of allocation the heap will
// tolerate before its first collection.
const initialThreshold = 1 << 20

// RootsFunc is called at the start of a collection to obtain every Value
// directly reachable from outside the heap: the operand stack of every
// live coroutine, the globals table, and any still-open upvalues. The
// heap itself has no notion of threads or frames, so the caller (lang/vm)
// supplies this closure.
type RootsFunc func() []value.Value

// Heap owns every corolox heap object and the weak string intern table.
type Heap struct {
	objects        *value.Object
	strings        *swiss.Map[string, *value.String]
	gray           []value.Value
	gen            bool
	bytesAllocated int
	nextGC         int

	// StressGC forces a full collection before every string, list and dict
	// allocation (NewList, NewDict, and InternString on a cache miss).
	// Objects registered through TrackManaged (closures, coroutines,
	// natives) never trigger a collection, stress mode or not. Intended
	// for tests that want to flush out use-after-free/missing-root bugs
	// (spec.md §7's testable properties rely on this to make GC bugs
	// reproducible without waiting for real allocation pressure).
	StressGC bool
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{
		strings: swiss.NewMap[string, *value.String](64),
		nextGC:  initialThreshold,
	}
}

// BytesAllocated reports the heap's current running total of live
// allocation, as tracked by object sizes charged at allocation time and
// released at sweep time.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// track links a freshly-built object into the allocation list. Its mark
// is stamped with the heap's current generation value: since the next
// collection always flips that value before tracing, a never-traced
// object compares unequal to the new generation and so starts out
// correctly unmarked for that cycle, with no separate "clear all marks"
// pass required (spec.md §4.5).
func (h *Heap) track(hdr *value.Object, size int) {
	hdr.SetMarked(h.gen)
	hdr.SetSize(size)
	hdr.SetNext(h.objects)
	h.objects = hdr
	h.bytesAllocated += size
}

// NewList allocates a list owning elems. roots is consulted only if this
// allocation crosses the collection threshold; protect additionally keeps
// alive any Value the caller is mid-construction with but that is no
// longer reachable from roots() (spec.md §9's "OP_ADD re-check-after-
// allocation hazard": a caller must pass its own not-yet-stored operands
// as protect before they are dropped from the stack).
func (h *Heap) NewList(elems []value.Value, roots RootsFunc, protect ...value.Value) *value.List {
	h.collectIfNeeded(roots, protect...)
	l := value.NewList(elems)
	h.track(l.Header(), sizeList+len(elems)*8)
	return l
}

// NewDict allocates an empty dict with initial capacity for size entries.
func (h *Heap) NewDict(size int, roots RootsFunc, protect ...value.Value) *value.Dict {
	h.collectIfNeeded(roots, protect...)
	d := value.NewDict(size)
	h.track(d.Header(), sizeDict+size*16)
	return d
}

// InternString returns the unique *value.String for s, allocating and
// interning one if this is the first time s has been seen. Because the
// intern table is consulted before any allocation occurs, a cache hit
// never triggers a collection.
func (h *Heap) InternString(s string, roots RootsFunc, protect ...value.Value) *value.String {
	if existing, ok := h.strings.Get(s); ok {
		return existing
	}
	h.collectIfNeeded(roots, protect...)
	str := value.NewStringUninterned(s)
	h.track(str.Header(), sizeString+len(s))
	h.strings.Put(s, str)
	return str
}

// TrackManaged links an already-constructed heap object (a *vm.Closure or
// *vm.Coroutine, whose concrete types live outside lang/value to avoid an
// import cycle) into the heap's object list and allocation accounting.
// Callers build the object first, then register it before it can possibly
// escape into a root.
func (h *Heap) TrackManaged(hdr *value.Object, size int) {
	h.track(hdr, size)
}

const (
	sizeString = 32
	sizeList   = 24
	sizeDict   = 40
)

func (h *Heap) collectIfNeeded(roots RootsFunc, protect ...value.Value) {
	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect(roots, protect...)
	}
}

// Collect runs one full mark-sweep cycle: it flips the live generation
// marker, traces every root (and every protected value) to a fixed
// point, sweeps the weak string intern table, then sweeps every
// unreached object off the intrusive allocation list (spec.md §4.5).
func (h *Heap) Collect(roots RootsFunc, protect ...value.Value) {
	h.gen = !h.gen

	for _, r := range roots() {
		h.markValue(r)
	}
	for _, p := range protect {
		h.markValue(p)
	}
	h.traceGray()

	h.sweepStrings()
	h.sweepObjects()

	live := h.bytesAllocated
	h.nextGC = live * growFactor
	if h.nextGC < initialThreshold {
		h.nextGC = initialThreshold
	}
}

func (h *Heap) markValue(v value.Value) {
	if v == nil {
		return
	}
	ho, ok := v.(value.HeapObject)
	if !ok {
		return
	}
	hdr := ho.Header()
	if hdr.MarkedAs(h.gen) {
		return
	}
	hdr.SetMarked(h.gen)
	h.gray = append(h.gray, v)
}

// traceGray repeatedly blackens the gray worklist until it is empty: for
// every object taken off the worklist, every Value it directly references
// is marked (turning white objects gray) and pushed in turn.
func (h *Heap) traceGray() {
	for len(h.gray) > 0 {
		v := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		ho := v.(value.HeapObject)
		for _, child := range ho.Children() {
			h.markValue(child)
		}
	}
}

// sweepStrings drops every intern-table entry whose *String did not
// survive this cycle's trace, so a later lookup of the same content
// allocates (and interns) a fresh string rather than handing back a
// logically-dead one (spec.md §4.5: "the intern table holds weak
// references and must be swept between trace and sweep").
func (h *Heap) sweepStrings() {
	var dead []string
	h.strings.Iter(func(k string, v *value.String) bool {
		if !v.Header().MarkedAs(h.gen) {
			dead = append(dead, k)
		}
		return false
	})
	for _, k := range dead {
		h.strings.Delete(k)
	}
}

// sweepObjects walks the intrusive allocation list, unlinking and
// discarding every object that was not marked during this cycle's trace.
func (h *Heap) sweepObjects() {
	var prev *value.Object
	obj := h.objects
	for obj != nil {
		next := obj.Next()
		if obj.MarkedAs(h.gen) {
			prev = obj
			obj = next
			continue
		}
		h.bytesAllocated -= obj.Size()
		if prev != nil {
			prev.SetNext(next)
		} else {
			h.objects = next
		}
		obj = next
	}
}
