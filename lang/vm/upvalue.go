package vm

import "github.com/corolox/corolox/lang/value"

// Upvalue is the indirection a closure uses to share a captured local
// variable with the frame that declared it (spec.md §4.2, §4.4). While
// open, it indexes into the slot of the coroutine stack the local still
// lives in; closing it copies the current value out into its own
// storage, after which it is independent of the stack slot.
//
// Grounded on nenuphar's lang/machine/cell.go cell{v Value} — the same
// "box so inner and outer closures observe the same mutable storage"
// idea — but represented as a (coroutine, slot) pair rather than a raw Go
// pointer into the operand stack: spec.md §4.4 requires a growable
// per-coroutine stack, and growing a slice by appending may reallocate
// its backing array, which would leave a raw *Value dangling. Indexing
// by slot survives reallocation; only the slice header changes, not the
// logical position of any live value within it.
type Upvalue struct {
	co     *Coroutine
	slot   int
	closed value.Value
	open   bool
	next   *Upvalue // intrusive, sorted-by-slot list of a coroutine's open upvalues
}

func newOpenUpvalue(co *Coroutine, slot int) *Upvalue {
	return &Upvalue{co: co, slot: slot, open: true}
}

func (u *Upvalue) Get() value.Value {
	if u.open {
		return u.co.stack[u.slot]
	}
	return u.closed
}

func (u *Upvalue) Set(v value.Value) {
	if u.open {
		u.co.stack[u.slot] = v
		return
	}
	u.closed = v
}

func (u *Upvalue) close() {
	if !u.open {
		return
	}
	u.closed = u.co.stack[u.slot]
	u.open = false
	u.co = nil
}

// captureUpvalue returns the open upvalue for slot on co, creating and
// linking one into co's sorted-by-slot open-upvalue list if none yet
// exists for that slot. Sharing a single Upvalue instance per live slot
// is what lets two closures that capture the same local observe each
// other's writes (spec.md §4.2).
func captureUpvalue(co *Coroutine, slot int) *Upvalue {
	var prev *Upvalue
	cur := co.openUpvalues
	for cur != nil && cur.slot > slot {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.slot == slot {
		return cur
	}

	created := newOpenUpvalue(co, slot)
	created.next = cur
	if prev == nil {
		co.openUpvalues = created
	} else {
		prev.next = created
	}
	return created
}

// closeUpvaluesFrom closes every open upvalue at or above slot, unlinking
// it from co's open list (spec.md §4.2: upvalues are closed when the
// scope or call frame that owns their slot exits).
func closeUpvaluesFrom(co *Coroutine, slot int) {
	for co.openUpvalues != nil && co.openUpvalues.slot >= slot {
		uv := co.openUpvalues
		co.openUpvalues = uv.next
		uv.close()
	}
}
