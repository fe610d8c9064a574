package vm

// CallFrame is one activation record on a coroutine's call stack: which
// closure is executing, where its instruction pointer currently is, and
// where its window of the shared operand stack begins.
//
// Grounded on nenuphar's lang/machine/frame.go Frame{callable, pc},
// extended with SlotsBase: nenuphar carves a fresh Go slice per call
// (locals := space[:nlocals]), so it never needs a base offset into a
// shared stack. corolox instead runs every frame of a coroutine against
// one shared, growable value stack (spec.md §4.4, clox-style), so each
// frame must remember where its own locals begin within it.
type CallFrame struct {
	Closure   *Closure
	IP        int
	SlotsBase int
}

// Position reports the source line the frame is currently executing,
// used for runtime error messages and stack traces (spec.md §7).
func (f *CallFrame) Position() int {
	// IP has already been advanced past the opcode byte of the
	// instruction that is "currently" executing when an error is
	// reported, so the instruction that produced the error is the one
	// immediately preceding it.
	off := f.IP - 1
	if off < 0 {
		off = 0
	}
	return f.Closure.Proto.Chunk.LineFor(off)
}
