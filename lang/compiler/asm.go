package compiler

import (
	"bytes"
	"fmt"
)

// Disassemble renders fn and every nested FunctionProto reachable from its
// constant pool into the teacher's "== name ==" textual form, one
// instruction per line annotated with its byte offset and source line
// (spec.md §8's testable property: "bytecode for a given chunk can be
// disassembled into a stable, human-readable listing").
//
// Grounded on nenuphar's lang/compiler/asm.go Dasm (per-function sections,
// a trailing "\n" between functions) crossed with
// _examples/original_source/src/debug.c's disassemble_instruction (the
// "%04d line op operand" line shape, a '|' standing in for a repeated
// line number). corolox's fixed-width operand encoding (spec.md §4.3)
// means offsets advance by a known amount per opcode, unlike nenuphar's
// varint decoding.
func Disassemble(fn *FunctionProto) string {
	var buf bytes.Buffer
	seen := map[*FunctionProto]bool{}
	disassembleOne(&buf, fn, seen)
	return buf.String()
}

func disassembleOne(buf *bytes.Buffer, fn *FunctionProto, seen map[*FunctionProto]bool) {
	if seen[fn] {
		return
	}
	seen[fn] = true

	name := fn.Name
	if name == "" {
		name = "<script>"
	}
	fmt.Fprintf(buf, "== %s ==\n", name)

	chunk := fn.Chunk
	for off := 0; off < len(chunk.Code); {
		off = disassembleInstruction(buf, chunk, off)
	}

	for _, c := range chunk.Constants {
		if nfn, ok := c.(*FunctionProto); ok {
			buf.WriteByte('\n')
			disassembleOne(buf, nfn, seen)
		}
	}
}

// disassembleInstruction writes one instruction starting at offset off and
// returns the offset of the next instruction.
func disassembleInstruction(buf *bytes.Buffer, chunk *Chunk, off int) int {
	fmt.Fprintf(buf, "%04d ", off)

	line := chunk.LineFor(off)
	if off > 0 && line == chunk.LineFor(off-1) {
		fmt.Fprint(buf, "   | ")
	} else {
		fmt.Fprintf(buf, "%4d ", line)
	}

	op := Opcode(chunk.Code[off])
	switch op {
	case OP_CONSTANT:
		return constantInstruction(buf, op, chunk, off, 1)
	case OP_CONSTANT_LONG:
		return constantInstruction(buf, op, chunk, off, 3)
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_GLOBAL, OP_SET_GLOBAL,
		OP_DEFINE_GLOBAL:
		return byteInstruction(buf, op, chunk, off, 1)
	case OP_GET_LOCAL_LONG, OP_SET_LOCAL_LONG, OP_GET_GLOBAL_LONG,
		OP_SET_GLOBAL_LONG, OP_DEFINE_GLOBAL_LONG:
		return byteInstruction(buf, op, chunk, off, 3)
	case OP_GET_UPVALUE, OP_SET_UPVALUE, OP_CALL:
		return byteInstruction(buf, op, chunk, off, 1)
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_LOOP:
		return jumpInstruction(buf, op, chunk, off)
	case OP_CLOSURE:
		return closureInstruction(buf, op, chunk, off, 1)
	case OP_CLOSURE_LONG:
		return closureInstruction(buf, op, chunk, off, 3)
	case OP_LIST, OP_DICT:
		return byteInstruction(buf, op, chunk, off, 1)
	case OP_LIST_LONG, OP_DICT_LONG:
		return byteInstruction(buf, op, chunk, off, 3)
	default:
		return simpleInstruction(buf, op, off)
	}
}

func simpleInstruction(buf *bytes.Buffer, op Opcode, off int) int {
	fmt.Fprintf(buf, "%s\n", op)
	return off + 1
}

func readIndex(code []byte, off int, width int) int {
	if width == 1 {
		return int(code[off])
	}
	return int(code[off])<<16 | int(code[off+1])<<8 | int(code[off+2])
}

func constantInstruction(buf *bytes.Buffer, op Opcode, chunk *Chunk, off int, width int) int {
	idx := readIndex(chunk.Code, off+1, width)
	var v any
	if idx < len(chunk.Constants) {
		v = chunk.Constants[idx]
	}
	fmt.Fprintf(buf, "%-18s %4d '%v'\n", op, idx, constantLabel(v))
	return off + 1 + width
}

func constantLabel(v any) any {
	if fn, ok := v.(*FunctionProto); ok {
		return "<fn " + fn.Name + ">"
	}
	return v
}

func byteInstruction(buf *bytes.Buffer, op Opcode, chunk *Chunk, off int, width int) int {
	idx := readIndex(chunk.Code, off+1, width)
	fmt.Fprintf(buf, "%-18s %4d\n", op, idx)
	return off + 1 + width
}

func jumpInstruction(buf *bytes.Buffer, op Opcode, chunk *Chunk, off int) int {
	disp := ReadJumpDisplacement(chunk.Code, off+1)
	target := off + 1 + 4 + int(disp)
	fmt.Fprintf(buf, "%-18s %4d -> %d\n", op, off, target)
	return off + 1 + 4
}

func closureInstruction(buf *bytes.Buffer, op Opcode, chunk *Chunk, off int, width int) int {
	idx := readIndex(chunk.Code, off+1, width)
	var fn *FunctionProto
	if idx < len(chunk.Constants) {
		fn, _ = chunk.Constants[idx].(*FunctionProto)
	}
	fmt.Fprintf(buf, "%-18s %4d '<fn %s>'\n", op, idx, fnName(fn))
	next := off + 1 + width
	if fn == nil {
		return next
	}
	for i := 0; i < len(fn.Upvalues); i++ {
		uv := fn.Upvalues[i]
		kind := "upvalue"
		if uv.IsLocal {
			kind = "local"
		}
		fmt.Fprintf(buf, "%04d      |                     %s %d\n", next, kind, uv.Index)
		next += 2
	}
	return next
}

func fnName(fn *FunctionProto) string {
	if fn == nil {
		return ""
	}
	return fn.Name
}
