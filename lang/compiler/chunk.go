package compiler

import "fmt"

// A Chunk is a function's compiled body: bytecode, a constant pool, and a
// run-length-encoded line table (spec.md §4.3). Chunks never reference
// lang/value directly — constant pool entries are either a raw number, a
// raw (not-yet-interned) string, or a nested *FunctionProto for closures —
// so that lang/value (which models the Function heap object as wrapping a
// *FunctionProto) never has to import back into lang/compiler.
//
// Grounded on github.com/mna/nenuphar's lang/compiler/compiled.go
// (Funcode{Code, Locals, Freevars, MaxStack, ...}) and on
// _examples/original_source/src/chunk.h's line_info_t run-length design.
type Chunk struct {
	Code      []byte
	Constants []any // float64 | string | *FunctionProto
	Lines     lineTable
	MaxStack  int
}

// FunctionProto is the compiled, immutable shape of one function: its
// arity, upvalue metadata, optional name, and owned Chunk. It is produced
// once by the compiler and never mutated afterwards (spec.md §3).
type FunctionProto struct {
	Name         string
	Arity        int
	UpvalueCount int
	Upvalues     []UpvalueSpec
	Chunk        *Chunk
}

// UpvalueSpec describes how one of a function's upvalues is captured:
// either directly from a local slot of the immediately enclosing function
// (IsLocal true) or copied from the enclosing function's own upvalue array
// (IsLocal false). Encoded into the bytecode stream by OP_CLOSURE as
// (is_local: u8, index: u8) pairs (spec.md §4.2).
type UpvalueSpec struct {
	IsLocal bool
	Index   uint8
}

func (c *Chunk) addConstant(v any) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// writeByte appends a single raw byte and records its source line.
func (c *Chunk) writeByte(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines.add(line, 1)
}

// writeOp appends an opcode with no operand.
func (c *Chunk) writeOp(op Opcode, line int) {
	c.writeByte(byte(op), line)
}

// writeIndexed appends op followed by a 1-byte constant/slot index,
// or, when idx does not fit in one byte, the corresponding _LONG opcode
// (longOp) followed by a 3-byte big-endian index (spec.md §3's invariant:
// OP_CONSTANT indices fit u8, OP_CONSTANT_LONG accepts 24-bit indices).
func (c *Chunk) writeIndexed(op, longOp Opcode, idx int, line int) {
	if idx < 0 || idx > 0xFFFFFF {
		panic(fmt.Sprintf("index %d out of range", idx))
	}
	if idx <= 0xFF {
		c.writeOp(op, line)
		c.writeByte(byte(idx), line)
		return
	}
	c.writeOp(longOp, line)
	c.writeByte(byte(idx>>16), line)
	c.writeByte(byte(idx>>8), line)
	c.writeByte(byte(idx), line)
}

// writeJump appends a jump opcode with a placeholder 4-byte big-endian
// displacement and returns the offset of the first displacement byte, to
// be patched later by patchJump.
func (c *Chunk) writeJump(op Opcode, line int) int {
	c.writeOp(op, line)
	at := len(c.Code)
	c.writeByte(0, line)
	c.writeByte(0, line)
	c.writeByte(0, line)
	c.writeByte(0, line)
	return at
}

// patchJump backpatches the 4-byte displacement at offset 'at' (as
// returned by writeJump) to jump to the chunk's current end.
func (c *Chunk) patchJump(at int) {
	disp := int32(len(c.Code) - (at + 4))
	c.patchJumpTo(at, disp)
}

func (c *Chunk) patchJumpTo(at int, disp int32) {
	u := uint32(disp)
	c.Code[at] = byte(u >> 24)
	c.Code[at+1] = byte(u >> 16)
	c.Code[at+2] = byte(u >> 8)
	c.Code[at+3] = byte(u)
}

// writeLoop emits OP_LOOP with a displacement that jumps back to loopStart.
func (c *Chunk) writeLoop(loopStart int, line int) {
	at := c.writeJump(OP_LOOP, line)
	disp := int32(loopStart - (at + 4))
	c.patchJumpTo(at, disp)
}

// ReadJumpDisplacement decodes the 4-byte big-endian signed displacement
// starting at offset off.
func ReadJumpDisplacement(code []byte, off int) int32 {
	u := uint32(code[off])<<24 | uint32(code[off+1])<<16 | uint32(code[off+2])<<8 | uint32(code[off+3])
	return int32(u)
}

// lineTable is a run-length-encoded mapping from instruction offset to
// source line: consecutive instructions on the same line extend the
// current run's length instead of appending a new triple (spec.md §4.3).
type lineTable struct {
	runs []lineRun
}

type lineRun struct {
	line  int
	start int // starting instruction offset
	len   int // number of bytes covered
}

func (lt *lineTable) add(line, n int) {
	if len(lt.runs) > 0 {
		last := &lt.runs[len(lt.runs)-1]
		if last.line == line {
			last.len += n
			return
		}
	}
	var start int
	if len(lt.runs) > 0 {
		last := lt.runs[len(lt.runs)-1]
		start = last.start + last.len
	}
	lt.runs = append(lt.runs, lineRun{line: line, start: start, len: n})
}

// LineFor returns the source line that produced the instruction at the
// given byte offset. Lookup is O(n) in run count and is used only for
// error reporting (spec.md §4.3).
func (lt *lineTable) LineFor(offset int) int {
	for _, r := range lt.runs {
		if offset >= r.start && offset < r.start+r.len {
			return r.line
		}
	}
	if len(lt.runs) > 0 {
		return lt.runs[len(lt.runs)-1].line
	}
	return 0
}

// LineFor exposes the chunk's line lookup (spec.md §8 property 1).
func (c *Chunk) LineFor(offset int) int { return c.Lines.LineFor(offset) }
