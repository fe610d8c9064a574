// Package compiler implements the single-pass Pratt compiler for corolox:
// it consumes tokens from lang/scanner and emits bytecode directly into a
// Chunk, resolving locals, upvalues and globals as it goes (spec.md §4.2).
//
// The opcode table and disassembler shape are adapted from
// github.com/mna/nenuphar's lang/compiler/opcode.go (stack-picture
// comments, a name table indexed by Opcode; nenuphar's per-opcode
// stack-effect table is not carried over), reshaped from
// nenuphar's varint-encoded, CFG-block opcode set to spec.md §4.3's
// clox-shaped set: fixed 1-or-3-byte constant/slot operands plus a
// uniform 4-byte big-endian jump displacement.
package compiler

import "fmt"

// Opcode identifies one bytecode instruction.
type Opcode uint8

// "x OP_NAME y" stack pictures describe operand stack state before/after.
const ( //nolint:revive
	OP_CONSTANT      Opcode = iota // - OP_CONSTANT<u8>       value
	OP_CONSTANT_LONG               // - OP_CONSTANT_LONG<u24> value
	OP_NIL                         // - OP_NIL   nil
	OP_TRUE                        // - OP_TRUE  true
	OP_FALSE                       // - OP_FALSE false
	OP_POP                         // x OP_POP -

	OP_GET_LOCAL       // - OP_GET_LOCAL<u8>       value
	OP_GET_LOCAL_LONG  // - OP_GET_LOCAL_LONG<u24> value
	OP_SET_LOCAL       // x OP_SET_LOCAL<u8>       x
	OP_SET_LOCAL_LONG  // x OP_SET_LOCAL_LONG<u24> x

	OP_GET_GLOBAL      // - OP_GET_GLOBAL<u8-name>       value
	OP_GET_GLOBAL_LONG // - OP_GET_GLOBAL_LONG<u24-name> value
	OP_SET_GLOBAL      // x OP_SET_GLOBAL<u8-name>       x
	OP_SET_GLOBAL_LONG // x OP_SET_GLOBAL_LONG<u24-name> x
	OP_DEFINE_GLOBAL      // value OP_DEFINE_GLOBAL<u8-name>       -
	OP_DEFINE_GLOBAL_LONG // value OP_DEFINE_GLOBAL_LONG<u24-name> -

	OP_GET_UPVALUE // - OP_GET_UPVALUE<u8> value
	OP_SET_UPVALUE // x OP_SET_UPVALUE<u8> x
	OP_CLOSE_UPVALUE // x OP_CLOSE_UPVALUE -

	OP_EQUAL
	OP_GREATER
	OP_LESS
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_NEGATE
	OP_NOT

	OP_JUMP          // - OP_JUMP<i32>          -            (unconditional, always forward)
	OP_JUMP_IF_FALSE // cond OP_JUMP_IF_FALSE<i32> cond       (condition stays on the stack)
	OP_LOOP          // - OP_LOOP<i32>          -            (always backward)

	OP_CALL // fn arg1..argN OP_CALL<u8-argc> result

	OP_RETURN // value OP_RETURN -

	OP_CLOSURE      // - OP_CLOSURE<u8-fn>      [+2N] closure
	OP_CLOSURE_LONG // - OP_CLOSURE_LONG<u24-fn> [+2N] closure

	OP_LIST      // x1..xn OP_LIST<u8-n>      list
	OP_LIST_LONG // x1..xn OP_LIST_LONG<u24-n> list
	OP_DICT      // k1 v1..kn vn OP_DICT<u8-n>      dict
	OP_DICT_LONG // k1 v1..kn vn OP_DICT_LONG<u24-n> dict

	OP_GET_FIELD // container key OP_GET_FIELD value
	OP_SET_FIELD // container key value OP_SET_FIELD value

	OP_COROUTINE // closure OP_COROUTINE coroutine

	OP_YIELD // value OP_YIELD value
	OP_AWAIT // value OP_AWAIT value

	opcodeMax
)

var opcodeNames = [...]string{
	OP_CONSTANT:           "OP_CONSTANT",
	OP_CONSTANT_LONG:      "OP_CONSTANT_LONG",
	OP_NIL:                "OP_NIL",
	OP_TRUE:               "OP_TRUE",
	OP_FALSE:              "OP_FALSE",
	OP_POP:                "OP_POP",
	OP_GET_LOCAL:          "OP_GET_LOCAL",
	OP_GET_LOCAL_LONG:     "OP_GET_LOCAL_LONG",
	OP_SET_LOCAL:          "OP_SET_LOCAL",
	OP_SET_LOCAL_LONG:     "OP_SET_LOCAL_LONG",
	OP_GET_GLOBAL:         "OP_GET_GLOBAL",
	OP_GET_GLOBAL_LONG:    "OP_GET_GLOBAL_LONG",
	OP_SET_GLOBAL:         "OP_SET_GLOBAL",
	OP_SET_GLOBAL_LONG:    "OP_SET_GLOBAL_LONG",
	OP_DEFINE_GLOBAL:      "OP_DEFINE_GLOBAL",
	OP_DEFINE_GLOBAL_LONG: "OP_DEFINE_GLOBAL_LONG",
	OP_GET_UPVALUE:        "OP_GET_UPVALUE",
	OP_SET_UPVALUE:        "OP_SET_UPVALUE",
	OP_CLOSE_UPVALUE:      "OP_CLOSE_UPVALUE",
	OP_EQUAL:              "OP_EQUAL",
	OP_GREATER:            "OP_GREATER",
	OP_LESS:               "OP_LESS",
	OP_ADD:                "OP_ADD",
	OP_SUBTRACT:           "OP_SUBTRACT",
	OP_MULTIPLY:           "OP_MULTIPLY",
	OP_DIVIDE:             "OP_DIVIDE",
	OP_NEGATE:             "OP_NEGATE",
	OP_NOT:                "OP_NOT",
	OP_JUMP:               "OP_JUMP",
	OP_JUMP_IF_FALSE:      "OP_JUMP_IF_FALSE",
	OP_LOOP:               "OP_LOOP",
	OP_CALL:               "OP_CALL",
	OP_RETURN:             "OP_RETURN",
	OP_CLOSURE:            "OP_CLOSURE",
	OP_CLOSURE_LONG:       "OP_CLOSURE_LONG",
	OP_LIST:               "OP_LIST",
	OP_LIST_LONG:          "OP_LIST_LONG",
	OP_DICT:               "OP_DICT",
	OP_DICT_LONG:          "OP_DICT_LONG",
	OP_GET_FIELD:          "OP_GET_FIELD",
	OP_SET_FIELD:          "OP_SET_FIELD",
	OP_COROUTINE:          "OP_COROUTINE",
	OP_YIELD:              "OP_YIELD",
	OP_AWAIT:              "OP_AWAIT",
}

func (op Opcode) String() string {
	if op < opcodeMax {
		if n := opcodeNames[op]; n != "" {
			return n
		}
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// isJump reports whether op carries a 4-byte big-endian signed
// displacement operand (spec.md §4.2: "All jumps are four-byte
// big-endian signed displacements").
func isJump(op Opcode) bool {
	return op == OP_JUMP || op == OP_JUMP_IF_FALSE || op == OP_LOOP
}
