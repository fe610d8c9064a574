package compiler_test

import (
	"strings"
	"testing"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *compiler.FunctionProto {
	t.Helper()
	fn, errs := compiler.Compile(src)
	require.Empty(t, errs)
	require.NotNil(t, fn)
	return fn
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	fn := mustCompile(t, "1 + 2 * 3;")
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_CONSTANT")
	assert.Contains(t, dis, "OP_MULTIPLY")
	assert.Contains(t, dis, "OP_ADD")
	// multiply must be emitted before add, since it binds tighter
	assert.Less(t, strings.Index(dis, "OP_MULTIPLY"), strings.Index(dis, "OP_ADD"))
}

func TestCompileGlobalVarRoundTrip(t *testing.T) {
	fn := mustCompile(t, "var x = 1; x = x + 1;")
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_DEFINE_GLOBAL")
	assert.Contains(t, dis, "OP_GET_GLOBAL")
	assert.Contains(t, dis, "OP_SET_GLOBAL")
}

func TestCompileLocalsDoNotTouchGlobalOps(t *testing.T) {
	fn := mustCompile(t, "{ var x = 1; x = x + 1; }")
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_GET_LOCAL")
	assert.Contains(t, dis, "OP_SET_LOCAL")
	assert.NotContains(t, dis, "OP_DEFINE_GLOBAL")
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn := mustCompile(t, `
fun outer() {
	var x = 1;
	fun inner() {
		return x;
	}
	return inner;
}
`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_CLOSURE")
	assert.Contains(t, dis, "OP_GET_UPVALUE")
	assert.Contains(t, dis, "local 1") // slot 1: x is the first local after the reserved callee slot
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	fn := mustCompile(t, `if (1) { print(1); } else { print(2); }`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_JUMP_IF_FALSE")
	assert.Contains(t, dis, "OP_JUMP")
}

func TestCompileWhileEmitsLoop(t *testing.T) {
	fn := mustCompile(t, `var i = 0; while (i) { i = i; }`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_LOOP")
}

func TestCompileForDesugarsToLoop(t *testing.T) {
	fn := mustCompile(t, `for (var i = 0; i; i = i) { print(i); }`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_LOOP")
}

func TestCompileBreakAndContinue(t *testing.T) {
	fn := mustCompile(t, `while (1) { if (1) { break; } continue; }`)
	dis := compiler.Disassemble(fn)
	// both break (OP_JUMP forward out of the loop) and continue (OP_LOOP
	// back to the condition) lower to jump-family opcodes already asserted
	// on above; this test only confirms the statements compile cleanly.
	assert.NotEmpty(t, dis)
}

func TestCompileListAndDictLiterals(t *testing.T) {
	fn := mustCompile(t, `[1, 2, 3]; {"a": 1, "b": 2};`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_LIST")
	assert.Contains(t, dis, "OP_DICT")
}

func TestCompileIndexingEmitsGetSetField(t *testing.T) {
	fn := mustCompile(t, `var xs = [1]; xs[0] = 2; print(xs[0]);`)
	dis := compiler.Disassemble(fn)
	assert.Contains(t, dis, "OP_SET_FIELD")
	assert.Contains(t, dis, "OP_GET_FIELD")
}

func TestCompileInvalidAssignmentTarget(t *testing.T) {
	_, errs := compiler.Compile(`1 + 2 = 3;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "invalid assignment target")
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, errs := compiler.Compile(`break;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "'break' outside of a loop")
}

func TestCompileRecoversAfterSyntaxError(t *testing.T) {
	// a stray ')' should produce exactly one error and not cascade into the
	// perfectly valid statement that follows it.
	_, errs := compiler.Compile("var x = );\nvar y = 1;")
	assert.Len(t, errs, 1)
}

func TestCompileLineNumbersTrackSource(t *testing.T) {
	fn := mustCompile(t, "1;\n2;\n3;")
	assert.Equal(t, 1, fn.Chunk.LineFor(0))
}
