package vm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/corolox/corolox/lang/compiler"
	"github.com/corolox/corolox/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRun(t *testing.T, th *vm.Thread, src string) (value string) {
	t.Helper()
	fn, errs := compiler.Compile(src)
	require.Empty(t, errs)
	v, err := th.Run(context.Background(), fn)
	require.NoError(t, err)
	return v.String()
}

func TestArithmeticPrecedenceAndAssociativity(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "7", mustRun(t, th, "return 1 + 2 * 3;"))
}

func TestStringConcatenation(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "helloworld", mustRun(t, th, `return "hello" + "world";`))
}

func TestGlobalVariableRoundTrip(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "3", mustRun(t, th, "var x = 1; x = x + 2; return x;"))
}

func TestSetUndefinedGlobalIsRuntimeError(t *testing.T) {
	th := vm.NewThread()
	_, err := th.Run(context.Background(), compileOrFail(t, "x = 1;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable")
}

func TestGetUndefinedGlobalYieldsNil(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "nil", mustRun(t, th, "return x;"))
}

func TestLocalScoping(t *testing.T) {
	th := vm.NewThread()
	src := `
		var x = "outer";
		{
			var x = "inner";
		}
		return x;
	`
	assert.Equal(t, "outer", mustRun(t, th, src))
}

func TestIfElse(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "yes", mustRun(t, th, `if (1 < 2) { return "yes"; } else { return "no"; }`))
}

func TestWhileLoop(t *testing.T) {
	th := vm.NewThread()
	src := `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
		return sum;
	`
	assert.Equal(t, "10", mustRun(t, th, src))
}

func TestForLoopWithBreakAndContinue(t *testing.T) {
	th := vm.NewThread()
	src := `
		var sum = 0;
		for (var i = 0; i < 10; i = i + 1) {
			if (i == 5) { break; }
			if (i == 2) { continue; }
			sum = sum + i;
		}
		return sum;
	`
	// 0 + 1 + 3 + 4 = 8 (2 skipped, loop stops before adding 5)
	assert.Equal(t, "8", mustRun(t, th, src))
}

func TestContinuePopsLocalsDeclaredInLoopBody(t *testing.T) {
	th := vm.NewThread()
	src := `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			var tmp = i;
			i = i + 1;
			if (tmp == 2) { continue; }
			sum = sum + tmp;
		}
		return sum;
	`
	// 0 + 1 + 3 + 4 = 8 (2 skipped via continue, each iteration's "tmp" must
	// not leak an extra stack slot into the next one).
	assert.Equal(t, "8", mustRun(t, th, src))
}

func TestBreakPopsLocalsDeclaredInLoopBody(t *testing.T) {
	th := vm.NewThread()
	src := `
		var i = 0;
		var sum = 0;
		while (i < 10) {
			var tmp = i;
			i = i + 1;
			if (tmp == 3) { break; }
			sum = sum + tmp;
		}
		sum = sum + i;
		return sum;
	`
	// 0 + 1 + 2 = 3, plus i == 4 at break time = 7; the stack must be clean
	// enough afterward that reading "i" still resolves to the right slot.
	assert.Equal(t, "7", mustRun(t, th, src))
}

func TestClosureCapturesUpvalueByReference(t *testing.T) {
	th := vm.NewThread()
	src := `
		fun counter() {
			var n = 0;
			fun increment() {
				n = n + 1;
				return n;
			}
			return increment;
		}
		var inc = counter();
		inc();
		return inc();
	`
	assert.Equal(t, "2", mustRun(t, th, src))
}

func TestTwoClosuresShareSameUpvalue(t *testing.T) {
	th := vm.NewThread()
	src := `
		fun pair() {
			var n = 0;
			fun get() { return n; }
			fun set(v) { n = v; }
			set(9);
			return get();
		}
		return pair();
	`
	assert.Equal(t, "9", mustRun(t, th, src))
}

func TestRecursiveFunctionCall(t *testing.T) {
	th := vm.NewThread()
	src := `
		fun fact(n) {
			if (n < 2) { return 1; }
			return n * fact(n - 1);
		}
		return fact(5);
	`
	assert.Equal(t, "120", mustRun(t, th, src))
}

func TestListLiteralAndIndexing(t *testing.T) {
	th := vm.NewThread()
	src := `
		var xs = [1, 2, 3];
		xs[1] = 20;
		return xs[0] + xs[1] + xs[2];
	`
	assert.Equal(t, "24", mustRun(t, th, src))
}

func TestListIndexOutOfRangeIsRuntimeError(t *testing.T) {
	th := vm.NewThread()
	_, err := th.Run(context.Background(), compileOrFail(t, "var xs = [1]; return xs[5];"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDictLiteralAndFieldAccess(t *testing.T) {
	th := vm.NewThread()
	src := `
		var d = {"a": 1, "b": 2};
		d.a = 10;
		return d.a + d.b;
	`
	assert.Equal(t, "12", mustRun(t, th, src))
}

func TestDictMissingKeyYieldsNil(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "nil", mustRun(t, th, `var d = {}; return d.missing;`))
}

func TestPrintNativeWritesToStdout(t *testing.T) {
	var out bytes.Buffer
	th := vm.NewThread()
	th.Stdout = &out
	mustRun(t, th, `print(1, "two", true);`)
	assert.Equal(t, "1 two true\n", out.String())
}

func TestTypeAndIsNatives(t *testing.T) {
	th := vm.NewThread()
	assert.Equal(t, "number", mustRun(t, th, "return type(1);"))
	assert.Equal(t, "true", mustRun(t, th, `return is(1, "number");`))
	assert.Equal(t, "false", mustRun(t, th, `return is("x", "number");`))
}

func TestCoroutineResumeAndYield(t *testing.T) {
	th := vm.NewThread()
	src := `
		fun gen() {
			yield 1;
			yield 2;
			return 3;
		}
		var co = coroutine(gen);
		var a = co();
		var b = co();
		var c = co();
		return a + b + c;
	`
	assert.Equal(t, "6", mustRun(t, th, src))
}

func TestAwaitIsReservedAndErrors(t *testing.T) {
	th := vm.NewThread()
	_, err := th.Run(context.Background(), compileOrFail(t, "await 1;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "await")
}

func TestCallArityMismatchIsRuntimeError(t *testing.T) {
	th := vm.NewThread()
	src := `fun f(a, b) { return a + b; } return f(1);`
	_, err := th.Run(context.Background(), compileOrFail(t, src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 arguments")
}

func TestGCReclaimsUnreachableListUnderStress(t *testing.T) {
	th := vm.NewThread()
	th.Heap.StressGC = true
	src := `
		var i = 0;
		while (i < 50) {
			var xs = [i, i, i];
			i = i + 1;
		}
		return i;
	`
	assert.Equal(t, "50", mustRun(t, th, src))
}

func compileOrFail(t *testing.T, src string) *compiler.FunctionProto {
	t.Helper()
	fn, errs := compiler.Compile(src)
	require.Empty(t, errs)
	return fn
}
