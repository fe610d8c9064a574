package vm_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/corolox/corolox/lang/vm"
	"github.com/stretchr/testify/assert"
)

// TestArithmeticMatchesFloat64Semantics generates random arithmetic
// expressions over small integer operands and checks that the
// interpreter's result agrees with evaluating the same expression with
// Go's own float64 arithmetic (spec.md §8: "a property-based test
// generator should emit random arithmetic expressions and verify that
// the interpreter's result matches evaluating the same expression with
// double arithmetic in the test harness").
func TestArithmeticMatchesFloat64Semantics(t *testing.T) {
	ops := []byte{'+', '-', '*', '/'}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		a := float64(rng.Intn(200) - 100)
		b := float64(rng.Intn(200)-100) + 1
		if b == 0 {
			b = 1 // avoid exact zero divisor
		}
		op := ops[rng.Intn(len(ops))]

		var want float64
		switch op {
		case '+':
			want = a + b
		case '-':
			want = a - b
		case '*':
			want = a * b
		case '/':
			want = a / b
		}

		src := fmt.Sprintf("return %s %c %s;", literal(a), op, literal(b))
		th := vm.NewThread()
		got := mustRun(t, th, src)

		assert.Equal(t, wantNumberString(want), got, "expr: %s", src)
	}
}

// literal renders f as corolox source, parenthesizing negatives so a
// leading unary minus can't be swallowed by the surrounding binary
// operator's precedence.
func literal(f float64) string {
	if f < 0 {
		return fmt.Sprintf("(-%s)", wantNumberString(-f))
	}
	return wantNumberString(f)
}

// wantNumberString mirrors lang/value's own Number.String formatting so
// the comparison isn't tripped up by incidental float-printing
// differences between this test and the interpreter.
func wantNumberString(f float64) string {
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
