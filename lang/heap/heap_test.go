package heap_test

import (
	"testing"

	"github.com/corolox/corolox/lang/heap"
	"github.com/corolox/corolox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noRoots() []value.Value { return nil }

func TestInternStringDeduplicates(t *testing.T) {
	h := heap.New()
	a := h.InternString("hello", noRoots)
	b := h.InternString("hello", noRoots)
	assert.Same(t, a, b)
	c := h.InternString("world", noRoots)
	assert.NotSame(t, a, c)
}

func TestCollectSweepsUnreachableList(t *testing.T) {
	h := heap.New()
	h.StressGC = true

	kept := h.NewList([]value.Value{value.Number(1)}, noRoots)
	keptBytes := h.BytesAllocated()
	roots := func() []value.Value { return []value.Value{kept} }

	// allocate a bunch of throwaway lists with no roots: each allocation
	// stress-collects, sweeping the throwaway left by the previous call.
	for i := 0; i < 20; i++ {
		h.NewList([]value.Value{value.Number(float64(i))}, roots)
	}

	// kept must still be alive and unchanged.
	v, ok := kept.Get(0)
	require.True(t, ok)
	assert.Equal(t, value.Number(1), v)

	// one more collection sweeps the last throwaway, leaving only kept.
	h.Collect(roots)
	assert.Equal(t, keptBytes, h.BytesAllocated())
}

func TestCollectSweepsDeadStringsFromInternTable(t *testing.T) {
	h := heap.New()
	first := h.InternString("transient", noRoots)
	h.Collect(noRoots) // nothing roots "transient": it should be swept

	again := h.InternString("transient", noRoots)
	require.NotNil(t, again)
	// a fresh allocation happened rather than a cache hit on the swept
	// string: re-interning must not return the same pointer.
	assert.NotSame(t, first, again)
}

func TestCollectRetainsDictChildren(t *testing.T) {
	h := heap.New()
	key := h.InternString("k", noRoots)
	d := h.NewDict(0, noRoots)
	d.Set(key, value.Number(42))

	roots := func() []value.Value { return []value.Value{d} }
	h.Collect(roots)

	v, ok := d.Get(key)
	require.True(t, ok)
	assert.Equal(t, value.Number(42), v)
}

func TestCollectDropsUnreachableDict(t *testing.T) {
	h := heap.New()
	key := h.InternString("k", noRoots)
	d := h.NewDict(0, noRoots)
	d.Set(key, value.Number(1))

	// d is not included in the roots this time.
	h.Collect(noRoots)

	// the key string is no longer reachable either, since its only
	// reference was the now-collected dict; re-interning must allocate
	// a brand new *String rather than returning the swept one.
	again := h.InternString("k", noRoots)
	assert.NotSame(t, key, again)
}

func TestProtectKeepsOperandAliveAcrossAllocation(t *testing.T) {
	h := heap.New()
	h.StressGC = true

	operand := h.InternString("survive-me", noRoots)
	// roots() deliberately does not mention operand: only protect does,
	// modeling the OP_ADD hazard where an operand has already been popped
	// off the stack before the allocation that might collect runs.
	h.InternString("other", noRoots, operand)

	assert.Equal(t, "survive-me", operand.String())
	again := h.InternString("survive-me", noRoots)
	assert.Same(t, operand, again)
}
