package value_test

import (
	"testing"

	"github.com/corolox/corolox/lang/value"
	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	assert.False(t, value.Truthy(value.Nil))
	assert.False(t, value.Truthy(value.Bool(false)))
	assert.True(t, value.Truthy(value.Bool(true)))
	assert.True(t, value.Truthy(value.Number(0)))
	assert.True(t, value.Truthy(value.NewStringUninterned("")))
}

func TestEqualNumbersAndBools(t *testing.T) {
	assert.True(t, value.Equal(value.Number(1), value.Number(1)))
	assert.False(t, value.Equal(value.Number(1), value.Number(2)))
	assert.True(t, value.Equal(value.Bool(true), value.Bool(true)))
	assert.False(t, value.Equal(value.Number(1), value.Bool(true)))
}

func TestEqualStringsByIdentity(t *testing.T) {
	a := value.NewStringUninterned("hi")
	b := value.NewStringUninterned("hi")
	// distinct allocations, same content: not equal without interning.
	assert.False(t, value.Equal(a, b))
	assert.True(t, value.Equal(a, a))
}

func TestNumberString(t *testing.T) {
	assert.Equal(t, "3", value.Number(3).String())
	assert.Equal(t, "3.5", value.Number(3.5).String())
}

func TestListGetSetAppend(t *testing.T) {
	l := value.NewList([]value.Value{value.Number(1), value.Number(2)})
	assert.Equal(t, 2, l.Len())
	v, ok := l.Get(0)
	assert.True(t, ok)
	assert.Equal(t, value.Number(1), v)

	assert.True(t, l.Set(1, value.Number(9)))
	v, _ = l.Get(1)
	assert.Equal(t, value.Number(9), v)

	_, ok = l.Get(5)
	assert.False(t, ok)

	l.Append(value.Number(3))
	assert.Equal(t, 3, l.Len())
}

func TestDictGetSetDelete(t *testing.T) {
	d := value.NewDict(0)
	k := value.NewStringUninterned("a")
	d.Set(k, value.Number(1))

	v, ok := d.Get(k)
	assert.True(t, ok)
	assert.Equal(t, value.Number(1), v)
	assert.Equal(t, 1, d.Len())

	assert.True(t, d.Delete(k))
	_, ok = d.Get(k)
	assert.False(t, ok)
}

func TestDictChildrenIncludesKeysAndValues(t *testing.T) {
	d := value.NewDict(0)
	k := value.NewStringUninterned("a")
	v := value.Number(1)
	d.Set(k, v)

	children := d.Children()
	assert.Contains(t, children, value.Value(k))
	assert.Contains(t, children, value.Value(v))
}

func TestHashFNV1aDeterministic(t *testing.T) {
	assert.Equal(t, value.HashFNV1a("abc"), value.HashFNV1a("abc"))
	assert.NotEqual(t, value.HashFNV1a("abc"), value.HashFNV1a("abd"))
}
