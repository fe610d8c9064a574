package vm

import (
	"github.com/dolthub/swiss"

	"github.com/corolox/corolox/lang/value"
)

// Globals is the process-wide (per-Thread) table of global variables.
// OP_DEFINE_GLOBAL always writes unconditionally; OP_SET_GLOBAL errors if
// the name was never defined; OP_GET_GLOBAL of an undefined name yields
// nil rather than erroring — the Open Question spec.md §9 raises, decided
// in favor of the more permissive "undefined global reads as nil" so a
// REPL session can reference a variable defined in a statement that
// hasn't executed yet without the whole program aborting.
//
// Grounded on nenuphar's lang/machine/map.go Map (same dolthub/swiss,
// replaced by the mna/swiss fork, generic hash map), narrowed to a
// *value.String key exactly like lang/value.Dict.
type Globals struct {
	m *swiss.Map[*value.String, value.Value]
}

func newGlobals() *Globals {
	return &Globals{m: swiss.NewMap[*value.String, value.Value](64)}
}

// Define unconditionally (re)binds name to v.
func (g *Globals) Define(name *value.String, v value.Value) {
	g.m.Put(name, v)
}

// Get returns the value bound to name, or value.Nil if it was never
// defined.
func (g *Globals) Get(name *value.String) value.Value {
	if v, ok := g.m.Get(name); ok {
		return v
	}
	return value.Nil
}

// Set rebinds an already-defined name, reporting whether it existed.
func (g *Globals) Set(name *value.String, v value.Value) bool {
	if _, ok := g.m.Get(name); !ok {
		return false
	}
	g.m.Put(name, v)
	return true
}

// roots returns every key and value currently bound, for the collector's
// root set (spec.md §4.5: the globals table is always a GC root).
func (g *Globals) roots() []value.Value {
	out := make([]value.Value, 0, g.m.Count()*2)
	g.m.Iter(func(k *value.String, v value.Value) bool {
		out = append(out, k, v)
		return false
	})
	return out
}
