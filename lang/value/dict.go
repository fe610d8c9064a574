package value

import "github.com/dolthub/swiss"

// Dict is a hash map keyed by interned strings (spec.md §3). Grounded on
// nenuphar's lang/machine/map.go Map type, which wraps the same
// dolthub/swiss generic hash map (replaced, via the module's replace
// directive, by the mna/swiss fork); here the key type is narrowed from
// a general Value to *String since corolox dicts are string-keyed only.
type Dict struct {
	Object
	m *swiss.Map[*String, Value]
}

func NewDict(size int) *Dict {
	return &Dict{m: swiss.NewMap[*String, Value](uint32(size))}
}

func (d *Dict) Type() string   { return "dict" }
func (d *Dict) String() string { return "<dict>" }

func (d *Dict) Get(key *String) (Value, bool) {
	return d.m.Get(key)
}

func (d *Dict) Set(key *String, v Value) {
	d.m.Put(key, v)
}

func (d *Dict) Delete(key *String) bool {
	return d.m.Delete(key)
}

func (d *Dict) Len() int {
	return d.m.Count()
}

// Children returns every key and value currently stored, so the GC
// tracer keeps both alive (spec.md §4.5: a Dict owns strong references
// to its entries, unlike the heap's weak string intern table).
func (d *Dict) Children() []Value {
	children := make([]Value, 0, d.m.Count()*2)
	d.m.Iter(func(k *String, v Value) bool {
		children = append(children, k, v)
		return false
	})
	return children
}

// Each calls fn for every key/value pair; iteration order is
// unspecified (spec.md §3).
func (d *Dict) Each(fn func(k *String, v Value) bool) {
	d.m.Iter(fn)
}
