package value

import "hash/fnv"

// String is an interned, immutable byte string. The heap's intern table
// (lang/heap) guarantees at most one *String exists per distinct content,
// so pointer equality is content equality (spec.md §3, §4.5).
//
// Grounded on _examples/original_source/src/object.h's
// object_string_t{length, chars, hash} field shape, with the hash
// computed once at construction via FNV-1a (spec.md §3 names the
// algorithm explicitly) rather than lazily.
type String struct {
	Object
	Chars string
	Hash  uint32
}

func (s *String) Type() string   { return "string" }
func (s *String) String() string { return s.Chars }
func (s *String) Len() int       { return len(s.Chars) }

// Children: strings are leaves in the reference graph.
func (s *String) Children() []Value { return nil }

// HashFNV1a computes the 32-bit FNV-1a hash of s, stored in every
// *String's Hash field. Neither the heap's intern table (keyed by the Go
// string) nor Dict (keyed by *String) consults it.
func HashFNV1a(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// NewStringUninterned constructs a *String without consulting or
// registering it with any intern table; lang/heap.Heap.InternString is
// the only code path that should call this, immediately followed by an
// intern-table lookup/insert (spec.md §4.5).
func NewStringUninterned(s string) *String {
	return &String{Chars: s, Hash: HashFNV1a(s)}
}
