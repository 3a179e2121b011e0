package storage

import (
	"maps"
	"slices"
)

// Hash maps field names to values
type Hash struct {
	fields map[string]string
}

func NewHash() *Hash {
	return &Hash{fields: make(map[string]string)}
}

func (h *Hash) Kind() Kind { return KindHash }

func (h *Hash) Clone() Value {
	return &Hash{fields: maps.Clone(h.fields)}
}

func (*Hash) sealed() {}

// Set returns true when the field did not exist before
func (h *Hash) Set(field, value string) bool {
	_, existed := h.fields[field]
	h.fields[field] = value
	return !existed
}

func (h *Hash) Get(field string) (string, bool) {
	v, ok := h.fields[field]
	return v, ok
}

func (h *Hash) Del(fields ...string) int {
	n := 0
	for _, f := range fields {
		if _, ok := h.fields[f]; ok {
			delete(h.fields, f)
			n++
		}
	}
	return n
}

func (h *Hash) Len() int {
	return len(h.fields)
}

// Keys returns field names in lexicographic order
func (h *Hash) Keys() []string {
	return slices.Sorted(maps.Keys(h.fields))
}

// Pairs returns field, value, field, value... ordered by field
func (h *Hash) Pairs() []string {
	keys := h.Keys()
	out := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, h.fields[k])
	}
	return out
}
