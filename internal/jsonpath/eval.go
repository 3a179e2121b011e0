package jsonpath

import (
	"maps"
	"slices"
)

// node is a matched value together with the way to replace it in its parent
type node struct {
	v   any
	set func(any)
}

type tombstone struct{}

var deleted = &tombstone{}

// locate returns every node matched by segs. Matches are ordered by document position,
// with object members visited in key order
func locate(root node, segs []segment) []node {
	nodes := []node{root}
	for _, seg := range segs {
		nodes = step(nodes, seg)
		if len(nodes) == 0 {
			break
		}
	}
	return nodes
}

func step(in []node, seg segment) []node {
	var out []node
	for _, n := range in {
		switch seg.kind {
		case segField:
			if m, ok := n.v.(map[string]any); ok {
				if c, ok := m[seg.name]; ok {
					out = append(out, fieldNode(m, seg.name, c))
				}
			}
		case segIndex:
			if a, ok := n.v.([]any); ok {
				i := seg.index
				if i < 0 {
					i += len(a)
				}
				if i >= 0 && i < len(a) {
					out = append(out, indexNode(a, i))
				}
			}
		case segWildcard:
			out = appendChildren(out, n)
		case segRecurse:
			out = appendDescendants(out, n)
		}
	}
	return out
}

func fieldNode(m map[string]any, k string, v any) node {
	return node{v: v, set: func(x any) { m[k] = x }}
}

func indexNode(a []any, i int) node {
	return node{v: a[i], set: func(x any) { a[i] = x }}
}

func appendChildren(out []node, n node) []node {
	switch t := n.v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			out = append(out, fieldNode(t, k, t[k]))
		}
	case []any:
		for i := range t {
			out = append(out, indexNode(t, i))
		}
	}
	return out
}

func appendDescendants(out []node, n node) []node {
	out = append(out, n)
	for _, c := range appendChildren(nil, n) {
		out = appendDescendants(out, c)
	}
	return out
}

// sweep drops tombstoned object members and array elements
func sweep(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if c == any(deleted) {
				delete(t, k)
				continue
			}
			t[k] = sweep(c)
		}
	case []any:
		out := t[:0]
		for _, c := range t {
			if c == any(deleted) {
				continue
			}
			out = append(out, sweep(c))
		}
		clear(t[len(out):])
		return out
	}
	return v
}
