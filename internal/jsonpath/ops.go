package jsonpath

// Get returns every value matched by p, or an empty slice when nothing matches
func Get(doc any, p *Path) []any {
	nodes := locate(node{v: doc, set: func(any) {}}, p.segs)
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n.v
	}
	return out
}

// Set returns a copy of doc with v written at every match of p and the number of writes.
// Definite paths create missing containers on the way down: a field creates an object and
// index 0 (or one past the end) creates or extends an array. Wildcard paths only update.
// doc is never modified
func Set(doc any, p *Path, v any) (any, int, error) {
	if p.IsRoot() {
		return Clone(v), 1, nil
	}

	root := Clone(doc)
	if p.Definite() {
		return setDefinite(root, p.segs, v)
	}

	nodes := locate(node{v: root, set: func(x any) { root = x }}, p.segs)
	for _, n := range nodes {
		n.set(Clone(v))
	}
	return root, len(nodes), nil
}

func setDefinite(root any, segs []segment, v any) (any, int, error) {
	cur := node{v: root, set: func(x any) { root = x }}

	for i, seg := range segs {
		last := i == len(segs)-1

		switch seg.kind {
		case segField:
			m, ok := cur.v.(map[string]any)
			if !ok {
				return nil, 0, invalidPath("path segment %q does not address an object", seg.name)
			}
			child, exists := m[seg.name]
			if !exists && !last {
				if child, ok = emptyFor(segs[i+1]); !ok {
					return nil, 0, invalidPath("cannot create %q: path is ambiguous", seg.name)
				}
				m[seg.name] = child
			}
			cur = fieldNode(m, seg.name, child)

		case segIndex:
			a, ok := cur.v.([]any)
			if !ok {
				return nil, 0, invalidPath("index [%d] does not address an array", seg.index)
			}
			idx := seg.index
			if idx < 0 {
				idx += len(a)
			}
			switch {
			case idx >= 0 && idx < len(a):
				cur = indexNode(a, idx)
			case seg.index >= 0 && idx == len(a):
				var child any
				if !last {
					if child, ok = emptyFor(segs[i+1]); !ok {
						return nil, 0, invalidPath("cannot create element [%d]: path is ambiguous", idx)
					}
				}
				a = append(a, child)
				cur.set(a)
				cur = indexNode(a, idx)
			default:
				return nil, 0, invalidPath("array index [%d] out of range", seg.index)
			}
		}
	}

	cur.set(Clone(v))
	return root, 1, nil
}

// emptyFor returns the container the next segment needs
func emptyFor(next segment) (any, bool) {
	switch {
	case next.kind == segField:
		return map[string]any{}, true
	case next.kind == segIndex && next.index == 0:
		return []any{}, true
	}
	return nil, false
}

// Delete returns a copy of doc without the matches of p and how many were removed.
// Deleting the root yields a nil document with count 1; the caller removes the key
func Delete(doc any, p *Path) (any, int, error) {
	if p.IsRoot() {
		return nil, 1, nil
	}

	root := Clone(doc)
	nodes := locate(node{v: root, set: func(x any) { root = x }}, p.segs)
	if len(nodes) == 0 {
		return doc, 0, nil
	}
	for _, n := range nodes {
		n.set(deleted)
	}
	return sweep(root), len(nodes), nil
}

// ApplyFunc transforms one matched value. ok=false leaves it untouched and yields a nil result
type ApplyFunc func(v any) (nv any, ok bool, err error)

// Apply runs fn on every match of p in a copy of doc. It returns the new document and,
// per match, the replaced value (nil where fn declined). Any error discards the copy
func Apply(doc any, p *Path, fn ApplyFunc) (any, []any, error) {
	root := Clone(doc)
	nodes := locate(node{v: root, set: func(x any) { root = x }}, p.segs)

	results := make([]any, len(nodes))
	for i, n := range nodes {
		nv, ok, err := fn(n.v)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		n.set(nv)
		results[i] = nv
	}
	return root, results, nil
}
