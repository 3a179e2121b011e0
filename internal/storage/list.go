package storage

// List is an ordered sequence addressable from both ends
type List struct {
	items []string
}

func NewList() *List {
	return &List{}
}

func (l *List) Kind() Kind { return KindList }

func (l *List) Clone() Value {
	return &List{items: append([]string(nil), l.items...)}
}

func (*List) sealed() {}

func (l *List) Len() int {
	return len(l.items)
}

// PushLeft inserts each value at the head in argument order, so the last one ends up first
func (l *List) PushLeft(vals ...string) int {
	head := make([]string, 0, len(vals)+len(l.items))
	for i := len(vals) - 1; i >= 0; i-- {
		head = append(head, vals[i])
	}
	l.items = append(head, l.items...)
	return len(l.items)
}

func (l *List) PushRight(vals ...string) int {
	l.items = append(l.items, vals...)
	return len(l.items)
}

// PopLeft removes up to n elements from the head
func (l *List) PopLeft(n int) []string {
	n = min(n, len(l.items))
	out := append([]string(nil), l.items[:n]...)
	l.items = l.items[n:]
	return out
}

// PopRight removes up to n elements from the tail, nearest to the tail first
func (l *List) PopRight(n int) []string {
	n = min(n, len(l.items))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.items[len(l.items)-1-i])
	}
	l.items = l.items[:len(l.items)-n]
	return out
}

// Range returns elements between start and stop inclusive, with negative indexes counted from the tail
func (l *List) Range(start, stop int) []string {
	lo, hi, ok := normalizeRange(start, stop, len(l.items))
	if !ok {
		return []string{}
	}
	return append([]string(nil), l.items[lo:hi+1]...)
}

func (l *List) Index(i int) (string, bool) {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return "", false
	}
	return l.items[i], true
}

func (l *List) Set(i int, v string) error {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return ErrIndexOutOfRange
	}
	l.items[i] = v
	return nil
}

// normalizeRange applies Redis range rules: negative indexes, clamping, empty when start > stop
func normalizeRange(start, stop, n int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
