package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/eternalApril/moonstone/internal/geo"
	"github.com/eternalApril/moonstone/internal/jsonpath"
)

// ErrCorruptValue is returned by DecodeValue for malformed payloads
var ErrCorruptValue = errors.New("corrupt value payload")

// EncodeValue renders v in the snapshot payload format. The kind byte is written separately
// by the caller; collections are encoded in sorted order so equal values encode equally
func EncodeValue(v Value) ([]byte, error) {
	var b []byte

	switch t := v.(type) {
	case *String:
		b = append(b, t.B...)

	case *List:
		b = binary.AppendUvarint(b, uint64(len(t.items)))
		for _, it := range t.items {
			b = appendString(b, it)
		}

	case *Hash:
		keys := t.Keys()
		b = binary.AppendUvarint(b, uint64(len(keys)))
		for _, k := range keys {
			b = appendString(b, k)
			b = appendString(b, t.fields[k])
		}

	case *Set:
		members := t.Members()
		b = binary.AppendUvarint(b, uint64(len(members)))
		for _, m := range members {
			b = appendString(b, m)
		}

	case *ZSet:
		b = binary.AppendUvarint(b, uint64(t.Len()))
		t.Each(func(m ZMember) bool {
			b = appendString(b, m.Member)
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(m.Score))
			return true
		})

	case *JSON:
		doc, err := jsonpath.Encode(t.Doc)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		b = append(b, doc...)

	case *Geo:
		members := slices.Sorted(maps.Keys(t.points))
		b = binary.AppendUvarint(b, uint64(len(members)))
		for _, m := range members {
			p := t.points[m]
			b = appendString(b, m)
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Lon))
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Lat))
		}

	default:
		return nil, fmt.Errorf("encode: unsupported value %T", v)
	}

	return b, nil
}

// DecodeValue rebuilds a value of the given kind from its payload
func DecodeValue(kind Kind, payload []byte) (Value, error) {
	d := &decoder{b: payload}

	switch kind {
	case KindString:
		return NewString(payload), nil

	case KindList:
		n := d.count()
		l := NewList()
		for i := uint64(0); i < n && d.err == nil; i++ {
			l.items = append(l.items, d.string())
		}
		return d.done(l)

	case KindHash:
		n := d.count()
		h := NewHash()
		for i := uint64(0); i < n && d.err == nil; i++ {
			k := d.string()
			h.fields[k] = d.string()
		}
		return d.done(h)

	case KindSet:
		n := d.count()
		s := NewSet()
		for i := uint64(0); i < n && d.err == nil; i++ {
			s.Add(d.string())
		}
		return d.done(s)

	case KindZSet:
		n := d.count()
		z := NewZSet()
		for i := uint64(0); i < n && d.err == nil; i++ {
			m := d.string()
			score := d.float()
			if math.IsNaN(score) {
				d.fail("NaN score")
			}
			z.Add(m, score)
		}
		return d.done(z)

	case KindJSON:
		doc, err := jsonpath.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
		}
		return NewJSON(doc), nil

	case KindGeo:
		n := d.count()
		g := NewGeo()
		for i := uint64(0); i < n && d.err == nil; i++ {
			m := d.string()
			p := geo.Point{Lon: d.float(), Lat: d.float()}
			if d.err == nil {
				if err := p.Validate(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
				}
				g.Add(m, p)
			}
		}
		return d.done(g)
	}

	return nil, fmt.Errorf("%w: unknown kind %d", ErrCorruptValue, kind)
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) fail(msg string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrCorruptValue, msg)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b)
	if n <= 0 {
		d.fail("bad length")
		return 0
	}
	d.b = d.b[n:]
	return v
}

// count reads an element count, rejecting counts the remaining bytes cannot hold
func (d *decoder) count() uint64 {
	n := d.uvarint()
	if n > uint64(len(d.b)) {
		d.fail("count exceeds payload")
		return 0
	}
	return n
}

func (d *decoder) string() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > uint64(len(d.b)) {
		d.fail("truncated string")
		return ""
	}
	s := string(d.b[:n])
	d.b = d.b[n:]
	return s
}

func (d *decoder) float() float64 {
	if d.err != nil {
		return 0
	}
	if len(d.b) < 8 {
		d.fail("truncated float")
		return 0
	}
	f := math.Float64frombits(binary.LittleEndian.Uint64(d.b))
	d.b = d.b[8:]
	return f
}

func (d *decoder) done(v Value) (Value, error) {
	if d.err != nil {
		return nil, d.err
	}
	if len(d.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptValue, len(d.b))
	}
	return v, nil
}
