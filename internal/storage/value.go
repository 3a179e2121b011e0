package storage

// Kind identifies the variant held by a key
type Kind byte

const (
	KindString Kind = iota + 1
	KindList
	KindHash
	KindSet
	KindZSet
	KindJSON
	KindGeo
)

// String returns the name reported by the TYPE command
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	case KindJSON:
		return "ReJSON-RL"
	case KindGeo:
		return "geo"
	default:
		return "none"
	}
}

// Value is the closed set of storable variants. Only types in this package implement it
type Value interface {
	Kind() Kind
	// Clone returns a deep copy that shares no mutable state with the receiver
	Clone() Value
	sealed()
}

// String is a raw byte string
type String struct {
	B []byte
}

func NewString(b []byte) *String {
	return &String{B: append([]byte(nil), b...)}
}

func (s *String) Kind() Kind { return KindString }

func (s *String) Clone() Value { return NewString(s.B) }

func (*String) sealed() {}

// As returns v as T or ErrTypeMismatch. A nil v yields the zero T and false
func As[T Value](v Value) (T, bool, error) {
	var zero T
	if v == nil {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, errTypeMismatch
	}
	return t, true, nil
}
