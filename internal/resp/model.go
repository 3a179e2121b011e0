package resp

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// Value is a single RESP reply. Nested arrays are supported to any depth
type Value struct {
	String  []byte // SimpleString, Error, BulkString
	Array   []Value
	Integer int64
	Type    byte
	IsNull  bool // For nil BulkString and nil Array
}

// IsError reports whether v is an error reply
func (v Value) IsError() bool {
	return v.Type == TypeError
}
