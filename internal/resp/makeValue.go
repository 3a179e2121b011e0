package resp

import (
	"errors"
	"strconv"

	"github.com/eternalApril/moonstone/internal/dberr"
)

// MakeSimpleString construct SimpleString Value from string
func MakeSimpleString(s string) Value {
	return Value{
		Type:   TypeSimpleString,
		String: []byte(s),
	}
}

// MakeOK is the +OK status reply
func MakeOK() Value {
	return MakeSimpleString("OK")
}

// MakeError construct Error Value from string. The string must already carry its tag (ERR, WRONGTYPE...)
func MakeError(s string) Value {
	return Value{
		Type:   TypeError,
		String: []byte(s),
	}
}

// MakeErr converts an error into an error reply. Errors without a kind are reported as ERR
func MakeErr(err error) Value {
	var e *dberr.Error
	if errors.As(err, &e) {
		return MakeError(e.Reply())
	}
	return MakeError("ERR " + err.Error())
}

// MakeErrorWrongNumberOfArguments construct Error Value that command had wrong number of arguments for command
func MakeErrorWrongNumberOfArguments(cmd string) Value {
	return MakeErr(dberr.WrongArgs(cmd))
}

// MakeBulkString construct BulkString Value from string
func MakeBulkString(s string) Value {
	return Value{
		Type:   TypeBulkString,
		String: []byte(s),
	}
}

// MakeBulk construct BulkString Value from raw bytes without copying
func MakeBulk(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{
		Type:   TypeBulkString,
		String: b,
	}
}

// MakeNilBulkString construct nil BulkSting Value
func MakeNilBulkString() Value {
	return Value{
		Type:   TypeBulkString,
		IsNull: true,
	}
}

// MakeNilArray construct nil Array Value
func MakeNilArray() Value {
	return Value{
		Type:   TypeArray,
		IsNull: true,
	}
}

// MakeInteger construct Integer Value from int64
func MakeInteger(n int64) Value {
	return Value{
		Type:    TypeInteger,
		Integer: n,
	}
}

// MakeBool maps true/false to :1/:0
func MakeBool(b bool) Value {
	if b {
		return MakeInteger(1)
	}
	return MakeInteger(0)
}

// MakeFloat renders a float as a bulk string, as Redis does for scores and distances
func MakeFloat(f float64, prec int) Value {
	return MakeBulkString(strconv.FormatFloat(f, 'f', prec, 64))
}

// MakeArray creates a standard RESP array containing the provided elements
func MakeArray(values []Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{
		Type:  TypeArray,
		Array: values,
	}
}

// MakeBulkArray builds an array of bulk strings
func MakeBulkArray(items []string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = MakeBulkString(s)
	}
	return MakeArray(vals)
}
