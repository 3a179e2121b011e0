package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONCommands(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"set and get", []step{
			{`JSON.SET doc $ {"a":1,"b":[1,2],"c":{"d":"x"}}`, "OK"},
			{`JSON.GET doc`, `{"a":1,"b":[1,2],"c":{"d":"x"}}`},
			{`JSON.GET doc $.a`, `[1]`},
			{`JSON.GET doc .c.d`, `"x"`},
			{`JSON.GET doc $..d`, `["x"]`},
			{`JSON.GET doc $.nope`, `[]`},
			{`JSON.GET doc .nope`, `ERR Path '.nope' does not exist`},
			{`JSON.GET doc .a $.b`, `{"$.b":[[1,2]],".a":1}`},
			{`JSON.GET missing`, "(nil)"},
			{`JSON.SET doc $.e.f 5`, "OK"},
			{`JSON.GET doc $.e`, `[{"f":5}]`},
			{`JSON.SET doc $.a 2 NX`, "(nil)"},
			{`JSON.SET doc $.z 2 XX`, "(nil)"},
			{`JSON.SET doc $.a 3 XX`, "OK"},
			{`JSON.GET doc .a`, `3`},
			{`JSON.SET doc $ 1 NX`, "(nil)"},
			{`JSON.SET fresh $.a 1`, "ERR new objects must be created at the root"},
			{`JSON.SET fresh $ 1 XX`, "(nil)"},
			{`JSON.SET doc $ 1 BOTH`, "ERR syntax error"},
		}},
		{"numbers keep their text", []step{
			{`JSON.SET doc $ {"big":12345678901234567890,"f":1.10}`, "OK"},
			{`JSON.GET doc`, `{"big":12345678901234567890,"f":1.10}`},
		}},
		{"del and type", []step{
			{`JSON.SET doc $ {"a":1,"b":[1,2.5,"s",true,null]}`, "OK"},
			{`JSON.TYPE doc`, "object"},
			{`JSON.TYPE doc .a`, "integer"},
			{`JSON.TYPE doc $.b[*]`, "[integer number string boolean null]"},
			{`JSON.TYPE doc .nope`, "(nil)"},
			{`JSON.TYPE missing`, "(nil)"},
			{`JSON.DEL doc $.b[*]`, "5"},
			{`JSON.GET doc $.b`, `[[]]`},
			{`JSON.DEL doc .nope`, "0"},
			{`JSON.DEL doc`, "1"},
			{`EXISTS doc`, "0"},
			{`JSON.DEL doc`, "0"},
		}},
		{"arrappend and numincrby", []step{
			{`JSON.SET doc $ {"a":[1],"b":{"a":"x"},"n":1,"m":{"n":1.5}}`, "OK"},
			{`JSON.ARRAPPEND doc $.a 2 3`, "[3]"},
			{`JSON.ARRAPPEND doc $..a 4`, "[4 (nil)]"},
			{`JSON.ARRAPPEND doc .b.a 1`, "ERR wrong type of path value - expected array but found string"},
			{`JSON.ARRAPPEND doc .a "s"`, "5"},
			{`JSON.GET doc .a`, `[1,2,3,4,"s"]`},
			{`JSON.NUMINCRBY doc .n 2`, "3"},
			{`JSON.NUMINCRBY doc $..n 1`, "[4,2.5]"},
			{`JSON.NUMINCRBY doc .a 1`, "ERR wrong type of path value - expected integer or number but found array"},
			{`JSON.NUMINCRBY doc .n "1"`, "ERR expected numeric value"},
			{`JSON.NUMINCRBY doc $.a 1`, "[null]"},
			{`JSON.ARRAPPEND missing .a 1`, "ERR could not perform this operation on a key that doesn't exist"},
		}},
		{"wrong type", []step{
			{`SET s v`, "OK"},
			{`JSON.GET s`, "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{`JSON.DEL s`, "WRONGTYPE Operation against a key holding the wrong kind of value"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runScript(t, tt.steps)
		})
	}
}

func TestJSONSetRejectsBadInput(t *testing.T) {
	e := setupEngine()

	res := do(t, e, "JSON.SET", "doc", "$", "{bad")
	assert.True(t, res.IsError())
	assert.Contains(t, string(res.String), "invalid JSON")

	res = do(t, e, "JSON.SET", "doc", "$[", "1")
	assert.True(t, res.IsError())
	assert.EqualValues(t, 0, do(t, e, "EXISTS", "doc").Integer)
}

func TestAddNumbers(t *testing.T) {
	tests := []struct {
		a, b string
		want string
		err  bool
	}{
		{"1", "2", "3", false},
		{"1", "-5", "-4", false},
		{"1.5", "1", "2.5", false},
		{"9223372036854775807", "1", "9.223372036854776e+18", false},
		{"1e308", "1e308", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"+"+tt.b, func(t *testing.T) {
			got, err := addNumbers(json.Number(tt.a), json.Number(tt.b))
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
