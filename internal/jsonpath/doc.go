package jsonpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/eternalApril/moonstone/internal/dberr"
)

// Decode parses exactly one JSON value. Numbers are kept as json.Number
func Decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, dberr.Wrap(dberr.InvalidArgument, err, "invalid JSON")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, dberr.New(dberr.InvalidArgument, "invalid JSON: trailing data")
	}
	return v, nil
}

// Encode renders v compactly. Object keys come out sorted
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Clone deep-copies a decoded document
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = Clone(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Clone(c)
		}
		return out
	default:
		return v
	}
}

// TypeName returns the JSON.TYPE name of v
func TypeName(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float64:
		return "number"
	default:
		return "unknown"
	}
}
