package storage

import "github.com/eternalApril/moonstone/internal/jsonpath"

// JSON holds a decoded document (maps, slices, json.Number, string, bool, nil)
type JSON struct {
	Doc any
}

func NewJSON(doc any) *JSON {
	return &JSON{Doc: doc}
}

func (j *JSON) Kind() Kind { return KindJSON }

func (j *JSON) Clone() Value { return &JSON{Doc: jsonpath.Clone(j.Doc)} }

func (*JSON) sealed() {}
