package server

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/jsonpath"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

var (
	errJSONCreateAtRoot = dberr.New(dberr.InvalidArgument, "new objects must be created at the root")
	errJSONMissingKey   = dberr.New(dberr.NotFound, "could not perform this operation on a key that doesn't exist")
	errJSONNotNumber    = dberr.New(dberr.InvalidArgument, "expected numeric value")
	errJSONInfinite     = dberr.New(dberr.InvalidArgument, "result is not a number or an infinity")
)

func pathMissing(p *jsonpath.Path) error {
	return dberr.Newf(dberr.InvalidPath, "Path '%s' does not exist", p)
}

func wrongPathType(want string, got any) error {
	return dberr.Newf(dberr.InvalidArgument, "wrong type of path value - expected %s but found %s", want, jsonpath.TypeName(got))
}

// pathArg parses the optional path at args[i], defaulting to the legacy root
func pathArg(args [][]byte, i int) (*jsonpath.Path, error) {
	if i >= len(args) {
		return jsonpath.Parse(".")
	}
	return jsonpath.Parse(string(args[i]))
}

func encodeJSON(v any) resp.Value {
	b, err := jsonpath.Encode(v)
	if err != nil {
		return resp.MakeErr(dberr.Wrap(dberr.Internal, err, "encode JSON"))
	}
	return resp.MakeBulk(b)
}

// jsonSet implements JSON.SET key path value [NX|XX]. A new key can only be created at the root
func jsonSet(ctx *commandContext) resp.Value {
	p, err := jsonpath.Parse(string(ctx.args[1]))
	if err != nil {
		return resp.MakeErr(err)
	}
	v, err := jsonpath.Decode(ctx.args[2])
	if err != nil {
		return resp.MakeErr(err)
	}

	var nx, xx bool
	switch len(ctx.args) {
	case 3:
	case 4:
		switch option(ctx.args[3]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return resp.MakeErr(dberr.ErrSyntax)
		}
	default:
		return resp.MakeErr(dberr.ErrSyntax)
	}

	key := ctx.key(0)
	var applied bool
	err = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		j, ok, err := storage.Lookup[*storage.JSON](tx, key)
		if err != nil {
			return err
		}

		if !ok {
			if !p.IsRoot() {
				return errJSONCreateAtRoot
			}
			if xx {
				return nil
			}
			tx.Put(key, storage.NewJSON(jsonpath.Clone(v)))
			applied = true
			ctx.changed(1)
			return nil
		}

		present := len(jsonpath.Get(j.Doc, p)) > 0
		if (nx && present) || (xx && !present) {
			return nil
		}
		doc, n, err := jsonpath.Set(j.Doc, p, v)
		if err != nil {
			return err
		}
		if n > 0 {
			j.Doc = doc
			applied = true
			ctx.changed(1)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if !applied {
		return resp.MakeNilBulkString()
	}
	return resp.MakeOK()
}

// jsonGet implements JSON.GET key [path ...]. A single legacy path replies with its first match,
// a JSONPath with the array of matches, several paths with an object keyed by path
func jsonGet(ctx *commandContext) resp.Value {
	var paths []*jsonpath.Path
	for _, a := range ctx.args[1:] {
		p, err := jsonpath.Parse(string(a))
		if err != nil {
			return resp.MakeErr(err)
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		root, _ := pathArg(nil, 0)
		paths = append(paths, root)
	}

	key := ctx.key(0)
	var (
		out   any
		found bool
	)
	err := ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		j, ok, err := storage.Lookup[*storage.JSON](tx, key)
		if !ok {
			return err
		}
		found = true

		if len(paths) == 1 {
			out, err = selectPath(j.Doc, paths[0])
			return err
		}
		obj := make(map[string]any, len(paths))
		for _, p := range paths {
			v, err := selectPath(j.Doc, p)
			if err != nil {
				return err
			}
			obj[p.String()] = v
		}
		out = obj
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return encodeJSON(out)
}

func selectPath(doc any, p *jsonpath.Path) (any, error) {
	matches := jsonpath.Get(doc, p)
	if !p.Legacy() {
		return matches, nil
	}
	if len(matches) == 0 {
		return nil, pathMissing(p)
	}
	return matches[0], nil
}

// jsonDel removes the matches of path, or the whole key for the root
func jsonDel(ctx *commandContext) resp.Value {
	if len(ctx.args) > 2 {
		return resp.MakeErrorWrongNumberOfArguments("json.del")
	}
	p, err := pathArg(ctx.args, 1)
	if err != nil {
		return resp.MakeErr(err)
	}

	key := ctx.key(0)
	var n int
	err = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		j, ok, err := storage.Lookup[*storage.JSON](tx, key)
		if !ok {
			return err
		}
		doc, removed, err := jsonpath.Delete(j.Doc, p)
		if err != nil {
			return err
		}
		n = removed
		ctx.changed(int64(removed))
		if p.IsRoot() {
			tx.Delete(key)
		} else if removed > 0 {
			j.Doc = doc
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func jsonType(ctx *commandContext) resp.Value {
	if len(ctx.args) > 2 {
		return resp.MakeErrorWrongNumberOfArguments("json.type")
	}
	p, err := pathArg(ctx.args, 1)
	if err != nil {
		return resp.MakeErr(err)
	}

	key := ctx.key(0)
	var (
		matches []any
		found   bool
	)
	err = ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		j, ok, err := storage.Lookup[*storage.JSON](tx, key)
		if ok {
			found = true
			matches = jsonpath.Get(j.Doc, p)
		}
		return err
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}

	if p.Legacy() {
		if len(matches) == 0 {
			return resp.MakeNilBulkString()
		}
		return resp.MakeSimpleString(jsonpath.TypeName(matches[0]))
	}
	types := make([]string, len(matches))
	for i, m := range matches {
		types[i] = jsonpath.TypeName(m)
	}
	return resp.MakeBulkArray(types)
}

// applyJSON runs fn over the matches of path in the document under key and stores the result
func applyJSON(ctx *commandContext, p *jsonpath.Path, fn jsonpath.ApplyFunc) ([]any, error) {
	key := ctx.key(0)
	var results []any
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		j, ok, err := storage.Lookup[*storage.JSON](tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return errJSONMissingKey
		}

		doc, res, err := jsonpath.Apply(j.Doc, p, fn)
		if err != nil {
			return err
		}
		j.Doc = doc
		results = res
		for _, r := range res {
			if r != nil {
				ctx.changed(1)
			}
		}
		return nil
	})
	return results, err
}

// jsonArrAppend implements JSON.ARRAPPEND key path value [value ...]
func jsonArrAppend(ctx *commandContext) resp.Value {
	p, err := jsonpath.Parse(string(ctx.args[1]))
	if err != nil {
		return resp.MakeErr(err)
	}
	values := make([]any, 0, len(ctx.args)-2)
	for _, a := range ctx.args[2:] {
		v, err := jsonpath.Decode(a)
		if err != nil {
			return resp.MakeErr(err)
		}
		values = append(values, v)
	}

	results, err := applyJSON(ctx, p, func(v any) (any, bool, error) {
		arr, ok := v.([]any)
		if !ok {
			if p.Legacy() {
				return nil, false, wrongPathType("array", v)
			}
			return nil, false, nil
		}
		for _, x := range values {
			arr = append(arr, jsonpath.Clone(x))
		}
		return arr, true, nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}

	if p.Legacy() {
		if len(results) == 0 {
			return resp.MakeErr(pathMissing(p))
		}
		return resp.MakeInteger(int64(len(results[0].([]any))))
	}
	out := make([]resp.Value, len(results))
	for i, r := range results {
		if arr, ok := r.([]any); ok {
			out[i] = resp.MakeInteger(int64(len(arr)))
		} else {
			out[i] = resp.MakeNilBulkString()
		}
	}
	return resp.MakeArray(out)
}

// jsonNumIncrBy implements JSON.NUMINCRBY key path number
func jsonNumIncrBy(ctx *commandContext) resp.Value {
	p, err := jsonpath.Parse(string(ctx.args[1]))
	if err != nil {
		return resp.MakeErr(err)
	}
	dv, err := jsonpath.Decode(ctx.args[2])
	if err != nil {
		return resp.MakeErr(err)
	}
	delta, ok := dv.(json.Number)
	if !ok {
		return resp.MakeErr(errJSONNotNumber)
	}

	results, err := applyJSON(ctx, p, func(v any) (any, bool, error) {
		n, ok := v.(json.Number)
		if !ok {
			if p.Legacy() {
				return nil, false, wrongPathType("integer or number", v)
			}
			return nil, false, nil
		}
		sum, err := addNumbers(n, delta)
		if err != nil {
			return nil, false, err
		}
		return sum, true, nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}

	if p.Legacy() {
		if len(results) == 0 {
			return resp.MakeErr(pathMissing(p))
		}
		return resp.MakeBulkString(string(results[0].(json.Number)))
	}
	return encodeJSON(results)
}

// addNumbers keeps integer arithmetic while both operands are integers and the sum fits
func addNumbers(a, b json.Number) (json.Number, error) {
	ai, errA := a.Int64()
	bi, errB := b.Int64()
	if errA == nil && errB == nil {
		s := ai + bi
		if (bi >= 0 && s >= ai) || (bi < 0 && s < ai) {
			return json.Number(strconv.FormatInt(s, 10)), nil
		}
	}

	af, err := a.Float64()
	if err != nil {
		return "", errJSONNotNumber
	}
	bf, err := b.Float64()
	if err != nil {
		return "", errJSONNotNumber
	}
	f := af + bf
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", errJSONInfinite
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
}
