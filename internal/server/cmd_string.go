package server

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

func get(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var (
		out   []byte
		found bool
	)
	err := ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		s, ok, err := storage.Lookup[*storage.String](tx, key)
		if ok {
			out, found = bytes.Clone(s.B), true
		}
		return err
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulk(out)
}

// setOptions is the parsed tail of SET key value [NX|XX] [GET] [EX|PX|EXAT|PXAT|KEEPTTL]
type setOptions struct {
	nx, xx   bool
	get      bool
	keepTTL  bool
	hasTTL   bool
	ttl      int64
	ttlUnit  time.Duration
	absolute bool
}

var errTTLTwice = dberr.New(dberr.InvalidArgument, "TTL already specified")

func parseSetOptions(args [][]byte) (setOptions, error) {
	var o setOptions
	for i := 0; i < len(args); i++ {
		switch opt := option(args[i]); opt {
		case "NX":
			if o.xx {
				return o, dberr.New(dberr.InvalidArgument, "NX cannot use with XX")
			}
			o.nx = true
		case "XX":
			if o.nx {
				return o, dberr.New(dberr.InvalidArgument, "XX cannot use with NX")
			}
			o.xx = true
		case "GET":
			o.get = true
		case "KEEPTTL":
			if o.hasTTL || o.keepTTL {
				return o, errTTLTwice
			}
			o.keepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			if o.hasTTL || o.keepTTL {
				return o, errTTLTwice
			}
			if i+1 >= len(args) {
				return o, dberr.ErrSyntax
			}
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				return o, dberr.New(dberr.InvalidArgument, "value TTL is not integer")
			}
			if n <= 0 {
				return o, dberr.New(dberr.InvalidArgument, "invalid expire time in 'set' command")
			}
			o.hasTTL = true
			o.ttl = n
			o.ttlUnit = time.Second
			if opt == "PX" || opt == "PXAT" {
				o.ttlUnit = time.Millisecond
			}
			o.absolute = opt == "EXAT" || opt == "PXAT"
			i++
		default:
			return o, dberr.Newf(dberr.InvalidArgument, "syntax error with command argument '%s'", args[i])
		}
	}
	return o, nil
}

// expireAt resolves the TTL option against now
func (o setOptions) expireAt(now time.Time) (time.Time, error) {
	if o.absolute {
		if o.ttl > math.MaxInt64/int64(o.ttlUnit) {
			return time.Time{}, dberr.New(dberr.InvalidArgument, "invalid expire time in 'set' command")
		}
		return time.Unix(0, o.ttl*int64(o.ttlUnit)), nil
	}
	return deadline(now, o.ttl, o.ttlUnit, "set")
}

func set(ctx *commandContext) resp.Value {
	opts, err := parseSetOptions(ctx.args[2:])
	if err != nil {
		return resp.MakeErr(err)
	}

	key := ctx.key(0)
	var (
		old      []byte
		hadValue bool
		applied  bool
	)
	err = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		cur, exists := tx.Get(key)
		if opts.get && exists {
			s, ok := cur.(*storage.String)
			if !ok {
				return dberr.ErrTypeMismatch
			}
			old, hadValue = bytes.Clone(s.B), true
		}
		if (opts.nx && exists) || (opts.xx && !exists) {
			return nil
		}

		var at time.Time
		if opts.hasTTL {
			var err error
			if at, err = opts.expireAt(tx.Now()); err != nil {
				return err
			}
		}

		v := storage.NewString(ctx.args[1])
		if opts.keepTTL {
			tx.PutKeepTTL(key, v)
		} else {
			tx.Put(key, v)
		}
		if opts.hasTTL {
			tx.SetExpiry(key, at)
		}
		applied = true
		ctx.changed(1)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}

	if opts.get {
		if !hadValue {
			return resp.MakeNilBulkString()
		}
		return resp.MakeBulk(old)
	}
	if !applied {
		return resp.MakeNilBulkString()
	}
	return resp.MakeOK()
}

func mget(ctx *commandContext) resp.Value {
	keys := keysOf(ctx.args)
	out := make([]resp.Value, len(keys))
	_ = ctx.engine.ks.View(keys, func(tx *storage.Tx) error {
		for i, k := range keys {
			v, _ := tx.Get(k)
			if s, ok := v.(*storage.String); ok {
				out[i] = resp.MakeBulk(bytes.Clone(s.B))
			} else {
				out[i] = resp.MakeNilBulkString()
			}
		}
		return nil
	})
	return resp.MakeArray(out)
}

func mset(ctx *commandContext) resp.Value {
	if len(ctx.args)%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments("mset")
	}

	keys := make([]string, 0, len(ctx.args)/2)
	for i := 0; i < len(ctx.args); i += 2 {
		keys = append(keys, ctx.key(i))
	}
	_ = ctx.engine.ks.Update(keys, func(tx *storage.Tx) error {
		for i := 0; i < len(ctx.args); i += 2 {
			tx.Put(ctx.key(i), storage.NewString(ctx.args[i+1]))
		}
		return nil
	})
	ctx.changed(int64(len(keys)))
	return resp.MakeOK()
}

func incr(ctx *commandContext) resp.Value {
	return incrBy(ctx, 1)
}

func decr(ctx *commandContext) resp.Value {
	return incrBy(ctx, -1)
}

func incrby(ctx *commandContext) resp.Value {
	n, err := parseInt(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}
	return incrBy(ctx, n)
}

func decrby(ctx *commandContext) resp.Value {
	n, err := parseInt(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}
	if n == math.MinInt64 {
		return resp.MakeErr(dberr.New(dberr.InvalidArgument, "decrement would overflow"))
	}
	return incrBy(ctx, -n)
}

// incrBy keeps the TTL of an existing key
func incrBy(ctx *commandContext, delta int64) resp.Value {
	key := ctx.key(0)
	var result int64
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		s, ok, err := storage.Lookup[*storage.String](tx, key)
		if err != nil {
			return err
		}

		var cur int64
		if ok {
			if cur, err = parseInt(s.B); err != nil {
				return err
			}
		}
		if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
			return dberr.New(dberr.InvalidArgument, "increment or decrement would overflow")
		}
		result = cur + delta

		if ok {
			s.B = strconv.AppendInt(s.B[:0], result, 10)
		} else {
			tx.Put(key, &storage.String{B: strconv.AppendInt(nil, result, 10)})
		}
		ctx.changed(1)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(result)
}

func appendCmd(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		s, err := storage.LookupOrCreate(tx, key, func() *storage.String { return storage.NewString(nil) })
		if err != nil {
			return err
		}
		s.B = append(s.B, ctx.args[1]...)
		n = len(s.B)
		ctx.changed(1)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func strlen(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		s, ok, err := storage.Lookup[*storage.String](tx, key)
		if ok {
			n = len(s.B)
		}
		return err
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}
