package server

import (
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

func hset(ctx *commandContext) resp.Value {
	if len(ctx.args)%2 != 1 {
		return resp.MakeErrorWrongNumberOfArguments("hset")
	}

	key := ctx.key(0)
	var added int64
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		h, err := storage.LookupOrCreate(tx, key, storage.NewHash)
		if err != nil {
			return err
		}
		for i := 1; i < len(ctx.args); i += 2 {
			if h.Set(string(ctx.args[i]), string(ctx.args[i+1])) {
				added++
			}
		}
		ctx.changed(int64(len(ctx.args) / 2))
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(added)
}

func viewHash(ctx *commandContext, fn func(*storage.Hash)) error {
	key := ctx.key(0)
	return ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		h, ok, err := storage.Lookup[*storage.Hash](tx, key)
		if ok {
			fn(h)
		}
		return err
	})
}

func hget(ctx *commandContext) resp.Value {
	var (
		val   string
		found bool
	)
	if err := viewHash(ctx, func(h *storage.Hash) { val, found = h.Get(string(ctx.args[1])) }); err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(val)
}

func hdel(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		h, ok, err := storage.Lookup[*storage.Hash](tx, key)
		if !ok {
			return err
		}
		n = h.Del(keysOf(ctx.args[1:])...)
		ctx.changed(int64(n))
		if h.Len() == 0 {
			tx.Delete(key)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func hexists(ctx *commandContext) resp.Value {
	var found bool
	if err := viewHash(ctx, func(h *storage.Hash) { _, found = h.Get(string(ctx.args[1])) }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBool(found)
}

func hlen(ctx *commandContext) resp.Value {
	var n int
	if err := viewHash(ctx, func(h *storage.Hash) { n = h.Len() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func hkeys(ctx *commandContext) resp.Value {
	out := []string{}
	if err := viewHash(ctx, func(h *storage.Hash) { out = h.Keys() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBulkArray(out)
}

func hvals(ctx *commandContext) resp.Value {
	out := []string{}
	err := viewHash(ctx, func(h *storage.Hash) {
		pairs := h.Pairs()
		for i := 1; i < len(pairs); i += 2 {
			out = append(out, pairs[i])
		}
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBulkArray(out)
}

func hgetall(ctx *commandContext) resp.Value {
	out := []string{}
	if err := viewHash(ctx, func(h *storage.Hash) { out = h.Pairs() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBulkArray(out)
}
