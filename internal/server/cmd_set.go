package server

import (
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

func sadd(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		s, err := storage.LookupOrCreate(tx, key, storage.NewSet)
		if err != nil {
			return err
		}
		n = s.Add(keysOf(ctx.args[1:])...)
		ctx.changed(int64(n))
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func srem(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		s, ok, err := storage.Lookup[*storage.Set](tx, key)
		if !ok {
			return err
		}
		n = s.Remove(keysOf(ctx.args[1:])...)
		ctx.changed(int64(n))
		if s.Len() == 0 {
			tx.Delete(key)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func viewSet(ctx *commandContext, fn func(*storage.Set)) error {
	key := ctx.key(0)
	return ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		s, ok, err := storage.Lookup[*storage.Set](tx, key)
		if ok {
			fn(s)
		}
		return err
	})
}

func smembers(ctx *commandContext) resp.Value {
	out := []string{}
	if err := viewSet(ctx, func(s *storage.Set) { out = s.Members() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBulkArray(out)
}

func sismember(ctx *commandContext) resp.Value {
	var found bool
	if err := viewSet(ctx, func(s *storage.Set) { found = s.Has(string(ctx.args[1])) }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBool(found)
}

func scard(ctx *commandContext) resp.Value {
	var n int
	if err := viewSet(ctx, func(s *storage.Set) { n = s.Len() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}
