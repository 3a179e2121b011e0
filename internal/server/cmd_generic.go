package server

import (
	"slices"
	"strconv"
	"time"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

func del(ctx *commandContext) resp.Value {
	keys := keysOf(ctx.args)
	var deleted int64
	_ = ctx.engine.ks.Update(keys, func(tx *storage.Tx) error {
		for _, k := range keys {
			if tx.Delete(k) {
				deleted++
			}
		}
		return nil
	})
	ctx.changed(deleted)
	return resp.MakeInteger(deleted)
}

// exists counts a key once per mention, so EXISTS k k returns 2
func exists(ctx *commandContext) resp.Value {
	keys := keysOf(ctx.args)
	var n int64
	_ = ctx.engine.ks.View(keys, func(tx *storage.Tx) error {
		for _, k := range keys {
			if _, ok := tx.Get(k); ok {
				n++
			}
		}
		return nil
	})
	return resp.MakeInteger(n)
}

func typeCmd(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	name := "none"
	_ = ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		if v, ok := tx.Get(key); ok {
			name = v.Kind().String()
		}
		return nil
	})
	return resp.MakeSimpleString(name)
}

func keys(ctx *commandContext) resp.Value {
	out := []string{}
	for k := range ctx.engine.ks.Scan(string(ctx.args[0])) {
		out = append(out, k)
	}
	slices.Sort(out)
	return resp.MakeBulkArray(out)
}

// scan implements SCAN cursor [MATCH pattern] [COUNT count]. The cursor is a shard position
func scan(ctx *commandContext) resp.Value {
	cursor, err := strconv.ParseUint(string(ctx.args[0]), 10, 64)
	if err != nil {
		return resp.MakeErr(dberr.New(dberr.InvalidArgument, "invalid cursor"))
	}

	pattern := "*"
	count := 10
	for i := 1; i < len(ctx.args); i += 2 {
		if i+1 >= len(ctx.args) {
			return resp.MakeErr(dberr.ErrSyntax)
		}
		switch option(ctx.args[i]) {
		case "MATCH":
			pattern = string(ctx.args[i+1])
		case "COUNT":
			n, err := parseIndex(ctx.args[i+1])
			if err != nil {
				return resp.MakeErr(err)
			}
			if n < 1 {
				return resp.MakeErr(dberr.ErrSyntax)
			}
			count = n
		default:
			return resp.MakeErr(dberr.ErrSyntax)
		}
	}

	next, found := ctx.engine.ks.ScanCursor(cursor, pattern, count)
	return resp.MakeArray([]resp.Value{
		resp.MakeBulkString(strconv.FormatUint(next, 10)),
		resp.MakeBulkArray(found),
	})
}

// rename moves the value and its TTL. Both shards are locked for the duration
func rename(ctx *commandContext) resp.Value {
	src, dst := ctx.key(0), ctx.key(1)
	err := ctx.engine.ks.Update([]string{src, dst}, func(tx *storage.Tx) error {
		v, ok := tx.Get(src)
		if !ok {
			return dberr.ErrNotFound
		}
		if src == dst {
			return nil
		}
		ttl, status := tx.Expiry(src)
		tx.Delete(src)
		tx.Put(dst, v)
		if status == storage.ExpActive {
			tx.SetExpiry(dst, tx.Now().Add(ttl))
		}
		ctx.changed(1)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeOK()
}

func expire(ctx *commandContext) resp.Value {
	return expireGeneric(ctx, time.Second, "expire")
}

func pexpire(ctx *commandContext) resp.Value {
	return expireGeneric(ctx, time.Millisecond, "pexpire")
}

func expireGeneric(ctx *commandContext, unit time.Duration, name string) resp.Value {
	n, err := parseInt(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}

	key := ctx.key(0)
	var ok bool
	err = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		at, err := deadline(tx.Now(), n, unit, name)
		if err != nil {
			return err
		}
		ok = tx.SetExpiry(key, at)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if ok {
		ctx.changed(1)
	}
	return resp.MakeBool(ok)
}

func ttl(ctx *commandContext) resp.Value {
	return ttlGeneric(ctx, time.Second)
}

func pttl(ctx *commandContext) resp.Value {
	return ttlGeneric(ctx, time.Millisecond)
}

// ttlGeneric returns -2 for a missing key, -1 for a key without TTL, otherwise the TTL rounded to unit
func ttlGeneric(ctx *commandContext, unit time.Duration) resp.Value {
	key := ctx.key(0)
	var (
		left   time.Duration
		status storage.ExpiryStatus
	)
	_ = ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		left, status = tx.Expiry(key)
		return nil
	})

	if status != storage.ExpActive {
		return resp.MakeInteger(int64(status))
	}
	return resp.MakeInteger(int64((left + unit/2) / unit))
}

func persist(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var ok bool
	_ = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		ok = tx.Persist(key)
		return nil
	})
	if ok {
		ctx.changed(1)
	}
	return resp.MakeBool(ok)
}
