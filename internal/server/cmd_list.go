package server

import (
	"strings"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

func lpush(ctx *commandContext) resp.Value {
	return push(ctx, (*storage.List).PushLeft)
}

func rpush(ctx *commandContext) resp.Value {
	return push(ctx, (*storage.List).PushRight)
}

func push(ctx *commandContext, fn func(*storage.List, ...string) int) resp.Value {
	key := ctx.key(0)
	var n int
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		l, err := storage.LookupOrCreate(tx, key, storage.NewList)
		if err != nil {
			return err
		}
		n = fn(l, keysOf(ctx.args[1:])...)
		ctx.changed(int64(len(ctx.args) - 1))
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func lpop(ctx *commandContext) resp.Value {
	return pop(ctx, (*storage.List).PopLeft)
}

func rpop(ctx *commandContext) resp.Value {
	return pop(ctx, (*storage.List).PopRight)
}

// pop replies with a single element, or with an array when a count is given
func pop(ctx *commandContext, fn func(*storage.List, int) []string) resp.Value {
	count, withCount := 1, len(ctx.args) == 2
	if len(ctx.args) > 2 {
		return resp.MakeErrorWrongNumberOfArguments(strings.ToLower(ctx.name))
	}
	if withCount {
		n, err := parseIndex(ctx.args[1])
		if err != nil {
			return resp.MakeErr(err)
		}
		if n < 0 {
			return resp.MakeErr(dberr.New(dberr.InvalidArgument, "value is out of range, must be positive"))
		}
		count = n
	}

	key := ctx.key(0)
	var (
		items []string
		found bool
	)
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		l, ok, err := storage.Lookup[*storage.List](tx, key)
		if !ok {
			return err
		}
		found = true
		items = fn(l, count)
		ctx.changed(int64(len(items)))
		if l.Len() == 0 {
			tx.Delete(key)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}

	if withCount {
		if !found {
			return resp.MakeNilArray()
		}
		return resp.MakeBulkArray(items)
	}
	if len(items) == 0 {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(items[0])
}

// viewList runs fn on the list under key with the shard read-locked. fn is skipped for a missing key
func viewList(ctx *commandContext, fn func(*storage.List)) error {
	key := ctx.key(0)
	return ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		l, ok, err := storage.Lookup[*storage.List](tx, key)
		if ok {
			fn(l)
		}
		return err
	})
}

func llen(ctx *commandContext) resp.Value {
	var n int
	if err := viewList(ctx, func(l *storage.List) { n = l.Len() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func lrange(ctx *commandContext) resp.Value {
	start, err := parseIndex(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}
	stop, err := parseIndex(ctx.args[2])
	if err != nil {
		return resp.MakeErr(err)
	}

	items := []string{}
	if err := viewList(ctx, func(l *storage.List) { items = l.Range(start, stop) }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeBulkArray(items)
}

func lindex(ctx *commandContext) resp.Value {
	i, err := parseIndex(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}

	var (
		item  string
		found bool
	)
	if err := viewList(ctx, func(l *storage.List) { item, found = l.Index(i) }); err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(item)
}

func lset(ctx *commandContext) resp.Value {
	i, err := parseIndex(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}

	key := ctx.key(0)
	err = ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		l, ok, err := storage.Lookup[*storage.List](tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return dberr.ErrNotFound
		}
		if err := l.Set(i, string(ctx.args[2])); err != nil {
			return err
		}
		ctx.changed(1)
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeOK()
}
