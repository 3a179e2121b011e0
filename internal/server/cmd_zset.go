package server

import (
	"math"
	"strconv"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

// formatScore renders a score the way Redis does: integral values without exponent, inf as "inf"
func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.Abs(f) < 1e17:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// readZSet returns the ordering of a sorted set or of a geo key, nil when the key is missing
func readZSet(tx *storage.Tx, key string) (*storage.ZSet, error) {
	v, ok := tx.Get(key)
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case *storage.ZSet:
		return t, nil
	case *storage.Geo:
		return t.ZSet(), nil
	default:
		return nil, dberr.ErrTypeMismatch
	}
}

func viewZSet(ctx *commandContext, fn func(*storage.ZSet)) error {
	key := ctx.key(0)
	return ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		z, err := readZSet(tx, key)
		if z != nil {
			fn(z)
		}
		return err
	})
}

// zadd implements ZADD key [NX|XX] [CH] score member [score member ...]
func zadd(ctx *commandContext) resp.Value {
	var nx, xx, ch bool
	i := 1
flags:
	for ; i < len(ctx.args); i++ {
		switch option(ctx.args[i]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "CH":
			ch = true
		default:
			break flags
		}
	}
	if nx && xx {
		return resp.MakeErr(dberr.New(dberr.InvalidArgument, "XX and NX options at the same time are not compatible"))
	}

	rest := ctx.args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.MakeErr(dberr.ErrSyntax)
	}
	members := make([]storage.ZMember, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := parseFloat(rest[j])
		if err != nil {
			return resp.MakeErr(err)
		}
		members = append(members, storage.ZMember{Member: string(rest[j+1]), Score: score})
	}

	key := ctx.key(0)
	var n int64
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		z, ok, err := storage.Lookup[*storage.ZSet](tx, key)
		if err != nil {
			return err
		}
		if !ok {
			if xx {
				return nil
			}
			z = storage.NewZSet()
			tx.Put(key, z)
		}

		for _, m := range members {
			old, exists := z.Score(m.Member)
			if (nx && exists) || (xx && !exists) {
				continue
			}
			added := z.Add(m.Member, m.Score)
			if added || old != m.Score {
				ctx.changed(1)
			}
			if added || (ch && old != m.Score) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(n)
}

// zrem removes members from a sorted set or a geo key. Geo removals are mirrored in the index
func zrem(ctx *commandContext) resp.Value {
	key := ctx.key(0)
	var n int64
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		v, ok := tx.Get(key)
		if !ok {
			return nil
		}

		var empty bool
		switch t := v.(type) {
		case *storage.ZSet:
			for _, m := range ctx.args[1:] {
				if t.Remove(string(m)) {
					n++
				}
			}
			ctx.changed(n)
			empty = t.Len() == 0
		case *storage.Geo:
			for _, m := range ctx.args[1:] {
				if t.Remove(string(m)) {
					ctx.engine.index.Remove(key, string(m))
					n++
				}
			}
			ctx.changed(n)
			empty = t.Len() == 0
		default:
			return dberr.ErrTypeMismatch
		}

		if empty {
			tx.Delete(key)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(n)
}

func zscore(ctx *commandContext) resp.Value {
	var (
		score float64
		found bool
	)
	if err := viewZSet(ctx, func(z *storage.ZSet) { score, found = z.Score(string(ctx.args[1])) }); err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(formatScore(score))
}

func zcard(ctx *commandContext) resp.Value {
	var n int
	if err := viewZSet(ctx, func(z *storage.ZSet) { n = z.Len() }); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(int64(n))
}

func zrank(ctx *commandContext) resp.Value {
	var (
		rank  int
		found bool
	)
	if err := viewZSet(ctx, func(z *storage.ZSet) { rank, found = z.Rank(string(ctx.args[1])) }); err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeInteger(int64(rank))
}

// zrange implements ZRANGE key start stop [WITHSCORES] over ranks
func zrange(ctx *commandContext) resp.Value {
	start, err := parseIndex(ctx.args[1])
	if err != nil {
		return resp.MakeErr(err)
	}
	stop, err := parseIndex(ctx.args[2])
	if err != nil {
		return resp.MakeErr(err)
	}

	var withScores bool
	switch len(ctx.args) {
	case 3:
	case 4:
		if option(ctx.args[3]) != "WITHSCORES" {
			return resp.MakeErr(dberr.ErrSyntax)
		}
		withScores = true
	default:
		return resp.MakeErr(dberr.ErrSyntax)
	}

	var items []storage.ZMember
	if err := viewZSet(ctx, func(z *storage.ZSet) { items = z.Range(start, stop) }); err != nil {
		return resp.MakeErr(err)
	}

	out := make([]string, 0, 2*len(items))
	for _, m := range items {
		out = append(out, m.Member)
		if withScores {
			out = append(out, formatScore(m.Score))
		}
	}
	return resp.MakeBulkArray(out)
}
