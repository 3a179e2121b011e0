package server

import (
	"slices"
	"strconv"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/geo"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

var errGeoMember = dberr.New(dberr.NotFound, "could not decode requested zset member")

func formatCoord(f float64) resp.Value {
	return resp.MakeBulkString(strconv.FormatFloat(f, 'f', -1, 64))
}

func parsePoint(lon, lat []byte) (geo.Point, error) {
	x, err := parseFloat(lon)
	if err != nil {
		return geo.Point{}, err
	}
	y, err := parseFloat(lat)
	if err != nil {
		return geo.Point{}, err
	}
	p := geo.Point{Lon: x, Lat: y}
	return p, p.Validate()
}

// geoadd implements GEOADD key [NX|XX] [CH] lon lat member [lon lat member ...].
// Every triple is validated before anything is written
func geoadd(ctx *commandContext) resp.Value {
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
	if len(rest) == 0 || len(rest)%3 != 0 {
		return resp.MakeErr(dberr.ErrSyntax)
	}
	type item struct {
		member string
		point  geo.Point
	}
	items := make([]item, 0, len(rest)/3)
	for j := 0; j < len(rest); j += 3 {
		p, err := parsePoint(rest[j], rest[j+1])
		if err != nil {
			return resp.MakeErr(err)
		}
		items = append(items, item{member: string(rest[j+2]), point: p})
	}

	key := ctx.key(0)
	index := ctx.engine.index
	var n int64
	err := ctx.engine.ks.Update([]string{key}, func(tx *storage.Tx) error {
		g, ok, err := storage.Lookup[*storage.Geo](tx, key)
		if err != nil {
			return err
		}
		if !ok && xx {
			return nil
		}
		fresh := !ok
		if fresh {
			g = storage.NewGeo()
		}

		for _, it := range items {
			exists := g.Has(it.member)
			if (nx && exists) || (xx && !exists) {
				continue
			}
			added, changed := g.Add(it.member, it.point)
			if changed && !fresh {
				index.Insert(key, it.member, it.point)
			}
			if changed {
				ctx.changed(1)
			}
			if added || (ch && changed) {
				n++
			}
		}

		// storing the new key indexes every member through the keyspace observer
		if fresh {
			tx.Put(key, g)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeInteger(n)
}

// viewGeo runs fn on the geo value under key. fn is skipped for a missing key
func viewGeo(ctx *commandContext, fn func(*storage.Geo) error) error {
	key := ctx.key(0)
	return ctx.engine.ks.View([]string{key}, func(tx *storage.Tx) error {
		g, ok, err := storage.Lookup[*storage.Geo](tx, key)
		if !ok {
			return err
		}
		return fn(g)
	})
}

func geopos(ctx *commandContext) resp.Value {
	out := make([]resp.Value, len(ctx.args)-1)
	for i := range out {
		out[i] = resp.MakeNilArray()
	}
	err := viewGeo(ctx, func(g *storage.Geo) error {
		for i, m := range ctx.args[1:] {
			if p, ok := g.Position(string(m)); ok {
				out[i] = resp.MakeArray([]resp.Value{formatCoord(p.Lon), formatCoord(p.Lat)})
			}
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeArray(out)
}

// geodist implements GEODIST key member1 member2 [M|KM|FT|MI]
func geodist(ctx *commandContext) resp.Value {
	unit := 1.0
	switch len(ctx.args) {
	case 3:
	case 4:
		var err error
		if unit, err = geo.ParseUnit(string(ctx.args[3])); err != nil {
			return resp.MakeErr(err)
		}
	default:
		return resp.MakeErr(dberr.ErrSyntax)
	}

	var (
		dist  float64
		found bool
	)
	err := viewGeo(ctx, func(g *storage.Geo) error {
		a, okA := g.Position(string(ctx.args[1]))
		b, okB := g.Position(string(ctx.args[2]))
		if okA && okB {
			dist, found = geo.Distance(a, b), true
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeFloat(dist/unit, 4)
}

func geohashCmd(ctx *commandContext) resp.Value {
	out := make([]resp.Value, len(ctx.args)-1)
	for i := range out {
		out[i] = resp.MakeNilBulkString()
	}
	err := viewGeo(ctx, func(g *storage.Geo) error {
		for i, m := range ctx.args[1:] {
			if p, ok := g.Position(string(m)); ok {
				out[i] = resp.MakeBulkString(geo.Hash(p))
			}
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeArray(out)
}

// geoQuery is a parsed GEOSEARCH or GEORADIUS request. Lengths are in meters
type geoQuery struct {
	member     string
	fromMember bool
	fromLonLat bool
	center     geo.Point

	byRadius bool
	byBox    bool
	radius   float64
	width    float64
	height   float64
	unit     float64

	desc     bool
	count    int
	anyMatch bool
	withDist bool
	withHash bool
	withCrd  bool
}

func parseLength(b []byte) (float64, error) {
	f, err := parseFloat(b)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, dberr.New(dberr.InvalidArgument, "radius cannot be negative")
	}
	return f, nil
}

// parseGeoOptions consumes the option tail. Shape and origin keywords are accepted only when
// shape is set, as GEORADIUS takes them positionally
func parseGeoOptions(q *geoQuery, args [][]byte, shape bool) error {
	for i := 0; i < len(args); i++ {
		left := len(args) - i - 1
		opt := option(args[i])
		switch {
		case opt == "ASC":
			q.desc = false
		case opt == "DESC":
			q.desc = true
		case opt == "WITHDIST":
			q.withDist = true
		case opt == "WITHHASH":
			q.withHash = true
		case opt == "WITHCOORD":
			q.withCrd = true
		case opt == "ANY":
			q.anyMatch = true
		case opt == "COUNT" && left >= 1:
			n, err := parseIndex(args[i+1])
			if err != nil {
				return err
			}
			if n <= 0 {
				return dberr.New(dberr.InvalidArgument, "COUNT must be > 0")
			}
			q.count = n
			i++
		case shape && opt == "FROMMEMBER" && left >= 1:
			q.member, q.fromMember = string(args[i+1]), true
			i++
		case shape && opt == "FROMLONLAT" && left >= 2:
			p, err := parsePoint(args[i+1], args[i+2])
			if err != nil {
				return err
			}
			q.center, q.fromLonLat = p, true
			i += 2
		case shape && opt == "BYRADIUS" && left >= 2:
			r, err := parseLength(args[i+1])
			if err != nil {
				return err
			}
			if q.unit, err = geo.ParseUnit(string(args[i+2])); err != nil {
				return err
			}
			q.radius, q.byRadius = r*q.unit, true
			i += 2
		case shape && opt == "BYBOX" && left >= 3:
			w, err := parseLength(args[i+1])
			if err != nil {
				return err
			}
			h, err := parseLength(args[i+2])
			if err != nil {
				return err
			}
			if q.unit, err = geo.ParseUnit(string(args[i+3])); err != nil {
				return err
			}
			q.width, q.height, q.byBox = w*q.unit, h*q.unit, true
			i += 3
		default:
			return dberr.ErrSyntax
		}
	}

	if q.anyMatch && q.count == 0 {
		return dberr.New(dberr.InvalidArgument, "the ANY argument requires COUNT argument")
	}
	if q.fromMember == q.fromLonLat {
		return dberr.New(dberr.InvalidArgument, "exactly one of FROMMEMBER or FROMLONLAT can be specified")
	}
	if q.byRadius == q.byBox {
		return dberr.New(dberr.InvalidArgument, "exactly one of BYRADIUS and BYBOX can be specified")
	}
	return nil
}

// geosearch implements GEOSEARCH key FROMMEMBER m|FROMLONLAT lon lat BYRADIUS r unit|BYBOX w h unit
// [ASC|DESC] [COUNT n [ANY]] [WITHCOORD] [WITHDIST] [WITHHASH]
func geosearch(ctx *commandContext) resp.Value {
	var q geoQuery
	if err := parseGeoOptions(&q, ctx.args[1:], true); err != nil {
		return resp.MakeErr(err)
	}
	return runGeoQuery(ctx, &q)
}

// georadius implements GEORADIUS key lon lat radius unit [options]
func georadius(ctx *commandContext) resp.Value {
	q := geoQuery{fromLonLat: true, byRadius: true}

	p, err := parsePoint(ctx.args[1], ctx.args[2])
	if err != nil {
		return resp.MakeErr(err)
	}
	r, err := parseLength(ctx.args[3])
	if err != nil {
		return resp.MakeErr(err)
	}
	if q.unit, err = geo.ParseUnit(string(ctx.args[4])); err != nil {
		return resp.MakeErr(err)
	}
	q.center, q.radius = p, r*q.unit

	if err := parseGeoOptions(&q, ctx.args[5:], false); err != nil {
		return resp.MakeErr(err)
	}
	return runGeoQuery(ctx, &q)
}

// runGeoQuery selects candidates from the index while the key is read-locked,
// so the index and the stored members agree
func runGeoQuery(ctx *commandContext, q *geoQuery) resp.Value {
	key := ctx.key(0)
	var matches []geo.Match
	err := viewGeo(ctx, func(g *storage.Geo) error {
		center := q.center
		if q.fromMember {
			p, ok := g.Position(q.member)
			if !ok {
				return errGeoMember
			}
			center = p
		}
		if q.byRadius {
			matches = ctx.engine.index.QueryRadius(key, center, q.radius)
		} else {
			matches = ctx.engine.index.QueryBox(key, center, q.width, q.height)
		}
		return nil
	})
	if err != nil {
		return resp.MakeErr(err)
	}

	if q.desc {
		slices.Reverse(matches)
	}
	if q.count > 0 && len(matches) > q.count {
		matches = matches[:q.count]
	}

	out := make([]resp.Value, len(matches))
	for i, m := range matches {
		if !q.withDist && !q.withHash && !q.withCrd {
			out[i] = resp.MakeBulkString(m.Member)
			continue
		}
		item := []resp.Value{resp.MakeBulkString(m.Member)}
		if q.withDist {
			item = append(item, resp.MakeFloat(m.Dist/q.unit, 4))
		}
		if q.withHash {
			item = append(item, resp.MakeInteger(int64(geo.Score(m.Point))))
		}
		if q.withCrd {
			item = append(item, resp.MakeArray([]resp.Value{formatCoord(m.Point.Lon), formatCoord(m.Point.Lat)}))
		}
		out[i] = resp.MakeArray(item)
	}
	return resp.MakeArray(out)
}
