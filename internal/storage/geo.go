package storage

import (
	"maps"

	"github.com/eternalApril/moonstone/internal/geo"
)

// Geo is a sorted set of members scored by their 52-bit geohash. The exact coordinates
// are kept alongside so positions do not drift through the hash cell
type Geo struct {
	points map[string]geo.Point
	zset   *ZSet
}

func NewGeo() *Geo {
	return &Geo{
		points: make(map[string]geo.Point),
		zset:   NewZSet(),
	}
}

func (g *Geo) Kind() Kind { return KindGeo }

func (g *Geo) Clone() Value {
	return &Geo{
		points: maps.Clone(g.points),
		zset:   g.zset.clone(),
	}
}

func (*Geo) sealed() {}

// Add inserts or moves member. It reports whether the member is new and whether anything changed
func (g *Geo) Add(member string, p geo.Point) (added, changed bool) {
	old, exists := g.points[member]
	if exists && old == p {
		return false, false
	}
	g.points[member] = p
	g.zset.Add(member, float64(geo.Score(p)))
	return !exists, true
}

func (g *Geo) Remove(member string) bool {
	if _, ok := g.points[member]; !ok {
		return false
	}
	delete(g.points, member)
	g.zset.Remove(member)
	return true
}

func (g *Geo) Has(member string) bool {
	_, ok := g.points[member]
	return ok
}

func (g *Geo) Position(member string) (geo.Point, bool) {
	p, ok := g.points[member]
	return p, ok
}

func (g *Geo) Len() int {
	return len(g.points)
}

// ZSet exposes the geohash ordering. Callers must not modify it
func (g *Geo) ZSet() *ZSet {
	return g.zset
}

// Points returns a copy of every member position
func (g *Geo) Points() map[string]geo.Point {
	return maps.Clone(g.points)
}
