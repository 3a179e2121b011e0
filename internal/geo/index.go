package geo

import (
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/tidwall/rtree"
)

// pad widens candidate boxes so float rounding never drops a point on the boundary
const pad = 1e-7

// Match is a query hit. Dist is in meters
type Match struct {
	Member string
	Point  Point
	Dist   float64
}

type keyIndex struct {
	tree   rtree.RTreeG[string]
	points map[string]Point
}

// Index mirrors the members of every geo key into a per-key R-tree.
// It is derived state: callers update it in the same critical section as the key
type Index struct {
	mu   sync.RWMutex
	keys map[string]*keyIndex
}

func NewIndex() *Index {
	return &Index{keys: make(map[string]*keyIndex)}
}

func (p Point) rect() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

// Insert adds member or moves it to p
func (ix *Index) Insert(key, member string, p Point) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ki, ok := ix.keys[key]
	if !ok {
		ki = &keyIndex{points: make(map[string]Point)}
		ix.keys[key] = ki
	}
	ki.insert(member, p)
}

func (ki *keyIndex) insert(member string, p Point) {
	if old, ok := ki.points[member]; ok {
		if old == p {
			return
		}
		ki.tree.Delete(old.rect(), old.rect(), member)
	}
	ki.points[member] = p
	ki.tree.Insert(p.rect(), p.rect(), member)
}

// Remove drops member and reports whether it was indexed
func (ix *Index) Remove(key, member string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ki, ok := ix.keys[key]
	if !ok {
		return false
	}
	p, ok := ki.points[member]
	if !ok {
		return false
	}
	ki.tree.Delete(p.rect(), p.rect(), member)
	delete(ki.points, member)
	if len(ki.points) == 0 {
		delete(ix.keys, key)
	}
	return true
}

// DropKey forgets every member of key
func (ix *Index) DropKey(key string) {
	ix.mu.Lock()
	delete(ix.keys, key)
	ix.mu.Unlock()
}

// Load replaces the entries of key with points
func (ix *Index) Load(key string, points map[string]Point) {
	ki := &keyIndex{points: make(map[string]Point, len(points))}
	for m, p := range points {
		ki.insert(m, p)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(points) == 0 {
		delete(ix.keys, key)
		return
	}
	ix.keys[key] = ki
}

// Position returns the indexed coordinate of member
func (ix *Index) Position(key, member string) (Point, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ki, ok := ix.keys[key]
	if !ok {
		return Point{}, false
	}
	p, ok := ki.points[member]
	return p, ok
}

// Len returns the number of members indexed under key
func (ix *Index) Len(key string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ki, ok := ix.keys[key]; ok {
		return len(ki.points)
	}
	return 0
}

// Keys returns the number of indexed keys
func (ix *Index) Keys() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// QueryRadius returns members within radius meters of center, nearest first
func (ix *Index) QueryRadius(key string, center Point, radius float64) []Match {
	return ix.query(key, radiusBoxes(center, radius), func(p Point) (float64, bool) {
		d := Distance(center, p)
		return d, d <= radius
	})
}

// QueryBox returns members inside the width x height (meters) rectangle centred on center
func (ix *Index) QueryBox(key string, center Point, width, height float64) []Match {
	return ix.query(key, rectBoxes(center, width, height), func(p Point) (float64, bool) {
		latDist := EarthRadius * math.Abs(rad(p.Lat)-rad(center.Lat))
		lonDist := Distance(Point{Lon: center.Lon, Lat: p.Lat}, p)
		if latDist > height/2 || lonDist > width/2 {
			return 0, false
		}
		return Distance(center, p), true
	})
}

// query collects candidates from the R-tree and keeps those accepted by the exact test
func (ix *Index) query(key string, boxes []box, accept func(Point) (float64, bool)) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ki, ok := ix.keys[key]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var out []Match
	for _, b := range boxes {
		ki.tree.Search(b.min, b.max, func(_, _ [2]float64, member string) bool {
			if _, dup := seen[member]; dup {
				return true
			}
			seen[member] = struct{}{}
			p := ki.points[member]
			if d, ok := accept(p); ok {
				out = append(out, Match{Member: member, Point: p, Dist: d})
			}
			return true
		})
	}

	SortMatches(out)
	return out
}

// SortMatches orders by distance, then member
func SortMatches(ms []Match) {
	slices.SortFunc(ms, func(a, b Match) int {
		if a.Dist < b.Dist {
			return -1
		}
		if a.Dist > b.Dist {
			return 1
		}
		return strings.Compare(a.Member, b.Member)
	})
}

type box struct {
	min [2]float64
	max [2]float64
}

// radiusBoxes covers the spherical cap around c. Near a pole the cap spans every longitude,
// and across the antimeridian it is split in two
func radiusBoxes(c Point, r float64) []box {
	ang := r / EarthRadius
	latDelta := deg(ang)
	minLat, maxLat := c.Lat-latDelta-pad, c.Lat+latDelta+pad

	if ang >= math.Pi/2 || minLat <= -90 || maxLat >= 90 {
		return []box{fullLon(minLat, maxLat)}
	}

	lonDelta := deg(math.Asin(math.Sin(ang)/math.Cos(rad(c.Lat)))) + pad
	return lonBoxes(c.Lon-lonDelta, c.Lon+lonDelta, minLat, maxLat)
}

// rectBoxes covers a width x height rectangle; the longitude span is taken at the
// latitude furthest from the equator, where it is widest
func rectBoxes(c Point, width, height float64) []box {
	latDelta := deg(height / 2 / EarthRadius)
	minLat, maxLat := c.Lat-latDelta-pad, c.Lat+latDelta+pad
	if minLat <= -90 || maxLat >= 90 {
		return []box{fullLon(minLat, maxLat)}
	}

	widest := math.Max(math.Abs(minLat), math.Abs(maxLat))
	s := math.Sin(width/2/EarthRadius/2) / math.Cos(rad(widest))
	if s >= 1 {
		return []box{fullLon(minLat, maxLat)}
	}
	lonDelta := deg(2*math.Asin(s)) + pad
	return lonBoxes(c.Lon-lonDelta, c.Lon+lonDelta, minLat, maxLat)
}

func fullLon(minLat, maxLat float64) box {
	return box{
		min: [2]float64{-180, math.Max(minLat, -90)},
		max: [2]float64{180, math.Min(maxLat, 90)},
	}
}

func lonBoxes(minLon, maxLon, minLat, maxLat float64) []box {
	switch {
	case maxLon-minLon >= 360:
		return []box{fullLon(minLat, maxLat)}
	case minLon < -180:
		return []box{
			{min: [2]float64{minLon + 360, minLat}, max: [2]float64{180, maxLat}},
			{min: [2]float64{-180, minLat}, max: [2]float64{maxLon, maxLat}},
		}
	case maxLon > 180:
		return []box{
			{min: [2]float64{minLon, minLat}, max: [2]float64{180, maxLat}},
			{min: [2]float64{-180, minLat}, max: [2]float64{maxLon - 360, maxLat}},
		}
	}
	return []box{{min: [2]float64{minLon, minLat}, max: [2]float64{maxLon, maxLat}}}
}
