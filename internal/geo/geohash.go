package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/eternalApril/moonstone/internal/dberr"
)

// Coordinate limits match Redis: latitudes beyond the web mercator range are rejected
const (
	MinLon = -180.0
	MaxLon = 180.0
	MinLat = -85.05112878
	MaxLat = 85.05112878

	scoreBits = 52
	hashChars = 11
)

// Point is a longitude/latitude pair in degrees
type Point struct {
	Lon float64
	Lat float64
}

// Validate rejects coordinates outside the indexable range
func (p Point) Validate() error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) ||
		p.Lon < MinLon || p.Lon > MaxLon || p.Lat < MinLat || p.Lat > MaxLat {
		return dberr.Newf(dberr.InvalidArgument, "invalid longitude,latitude pair %f,%f", p.Lon, p.Lat)
	}
	return nil
}

// Score is the 52-bit interleaved geohash used to order members of a geo key
func Score(p Point) uint64 {
	return geohash.EncodeIntWithPrecision(p.Lat, p.Lon, scoreBits)
}

// FromScore decodes a score back to the centre of its geohash cell
func FromScore(score uint64) Point {
	lat, lon := geohash.DecodeIntWithPrecision(score, scoreBits)
	return Point{Lon: lon, Lat: lat}
}

// Hash returns the standard 11 character base32 geohash
func Hash(p Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, hashChars)
}
