package geo

import (
	"math"
	"strings"

	"github.com/eternalApril/moonstone/internal/dberr"
)

// EarthRadius in meters, the value Redis uses for GEODIST
const EarthRadius = 6372797.560856

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func deg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in meters
func Distance(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	u := math.Sin((lat2 - lat1) / 2)
	v := math.Sin(rad(b.Lon-a.Lon) / 2)
	h := u*u + math.Cos(lat1)*math.Cos(lat2)*v*v
	return 2 * EarthRadius * math.Asin(math.Sqrt(math.Min(1, h)))
}

// ParseUnit returns how many meters one unit is worth
func ParseUnit(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "m":
		return 1, nil
	case "km":
		return 1000, nil
	case "ft":
		return 0.3048, nil
	case "mi":
		return 1609.34, nil
	}
	return 0, dberr.New(dberr.InvalidArgument, "unsupported unit provided. please use M, KM, FT, MI")
}
