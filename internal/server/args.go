package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/moonstone/internal/dberr"
)

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, dberr.ErrNotInteger
	}
	return n, nil
}

func parseIndex(b []byte) (int, error) {
	n, err := parseInt(b)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, dberr.ErrNotInteger
	}
	return int(n), nil
}

func parseFloat(b []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) {
		return 0, dberr.ErrNotFloat
	}
	return f, nil
}

// option returns argument i uppercased, for matching keywords
func option(b []byte) string {
	return strings.ToUpper(string(b))
}

func keysOf(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return keys
}

// deadline converts a relative TTL of n units into an absolute time, rejecting overflow
func deadline(now time.Time, n int64, unit time.Duration, cmd string) (time.Time, error) {
	if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
		return time.Time{}, dberr.Newf(dberr.InvalidArgument, "invalid expire time in '%s' command", cmd)
	}
	d := time.Duration(n) * unit
	if d > 0 && now.UnixNano() > math.MaxInt64-int64(d) {
		return time.Time{}, dberr.Newf(dberr.InvalidArgument, "invalid expire time in '%s' command", cmd)
	}
	return now.Add(d), nil
}
