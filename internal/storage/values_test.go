package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/moonstone/internal/geo"
)

func TestListRange(t *testing.T) {
	l := NewList()
	l.PushRight("a", "b", "c")
	l.PushLeft("x", "y")

	tests := []struct {
		name        string
		start, stop int
		want        []string
	}{
		{"all", 0, -1, []string{"y", "x", "a", "b", "c"}},
		{"head", 0, 1, []string{"y", "x"}},
		{"negative", -2, -1, []string{"b", "c"}},
		{"clamped", -100, 100, []string{"y", "x", "a", "b", "c"}},
		{"empty", 3, 1, []string{}},
		{"past end", 10, 20, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Range(tt.start, tt.stop))
		})
	}
}

func TestListPopIndexSet(t *testing.T) {
	l := NewList()
	l.PushRight("a", "b", "c", "d")

	assert.Equal(t, []string{"a"}, l.PopLeft(1))
	assert.Equal(t, []string{"d", "c"}, l.PopRight(2))
	assert.Equal(t, []string{"b"}, l.PopRight(5))
	assert.Zero(t, l.Len())

	l.PushRight("a", "b")
	v, ok := l.Index(-1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = l.Index(2)
	assert.False(t, ok)

	require.NoError(t, l.Set(-2, "z"))
	assert.ErrorIs(t, l.Set(5, "z"), ErrIndexOutOfRange)
	assert.Equal(t, []string{"z", "b"}, l.Range(0, -1))
}

func TestHashAndSet(t *testing.T) {
	h := NewHash()
	assert.True(t, h.Set("b", "2"))
	assert.True(t, h.Set("a", "1"))
	assert.False(t, h.Set("a", "3"))
	assert.Equal(t, []string{"a", "3", "b", "2"}, h.Pairs())
	assert.Equal(t, 1, h.Del("a", "missing"))
	assert.Equal(t, 1, h.Len())

	s := NewSet()
	assert.Equal(t, 2, s.Add("x", "y", "x"))
	assert.True(t, s.Has("x"))
	assert.Equal(t, 1, s.Remove("x", "z"))
	assert.Equal(t, []string{"y"}, s.Members())
}

func TestZSetOrdering(t *testing.T) {
	z := NewZSet()
	assert.True(t, z.Add("c", 1))
	assert.True(t, z.Add("b", 1))
	assert.True(t, z.Add("a", 2))
	assert.False(t, z.Add("c", 0.5))

	assert.Equal(t, []ZMember{{"c", 0.5}, {"b", 1}, {"a", 2}}, z.Range(0, -1))

	rank, ok := z.Rank("a")
	assert.True(t, ok)
	assert.Equal(t, 2, rank)

	assert.True(t, z.Remove("b"))
	assert.False(t, z.Remove("b"))
	assert.Equal(t, []ZMember{{"a", 2}}, z.Range(-1, -1))

	c := z.Clone().(*ZSet)
	c.Add("d", 9)
	assert.Equal(t, 2, z.Len())
	assert.Equal(t, 3, c.Len())
}

func TestGeoValue(t *testing.T) {
	g := NewGeo()
	p := geo.Point{Lon: 13.4, Lat: 52.5}

	added, changed := g.Add("berlin", p)
	assert.True(t, added)
	assert.True(t, changed)

	added, changed = g.Add("berlin", p)
	assert.False(t, added)
	assert.False(t, changed)

	score, ok := g.ZSet().Score("berlin")
	require.True(t, ok)
	assert.Equal(t, float64(geo.Score(p)), score)

	c := g.Clone().(*Geo)
	assert.True(t, g.Remove("berlin"))
	assert.Zero(t, g.Len())
	assert.True(t, c.Has("berlin"))
	assert.Zero(t, g.ZSet().Len())
}

func TestAsTypeMismatch(t *testing.T) {
	var v Value = NewString([]byte("x"))

	_, ok, err := As[*List](v)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errTypeMismatch)

	s, ok, err := As[*String](v)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "x", string(s.B))

	_, ok, err = As[*Hash](nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}
