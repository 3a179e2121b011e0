package storage

import (
	"maps"

	"github.com/google/btree"
)

// ZMember is a member with its score
type ZMember struct {
	Member string
	Score  float64
}

func zless(a, b ZMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// ZSet is a sorted set ordered by score, ties broken by member
type ZSet struct {
	dict map[string]float64
	tree *btree.BTreeG[ZMember]
}

func NewZSet() *ZSet {
	return &ZSet{
		dict: make(map[string]float64),
		tree: btree.NewG[ZMember](16, zless),
	}
}

func (z *ZSet) Kind() Kind { return KindZSet }

func (z *ZSet) Clone() Value {
	return z.clone()
}

func (z *ZSet) clone() *ZSet {
	return &ZSet{
		dict: maps.Clone(z.dict),
		tree: z.tree.Clone(),
	}
}

func (*ZSet) sealed() {}

// Add inserts or rescores member. It returns true when the member is new
func (z *ZSet) Add(member string, score float64) bool {
	old, exists := z.dict[member]
	if exists {
		if old == score {
			return false
		}
		z.tree.Delete(ZMember{Member: member, Score: old})
	}
	z.dict[member] = score
	z.tree.ReplaceOrInsert(ZMember{Member: member, Score: score})
	return !exists
}

func (z *ZSet) Remove(member string) bool {
	score, ok := z.dict[member]
	if !ok {
		return false
	}
	delete(z.dict, member)
	z.tree.Delete(ZMember{Member: member, Score: score})
	return true
}

func (z *ZSet) Score(member string) (float64, bool) {
	s, ok := z.dict[member]
	return s, ok
}

func (z *ZSet) Len() int {
	return len(z.dict)
}

// Rank returns the zero-based position of member in ascending order
func (z *ZSet) Rank(member string) (int, bool) {
	score, ok := z.dict[member]
	if !ok {
		return 0, false
	}
	target := ZMember{Member: member, Score: score}
	rank := 0
	z.tree.AscendLessThan(target, func(ZMember) bool {
		rank++
		return true
	})
	return rank, true
}

// Range returns members by rank between start and stop inclusive
func (z *ZSet) Range(start, stop int) []ZMember {
	lo, hi, ok := normalizeRange(start, stop, z.Len())
	if !ok {
		return []ZMember{}
	}
	out := make([]ZMember, 0, hi-lo+1)
	i := 0
	z.tree.Ascend(func(m ZMember) bool {
		if i > hi {
			return false
		}
		if i >= lo {
			out = append(out, m)
		}
		i++
		return true
	})
	return out
}

// Each visits members in ascending order until fn returns false
func (z *ZSet) Each(fn func(ZMember) bool) {
	z.tree.Ascend(btree.ItemIteratorG[ZMember](fn))
}
