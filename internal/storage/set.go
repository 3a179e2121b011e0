package storage

import (
	"maps"
	"slices"
)

// Set holds unique members
type Set struct {
	members map[string]struct{}
}

func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

func (s *Set) Kind() Kind { return KindSet }

func (s *Set) Clone() Value {
	return &Set{members: maps.Clone(s.members)}
}

func (*Set) sealed() {}

// Add returns the number of members that were not already present
func (s *Set) Add(members ...string) int {
	n := 0
	for _, m := range members {
		if _, ok := s.members[m]; !ok {
			s.members[m] = struct{}{}
			n++
		}
	}
	return n
}

func (s *Set) Remove(members ...string) int {
	n := 0
	for _, m := range members {
		if _, ok := s.members[m]; ok {
			delete(s.members, m)
			n++
		}
	}
	return n
}

func (s *Set) Has(member string) bool {
	_, ok := s.members[member]
	return ok
}

func (s *Set) Len() int {
	return len(s.members)
}

// Members returns the members in lexicographic order
func (s *Set) Members() []string {
	return slices.Sorted(maps.Keys(s.members))
}
