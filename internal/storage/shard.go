package storage

import (
	"sync"
)

// shard is one lock domain of the keyspace
type shard struct {
	data    map[string]Value // key - value
	expires map[string]int64 // key - expires time nanoseconds
	mu      sync.RWMutex
}

func newShard() *shard {
	return &shard{
		data:    make(map[string]Value),
		expires: make(map[string]int64),
	}
}

// lookup returns the live value, treating an expired key as absent. Caller holds the lock
func (s *shard) lookup(key string, now int64) (Value, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if exp, hasExp := s.expires[key]; hasExp && now > exp {
		return nil, false
	}
	return v, true
}

// purge removes key if it has expired. Caller holds the write lock
func (s *shard) purge(key string, now int64, obs Observer) {
	exp, hasExp := s.expires[key]
	if !hasExp || now <= exp {
		return
	}
	s.remove(key, obs)
}

// remove deletes key unconditionally. Caller holds the write lock
func (s *shard) remove(key string, obs Observer) (Value, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	delete(s.data, key)
	delete(s.expires, key)
	obs.Removed(key, v)
	return v, true
}

// store places v under key, replacing and reporting any previous value. Caller holds the write lock
func (s *shard) store(key string, v Value, obs Observer) {
	if old, ok := s.data[key]; ok {
		if old == v {
			return
		}
		obs.Removed(key, old)
	}
	s.data[key] = v
	obs.Stored(key, v)
}

// deleteExpired samples up to limit keys with a TTL and removes the expired ones.
// It returns the share of sampled keys that had expired
func (s *shard) deleteExpired(limit int, now int64, obs Observer) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.expires) == 0 {
		return 0.0
	}

	checked := 0
	expired := 0

	// go map iteration is randomized by design
	for key, expTime := range s.expires {
		checked++
		if now > expTime {
			s.remove(key, obs)
			expired++
		}

		if checked >= limit {
			break
		}
	}

	return float64(expired) / float64(checked)
}
