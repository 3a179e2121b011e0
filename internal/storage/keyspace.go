package storage

import (
	"errors"
	"iter"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// MaxShards bounds the shard count accepted by NewKeyspace
const MaxShards = 1024

// Keyspace is a thread-safe key-value storage divided into shards to reduce lock contention.
// Commands on keys in different shards never wait on each other
type Keyspace struct {
	shards    []*shard
	shardMask uint32
	observer  Observer
	now       func() time.Time
}

// NewKeyspace creates a keyspace with the given number of shards.
// The count must be a power of two no larger than MaxShards
func NewKeyspace(requestedShards uint) (*Keyspace, error) {
	if bits.OnesCount(requestedShards) != 1 {
		return nil, errors.New("requested shards must be a power of 2")
	}

	if requestedShards > MaxShards {
		return nil, errors.New("requested shards must be less or equal than 1024")
	}

	ks := &Keyspace{
		shards:    make([]*shard, requestedShards),
		shardMask: uint32(requestedShards - 1),
		observer:  nopObserver{},
		now:       time.Now,
	}

	for i := range ks.shards {
		ks.shards[i] = newShard()
	}

	return ks, nil
}

// SetObserver installs o. It must be called before the keyspace is shared
func (ks *Keyspace) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	ks.observer = o
}

// shardIndex returns index of shard by key
func (ks *Keyspace) shardIndex(key string) uint32 {
	return murmur3.Sum32([]byte(key)) & ks.shardMask
}

// ShardCount returns the number of shards, which is also the SCAN cursor range
func (ks *Keyspace) ShardCount() int {
	return len(ks.shards)
}

// lockSet resolves keys to their shards, deduplicated and in ascending index order
func (ks *Keyspace) lockSet(keys []string) (map[string]*shard, []int) {
	owners := make(map[string]*shard, len(keys))
	var idx []int
	for _, k := range keys {
		i := int(ks.shardIndex(k))
		owners[k] = ks.shards[i]
		if !slices.Contains(idx, i) {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)
	return owners, idx
}

// Update runs fn with exclusive access to keys. Shards are locked in ascending order, so
// concurrent multi-key updates cannot deadlock. fn must not block or perform I/O
func (ks *Keyspace) Update(keys []string, fn func(*Tx) error) error {
	owners, idx := ks.lockSet(keys)
	for _, i := range idx {
		ks.shards[i].mu.Lock()
	}
	defer func() {
		for _, i := range slices.Backward(idx) {
			ks.shards[i].mu.Unlock()
		}
	}()

	tx := &Tx{ks: ks, owners: owners, write: true, now: ks.now().UnixNano()}
	for k, s := range owners {
		s.purge(k, tx.now, ks.observer)
	}
	return fn(tx)
}

// View runs fn with shared access to keys
func (ks *Keyspace) View(keys []string, fn func(*Tx) error) error {
	owners, idx := ks.lockSet(keys)
	for _, i := range idx {
		ks.shards[i].mu.RLock()
	}
	defer func() {
		for _, i := range slices.Backward(idx) {
			ks.shards[i].mu.RUnlock()
		}
	}()

	return fn(&Tx{ks: ks, owners: owners, now: ks.now().UnixNano()})
}

// Get returns a deep copy of the value under key
func (ks *Keyspace) Get(key string) (Value, bool) {
	var out Value
	_ = ks.View([]string{key}, func(tx *Tx) error {
		if v, ok := tx.Get(key); ok {
			out = v.Clone()
		}
		return nil
	})
	return out, out != nil
}

// Exists reports whether key holds a live value
func (ks *Keyspace) Exists(key string) bool {
	var ok bool
	_ = ks.View([]string{key}, func(tx *Tx) error {
		_, ok = tx.Get(key)
		return nil
	})
	return ok
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (ks *Keyspace) Delete(key string) bool {
	var ok bool
	_ = ks.Update([]string{key}, func(tx *Tx) error {
		ok = tx.Delete(key)
		return nil
	})
	return ok
}

// Len returns the number of stored keys, including expired ones not yet collected
func (ks *Keyspace) Len() int {
	n := 0
	for _, s := range ks.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Scan yields live keys matching pattern, one shard at a time. Keys written concurrently
// may or may not be seen
func (ks *Keyspace) Scan(pattern string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := range ks.shards {
			for _, k := range ks.shardKeys(i, pattern) {
				if !yield(k) {
					return
				}
			}
		}
	}
}

// ScanCursor returns matching keys starting at shard cursor until at least count keys are
// collected. The returned cursor is 0 once every shard has been visited
func (ks *Keyspace) ScanCursor(cursor uint64, pattern string, count int) (uint64, []string) {
	if count <= 0 {
		count = 10
	}

	var keys []string
	i := cursor
	for i < uint64(len(ks.shards)) && len(keys) < count {
		keys = append(keys, ks.shardKeys(int(i), pattern)...)
		i++
	}
	if i >= uint64(len(ks.shards)) {
		i = 0
	}
	return i, keys
}

func (ks *Keyspace) shardKeys(i int, pattern string) []string {
	s := ks.shards[i]
	now := ks.now().UnixNano()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if _, live := s.lookup(k, now); live && Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Range calls fn for every live entry, holding one shard's read lock at a time.
// expireAt is unix nanoseconds, 0 when the key has no TTL. fn must not retain v past the call
func (ks *Keyspace) Range(fn func(key string, v Value, expireAt int64) bool) {
	for i := range ks.shards {
		if !ks.RangeShard(i, fn) {
			return
		}
	}
}

// RangeShard is Range restricted to shard i. It returns false if fn stopped early
func (ks *Keyspace) RangeShard(i int, fn func(key string, v Value, expireAt int64) bool) bool {
	s := ks.shards[i]
	now := ks.now().UnixNano()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.data {
		exp := s.expires[k]
		if exp != 0 && now > exp {
			continue
		}
		if !fn(k, v, exp) {
			return false
		}
	}
	return true
}

// Restore inserts a value loaded from a snapshot. Entries already expired are dropped
func (ks *Keyspace) Restore(key string, v Value, expireAt int64) {
	if expireAt != 0 && ks.now().UnixNano() > expireAt {
		return
	}

	s := ks.shards[ks.shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store(key, v, ks.observer)
	if expireAt != 0 {
		s.expires[key] = expireAt
	} else {
		delete(s.expires, key)
	}
}

// Flush removes every key and returns how many were removed
func (ks *Keyspace) Flush() int {
	n := 0
	for _, s := range ks.shards {
		s.mu.Lock()
		for k := range s.data {
			s.remove(k, ks.observer)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// DeleteExpired randomly selects a limit of keys from each shard and delete if his TTL has expired
func (ks *Keyspace) DeleteExpired(limit int) float64 {
	var wg sync.WaitGroup
	var totalRatio float64
	var mu sync.Mutex // protects totalRatio

	now := ks.now().UnixNano()

	for _, s := range ks.shards {
		wg.Go(func() {
			ratio := s.deleteExpired(limit, now, ks.observer)

			mu.Lock()
			totalRatio += ratio
			mu.Unlock()
		})
	}

	wg.Wait()

	return totalRatio / float64(len(ks.shards))
}
