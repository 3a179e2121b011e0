package storage

import (
	"fmt"
	"time"
)

// Tx is the view of the declared keys handed to Update and View callbacks.
// Values returned by Get are live: inside Update they may be modified in place
type Tx struct {
	ks     *Keyspace
	owners map[string]*shard
	write  bool
	now    int64
}

func (tx *Tx) shard(key string) *shard {
	s, ok := tx.owners[key]
	if !ok {
		panic(fmt.Sprintf("storage: key %q was not declared", key))
	}
	return s
}

func (tx *Tx) writable() {
	if !tx.write {
		panic("storage: write inside View")
	}
}

// Now is the clock reading taken when the transaction started
func (tx *Tx) Now() time.Time {
	return time.Unix(0, tx.now)
}

// Get returns the live value under key
func (tx *Tx) Get(key string) (Value, bool) {
	return tx.shard(key).lookup(key, tx.now)
}

// Put stores v under key and clears any TTL
func (tx *Tx) Put(key string, v Value) {
	tx.writable()
	s := tx.shard(key)
	s.store(key, v, tx.ks.observer)
	delete(s.expires, key)
}

// PutKeepTTL stores v under key, retaining the TTL of an existing key
func (tx *Tx) PutKeepTTL(key string, v Value) {
	tx.writable()
	tx.shard(key).store(key, v, tx.ks.observer)
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (tx *Tx) Delete(key string) bool {
	tx.writable()
	_, ok := tx.shard(key).remove(key, tx.ks.observer)
	return ok
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (tx *Tx) Expiry(key string) (time.Duration, ExpiryStatus) {
	s := tx.shard(key)
	if _, ok := s.lookup(key, tx.now); !ok {
		return 0, ExpNotFound
	}
	exp, hasExp := s.expires[key]
	if !hasExp {
		return 0, ExpNoTimeout
	}
	return time.Duration(exp - tx.now), ExpActive
}

// SetExpiry sets the deadline of an existing key. A deadline in the past deletes it.
// Returns false if the key does not exist
func (tx *Tx) SetExpiry(key string, at time.Time) bool {
	tx.writable()
	s := tx.shard(key)
	if _, ok := s.lookup(key, tx.now); !ok {
		return false
	}
	if ns := at.UnixNano(); ns > tx.now {
		s.expires[key] = ns
	} else {
		s.remove(key, tx.ks.observer)
	}
	return true
}

// Persist removes the expiration date of the key, making it eternal.
// Returns false if the key was not found or had no TTL
func (tx *Tx) Persist(key string) bool {
	tx.writable()
	s := tx.shard(key)
	if _, ok := s.lookup(key, tx.now); !ok {
		return false
	}
	if _, hasExp := s.expires[key]; !hasExp {
		return false
	}
	delete(s.expires, key)
	return true
}

// Lookup returns the value under key as T. A key of another kind yields ErrTypeMismatch
func Lookup[T Value](tx *Tx, key string) (T, bool, error) {
	v, _ := tx.Get(key)
	return As[T](v)
}

// LookupOrCreate returns the value under key as T, storing mk() first if the key is absent
func LookupOrCreate[T Value](tx *Tx, key string, mk func() T) (T, error) {
	t, ok, err := Lookup[T](tx, key)
	if err != nil || ok {
		return t, err
	}
	t = mk()
	tx.Put(key, t)
	return t, nil
}
