// Package store implements the typed operation families (string/counter,
// list, set, hash, sorted set) on top of the keyspace. Value containers are
// plain structs; atomicity comes from the keyspace locks.
package store

import (
	"time"

	"github.com/eternalApril/nebula/keyspace"
)

// Store exposes the typed operations over a shared keyspace.
type Store struct {
	ks keyspace.Space
}

// New creates a store over the given keyspace.
func New(ks keyspace.Space) *Store {
	return &Store{ks: ks}
}

// Keyspace returns the underlying keyspace.
func (s *Store) Keyspace() keyspace.Space {
	return s.ks
}

// Delete removes a key of any type. Returns true if a live entry existed.
func (s *Store) Delete(key string) bool {
	return s.ks.Delete(key)
}

// Exists reports whether a live entry is stored under key.
func (s *Store) Exists(key string) bool {
	return s.ks.Exists(key)
}

// Expire sets or overwrites the expiry of an existing live entry.
func (s *Store) Expire(key string, ttl time.Duration) (bool, error) {
	return s.ks.Expire(key, ttl)
}

// TTL returns the remaining lifetime and status of a key.
func (s *Store) TTL(key string) (time.Duration, keyspace.Status) {
	return s.ks.TTL(key)
}

// Persist removes the expiry of a key.
func (s *Store) Persist(key string) bool {
	return s.ks.Persist(key)
}

// Version returns the modification counter of a live entry.
func (s *Store) Version(key string) (uint64, bool) {
	return s.ks.Version(key)
}

// Keys returns all live keys.
func (s *Store) Keys() []string {
	return s.ks.Keys()
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return s.ks.Len()
}
