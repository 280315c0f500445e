// Package keyspace owns the mapping from key to typed entry plus optional
// expiry. All higher-level stores mutate values through its entry points, so
// type checking and expiry checking happen exactly once per operation.
package keyspace

import (
	"errors"
	"sync"
	"time"
)

// DataType tags the variant stored behind a key.
type DataType byte

const (
	TypeString DataType = iota + 1
	TypeList
	TypeSet
	TypeHash
	TypeZSet
)

// String returns a readable name for the data type.
func (t DataType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeHash:
		return "hash"
	case TypeZSet:
		return "zset"
	default:
		return "unknown"
	}
}

var (
	// ErrKeyNotFound is returned by operations that require a live entry.
	ErrKeyNotFound = errors.New("key not found")
	// ErrTypeMismatch is returned when an operation is applied to a key
	// holding a different kind of value.
	ErrTypeMismatch = errors.New("operation against a key holding the wrong kind of value")
	// ErrInvalidTTL is returned for a non-positive TTL.
	ErrInvalidTTL = errors.New("invalid expire time")
	// ErrNotANumber is returned by numeric operations on non-numeric values.
	ErrNotANumber = errors.New("value is not an integer")
	// ErrInvalidRange is returned for out-of-range indices.
	ErrInvalidRange = errors.New("index out of range")
)

// Status reports the expiry state of a key.
type Status int

const (
	// StatusNotFound means that the key does not exist
	StatusNotFound Status = -2
	// StatusNoTTL means that the key exists, but it does not have a TTL
	StatusNoTTL Status = -1
	// StatusActive means that the key has an active lifetime
	StatusActive Status = 1
)

// Entry is the stored (type, value, expiry) triple behind one key.
// Version is a monotonic per-key modification counter bumped on every
// mutating call; higher layers use it for invalidation and testing.
type Entry struct {
	Type     DataType
	Value    any
	ExpireAt int64 // unix nanoseconds, 0 means no expiry
	Version  uint64
}

// Space is the common interface of the single-shard and sharded keyspaces.
type Space interface {
	// Put stores value under key, replacing any prior entry regardless of
	// its former type. ttl == 0 means no expiry, ttl < 0 is ErrInvalidTTL.
	Put(key string, typ DataType, value any, ttl time.Duration) error

	// View runs fn on the live entry under the read lock.
	// Returns ErrKeyNotFound for absent/expired keys, ErrTypeMismatch when
	// the stored variant does not match typ.
	View(key string, typ DataType, fn func(e *Entry) error) error

	// Update runs fn on the live entry under the write lock. When the key is
	// absent or expired and init is non-nil, a fresh entry holding init() is
	// created; with a nil init the call fails with ErrKeyNotFound. fn may
	// return remove=true to delete the entry afterwards (drained collections
	// drop their key). The entry version is bumped on success. fn may adjust
	// ExpireAt to change the key's expiry as part of the same atomic step.
	Update(key string, typ DataType, init func() any, fn func(e *Entry) (remove bool, err error)) error

	// Delete removes the key. Returns true if a live entry existed.
	Delete(key string) bool

	// Exists reports whether a live entry is stored under key.
	Exists(key string) bool

	// Expire sets or overwrites the expiry of an existing live entry.
	// Returns false if the key is absent or expired, ErrInvalidTTL for ttl <= 0.
	Expire(key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime and its status.
	TTL(key string) (time.Duration, Status)

	// Persist removes the expiry of a key, making it eternal.
	// Returns true if the key existed and had a TTL.
	Persist(key string) bool

	// Version returns the modification counter of a live entry.
	Version(key string) (uint64, bool)

	// Keys returns all live keys.
	Keys() []string

	// Len returns the number of live entries.
	Len() int

	// DeleteExpired samples up to limit keys and deletes the expired ones.
	// Returns the expired/checked ratio observed by the sample.
	DeleteExpired(limit int) float64
}

// Keyspace is a single-shard, thread-safe typed keyspace.
type Keyspace struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

var _ Space = (*Keyspace)(nil)

// New creates an empty keyspace using the wall clock.
func New() *Keyspace {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty keyspace with an injected clock,
// keeping expiry behavior deterministic in tests.
func NewWithClock(now func() time.Time) *Keyspace {
	if now == nil {
		now = time.Now
	}
	return &Keyspace{
		entries: make(map[string]*Entry),
		now:     now,
	}
}

// expired reports whether the entry is logically absent at nowNs.
func expired(e *Entry, nowNs int64) bool {
	return e.ExpireAt > 0 && nowNs > e.ExpireAt
}

// Put stores value under key, replacing any prior entry regardless of type.
func (k *Keyspace) Put(key string, typ DataType, value any, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	e := &Entry{Type: typ, Value: value, Version: 1}
	if prev, ok := k.entries[key]; ok {
		// version stays monotonic across overwrites and expired remains
		e.Version = prev.Version + 1
	}
	if ttl > 0 {
		e.ExpireAt = now.Add(ttl).UnixNano()
	}
	k.entries[key] = e
	return nil
}

// View runs fn on the live entry under the read lock.
func (k *Keyspace) View(key string, typ DataType, fn func(e *Entry) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.entries[key]
	if !ok || expired(e, k.now().UnixNano()) {
		return ErrKeyNotFound
	}
	if e.Type != typ {
		return ErrTypeMismatch
	}
	return fn(e)
}

// Update runs fn on the live entry under the write lock.
func (k *Keyspace) Update(key string, typ DataType, init func() any, fn func(e *Entry) (remove bool, err error)) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	nowNs := k.now().UnixNano()

	var prevVersion uint64
	e, ok := k.entries[key]
	if ok {
		prevVersion = e.Version
		if expired(e, nowNs) {
			// lazy purge, the key is treated as absent below
			delete(k.entries, key)
			e, ok = nil, false
		}
	}

	created := false
	if !ok {
		if init == nil {
			return ErrKeyNotFound
		}
		e = &Entry{Type: typ, Value: init(), Version: prevVersion}
		created = true
	} else if e.Type != typ {
		return ErrTypeMismatch
	}

	remove, err := fn(e)
	if err != nil {
		return err
	}

	e.Version++
	if remove {
		if !created {
			delete(k.entries, key)
		}
		return nil
	}
	if created {
		k.entries[key] = e
	}
	return nil
}

// Delete deletes the key. Returns true if a live entry existed and was removed.
func (k *Keyspace) Delete(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return false
	}
	delete(k.entries, key)
	return !expired(e, k.now().UnixNano())
}

// Exists reports whether a live entry is stored under key.
func (k *Keyspace) Exists(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.entries[key]
	return ok && !expired(e, k.now().UnixNano())
}

// Expire sets or overwrites the expiry of an existing live entry.
func (k *Keyspace) Expire(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	e, ok := k.entries[key]
	if !ok || expired(e, now.UnixNano()) {
		return false, nil
	}
	e.ExpireAt = now.Add(ttl).UnixNano()
	e.Version++
	return true, nil
}

// TTL returns the remaining lifetime and status of a key.
func (k *Keyspace) TTL(key string) (time.Duration, Status) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.entries[key]
	if !ok {
		return 0, StatusNotFound
	}
	if e.ExpireAt == 0 {
		return 0, StatusNoTTL
	}

	nowNs := k.now().UnixNano()
	if nowNs > e.ExpireAt {
		return 0, StatusNotFound
	}
	return time.Duration(e.ExpireAt - nowNs), StatusActive
}

// Persist removes the expiry of a key.
// Returns true if the key existed and had a TTL.
func (k *Keyspace) Persist(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok || e.ExpireAt == 0 || expired(e, k.now().UnixNano()) {
		return false
	}
	e.ExpireAt = 0
	e.Version++
	return true
}

// Version returns the modification counter of a live entry.
func (k *Keyspace) Version(key string) (uint64, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.entries[key]
	if !ok || expired(e, k.now().UnixNano()) {
		return 0, false
	}
	return e.Version, true
}

// Keys returns all live keys.
func (k *Keyspace) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	nowNs := k.now().UnixNano()
	keys := make([]string, 0, len(k.entries))
	for key, e := range k.entries {
		if !expired(e, nowNs) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of live entries.
func (k *Keyspace) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	nowNs := k.now().UnixNano()
	count := 0
	for _, e := range k.entries {
		if !expired(e, nowNs) {
			count++
		}
	}
	return count
}

// DeleteExpired samples up to limit keys and deletes the expired ones.
// Returns the expired/checked ratio so the caller can decide whether to
// repeat the pass immediately.
func (k *Keyspace) DeleteExpired(limit int) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.entries) == 0 || limit <= 0 {
		return 0.0
	}

	nowNs := k.now().UnixNano()
	checked := 0
	removed := 0

	// go map iteration is randomized by design
	for key, e := range k.entries {
		checked++
		if expired(e, nowNs) {
			delete(k.entries, key)
			removed++
		}
		if checked >= limit {
			break
		}
	}

	return float64(removed) / float64(checked)
}
