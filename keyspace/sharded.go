package keyspace

import (
	"errors"
	"hash/fnv"
	"math/bits"
	"sync"
	"time"
)

// Sharded is a thread-safe typed keyspace divided into segments (shards)
// to reduce contention for locking.
type Sharded struct {
	shards    []*Keyspace
	shardMask uint32
}

var _ Space = (*Sharded)(nil)

// NewSharded creates a sharded keyspace using the wall clock.
// The requestedShards parameter must be a power of two for efficient
// allocation. The maximum allowed number of shards is 64.
func NewSharded(requestedShards uint) (*Sharded, error) {
	return NewShardedWithClock(requestedShards, time.Now)
}

// NewShardedWithClock creates a sharded keyspace with an injected clock.
func NewShardedWithClock(requestedShards uint, now func() time.Time) (*Sharded, error) {
	if bits.OnesCount(requestedShards) != 1 {
		return nil, errors.New("requested shards must be a power of 2")
	}

	if requestedShards > 64 {
		return nil, errors.New("requested shards must be less or equal than 64")
	}

	s := &Sharded{
		shards:    make([]*Keyspace, requestedShards),
		shardMask: uint32(requestedShards - 1),
	}

	var i uint
	for i = 0; i < requestedShards; i++ {
		s.shards[i] = NewWithClock(now)
	}

	return s, nil
}

// shard returns the shard owning key.
func (s *Sharded) shard(key string) *Keyspace {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck

	return s.shards[h.Sum32()&s.shardMask]
}

func (s *Sharded) Put(key string, typ DataType, value any, ttl time.Duration) error {
	return s.shard(key).Put(key, typ, value, ttl)
}

func (s *Sharded) View(key string, typ DataType, fn func(e *Entry) error) error {
	return s.shard(key).View(key, typ, fn)
}

func (s *Sharded) Update(key string, typ DataType, init func() any, fn func(e *Entry) (bool, error)) error {
	return s.shard(key).Update(key, typ, init, fn)
}

func (s *Sharded) Delete(key string) bool {
	return s.shard(key).Delete(key)
}

func (s *Sharded) Exists(key string) bool {
	return s.shard(key).Exists(key)
}

func (s *Sharded) Expire(key string, ttl time.Duration) (bool, error) {
	return s.shard(key).Expire(key, ttl)
}

func (s *Sharded) TTL(key string) (time.Duration, Status) {
	return s.shard(key).TTL(key)
}

func (s *Sharded) Persist(key string) bool {
	return s.shard(key).Persist(key)
}

func (s *Sharded) Version(key string) (uint64, bool) {
	return s.shard(key).Version(key)
}

// Keys returns the live keys of all shards.
func (s *Sharded) Keys() []string {
	var keys []string
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

// Len returns the total number of live entries across shards.
func (s *Sharded) Len() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}

// DeleteExpired samples up to limit keys per shard in parallel and deletes
// the expired ones. Returns the average expired ratio across shards.
func (s *Sharded) DeleteExpired(limit int) float64 {
	var wg sync.WaitGroup
	var mu sync.Mutex // protects totalRatio
	var totalRatio float64

	shardCount := len(s.shards)
	wg.Add(shardCount)

	for _, shard := range s.shards {
		go func(k *Keyspace) {
			defer wg.Done()

			ratio := k.DeleteExpired(limit)

			mu.Lock()
			totalRatio += ratio
			mu.Unlock()
		}(shard)
	}

	wg.Wait()

	return totalRatio / float64(shardCount)
}
