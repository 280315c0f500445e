package keyspace

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSharded(t *testing.T) {
	tests := []struct {
		name      string
		requested uint
		wantErr   bool
	}{
		{"power of two", 16, false},
		{"single shard", 1, false},
		{"maximum", 64, false},
		{"not a power of two", 12, true},
		{"zero", 0, true},
		{"too many", 128, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSharded(tt.requested)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.shards, int(tt.requested))
		})
	}
}

func TestSharded_Distribution(t *testing.T) {
	s, err := NewSharded(16)
	require.NoError(t, err)

	const total = 16000
	for i := 0; i < total; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("key-%d", i), TypeString, "v", 0))
	}

	assert.Equal(t, total, s.Len())
	assert.Len(t, s.Keys(), total)

	// fnv should spread keys roughly evenly, allow a wide margin
	for i, shard := range s.shards {
		n := shard.Len()
		assert.Greaterf(t, n, total/16/2, "shard %d underloaded", i)
		assert.Lessf(t, n, total/16*2, "shard %d overloaded", i)
	}
}

func TestSharded_SameKeySameShard(t *testing.T) {
	s, err := NewSharded(8)
	require.NoError(t, err)

	require.NoError(t, s.Put("stable", TypeString, "one", 0))
	require.NoError(t, s.Put("stable", TypeString, "two", 0))

	assert.Equal(t, 1, s.Len())
	err = s.View("stable", TypeString, func(e *Entry) error {
		assert.Equal(t, "two", e.Value)
		return nil
	})
	require.NoError(t, err)
}

func TestSharded_DeleteExpired(t *testing.T) {
	clock := newFakeClock()
	s, err := NewShardedWithClock(4, clock.Now)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		ttl := time.Duration(0)
		if i%2 == 0 {
			ttl = time.Second
		}
		require.NoError(t, s.Put(fmt.Sprintf("key-%d", i), TypeString, "v", ttl))
	}

	clock.Advance(2 * time.Second)

	ratio := s.DeleteExpired(1000)
	assert.InDelta(t, 0.5, ratio, 0.1)
	assert.Equal(t, 100, s.Len())
}

func TestSharded_Concurrency(t *testing.T) {
	s, err := NewSharded(8)
	require.NoError(t, err)

	const workers = 32
	const opsPerWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < opsPerWorker; j++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, j%20)
				s.Put(key, TypeString, "v", 0) //nolint:errcheck
				s.Exists(key)
				s.TTL(key)
				if j%5 == 0 {
					s.Delete(key)
				}
			}
		}(i)
	}

	wg.Wait()
}
