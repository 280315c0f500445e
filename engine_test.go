package nebula

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/nebula/keyspace"
	"github.com/eternalApril/nebula/queue"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestEngine_New(t *testing.T) {
	e, err := New(WithGC(GCConfig{Enabled: false}))
	require.NoError(t, err)
	defer e.Shutdown()

	assert.NotNil(t, e.Store())
	assert.NotNil(t, e.Keyspace())
	assert.NotNil(t, e.PubSub())
	assert.NotNil(t, e.Queue())
	assert.NotNil(t, e.Limiter())
	assert.NotNil(t, e.Bucket())
}

func TestEngine_InvalidShards(t *testing.T) {
	_, err := New(WithShards(7))
	assert.Error(t, err)

	_, err = New(WithShards(128))
	assert.Error(t, err)
}

func TestEngine_StringOps(t *testing.T) {
	clock := newFakeClock()
	e, err := New(
		WithClock(clock.Now),
		WithGC(GCConfig{Enabled: false}),
	)
	require.NoError(t, err)
	defer e.Shutdown()

	require.NoError(t, e.Set("k", "v"))

	v, ok, err := e.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, e.SetTTL("tmp", "v", time.Minute))
	remaining, status := e.TTL("tmp")
	assert.Equal(t, keyspace.StatusActive, status)
	assert.Equal(t, time.Minute, remaining)

	ok, err = e.Expire("k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok, err = e.Get("tmp")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := e.IncrBy("hits", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.True(t, e.Delete("k"))
	assert.False(t, e.Delete("k"))
}

func TestEngine_PubSub(t *testing.T) {
	e, err := New(WithGC(GCConfig{Enabled: false}))
	require.NoError(t, err)
	defer e.Shutdown()

	var got string
	e.PubSub().Subscribe("events", func(channel, message string) error {
		got = message
		return nil
	})

	n := e.Publish("events", "hello")
	assert.Equal(t, 1, n)
	assert.Equal(t, "hello", got)
}

func TestEngine_QueueRoundtrip(t *testing.T) {
	e, err := New(
		WithGC(GCConfig{Enabled: false}),
		WithQueueConfig(queue.Config{MaxRetries: 2, ProcessingTimeout: time.Minute}),
	)
	require.NoError(t, err)
	defer e.Shutdown()

	job, err := e.Enqueue("work", "payload", queue.PriorityHigh)
	require.NoError(t, err)

	got, ok, err := e.Dequeue("work")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	assert.True(t, e.Queue().Ack("work", got.ID))
}

func TestEngine_RateLimiters(t *testing.T) {
	clock := newFakeClock()
	e, err := New(
		WithClock(clock.Now),
		WithGC(GCConfig{Enabled: false}),
		WithTokenBucket(2, 1),
	)
	require.NoError(t, err)
	defer e.Shutdown()

	for i := 0; i < 3; i++ {
		ok, err := e.Allow("client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := e.Allow("client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Bucket().Allow("client")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Bucket().Allow("client")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Bucket().Allow("client")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_SweepRemovesExpiredKeys(t *testing.T) {
	e, err := New(
		WithShards(4),
		WithGC(GCConfig{
			Enabled:         true,
			Interval:        5 * time.Millisecond,
			SamplesPerCheck: 50,
			MatchThreshold:  0.25,
		}),
	)
	require.NoError(t, err)
	defer e.Shutdown()

	for i := 0; i < 100; i++ {
		require.NoError(t, e.SetTTL(fmt.Sprintf("tmp-%d", i), "v", 10*time.Millisecond))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, e.Set(fmt.Sprintf("keep-%d", i), "v"))
	}

	assert.Eventually(t, func() bool {
		return e.Keyspace().Len() == 10
	}, 2*time.Second, 10*time.Millisecond, "sweep should physically remove expired keys")
}

func TestEngine_ShutdownIdempotent(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		e.Shutdown()
		e.Shutdown()
	})
}

func TestEngine_InstancesAreIsolated(t *testing.T) {
	a, err := New(WithGC(GCConfig{Enabled: false}))
	require.NoError(t, err)
	defer a.Shutdown()
	b, err := New(WithGC(GCConfig{Enabled: false}))
	require.NoError(t, err)
	defer b.Shutdown()

	require.NoError(t, a.Set("k", "from a"))

	_, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	var bSaw int
	b.PubSub().Subscribe("ch", func(channel, message string) error {
		bSaw++
		return nil
	})
	a.Publish("ch", "m")
	assert.Zero(t, bSaw)
}
