package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/nebula/keyspace"
	"github.com/eternalApril/nebula/store"
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

func newTestQueue(cfg Config) (*Queue, *fakeClock) {
	clock := newFakeClock()
	s := store.New(keyspace.NewWithClock(clock.Now))
	return NewWithClock(s, cfg, nil, clock.Now), clock
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	job, err := q.Enqueue("emails", map[string]any{"to": "ada"}, PriorityNormal)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, PriorityNormal, job.Priority)

	n, err := q.Pending("emails", PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok, err := q.Dequeue("emails")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
	assert.True(t, q.Processing("emails", got.ID))

	assert.True(t, q.Ack("emails", got.ID))
	assert.False(t, q.Processing("emails", got.ID))

	// a second ack finds nothing
	assert.False(t, q.Ack("emails", got.ID))
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	job, ok, err := q.Dequeue("empty")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, job)
}

func TestQueue_InvalidPriority(t *testing.T) {
	q, clock := newTestQueue(DefaultConfig())

	_, err := q.Enqueue("q", "p", Priority("urgent"))
	assert.Error(t, err)

	_, err = q.EnqueueDelayed("q", "p", Priority(""), clock.Now())
	assert.Error(t, err)
}

func TestQueue_PriorityOrder(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	low, err := q.Enqueue("q", "low job", PriorityLow)
	require.NoError(t, err)
	high, err := q.Enqueue("q", "high job", PriorityHigh)
	require.NoError(t, err)
	normal, err := q.Enqueue("q", "normal job", PriorityNormal)
	require.NoError(t, err)

	var order []string
	for {
		job, ok, err := q.Dequeue("q")
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, job.ID)
	}

	assert.Equal(t, []string{high.ID, normal.ID, low.ID}, order)
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	first, err := q.Enqueue("q", "first", PriorityNormal)
	require.NoError(t, err)
	second, err := q.Enqueue("q", "second", PriorityNormal)
	require.NoError(t, err)

	got, ok, err := q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)

	got, ok, err = q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestQueue_NackRetriesThenDeadLetters(t *testing.T) {
	q, _ := newTestQueue(Config{MaxRetries: 2, ProcessingTimeout: time.Minute})

	job, err := q.Enqueue("q", "flaky", PriorityNormal)
	require.NoError(t, err)

	// first failure re-enqueues with attempts=1
	got, ok, err := q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Nack("q", got.ID))

	n, err := q.Pending("q", PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second failure reaches MaxRetries and parks the job
	got, ok, err = q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Attempts)
	require.NoError(t, q.Nack("q", got.ID))

	n, err = q.Pending("q", PriorityNormal)
	require.NoError(t, err)
	assert.Zero(t, n)

	dead, err := q.DeadLetters("q")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempts)
	assert.False(t, q.Processing("q", job.ID))
}

func TestQueue_NackWithoutMarker(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	err := q.Nack("q", "no-such-id")
	assert.ErrorIs(t, err, keyspace.ErrKeyNotFound)
}

func TestQueue_ProcessingMarkerLapses(t *testing.T) {
	q, clock := newTestQueue(Config{MaxRetries: 3, ProcessingTimeout: time.Minute})

	_, err := q.Enqueue("q", "slow", PriorityNormal)
	require.NoError(t, err)

	got, ok, err := q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.Processing("q", got.ID))

	clock.Advance(2 * time.Minute)

	assert.False(t, q.Processing("q", got.ID))
	assert.False(t, q.Ack("q", got.ID))
	assert.ErrorIs(t, q.Nack("q", got.ID), keyspace.ErrKeyNotFound)
}

func TestQueue_DelayedPromotion(t *testing.T) {
	q, clock := newTestQueue(DefaultConfig())

	_, err := q.EnqueueDelayed("q", "later", PriorityHigh, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = q.EnqueueDelayed("q", "much later", PriorityNormal, clock.Now().Add(time.Hour))
	require.NoError(t, err)

	n, err := q.DelayedCount("q")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// nothing is due yet
	promoted, err := q.PromoteDue("q", clock.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted)

	clock.Advance(2 * time.Minute)
	promoted, err = q.PromoteDue("q", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	// the popped member is gone, a second poll promotes nothing
	promoted, err = q.PromoteDue("q", clock.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted)

	n, err = q.DelayedCount("q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, ok, err := q.Dequeue("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "later", job.Payload)
	assert.Equal(t, PriorityHigh, job.Priority)
}

func TestQueue_QueueIsolation(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	_, err := q.Enqueue("a", "for a", PriorityNormal)
	require.NoError(t, err)

	_, ok, err := q.Dequeue("b")
	require.NoError(t, err)
	assert.False(t, ok)

	job, ok, err := q.Dequeue("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "for a", job.Payload)
}

func TestQueue_ConcurrentDequeue(t *testing.T) {
	q, _ := newTestQueue(DefaultConfig())

	const total = 200
	for i := 0; i < total; i++ {
		_, err := q.Enqueue("q", i, PriorityNormal)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok, err := q.Dequeue("q")
				assert.NoError(t, err)
				if !ok {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total, "every job is delivered")
	for id, n := range seen {
		assert.Equalf(t, 1, n, "job %s delivered more than once", id)
	}
}
