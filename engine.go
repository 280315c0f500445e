// Package nebula is an embedded, TTL-aware key-value engine with typed
// values (string, list, set, hash, sorted set), an in-process pub/sub
// router, a priority job queue and two rate limiters, all sharing one
// keyspace. Every Engine instance is isolated; there is no process-wide
// singleton.
package nebula

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/nebula/keyspace"
	"github.com/eternalApril/nebula/pubsub"
	"github.com/eternalApril/nebula/queue"
	"github.com/eternalApril/nebula/ratelimit"
	"github.com/eternalApril/nebula/store"
)

// GCConfig defines the parameters of the background active expiration sweep.
type GCConfig struct {
	Enabled         bool
	Interval        time.Duration // how often to run the background check
	SamplesPerCheck int           // how many keys to check per shard per loop
	MatchThreshold  float64       // 0.0-1.0. if expired/scanned > threshold, repeat immediately
}

// DefaultGCConfig returns the sweep defaults.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enabled:         true,
		Interval:        100 * time.Millisecond,
		SamplesPerCheck: 20,
		MatchThreshold:  0.25,
	}
}

// Engine wires the keyspace, typed stores, pub/sub router and facades
// together and owns the background expiry sweep.
type Engine struct {
	ks     *keyspace.Sharded
	store  *store.Store
	router *pubsub.Router
	queue  *queue.Queue
	window *ratelimit.SlidingWindow
	bucket *ratelimit.TokenBucket

	gc     GCConfig
	logger *zap.Logger
	inst   *instrumentation

	stopGC   chan struct{}
	stopOnce sync.Once
}

// New builds an engine from the given options and, when enabled, starts the
// background expiry sweep.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	ks, err := keyspace.NewShardedWithClock(o.shards, o.clock)
	if err != nil {
		return nil, err
	}

	st := store.New(ks)
	e := &Engine{
		ks:     ks,
		store:  st,
		router: pubsub.NewRouter(o.logger),
		queue:  queue.NewWithClock(st, o.queue, o.logger, o.clock),
		window: ratelimit.NewSlidingWindowWithClock(ks, o.clock),
		bucket: ratelimit.NewTokenBucketWithClock(ks, o.bucketCapacity, o.bucketRefillRate, o.clock),
		gc:     o.gc,
		logger: o.logger,
		inst:   newInstrumentation(o.meterProvider),
		stopGC: make(chan struct{}),
	}

	if e.gc.Enabled {
		go e.gcLoop()
	}

	return e, nil
}

// gcLoop triggers the active expiration mechanism. Each tick samples keys in
// every shard and repeats immediately while the expired ratio stays above
// the configured threshold.
func (e *Engine) gcLoop() {
	ticker := time.NewTicker(e.gc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				ratio := e.ks.DeleteExpired(e.gc.SamplesPerCheck)
				if ratio > 0 {
					e.logger.Debug("sweep removed expired keys", zap.Float64("expired_ratio", ratio))
				}
				if ratio < e.gc.MatchThreshold {
					break
				}
			}
		case <-e.stopGC:
			e.logger.Debug("sweep stopped")
			return
		}
	}
}

// Shutdown stops the background sweep. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stopGC)
		e.logger.Info("engine stopped")
	})
}

// Store returns the full typed-operation surface.
func (e *Engine) Store() *store.Store { return e.store }

// Keyspace returns the underlying sharded keyspace.
func (e *Engine) Keyspace() *keyspace.Sharded { return e.ks }

// PubSub returns the pub/sub router.
func (e *Engine) PubSub() *pubsub.Router { return e.router }

// Queue returns the job-queue facade.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Limiter returns the sliding-window rate limiter.
func (e *Engine) Limiter() *ratelimit.SlidingWindow { return e.window }

// Bucket returns the token-bucket rate limiter.
func (e *Engine) Bucket() *ratelimit.TokenBucket { return e.bucket }

// The methods below cover the common operation surface with per-operation
// metrics. The typed stores remain reachable through Store() for the rest.

// Set stores a string value without expiry.
func (e *Engine) Set(key, value string) error {
	done := e.inst.observe("set")
	err := e.store.Set(key, value)
	done(err)
	return err
}

// SetTTL stores a string value with a lifetime.
func (e *Engine) SetTTL(key, value string, ttl time.Duration) error {
	done := e.inst.observe("set")
	err := e.store.SetWithTTL(key, value, ttl)
	done(err)
	return err
}

// Get returns the string value at key.
func (e *Engine) Get(key string) (string, bool, error) {
	done := e.inst.observe("get")
	v, ok, err := e.store.Get(key)
	done(err)
	return v, ok, err
}

// Delete removes a key of any type.
func (e *Engine) Delete(key string) bool {
	done := e.inst.observe("delete")
	ok := e.store.Delete(key)
	done(nil)
	return ok
}

// Expire sets or overwrites the expiry of a live key.
func (e *Engine) Expire(key string, ttl time.Duration) (bool, error) {
	done := e.inst.observe("expire")
	ok, err := e.store.Expire(key, ttl)
	done(err)
	return ok, err
}

// TTL returns the remaining lifetime and status of a key.
func (e *Engine) TTL(key string) (time.Duration, keyspace.Status) {
	done := e.inst.observe("ttl")
	d, st := e.store.TTL(key)
	done(nil)
	return d, st
}

// IncrBy atomically increments the counter at key.
func (e *Engine) IncrBy(key string, delta int64) (int64, error) {
	done := e.inst.observe("incrby")
	v, err := e.store.IncrBy(key, delta)
	done(err)
	return v, err
}

// Publish fans a message out to the subscribers of channel.
func (e *Engine) Publish(channel, message string) int {
	done := e.inst.observe("publish")
	n := e.router.Publish(channel, message)
	done(nil)
	return n
}

// Enqueue pushes a job onto the named queue.
func (e *Engine) Enqueue(name string, payload any, p queue.Priority) (*queue.Job, error) {
	done := e.inst.observe("enqueue")
	job, err := e.queue.Enqueue(name, payload, p)
	done(err)
	return job, err
}

// Dequeue pops the next runnable job from the named queue.
func (e *Engine) Dequeue(name string) (*queue.Job, bool, error) {
	done := e.inst.observe("dequeue")
	job, ok, err := e.queue.Dequeue(name)
	done(err)
	return job, ok, err
}

// Allow checks the sliding-window rate limit for an identifier.
func (e *Engine) Allow(id string, max int, window time.Duration) (bool, error) {
	done := e.inst.observe("allow")
	ok, err := e.window.Allow(id, max, window)
	done(err)
	return ok, err
}
