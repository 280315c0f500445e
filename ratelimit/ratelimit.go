// Package ratelimit provides two independent request limiters over the
// shared keyspace: a sliding-window counter backed by a sorted set, and a
// token bucket backed by a hash. They are alternatives, not composed.
package ratelimit

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/eternalApril/nebula/keyspace"
	"github.com/eternalApril/nebula/store"
)

// SlidingWindow counts events inside a moving time interval ending at now.
type SlidingWindow struct {
	ks  keyspace.Space
	now func() time.Time
	seq atomic.Uint64 // disambiguates same-nanosecond events per identifier
}

// NewSlidingWindow creates a sliding-window limiter over the keyspace.
func NewSlidingWindow(ks keyspace.Space) *SlidingWindow {
	return NewSlidingWindowWithClock(ks, time.Now)
}

// NewSlidingWindowWithClock creates a limiter with an injected clock.
func NewSlidingWindowWithClock(ks keyspace.Space, now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindow{ks: ks, now: now}
}

// Allow records one request for id and reports whether it fits within max
// requests per window. Pruning stale events, recording the request and
// refreshing the key TTL happen in one atomic keyspace update; the TTL
// bounds memory for identifiers that go quiet.
func (l *SlidingWindow) Allow(id string, max int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, keyspace.ErrInvalidTTL
	}

	now := l.now()
	// second-resolution float scores keep sub-second precision without
	// overflowing the float64 mantissa the way raw nanoseconds would
	score := float64(now.UnixNano()) / float64(time.Second)
	cutoff := score - window.Seconds()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	allowed := false
	err := l.ks.Update("ratelimit:"+id, keyspace.TypeZSet,
		func() any { return store.NewSortedSet() },
		func(e *keyspace.Entry) (bool, error) {
			z := e.Value.(*store.SortedSet)
			for m, s := range z.Members() {
				if s <= cutoff {
					z.Remove(m)
				}
			}
			z.Add(store.ScoredMember{Member: member, Score: score})
			e.ExpireAt = now.Add(window).UnixNano()
			allowed = z.Card() <= max
			return false, nil
		})
	return allowed, err
}

// TokenBucket refills fractional tokens continuously and spends one whole
// token per request. State lives in a per-identifier hash.
type TokenBucket struct {
	ks         keyspace.Space
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time
}

// NewTokenBucket creates a token-bucket limiter over the keyspace.
func NewTokenBucket(ks keyspace.Space, capacity, refillRate float64) *TokenBucket {
	return NewTokenBucketWithClock(ks, capacity, refillRate, time.Now)
}

// NewTokenBucketWithClock creates a bucket limiter with an injected clock.
func NewTokenBucketWithClock(ks keyspace.Space, capacity, refillRate float64, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{ks: ks, capacity: capacity, refillRate: refillRate, now: now}
}

// Allow refills the bucket for id based on elapsed time, then consumes one
// token when available. Refill, check and consume are one atomic update.
func (b *TokenBucket) Allow(id string) (bool, error) {
	now := b.now()

	allowed := false
	err := b.ks.Update("ratelimit:bucket:"+id, keyspace.TypeHash,
		func() any { return store.NewHash() },
		func(e *keyspace.Entry) (bool, error) {
			h := e.Value.(*store.Hash)

			tokens := b.capacity
			last := now
			if raw, ok := h.Get("tokens"); ok {
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					tokens = v
				}
			}
			if raw, ok := h.Get("last_refill"); ok {
				if ns, err := strconv.ParseInt(raw, 10, 64); err == nil {
					last = time.Unix(0, ns)
				}
			}

			tokens += now.Sub(last).Seconds() * b.refillRate
			if tokens > b.capacity {
				tokens = b.capacity
			}
			if tokens >= 1 {
				tokens--
				allowed = true
			}

			h.Set("tokens", strconv.FormatFloat(tokens, 'f', -1, 64))
			h.Set("last_refill", strconv.FormatInt(now.UnixNano(), 10))
			return false, nil
		})
	return allowed, err
}
