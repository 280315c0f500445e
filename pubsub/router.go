// Package pubsub implements in-process fan-out of published messages to
// registered subscriber handlers, with exact-channel and glob-pattern
// subscriptions. Delivery is synchronous, at-most-once, without replay.
package pubsub

import (
	"path"
	"sync"

	"go.uber.org/zap"
)

// Handler receives a published message. A non-nil error (or a panic) is
// logged by the router and never reaches the publisher.
type Handler func(channel, message string) error

// Subscription is the token returned by Subscribe/SubscribePattern and
// consumed by Unsubscribe.
type Subscription struct {
	channel string
	pattern string
	handler Handler
}

// Router dispatches published messages to matching subscribers.
// A channel exists only while it has at least one subscriber.
type Router struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
	patterns map[*Subscription]struct{}
	logger   *zap.Logger
}

// NewRouter creates a router. A nil logger falls back to a no-op logger.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		channels: make(map[string]map[*Subscription]struct{}),
		patterns: make(map[*Subscription]struct{}),
		logger:   logger,
	}
}

// Subscribe registers handler for exact-channel delivery and returns the
// token used to unsubscribe.
func (r *Router) Subscribe(channel string, handler Handler) *Subscription {
	sub := &Subscription{channel: channel, handler: handler}

	r.mu.Lock()
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.channels[channel] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	return sub
}

// SubscribePattern registers handler for every channel matching the glob
// pattern (path.Match syntax). A malformed pattern is rejected.
func (r *Router) SubscribePattern(pattern string, handler Handler) (*Subscription, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	sub := &Subscription{pattern: pattern, handler: handler}

	r.mu.Lock()
	r.patterns[sub] = struct{}{}
	r.mu.Unlock()

	return sub, nil
}

// Unsubscribe removes a subscription. Unknown or already-removed tokens are
// a no-op.
func (r *Router) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.pattern != "" {
		delete(r.patterns, sub)
		return
	}
	if set, ok := r.channels[sub.channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.channels, sub.channel)
		}
	}
}

// Publish synchronously delivers message to every exact and pattern
// subscriber of channel. Returns the number of handlers invoked; a failing
// handler counts and does not block delivery to the rest.
func (r *Router) Publish(channel, message string) int {
	// snapshot the receivers so handlers run outside the lock
	r.mu.RLock()
	receivers := make([]*Subscription, 0, len(r.channels[channel]))
	for sub := range r.channels[channel] {
		receivers = append(receivers, sub)
	}
	for sub := range r.patterns {
		if ok, _ := path.Match(sub.pattern, channel); ok {
			receivers = append(receivers, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range receivers {
		r.dispatch(sub, channel, message)
	}
	return len(receivers)
}

// dispatch invokes one handler, isolating errors and panics so one bad
// subscriber cannot block delivery to the others.
func (r *Router) dispatch(sub *Subscription, channel, message string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber handler panicked",
				zap.String("channel", channel),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := sub.handler(channel, message); err != nil {
		r.logger.Error("subscriber handler failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// Channels returns the number of channels with at least one exact subscriber.
func (r *Router) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// PatternCount returns the number of registered pattern subscriptions.
func (r *Router) PatternCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}
