package pubsub

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PublishToExactSubscribers(t *testing.T) {
	r := NewRouter(nil)

	var got []string
	r.Subscribe("orders", func(channel, message string) error {
		got = append(got, channel+":"+message)
		return nil
	})

	n := r.Publish("orders", "created")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"orders:created"}, got)
}

func TestRouter_PublishWithoutSubscribers(t *testing.T) {
	r := NewRouter(nil)

	assert.Zero(t, r.Publish("nobody", "msg"))
}

func TestRouter_ChannelIsolation(t *testing.T) {
	r := NewRouter(nil)

	var ordersSeen, usersSeen int
	r.Subscribe("orders", func(channel, message string) error {
		ordersSeen++
		return nil
	})
	r.Subscribe("users", func(channel, message string) error {
		usersSeen++
		return nil
	})

	r.Publish("orders", "m1")
	r.Publish("orders", "m2")
	r.Publish("users", "m3")

	assert.Equal(t, 2, ordersSeen)
	assert.Equal(t, 1, usersSeen)
}

func TestRouter_PatternSubscription(t *testing.T) {
	r := NewRouter(nil)

	var seen []string
	sub, err := r.SubscribePattern("orders.*", func(channel, message string) error {
		seen = append(seen, channel)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Publish("orders.created", "m"))
	assert.Equal(t, 1, r.Publish("orders.paid", "m"))
	assert.Zero(t, r.Publish("users.created", "m"))

	assert.Equal(t, []string{"orders.created", "orders.paid"}, seen)

	r.Unsubscribe(sub)
	assert.Zero(t, r.Publish("orders.created", "m"))
}

func TestRouter_MalformedPattern(t *testing.T) {
	r := NewRouter(nil)

	_, err := r.SubscribePattern("orders.[", func(channel, message string) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, r.PatternCount())
}

func TestRouter_ExactAndPatternBothReceive(t *testing.T) {
	r := NewRouter(nil)

	var exact, pattern int
	r.Subscribe("orders.created", func(channel, message string) error {
		exact++
		return nil
	})
	_, err := r.SubscribePattern("orders.*", func(channel, message string) error {
		pattern++
		return nil
	})
	require.NoError(t, err)

	n := r.Publish("orders.created", "m")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, exact)
	assert.Equal(t, 1, pattern)
}

func TestRouter_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	r := NewRouter(nil)

	var delivered int
	r.Subscribe("ch", func(channel, message string) error {
		return errors.New("boom")
	})
	r.Subscribe("ch", func(channel, message string) error {
		delivered++
		return nil
	})

	// the failing handler still counts as a receiver
	n := r.Publish("ch", "m")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, delivered)
}

func TestRouter_PanickingHandlerIsRecovered(t *testing.T) {
	r := NewRouter(nil)

	var delivered int
	r.Subscribe("ch", func(channel, message string) error {
		panic("handler bug")
	})
	r.Subscribe("ch", func(channel, message string) error {
		delivered++
		return nil
	})

	assert.NotPanics(t, func() {
		n := r.Publish("ch", "m")
		assert.Equal(t, 2, n)
	})
	assert.Equal(t, 1, delivered)
}

func TestRouter_Unsubscribe(t *testing.T) {
	r := NewRouter(nil)

	sub := r.Subscribe("ch", func(channel, message string) error { return nil })
	assert.Equal(t, 1, r.Channels())

	r.Unsubscribe(sub)
	assert.Zero(t, r.Channels(), "empty channels disappear")

	// repeated and nil unsubscribes are no-ops
	r.Unsubscribe(sub)
	r.Unsubscribe(nil)
}

func TestRouter_SubscriberJoinedMidStream(t *testing.T) {
	r := NewRouter(nil)

	r.Publish("ch", "before")

	var seen []string
	r.Subscribe("ch", func(channel, message string) error {
		seen = append(seen, message)
		return nil
	})

	r.Publish("ch", "after")

	// no replay of messages published before the subscription
	assert.Equal(t, []string{"after"}, seen)
}

func TestRouter_ConcurrentPublishSubscribe(t *testing.T) {
	r := NewRouter(nil)

	var received atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := r.Subscribe("ch", func(channel, message string) error {
					received.Add(1)
					return nil
				})
				r.Publish("ch", "m")
				r.Unsubscribe(sub)
			}
		}()
	}

	wg.Wait()
	assert.GreaterOrEqual(t, received.Load(), int64(8*100))
}
