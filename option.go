package nebula

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/eternalApril/nebula/queue"
)

// Option configures an Engine under construction.
type Option interface {
	Apply(*options)
}

// enforce compilation error if OptionFunc does not implement Option
var _ Option = OptionFunc(nil)

// OptionFunc is a function type that implements the Option interface.
type OptionFunc func(*options)

// Apply applies the OptionFunc to the given options.
func (f OptionFunc) Apply(o *options) {
	f(o)
}

type options struct {
	shards           uint
	logger           *zap.Logger
	clock            func() time.Time
	gc               GCConfig
	queue            queue.Config
	bucketCapacity   float64
	bucketRefillRate float64
	meterProvider    metric.MeterProvider
}

func defaultOptions() *options {
	return &options{
		shards:           32,
		logger:           zap.NewNop(),
		clock:            time.Now,
		gc:               DefaultGCConfig(),
		queue:            queue.DefaultConfig(),
		bucketCapacity:   10,
		bucketRefillRate: 1,
	}
}

// WithShards sets the number of keyspace shards (a power of two, at most 64).
func WithShards(shards uint) Option {
	return OptionFunc(func(o *options) {
		o.shards = shards
	})
}

// WithLogger sets the logger used by the engine, sweep and pub/sub router.
func WithLogger(logger *zap.Logger) Option {
	return OptionFunc(func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithClock injects the clock used for expiry, queueing and rate limiting.
// Tests use it to control logical time.
func WithClock(now func() time.Time) Option {
	return OptionFunc(func(o *options) {
		if now != nil {
			o.clock = now
		}
	})
}

// WithGC overrides the background sweep configuration.
func WithGC(cfg GCConfig) Option {
	return OptionFunc(func(o *options) {
		o.gc = cfg
	})
}

// WithQueueConfig overrides the job-queue retry and processing settings.
func WithQueueConfig(cfg queue.Config) Option {
	return OptionFunc(func(o *options) {
		o.queue = cfg
	})
}

// WithTokenBucket sets the capacity and per-second refill rate of the
// token-bucket limiter.
func WithTokenBucket(capacity, refillPerSecond float64) Option {
	return OptionFunc(func(o *options) {
		o.bucketCapacity = capacity
		o.bucketRefillRate = refillPerSecond
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider used for the
// engine's operation metrics. Defaults to the global provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return OptionFunc(func(o *options) {
		o.meterProvider = provider
	})
}
