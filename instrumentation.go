package nebula

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/eternalApril/nebula"

// instrumentation records per-operation counters and latency for the
// facade's common operation surface.
type instrumentation struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstrumentation(provider metric.MeterProvider) *instrumentation {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	inst := &instrumentation{}
	meter := provider.Meter(instrumentationName)
	inst.requests, _ = meter.Int64Counter(
		"nebula.engine.requests",
		metric.WithDescription("Total number of engine operations"),
	)
	inst.errors, _ = meter.Int64Counter(
		"nebula.engine.errors",
		metric.WithDescription("Total number of failed engine operations"),
	)
	inst.duration, _ = meter.Float64Histogram(
		"nebula.engine.duration.ms",
		metric.WithDescription("Engine operation latency in milliseconds"),
	)
	return inst
}

// observe starts timing one operation; the returned func records the result.
func (i *instrumentation) observe(op string) func(error) {
	if i == nil {
		return func(error) {}
	}

	start := time.Now()
	return func(err error) {
		ctx := context.Background()
		attrs := metric.WithAttributes(attribute.String("nebula.operation", op))

		if i.requests != nil {
			i.requests.Add(ctx, 1, attrs)
		}
		if err != nil && i.errors != nil {
			i.errors.Add(ctx, 1, attrs)
		}
		if i.duration != nil {
			i.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
		}
	}
}
