package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
)

// InstrumentedRepository is a wrapper type over an aggregate.Repository
// instance to provide instrumentation, in the form of metrics and traces
// using OpenTelemetry.
//
// Use NewInstrumentedRepository for constructing a new instance of this type.
type InstrumentedRepository[I aggregate.ID, T aggregate.Root[I]] struct {
	aggregateType string
	repository    aggregate.Repository[I, T]

	tracer       trace.Tracer
	getDuration  metric.Int64Histogram
	saveDuration metric.Int64Histogram
}

func (ir *InstrumentedRepository[I, T]) registerMetrics(meter metric.Meter) error {
	var err error

	if ir.getDuration, err = meter.Int64Histogram(
		"eventsourcing.repository.get.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of aggregate.Repository.Get operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedRepository: failed to register metric, %w", err)
	}

	if ir.saveDuration, err = meter.Int64Histogram(
		"eventsourcing.repository.save.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of aggregate.Repository.Save operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedRepository: failed to register metric, %w", err)
	}

	return nil
}

// NewInstrumentedRepository returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around an aggregate.Repository.
//
// The aggregate.Type name is reported as an attribute.
//
// An error is returned if metrics could not be registered.
func NewInstrumentedRepository[I aggregate.ID, T aggregate.Root[I]](
	aggregateType aggregate.Type[I, T],
	repository aggregate.Repository[I, T],
	options ...Option,
) (*InstrumentedRepository[I, T], error) {
	cfg := newConfig(options...)

	ir := &InstrumentedRepository[I, T]{
		aggregateType: aggregateType.Name,
		repository:    repository,
		tracer:        cfg.tracer(),
	}

	if err := ir.registerMetrics(cfg.meter()); err != nil {
		return nil, err
	}

	return ir, nil
}

// Get calls the wrapped aggregate.Repository.Get method and records metrics
// and traces around it.
func (ir *InstrumentedRepository[I, T]) Get(ctx context.Context, id I) (result T, err error) {
	ctx, span := ir.tracer.Start(ctx, "aggregate.Repository.Get", trace.WithAttributes(
		AggregateTypeKey.String(ir.aggregateType),
		AggregateIDKey.String(id.String()),
	))

	defer func(start time.Time) {
		if err == nil {
			span.SetAttributes(AggregateVersionKey.Int64(int64(result.Version())))
		}

		observe(ctx, span, ir.getDuration, start, err, AggregateTypeKey.String(ir.aggregateType))
	}(time.Now())

	return ir.repository.Get(ctx, id)
}

// Save calls the wrapped aggregate.Repository.Save method and records metrics
// and traces around it.
func (ir *InstrumentedRepository[I, T]) Save(ctx context.Context, root T) (err error) {
	ctx, span := ir.tracer.Start(ctx, "aggregate.Repository.Save", trace.WithAttributes(
		AggregateTypeKey.String(ir.aggregateType),
		AggregateIDKey.String(root.AggregateID().String()),
		AggregateVersionKey.Int64(int64(root.Version())),
	))

	defer func(start time.Time) {
		observe(ctx, span, ir.saveDuration, start, err, AggregateTypeKey.String(ir.aggregateType))
	}(time.Now())

	return ir.repository.Save(ctx, root)
}
