package opentelemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used by the instrumentation.
const (
	ErrorKey                      attribute.Key = "error"
	EventStreamTypeKey            attribute.Key = "event_stream.type"
	EventStreamNameKey            attribute.Key = "event_stream.name"
	EventStreamVersionSelectorKey attribute.Key = "event_stream.select_from_version"
	EventStreamExpectedVersionKey attribute.Key = "event_stream.expected_version"
	EventStoreNumEventsKey        attribute.Key = "event_store.num_events"
	NotificationStartKey          attribute.Key = "notification.start"
	NotificationLimitKey          attribute.Key = "notification.limit"
	AggregateTypeKey              attribute.Key = "aggregate.type"
	AggregateIDKey                attribute.Key = "aggregate.id"
	AggregateVersionKey           attribute.Key = "aggregate.version"
)

// observe ends the span and records the elapsed time since start
// in the histogram, marking both with the outcome of the operation.
func observe(
	ctx context.Context,
	span trace.Span,
	histogram metric.Int64Histogram,
	start time.Time,
	err error,
	attributes ...attribute.KeyValue,
) {
	attributes = append(attributes, ErrorKey.Bool(err != nil))
	histogram.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributes(attributes...))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
