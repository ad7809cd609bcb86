package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/version"
)

var _ event.Store = new(InstrumentedEventStore)

// InstrumentedEventStore is a wrapper type over an event.Store
// instance to provide instrumentation, in the form of metrics and traces
// using OpenTelemetry.
//
// Use NewInstrumentedEventStore for constructing a new instance of this type.
type InstrumentedEventStore struct {
	eventStore event.Store

	tracer                    trace.Tracer
	streamDuration            metric.Int64Histogram
	appendDuration            metric.Int64Histogram
	readNotificationsDuration metric.Int64Histogram
	appendedEvents            metric.Int64Counter
}

func (ies *InstrumentedEventStore) registerMetrics(meter metric.Meter) error {
	var err error

	if ies.streamDuration, err = meter.Int64Histogram(
		"eventsourcing.event_store.stream.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of event.Store.Stream operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedEventStore: failed to register metric, %w", err)
	}

	if ies.appendDuration, err = meter.Int64Histogram(
		"eventsourcing.event_store.append.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of event.Store.Append operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedEventStore: failed to register metric, %w", err)
	}

	if ies.readNotificationsDuration, err = meter.Int64Histogram(
		"eventsourcing.event_store.read_notifications.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of event.Store.ReadNotifications operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedEventStore: failed to register metric, %w", err)
	}

	if ies.appendedEvents, err = meter.Int64Counter(
		"eventsourcing.event_store.appended_events",
		metric.WithUnit("{event}"),
		metric.WithDescription("Number of Domain Events appended to the event.Store."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedEventStore: failed to register metric, %w", err)
	}

	return nil
}

// NewInstrumentedEventStore returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around an event.Store.
//
// An error is returned if metrics could not be registered.
func NewInstrumentedEventStore(eventStore event.Store, options ...Option) (*InstrumentedEventStore, error) {
	cfg := newConfig(options...)

	ies := &InstrumentedEventStore{
		eventStore: eventStore,
		tracer:     cfg.tracer(),
	}

	if err := ies.registerMetrics(cfg.meter()); err != nil {
		return nil, err
	}

	return ies, nil
}

// Stream calls the wrapped event.Store.Stream method and records metrics and traces around it.
func (ies *InstrumentedEventStore) Stream(
	ctx context.Context,
	stream event.StreamWrite,
	id event.StreamID,
	selector version.Selector,
) (err error) {
	ctx, span := ies.tracer.Start(ctx, "event.Store.Stream", trace.WithAttributes(
		EventStreamTypeKey.String(id.Type),
		EventStreamNameKey.String(id.Name),
		EventStreamVersionSelectorKey.Int64(int64(selector.From)),
	))

	defer func(start time.Time) {
		observe(ctx, span, ies.streamDuration, start, err, EventStreamTypeKey.String(id.Type))
	}(time.Now())

	return ies.eventStore.Stream(ctx, stream, id, selector)
}

// Append calls the wrapped event.Store.Append method and records metrics and traces around it.
func (ies *InstrumentedEventStore) Append(
	ctx context.Context,
	id event.StreamID,
	expected version.Check,
	events ...event.Envelope,
) (result event.AppendResult, err error) {
	expectedVersion := int64(-1)
	if v, ok := expected.(version.CheckExact); ok {
		expectedVersion = int64(v)
	}

	ctx, span := ies.tracer.Start(ctx, "event.Store.Append", trace.WithAttributes(
		EventStreamTypeKey.String(id.Type),
		EventStreamNameKey.String(id.Name),
		EventStreamExpectedVersionKey.Int64(expectedVersion),
		EventStoreNumEventsKey.Int(len(events)),
	))

	defer func(start time.Time) {
		attributes := []attribute.KeyValue{EventStreamTypeKey.String(id.Type)}

		if err == nil {
			ies.appendedEvents.Add(ctx, int64(len(events)), metric.WithAttributes(attributes...))
		}

		observe(ctx, span, ies.appendDuration, start, err, attributes...)
	}(time.Now())

	return ies.eventStore.Append(ctx, id, expected, events...)
}

// ReadNotifications calls the wrapped event.Store.ReadNotifications method
// and records metrics and traces around it.
func (ies *InstrumentedEventStore) ReadNotifications(
	ctx context.Context,
	start version.SequenceNumber,
	limit int,
) (notifications []event.Persisted, err error) {
	ctx, span := ies.tracer.Start(ctx, "event.Store.ReadNotifications", trace.WithAttributes(
		NotificationStartKey.Int64(int64(start)), //nolint:gosec // Sequence numbers fit int64.
		NotificationLimitKey.Int(limit),
	))

	defer func(begin time.Time) {
		observe(ctx, span, ies.readNotificationsDuration, begin, err)
	}(time.Now())

	return ies.eventStore.ReadNotifications(ctx, start, limit)
}

// LatestSequenceNumber calls the wrapped event.Store.LatestSequenceNumber method.
func (ies *InstrumentedEventStore) LatestSequenceNumber(ctx context.Context) (version.SequenceNumber, error) {
	ctx, span := ies.tracer.Start(ctx, "event.Store.LatestSequenceNumber")
	defer span.End()

	latest, err := ies.eventStore.LatestSequenceNumber(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return latest, err //nolint:wrapcheck // Transparent wrapper.
}
