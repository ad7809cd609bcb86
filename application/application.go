// Package application ties together an Event Store, the Repositories of
// the Aggregate types it hosts and the Notification Log over every
// Domain Event persisted.
//
// The storage namespace of every Aggregate type is explicit configuration,
// passed to New: Repositories for unconfigured Aggregate types cannot be created.
package application

import (
	"errors"
	"fmt"

	"github.com/go-eventsourcing/eventsourcing/aggregate"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/logger"
	"github.com/go-eventsourcing/eventsourcing/notification"
	"github.com/go-eventsourcing/eventsourcing/opentelemetry"
)

var (
	// ErrUnknownAggregateType is returned when asking a Repository for an
	// Aggregate type that has no configured namespace.
	ErrUnknownAggregateType = errors.New("application: unknown aggregate type")

	// ErrInvalidNamespaces is returned by New when the namespaces
	// configuration is empty or ambiguous.
	ErrInvalidNamespaces = errors.New("application: invalid namespaces")
)

// Namespaces maps Aggregate type names to the storage namespace
// their Event Streams are recorded under.
type Namespaces map[string]string

func (ns Namespaces) validate() error {
	if len(ns) == 0 {
		return fmt.Errorf("no aggregate type configured, %w", ErrInvalidNamespaces)
	}

	owners := make(map[string]string, len(ns))

	for typeName, namespace := range ns {
		if typeName == "" || namespace == "" {
			return fmt.Errorf("empty aggregate type or namespace (%q: %q), %w", typeName, namespace, ErrInvalidNamespaces)
		}

		if owner, ok := owners[namespace]; ok {
			return fmt.Errorf("namespace %q used by both %q and %q, %w", namespace, owner, typeName, ErrInvalidNamespaces)
		}

		owners[namespace] = typeName
	}

	return nil
}

// Option customizes an Application.
type Option func(*config)

type config struct {
	logger            logger.Logger
	instrumentation   []opentelemetry.Option
	instrumented      bool
	notificationLimit int
}

// WithLogger sets the Logger used by the Application and its Repositories.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithInstrumentation enables OpenTelemetry instrumentation
// of the Event Store and of every Repository.
func WithInstrumentation(opts ...opentelemetry.Option) Option {
	return func(c *config) {
		c.instrumented = true
		c.instrumentation = opts
	}
}

// WithNotificationLimit caps the number of Notifications returned
// by a single Notification Log selection.
func WithNotificationLimit(limit int) Option {
	return func(c *config) { c.notificationLimit = limit }
}

// Application hosts the Aggregate types configured in its Namespaces,
// persisting them in a single Event Store.
//
// An Application is safe for concurrent use, as long as the Event Store is.
type Application struct {
	store         event.Store
	namespaces    Namespaces
	logger        logger.Logger
	instrument    []opentelemetry.Option
	instrumented  bool
	notifications *notification.Log
}

// New returns a new Application persisting Domain Events in the specified
// Event Store, using the namespaces configured for each Aggregate type.
func New(store event.Store, namespaces Namespaces, opts ...Option) (*Application, error) {
	if store == nil {
		return nil, errors.New("application.New: event store is required")
	}

	if err := namespaces.validate(); err != nil {
		return nil, fmt.Errorf("application.New: %w", err)
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.instrumented {
		instrumented, err := opentelemetry.NewInstrumentedEventStore(store, cfg.instrumentation...)
		if err != nil {
			return nil, fmt.Errorf("application.New: failed to instrument event store, %w", err)
		}

		store = instrumented
	}

	copied := make(Namespaces, len(namespaces))
	for k, v := range namespaces {
		copied[k] = v
	}

	app := &Application{
		store:         store,
		namespaces:    copied,
		logger:        cfg.logger,
		instrument:    cfg.instrumentation,
		instrumented:  cfg.instrumented,
		notifications: notification.NewLog(store, notification.WithMaxLimit(cfg.notificationLimit)),
	}

	logger.Info(app.logger, "Application started", logger.With("namespaces", len(copied)))

	return app, nil
}

// Namespace returns the storage namespace configured for the Aggregate type.
func (app *Application) Namespace(typeName string) (string, bool) {
	namespace, ok := app.namespaces[typeName]
	return namespace, ok
}

// Notifications returns the Notification Log over every Domain Event
// persisted by the Application.
func (app *Application) Notifications() *notification.Log {
	return app.notifications
}

// Repository returns the Repository for the specified Aggregate type,
// recording its Event Streams under the configured namespace.
//
// ErrUnknownAggregateType is returned if no namespace has been configured
// for the Aggregate type.
func Repository[I aggregate.ID, T aggregate.Root[I]](
	app *Application,
	typ aggregate.Type[I, T],
	opts ...aggregate.RepositoryOption,
) (aggregate.Repository[I, T], error) {
	namespace, ok := app.Namespace(typ.Name)
	if !ok {
		return nil, fmt.Errorf("application.Repository: %q, %w", typ.Name, ErrUnknownAggregateType)
	}

	opts = append([]aggregate.RepositoryOption{
		aggregate.WithLogger(app.logger),
	}, opts...)
	opts = append(opts, aggregate.WithNamespace(namespace))

	var repo aggregate.Repository[I, T] = aggregate.NewEventSourcedRepository(app.store, typ, opts...)

	if app.instrumented {
		instrumented, err := opentelemetry.NewInstrumentedRepository(typ, repo, app.instrument...)
		if err != nil {
			return nil, fmt.Errorf("application.Repository: failed to instrument repository, %w", err)
		}

		repo = instrumented
	}

	return repo, nil
}
