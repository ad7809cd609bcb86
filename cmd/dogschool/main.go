// Package main contains a command line entrypoint running the dog school
// against one of the supported Event Stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	firestoreapi "cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
	"github.com/go-eventsourcing/eventsourcing/application"
	"github.com/go-eventsourcing/eventsourcing/correlation"
	"github.com/go-eventsourcing/eventsourcing/event"
	"github.com/go-eventsourcing/eventsourcing/firestore"
	"github.com/go-eventsourcing/eventsourcing/internal/dogschool"
	"github.com/go-eventsourcing/eventsourcing/logger/zaplogger"
	"github.com/go-eventsourcing/eventsourcing/mongodb"
	"github.com/go-eventsourcing/eventsourcing/postgres"
	"github.com/go-eventsourcing/eventsourcing/sqlite"
)

type stores struct {
	events    event.Store
	snapshots snapshot.Store
	close     func()
}

func openStores(ctx context.Context, cfg *config, log *zaplogger.Logger) (*stores, error) {
	switch cfg.Store {
	case storePostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres, %w", err)
		}

		return &stores{
			events:    postgres.NewEventStore(pool, dogschool.EventSerde, postgres.WithLogger(log)),
			snapshots: postgres.NewSnapshotStore(pool),
			close:     pool.Close,
		}, nil

	case storeSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return &stores{
			events:    sqlite.NewEventStore(db, dogschool.EventSerde, sqlite.WithLogger(log)),
			snapshots: sqlite.NewSnapshotStore(db),
			close:     func() { _ = db.Close() },
		}, nil

	case storeFirestore:
		client, err := firestoreapi.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client, %w", err)
		}

		return &stores{
			events:    firestore.NewEventStore(client, dogschool.EventSerde, firestore.WithLogger(log)),
			snapshots: snapshot.NewInMemoryStore(),
			close:     func() { _ = client.Close() },
		}, nil

	case storeMongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb, %w", err)
		}

		store := mongodb.NewEventStore(client, cfg.MongoDBDatabase, dogschool.EventSerde, mongodb.WithLogger(log))
		if err := store.Init(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}

		return &stores{
			events:    store,
			snapshots: snapshot.NewInMemoryStore(),
			close:     func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		return &stores{
			events:    event.NewInMemoryStore(),
			snapshots: snapshot.NewInMemoryStore(),
			close:     func() {},
		}, nil
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig()
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to parse config, %w", err)
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("dogschool.main: invalid log level, %w", err)
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = level

	zl, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to initialize logger, %w", err)
	}

	//nolint:errcheck // No need for this error to come up if it happens.
	defer zl.Sync()

	log := zaplogger.Wrap(zl)

	s, err := openStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to open %s store, %w", cfg.Store, err)
	}

	defer s.close()

	appOptions := []application.Option{application.WithLogger(log)}
	if cfg.Instrumentation {
		appOptions = append(appOptions, application.WithInstrumentation())
	}

	eventStore := correlation.WrapEventStore(s.events, uuid.NewString)

	app, err := application.New(eventStore, dogschool.Namespaces(cfg.Namespace), appOptions...)
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to create application, %w", err)
	}

	schoolOptions := []dogschool.Option{dogschool.WithClock(time.Now), dogschool.WithIDGenerator(uuid.New)}
	if cfg.Snapshots.Enabled {
		schoolOptions = append(schoolOptions,
			dogschool.WithSnapshots(s.snapshots, snapshot.EveryNVersions(cfg.Snapshots.Every)),
		)
	}

	school, err := dogschool.NewSchool(app, schoolOptions...)
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to create school, %w", err)
	}

	return enrol(ctx, school, zl, args)
}

// enrol registers a dog named after the first argument and teaches it
// the remaining ones as tricks, then logs the dog and the notifications
// recorded in the meantime.
func enrol(ctx context.Context, school *dogschool.School, zl *zap.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("dogschool.main: usage: dogschool <name> [trick...]")
	}

	// Every Domain Event recorded by the enrolment shares the same correlation id.
	ctx = correlation.WithCorrelationID(ctx, uuid.NewString())

	latest, err := school.LatestNotification(ctx)
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to read notification log, %w", err)
	}

	id, err := school.RegisterDog(ctx, args[0])
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to register dog, %w", err)
	}

	for _, trick := range args[1:] {
		if err := school.AddTrick(ctx, id, trick); err != nil {
			return fmt.Errorf("dogschool.main: failed to add trick, %w", err)
		}
	}

	dog, err := school.GetDog(ctx, id)
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to get dog, %w", err)
	}

	zl.Info("dog enrolled",
		zap.Stringer("id", dog.ID),
		zap.String("name", dog.Name),
		zap.Strings("tricks", dog.Tricks),
		zap.Uint64("version", uint64(dog.Version)),
	)

	notifications, err := school.SelectNotifications(ctx, latest+1, len(args))
	if err != nil {
		return fmt.Errorf("dogschool.main: failed to select notifications, %w", err)
	}

	for _, n := range notifications {
		zl.Info("notification",
			zap.Uint64("id", uint64(n.ID)),
			zap.String("stream", n.StreamID.String()),
			zap.Uint64("version", uint64(n.Version)),
			zap.String("event", n.Envelope.Message.Name()),
			zap.Any("metadata", n.Envelope.Metadata),
		)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
