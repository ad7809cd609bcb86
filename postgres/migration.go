package postgres

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	// Necessary to load the postgres driver used by migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable is the table golang-migrate records the applied migrations in.
const MigrationsTable = "eventsourcing_schema_migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies the latest migrations of the PostgreSQL Event Store
// and Snapshot Store schema to the database at the specified dsn.
//
// Run these in the entrypoint of your application, before building
// an EventStore or a SnapshotStore.
func RunMigrations(dsn string) error {
	wrapErr := func(err error, msg string) error {
		return fmt.Errorf("postgres.RunMigrations: %s, %w", msg, err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return wrapErr(err, "invalid dsn format")
	}

	// A dedicated migrations table keeps the Event Store schema history
	// apart from the one of the application sharing the database.
	q := u.Query()
	q.Set("x-migrations-table", MigrationsTable)
	u.RawQuery = q.Encode()

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return wrapErr(err, "failed to read embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, u.String())
	if err != nil {
		return wrapErr(err, "failed to create migrate instance")
	}

	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return wrapErr(err, "failed to execute migrations")
	}

	return nil
}
