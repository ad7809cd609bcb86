package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable is the table golang-migrate records the applied migrations in.
const MigrationsTable = "eventsourcing_schema_migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies the latest migrations of the SQLite Event Store
// and Snapshot Store schema to the specified database.
func RunMigrations(db *sql.DB) error {
	wrapErr := func(err error, msg string) error {
		return fmt.Errorf("sqlite.RunMigrations: %s, %w", msg, err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return wrapErr(err, "failed to read embedded migrations")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: MigrationsTable,
		DatabaseName:    "",
		NoTxWrap:        false,
	})
	if err != nil {
		return wrapErr(err, "failed to create database driver")
	}

	// The instance is not closed, as it would close db too.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return wrapErr(err, "failed to create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return wrapErr(err, "failed to execute migrations")
	}

	return nil
}
