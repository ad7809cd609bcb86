// Package testcontainer starts the Docker containers used by the
// integration tests of the durable stores, through testcontainers.
package testcontainer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres is an handle on a running PostgreSQL container.
type Postgres struct {
	*postgres.PostgresContainer

	DSN string
}

// NewPostgres creates and starts a new PostgreSQL container.
// Terminate the container once done.
func NewPostgres(ctx context.Context) (*Postgres, error) {
	withContext := func(msg string, err error) error {
		return fmt.Errorf("testcontainer.NewPostgres: %s, %w", msg, err)
	}

	container, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("main"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("notasecret"),
		testcontainers.WithWaitStrategy(
			//nolint:mnd // The log line is printed twice, before and after the init scripts.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, withContext("failed to run new container", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, withContext("failed to get connection dsn", err)
	}

	return &Postgres{PostgresContainer: container, DSN: dsn}, nil
}

// Pool opens a new connection pool to the container database.
func (p *Postgres) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, p.DSN)
	if err != nil {
		return nil, fmt.Errorf("testcontainer.Postgres.Pool: failed to connect, %w", err)
	}

	return pool, nil
}
