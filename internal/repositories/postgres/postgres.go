// Package postgres reads tax rates and zones from PostgreSQL for deployments that keep tax data in
// an existing relational store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

// Querier is the subset of *pgxpool.Pool used by the repositories.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// Schema creates the tables read by this package.
const Schema = `
CREATE TABLE IF NOT EXISTS tax_zones (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tax_zone_members (
	zone_id      TEXT NOT NULL REFERENCES tax_zones(id) ON DELETE CASCADE,
	country_code TEXT NOT NULL,
	PRIMARY KEY (zone_id, country_code)
);
CREATE TABLE IF NOT EXISTS tax_rates (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	value             NUMERIC(7,4) NOT NULL,
	enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	category_id       TEXT NOT NULL,
	zone_id           TEXT NOT NULL REFERENCES tax_zones(id),
	customer_group_id TEXT
);`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return wrapError("migrate", err)
	}
	return nil
}

// Open parses url, connects a pool and verifies it with a ping.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrapError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapError("ping", err)
	}
	return pool, nil
}

// Error implements repositories.RepositoryError for Postgres failures.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("postgres.%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

// wrapError classifies driver errors: no rows is not found, unique and serialization violations
// are conflicts, and connection-class errors are unavailable.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{op: op, err: err}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		e.notFound = true
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == "23505", pgErr.Code == "40001", pgErr.Code == "40P01":
			e.conflict = true
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"):
			e.unavailable = true
		}
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		e.unavailable = true
	default:
		var connectErr *pgconn.ConnectError
		if errors.As(err, &connectErr) {
			e.unavailable = true
		}
	}
	return e
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
