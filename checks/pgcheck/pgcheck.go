// Package pgcheck implements the PostgreSQL health checker: SELECT 1,
// either against a dedicated connection (standalone mode) or against an
// application's existing *sql.DB / *pgxpool.Pool (pool mode, the
// preferred mode since it also exercises pool exhaustion).
package pgcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pool is the subset of *pgxpool.Pool the pool-mode probe needs, declared
// as an interface so tests can supply github.com/pashagolub/pgxmock/v4
// instead of a live pool.
type pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a Checker.
type Option func(*Checker)

// WithQuery overrides the default "SELECT 1" probe query.
func WithQuery(query string) Option {
	return func(c *Checker) { c.query = query }
}

// WithDSN sets the connection string used in standalone mode. If unset,
// standalone mode connects to the scheduled endpoint's host:port with no
// credentials, which only works for trust-authenticated databases.
func WithDSN(dsn string) Option {
	return func(c *Checker) { c.dsn = dsn }
}

// WithDB switches the checker to pool mode against an existing *sql.DB,
// e.g. one obtained from pgx/v5/stdlib.OpenDBFromPool.
func WithDB(db *sql.DB) Option {
	return func(c *Checker) { c.db = db }
}

// WithPool switches the checker to pool mode against an existing
// *pgxpool.Pool (or anything exposing the same QueryRow method, e.g. a
// pgxmock pool in tests).
func WithPool(p pool) Option {
	return func(c *Checker) { c.pool = p }
}

// Checker probes PostgreSQL availability.
type Checker struct {
	query string
	dsn   string
	db    *sql.DB
	pool  pool
}

func New(opts ...Option) *Checker {
	c := &Checker{query: "SELECT 1"}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypePostgres }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	switch {
	case c.db != nil:
		var discard int
		if err := c.db.QueryRowContext(ctx, c.query).Scan(&discard); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return classifyPGError(ep, err)
		}
		return nil
	case c.pool != nil:
		var discard int
		if err := c.pool.QueryRow(ctx, c.query).Scan(&discard); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return classifyPGError(ep, err)
		}
		return nil
	default:
		dsn := c.dsn
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s/postgres", ep.Host, ep.Port)
		}
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return classifyPGError(ep, err)
		}
		defer conn.Close(ctx)

		var discard int
		if err := conn.QueryRow(ctx, c.query).Scan(&discard); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return classifyPGError(ep, err)
		}
		return nil
	}
}

// Postgres auth-relevant SQLSTATE classes: 28P01 invalid_password, 28000
// invalid_authorization_specification.
func isPGAuthSQLState(code string) bool {
	return code == "28P01" || code == "28000"
}

func classifyPGError(ep dephealth.Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("Postgres connection to %s:%s timed out", ep.Host, ep.Port)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("Postgres connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isPGAuthSQLState(pgErr.Code) {
		return &dephealth.AuthError{Msg: fmt.Sprintf("Postgres auth error at %s:%s: %v", ep.Host, ep.Port, err)}
	}
	return fmt.Errorf("pgcheck: query against %s:%s failed: %w", ep.Host, ep.Port, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypePostgres, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
