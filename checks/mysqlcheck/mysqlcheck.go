// Package mysqlcheck implements the MySQL health checker: SELECT 1 via
// database/sql, either against a dedicated connection (standalone mode)
// or an application's existing *sql.DB (pool mode).
package mysqlcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/go-sql-driver/mysql"
)

// Option configures a Checker.
type Option func(*Checker)

// WithQuery overrides the default "SELECT 1" probe query.
func WithQuery(query string) Option {
	return func(c *Checker) { c.query = query }
}

// WithDSN sets the go-sql-driver/mysql DSN used in standalone mode
// ("user:pass@tcp(host:port)/dbname").
func WithDSN(dsn string) Option {
	return func(c *Checker) { c.dsn = dsn }
}

// WithDB switches the checker to pool mode against an existing *sql.DB.
func WithDB(db *sql.DB) Option {
	return func(c *Checker) { c.db = db }
}

// Checker probes MySQL availability.
type Checker struct {
	query string
	dsn   string
	db    *sql.DB
}

func New(opts ...Option) *Checker {
	c := &Checker{query: "SELECT 1"}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeMySQL }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	db := c.db
	if db == nil {
		dsn := c.dsn
		if dsn == "" {
			dsn = fmt.Sprintf("tcp(%s:%s)/", ep.Host, ep.Port)
		}
		opened, err := sql.Open("mysql", dsn)
		if err != nil {
			return fmt.Errorf("mysqlcheck: opening %s:%s: %w", ep.Host, ep.Port, err)
		}
		defer opened.Close()
		db = opened
	}

	var discard int
	if err := db.QueryRowContext(ctx, c.query).Scan(&discard); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return classifyMySQLError(ep, err)
	}
	return nil
}

// MySQL auth-relevant error numbers: 1045 access denied for user, 1044
// access denied to database.
func isMySQLAuthError(num uint16) bool {
	return num == 1045 || num == 1044
}

func classifyMySQLError(ep dephealth.Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("MySQL connection to %s:%s timed out", ep.Host, ep.Port)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("MySQL connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && isMySQLAuthError(myErr.Number) {
		return &dephealth.AuthError{Msg: fmt.Sprintf("MySQL auth error at %s:%s: %v", ep.Host, ep.Port, err)}
	}
	return fmt.Errorf("mysqlcheck: query against %s:%s failed: %w", ep.Host, ep.Port, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeMySQL, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
