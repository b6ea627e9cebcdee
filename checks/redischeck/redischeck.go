// Package redischeck implements the Redis health checker: PING, either
// against a fresh client (standalone mode) or an application's existing
// *redis.Client (pool mode).
package redischeck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/redis/go-redis/v9"
)

// Option configures a Checker.
type Option func(*Checker)

// WithPassword sets the password used in standalone mode.
func WithPassword(password string) Option {
	return func(c *Checker) { c.password = password }
}

// WithDB selects the logical database index used in standalone mode.
func WithDB(db int) Option {
	return func(c *Checker) { c.db = db }
}

// WithClient switches the checker to pool mode against an existing
// *redis.Client.
func WithClient(client *redis.Client) Option {
	return func(c *Checker) { c.client = client }
}

// Checker probes Redis availability via PING.
type Checker struct {
	password string
	db       int
	client   *redis.Client
}

func New(opts ...Option) *Checker {
	c := &Checker{}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeRedis }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	client := c.client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(ep.Host, ep.Port),
			Password: c.password,
			DB:       c.db,
		})
		defer client.Close()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return classifyRedisError(ep, err)
	}
	return nil
}

// redis-server returns auth failures as plain -ERR replies (proto.RedisError,
// a bare string type), never a typed error, so NOAUTH/WRONGPASS have to be
// matched on the reply text the same way classifySocketError in ldapcheck
// falls back to substring matching for cases its driver leaves untyped.
func isRedisAuthError(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "NOAUTH") ||
		strings.Contains(msg, "WRONGPASS") ||
		strings.Contains(msg, "INVALID PASSWORD") ||
		strings.Contains(msg, "AUTHENTICATION REQUIRED")
}

func classifyRedisError(ep dephealth.Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("Redis connection to %s:%s timed out", ep.Host, ep.Port)}
	}
	if errors.Is(err, redis.ErrClosed) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("Redis connection to %s:%s is closed", ep.Host, ep.Port)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("Redis connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("Redis connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	if isRedisAuthError(err) {
		return &dephealth.AuthError{Msg: fmt.Sprintf("Redis auth error at %s:%s: %v", ep.Host, ep.Port, err)}
	}
	return fmt.Errorf("redischeck: PING against %s:%s failed: %w", ep.Host, ep.Port, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeRedis, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
