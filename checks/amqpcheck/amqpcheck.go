// Package amqpcheck implements the AMQP (RabbitMQ) health checker: open a
// connection and close it.
package amqpcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Option configures a Checker.
type Option func(*Checker)

// WithURL sets the full AMQP URL (including vhost/credentials) used to
// dial; host/port in the URL are overridden with the scheduled
// endpoint's, so only the vhost/credentials/query portion matters.
func WithURL(url string) Option {
	return func(c *Checker) { c.url = url }
}

// Checker probes an AMQP broker by dialing and closing a connection.
type Checker struct {
	url string
}

func New(opts ...Option) *Checker {
	c := &Checker{}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeAMQP }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	url := c.url
	if url == "" {
		url = fmt.Sprintf("amqp://%s:%s/", ep.Host, ep.Port)
	} else if u, err := neturl.Parse(url); err == nil {
		u.Host = net.JoinHostPort(ep.Host, ep.Port)
		url = u.String()
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, network, addr)
		},
	})
	if err != nil {
		return classifyAMQPError(ep, err)
	}
	return conn.Close()
}

func classifyAMQPError(ep dephealth.Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("AMQP connection to %s:%s timed out", ep.Host, ep.Port)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("AMQP connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && (amqpErr.Code == amqp.AccessRefused || amqpErr.Code == amqp.NotAllowed) {
		return &dephealth.AuthError{Msg: fmt.Sprintf("AMQP connection to %s:%s rejected: %s", ep.Host, ep.Port, amqpErr.Reason)}
	}
	return fmt.Errorf("amqpcheck: dial %s:%s failed: %w", ep.Host, ep.Port, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeAMQP, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
