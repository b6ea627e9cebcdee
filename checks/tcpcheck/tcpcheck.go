// Package tcpcheck implements the plain-TCP health checker: dial and
// immediately close, the lowest-common-denominator probe for any
// endpoint that at least accepts connections.
package tcpcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
)

// New builds a stateless TCP-dial checker. There is nothing to configure:
// the scheduler's per-cycle deadline is the only timeout that matters.
func New() dephealth.Checker {
	return dephealth.CheckerFunc{Fn: check, KindVal: dephealth.TypeTCP}
}

func check(ctx context.Context, ep dephealth.Endpoint) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ep.Host, ep.Port))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &dephealth.TimeoutError{Msg: fmt.Sprintf("TCP connection to %s:%s timed out", ep.Host, ep.Port)}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("TCP connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
		}
		return fmt.Errorf("tcpcheck: dial %s:%s: %w", ep.Host, ep.Port, err)
	}
	return conn.Close()
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeTCP, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
