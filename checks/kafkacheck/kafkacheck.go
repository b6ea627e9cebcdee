// Package kafkacheck implements the Kafka health checker: dial one
// broker and fetch cluster metadata, requiring at least one broker in
// the response.
package kafkacheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/segmentio/kafka-go"
)

// Checker probes a Kafka broker by dialing and reading cluster metadata.
type Checker struct{}

func New() *Checker { return &Checker{} }

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeKafka }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	bootstrap := net.JoinHostPort(ep.Host, ep.Port)

	conn, err := kafka.DialContext(ctx, "tcp", bootstrap)
	if err != nil {
		return classifyKafkaError(ep, err)
	}
	defer conn.Close()

	brokers, err := conn.Brokers()
	if err != nil {
		return classifyKafkaError(ep, err)
	}
	if len(brokers) == 0 {
		return &dephealth.UnhealthyError{
			Msg:    fmt.Sprintf("Kafka broker %s: no brokers in metadata", bootstrap),
			Detail: "no_brokers",
		}
	}
	return nil
}

func classifyKafkaError(ep dephealth.Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("Kafka connection to %s:%s timed out", ep.Host, ep.Port)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("Kafka connection to %s:%s refused: %v", ep.Host, ep.Port, err)}
	}
	return fmt.Errorf("kafkacheck: connection to %s:%s failed: %w", ep.Host, ep.Port, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeKafka, func(dephealth.ProbeOptions) (dephealth.Checker, error) {
		return New(), nil
	})
}
