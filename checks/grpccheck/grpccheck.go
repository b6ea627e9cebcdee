// Package grpccheck implements the gRPC health checker via the standard
// grpc.health.v1.Health/Check RPC.
package grpccheck

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Option configures a Checker.
type Option func(*Checker)

// WithServiceName sets the service argument of HealthCheckRequest; empty
// (the default) asks for the overall server status.
func WithServiceName(name string) Option {
	return func(c *Checker) { c.serviceName = name }
}

// WithTLS dials with transport credentials instead of insecure.
func WithTLS(enabled bool) Option {
	return func(c *Checker) { c.tlsEnabled = enabled }
}

// WithTLSSkipVerify disables certificate verification; implies WithTLS(true).
func WithTLSSkipVerify(skip bool) Option {
	return func(c *Checker) {
		c.tlsSkipVerify = skip
		if skip {
			c.tlsEnabled = true
		}
	}
}

// WithBearerToken attaches an authorization: Bearer metadata entry.
func WithBearerToken(token string) Option {
	return func(c *Checker) { c.bearerToken = token }
}

// WithBasicAuth attaches an authorization: Basic metadata entry.
func WithBasicAuth(username, password string) Option {
	return func(c *Checker) { c.basicAuthUser, c.basicAuthPass = username, password }
}

// Checker probes a gRPC server's grpc.health.v1.Health service.
type Checker struct {
	serviceName   string
	tlsEnabled    bool
	tlsSkipVerify bool
	bearerToken   string
	basicAuthUser string
	basicAuthPass string
}

// New builds a gRPC health checker, rejecting at construction time a
// dependency that configures both a bearer token and basic-auth
// credentials — the same conflict checks/httpcheck applies to its own
// auth options.
func New(opts ...Option) (*Checker, error) {
	c := &Checker{}
	for _, o := range opts {
		o(c)
	}
	if c.bearerToken != "" && c.basicAuthUser != "" {
		return nil, dephealth.NewConfigError(dephealth.CodeConflictingAuth,
			"grpccheck: specify only one of bearer token or basic auth")
	}
	return c, nil
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeGRPC }

func (c *Checker) dialCreds() credentials.TransportCredentials {
	if !c.tlsEnabled {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(&tls.Config{InsecureSkipVerify: c.tlsSkipVerify}) //nolint:gosec
}

func (c *Checker) outgoingContext(ctx context.Context) context.Context {
	if c.bearerToken == "" && c.basicAuthUser == "" {
		return ctx
	}
	var value string
	switch {
	case c.bearerToken != "":
		value = "Bearer " + c.bearerToken
	default:
		creds := base64.StdEncoding.EncodeToString([]byte(c.basicAuthUser + ":" + c.basicAuthPass))
		value = "Basic " + creds
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", value)
}

// Check dials the target, issues Health/Check, and requires SERVING.
func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	target := fmt.Sprintf("%s:%s", ep.Host, ep.Port)

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(c.dialCreds()))
	if err != nil {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("gRPC dial %s failed: %v", target, err)}
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(c.outgoingContext(ctx), &grpc_health_v1.HealthCheckRequest{Service: c.serviceName})
	if err != nil {
		st, ok := status.FromError(err)
		if !ok {
			return fmt.Errorf("grpccheck: Health/Check to %s: %w", target, err)
		}
		switch st.Code() {
		case codes.DeadlineExceeded:
			return &dephealth.TimeoutError{Msg: fmt.Sprintf("gRPC health check to %s timed out", target)}
		case codes.Unauthenticated, codes.PermissionDenied:
			return &dephealth.AuthError{Msg: fmt.Sprintf("gRPC health check to %s: %s", target, st.Message())}
		case codes.Unavailable:
			return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("gRPC connection to %s unavailable: %s", target, st.Message())}
		default:
			return fmt.Errorf("grpccheck: Health/Check to %s failed: %s", target, st.Message())
		}
	}

	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		detail := "grpc_not_serving"
		if resp.Status == grpc_health_v1.HealthCheckResponse_UNKNOWN {
			detail = "grpc_unknown"
		}
		return &dephealth.UnhealthyError{
			Msg:    fmt.Sprintf("gRPC service %q at %s is not SERVING", c.serviceName, target),
			Detail: detail,
		}
	}
	return nil
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeGRPC, func(o dephealth.ProbeOptions) (dephealth.Checker, error) {
		opts := []Option{}
		if o.GRPCServiceName != "" {
			opts = append(opts, WithServiceName(o.GRPCServiceName))
		}
		if !o.GRPCInsecure {
			opts = append(opts, WithTLS(true))
		}
		c, err := New(opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
