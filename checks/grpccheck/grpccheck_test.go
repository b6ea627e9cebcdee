package grpccheck

import (
	"context"
	"net"
	"testing"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type testServer struct {
	lis  net.Listener
	srv  *grpc.Server
	h    *health.Server
	host string
	port string
}

func startTestServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) *testServer {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := health.NewServer()
	h.SetServingStatus("", status)
	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	go s.Serve(lis) //nolint:errcheck

	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)

	ts := &testServer{lis: lis, srv: s, h: h, host: host, port: port}
	t.Cleanup(func() { ts.srv.Stop() })
	return ts
}

func mustNew(t *testing.T, opts ...Option) *Checker {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestCheck_Serving(t *testing.T) {
	ts := startTestServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	c := mustNew(t)
	assert.Equal(t, dephealth.TypeGRPC, c.Kind())
	err := c.Check(context.Background(), dephealth.Endpoint{Host: ts.host, Port: ts.port})
	assert.NoError(t, err)
}

func TestCheck_NotServing(t *testing.T) {
	ts := startTestServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	c := mustNew(t)
	err := c.Check(context.Background(), dephealth.Endpoint{Host: ts.host, Port: ts.port})
	require.Error(t, err)
	var unhealthy *dephealth.UnhealthyError
	assert.ErrorAs(t, err, &unhealthy)
	assert.Equal(t, "grpc_not_serving", unhealthy.Detail)
}

func TestCheck_ConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, lis.Close())

	c := mustNew(t)
	err = c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port})
	require.Error(t, err)
}

func TestCheck_ServiceNameRouting(t *testing.T) {
	ts := startTestServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	ts.h.SetServingStatus("ledger", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	c := mustNew(t, WithServiceName("ledger"))
	err := c.Check(context.Background(), dephealth.Endpoint{Host: ts.host, Port: ts.port})
	require.Error(t, err)
}

func TestNew_ConflictingAuth(t *testing.T) {
	_, err := New(WithBearerToken("a"), WithBasicAuth("u", "p"))
	require.Error(t, err)
	var cfgErr *dephealth.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, dephealth.CodeConflictingAuth, cfgErr.Code)
}
