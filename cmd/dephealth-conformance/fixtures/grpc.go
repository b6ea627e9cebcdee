package fixtures

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCFixture is an in-process gRPC server exposing the standard health
// service, grounded in the reference service's own health.Server wiring
// for its production gRPC servers.
type GRPCFixture struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

// NewGRPCFixture starts an in-process gRPC server serving SERVING for the
// empty (overall) service name.
func NewGRPCFixture() (*GRPCFixture, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	h := health.NewServer()
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)

	f := &GRPCFixture{srv: s, health: h, lis: lis}
	go s.Serve(lis) //nolint:errcheck
	return f, nil
}

// SetServingStatus flips the fixture's reported health for the empty
// service name, used to script an unhealthy cycle.
func (f *GRPCFixture) SetServingStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	f.health.SetServingStatus("", status)
}

func (f *GRPCFixture) Addr() (string, string) {
	host, port, _ := net.SplitHostPort(f.lis.Addr().String())
	return host, port
}

func (f *GRPCFixture) Close() { f.srv.Stop() }
