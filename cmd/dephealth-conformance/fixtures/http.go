// Package fixtures provides in-process stand-ins for the external
// dependencies the conformance harness drives dephealth against: a toggle-
// able HTTP health endpoint, a gRPC health server, and a bare TCP listener.
package fixtures

import (
	"net"
	"net/http"
	"sync/atomic"
)

// HTTPFixture serves /health with a status code that can be changed at
// runtime, so a single process can walk through S3's 503-then-401
// sequence without restarting anything.
type HTTPFixture struct {
	srv    *http.Server
	lis    net.Listener
	status int32
}

// NewHTTPFixture starts listening immediately on an ephemeral port and
// returns once the listener is ready; Addr() reports where.
func NewHTTPFixture() (*HTTPFixture, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f := &HTTPFixture{lis: lis, status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&f.status)))
	})
	f.srv = &http.Server{Handler: mux}
	go f.srv.Serve(lis) //nolint:errcheck
	return f, nil
}

// SetStatus changes the status code returned by /health on the next request.
func (f *HTTPFixture) SetStatus(code int) { atomic.StoreInt32(&f.status, int32(code)) }

// Addr returns the host/port the fixture is listening on.
func (f *HTTPFixture) Addr() (string, string) {
	host, port, _ := net.SplitHostPort(f.lis.Addr().String())
	return host, port
}

// Close shuts the fixture down.
func (f *HTTPFixture) Close() error { return f.srv.Close() }
