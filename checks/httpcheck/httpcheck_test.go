package httpcheck

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitAddr(t *testing.T, rawURL string) dephealth.Endpoint {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return dephealth.Endpoint{Host: host, Port: port}
}

func mustNew(t *testing.T, opts ...Option) *Checker {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestCheck_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mustNew(t, WithHealthPath("/"))
	err := c.Check(context.Background(), splitAddr(t, srv.URL))
	assert.NoError(t, err)
}

func TestCheck_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := mustNew(t, WithHealthPath("/"))
	err := c.Check(context.Background(), splitAddr(t, srv.URL))
	require.Error(t, err)
	var unhealthy *dephealth.UnhealthyError
	assert.ErrorAs(t, err, &unhealthy)
	assert.Equal(t, "http_503", unhealthy.Detail)
}

func TestCheck_Auth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := mustNew(t, WithHealthPath("/"))
	err := c.Check(context.Background(), splitAddr(t, srv.URL))
	var authErr *dephealth.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestCheck_ConnectionRefused(t *testing.T) {
	// bind and immediately close to get a port nothing listens on.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, lis.Close())

	c := mustNew(t, WithHealthPath("/"))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "127.0.0.1", Port: port})
	var connErr *dephealth.ConnectionRefusedError
	assert.ErrorAs(t, err, &connErr)
}

func TestCheck_BearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mustNew(t, WithHealthPath("/"), WithBearerToken("secret-token"))
	require.NoError(t, c.Check(context.Background(), splitAddr(t, srv.URL)))
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestNew_ConflictingAuth_BearerAndBasic(t *testing.T) {
	_, err := New(WithHealthPath("/"), WithBearerToken("a"), WithBasicAuth("u", "p"))
	require.Error(t, err)
	var cfgErr *dephealth.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, dephealth.CodeConflictingAuth, cfgErr.Code)
}

func TestNew_ConflictingAuth_BearerAndHeader(t *testing.T) {
	_, err := New(WithHealthPath("/"), WithBearerToken("a"), WithHeaders(map[string]string{"Authorization": "Bearer b"}))
	require.Error(t, err)
	var cfgErr *dephealth.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, dephealth.CodeConflictingAuth, cfgErr.Code)
}

func TestCheck_CustomMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mustNew(t, WithHealthPath("/"), WithMethod(http.MethodHead))
	require.NoError(t, c.Check(context.Background(), splitAddr(t, srv.URL)))
	assert.Equal(t, http.MethodHead, gotMethod)
}

func TestKind(t *testing.T) {
	assert.Equal(t, dephealth.TypeHTTP, mustNew(t).Kind())
}

func TestFreePortSanity(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	_, portStr, _ := net.SplitHostPort(lis.Addr().String())
	_, err = strconv.Atoi(portStr)
	assert.NoError(t, err)
}
