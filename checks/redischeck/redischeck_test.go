package redischeck

import (
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(host, port string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: net.JoinHostPort(host, port)})
}

func TestKind(t *testing.T) {
	assert.Equal(t, dephealth.TypeRedis, New().Kind())
}

func TestCheck_StandaloneMode_OK(t *testing.T) {
	s := miniredis.RunT(t)

	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	c := New()
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port}))
}

func TestCheck_StandaloneMode_AuthRequired(t *testing.T) {
	s := miniredis.RunT(t)
	s.RequireAuth("secret")

	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	c := New()
	err = c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port})
	require.Error(t, err)
	var authErr *dephealth.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestCheck_StandaloneMode_AuthOK(t *testing.T) {
	s := miniredis.RunT(t)
	s.RequireAuth("secret")

	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	c := New(WithPassword("secret"))
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port}))
}

func TestCheck_ConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, lis.Close())

	c := New()
	err = c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port})
	require.Error(t, err)
	var connErr *dephealth.ConnectionRefusedError
	assert.ErrorAs(t, err, &connErr)
}

func TestCheck_PoolMode(t *testing.T) {
	s := miniredis.RunT(t)

	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	c := New(WithClient(newTestClient(host, port)))
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{}))
}
