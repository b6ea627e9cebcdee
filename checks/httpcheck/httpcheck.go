// Package httpcheck implements an HTTP/HTTPS health checker: a GET request
// to a configurable path, requiring a 2xx response.
package httpcheck

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
)

// Option configures a Checker.
type Option func(*Checker)

// WithHealthPath overrides the default "/health" path.
func WithHealthPath(path string) Option {
	return func(c *Checker) { c.healthPath = path }
}

// WithMethod overrides the default GET method.
func WithMethod(method string) Option {
	return func(c *Checker) { c.method = method }
}

// WithTLS switches the checker to https.
func WithTLS(tlsEnabled bool) Option {
	return func(c *Checker) { c.tlsEnabled = tlsEnabled }
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

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) Option {
	return func(c *Checker) { c.headers = headers }
}

// WithBearerToken sets an Authorization: Bearer header. Mutually exclusive
// with WithBasicAuth and an "Authorization" entry in WithHeaders.
func WithBearerToken(token string) Option {
	return func(c *Checker) { c.bearerToken = token }
}

// WithBasicAuth sets Authorization: Basic credentials. Mutually exclusive
// with WithBearerToken and an "Authorization" entry in WithHeaders.
func WithBasicAuth(username, password string) Option {
	return func(c *Checker) { c.basicAuthUser, c.basicAuthPass = username, password }
}

// Checker probes an HTTP endpoint via GET and classifies the response.
type Checker struct {
	healthPath    string
	method        string
	tlsEnabled    bool
	tlsSkipVerify bool
	headers       map[string]string
	bearerToken   string
	basicAuthUser string
	basicAuthPass string

	resolvedHeaders map[string]string
	client          *http.Client
}

// New builds an HTTP checker, rejecting at construction time a dependency
// that configures more than one of bearer token, basic auth, and an
// explicit "Authorization" header — the same conflict checks/grpccheck
// applies to its own auth options. A fresh *http.Client is built lazily on
// the first Check call, once tlsSkipVerify is known.
func New(opts ...Option) (*Checker, error) {
	c := &Checker{healthPath: "/health", method: http.MethodGet}
	for _, o := range opts {
		o(c)
	}
	headers, err := mergeAuthHeaders(c.headers, c.bearerToken, c.basicAuthUser, c.basicAuthPass)
	if err != nil {
		return nil, err
	}
	c.resolvedHeaders = headers
	return c, nil
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeHTTP }

// Check performs one GET (or the configured method) against the health
// path and requires a 2xx status.
func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	headers := c.resolvedHeaders

	scheme := "http"
	if c.tlsEnabled {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%s%s", scheme, ep.Host, ep.Port, c.healthPath)

	req, err := http.NewRequestWithContext(ctx, c.method, url, nil)
	if err != nil {
		return fmt.Errorf("httpcheck: building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "dephealth/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &dephealth.TimeoutError{Msg: fmt.Sprintf("HTTP request to %s timed out", url)}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("HTTP connection to %s refused: %v", url, err)}
		}
		return fmt.Errorf("httpcheck: request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &dephealth.AuthError{Msg: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &dephealth.UnhealthyError{
			Msg:    fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url),
			Detail: fmt.Sprintf("http_%d", resp.StatusCode),
		}
	}
	return nil
}

// mergeAuthHeaders resolves the final header set at construction time,
// rejecting more than one configured auth method with a *dephealth.ConfigError
// so the conflict surfaces synchronously from New rather than on the first
// probe cycle.
func mergeAuthHeaders(headers map[string]string, bearerToken, basicAuthUser, basicAuthPass string) (map[string]string, error) {
	methods := 0
	if bearerToken != "" {
		methods++
	}
	if basicAuthUser != "" {
		methods++
	}
	for k := range headers {
		if httpCanonicalAuthHeader(k) {
			methods++
			break
		}
	}
	if methods > 1 {
		return nil, dephealth.NewConfigError(dephealth.CodeConflictingAuth,
			"httpcheck: specify only one of bearer token, basic auth, or an explicit Authorization header")
	}

	resolved := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		resolved[k] = v
	}
	if bearerToken != "" {
		resolved["Authorization"] = "Bearer " + bearerToken
	}
	if basicAuthUser != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(basicAuthUser + ":" + basicAuthPass))
		resolved["Authorization"] = "Basic " + creds
	}
	return resolved, nil
}

func httpCanonicalAuthHeader(k string) bool {
	return http.CanonicalHeaderKey(k) == "Authorization"
}

func (c *Checker) httpClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	transport := &http.Transport{}
	if c.tlsEnabled {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: c.tlsSkipVerify} //nolint:gosec
	}
	c.client = &http.Client{Transport: transport}
	return c.client
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeHTTP, func(o dephealth.ProbeOptions) (dephealth.Checker, error) {
		opts := []Option{}
		if o.HTTPHealthPath != "" {
			opts = append(opts, WithHealthPath(o.HTTPHealthPath))
		}
		if o.HTTPMethod != "" {
			opts = append(opts, WithMethod(o.HTTPMethod))
		}
		if o.HTTPTLSSkipVerify {
			opts = append(opts, WithTLSSkipVerify(true))
		}
		c, err := New(opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
