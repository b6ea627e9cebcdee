package dephealth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Nil(t *testing.T) {
	r := classify(nil)
	assert.Equal(t, CategoryOK, r.Category)
	assert.Equal(t, "ok", r.Detail)
}

func TestClassify_Intrinsic(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want classifyResult
	}{
		{"timeout", &TimeoutError{Msg: "t"}, classifyResult{CategoryTimeout, "timeout"}},
		{"refused", &ConnectionRefusedError{Msg: "r"}, classifyResult{CategoryConnectionError, "connection_refused"}},
		{"dns", &DNSError{Msg: "d"}, classifyResult{CategoryDNSError, "dns_error"}},
		{"auth", &AuthError{Msg: "a"}, classifyResult{CategoryAuthError, "auth_error"}},
		{"tls", &TLSError{Msg: "x"}, classifyResult{CategoryTLSError, "tls_error"}},
		{"unhealthy", &UnhealthyError{Msg: "u", Detail: "http_503"}, classifyResult{CategoryUnhealthy, "http_503"}},
		{"check", &CheckError{Msg: "c", Category: "error", Detail: "panic"}, classifyResult{CategoryError, "panic"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, classify(c.err))
		})
	}
}

func TestClassify_Platform(t *testing.T) {
	assert.Equal(t, classifyResult{CategoryTimeout, "timeout"}, classify(context.DeadlineExceeded))

	dnsErr := &net.DNSError{Err: "no such host", Name: "bad.invalid"}
	assert.Equal(t, classifyResult{CategoryDNSError, "dns_error"}, classify(dnsErr))

	assert.Equal(t, classifyResult{CategoryConnectionError, "connection_refused"}, classify(syscall.ECONNREFUSED))

	opErr := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	assert.Equal(t, classifyResult{CategoryConnectionError, "connection_refused"}, classify(opErr))

	opErrOther := &net.OpError{Op: "dial", Err: errors.New("boom")}
	assert.Equal(t, classifyResult{CategoryConnectionError, "connection_error"}, classify(opErrOther))

	certErr := x509.CertificateInvalidError{Reason: x509.Expired}
	assert.Equal(t, classifyResult{CategoryTLSError, "tls_error"}, classify(certErr))

	hostErr := x509.HostnameError{Host: "bad"}
	assert.Equal(t, classifyResult{CategoryTLSError, "tls_error"}, classify(hostErr))

	var authErr x509.UnknownAuthorityError
	assert.Equal(t, classifyResult{CategoryTLSError, "tls_error"}, classify(authErr))

	recErr := tls.RecordHeaderError{Msg: "bad record"}
	assert.Equal(t, classifyResult{CategoryTLSError, "tls_error"}, classify(recErr))
}

func TestClassify_UnwrapOnce(t *testing.T) {
	wrapped := fmt.Errorf("probe failed: %w", &TimeoutError{Msg: "deep"})
	assert.Equal(t, classifyResult{CategoryTimeout, "timeout"}, classify(wrapped))
}

func TestClassify_Fallback(t *testing.T) {
	assert.Equal(t, classifyResult{CategoryError, "error"}, classify(errors.New("unrecognized")))
}
