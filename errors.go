package dephealth

import "fmt"

// ErrorCode is a closed enumeration of configuration-error kinds, raised
// synchronously by the facade or by scheduler admission. Configuration
// errors are always fatal to the calling operation; they are never
// silently swallowed.
type ErrorCode string

const (
	CodeInvalidName        ErrorCode = "INVALID_NAME"
	CodeInvalidLabel       ErrorCode = "INVALID_LABEL"
	CodeReservedLabel      ErrorCode = "RESERVED_LABEL"
	CodeInvalidPort        ErrorCode = "INVALID_PORT"
	CodeUnsupportedScheme  ErrorCode = "UNSUPPORTED_SCHEME"
	CodeInvalidConfigRange ErrorCode = "INVALID_CONFIG_RANGE"
	CodeConflictingAuth    ErrorCode = "CONFLICTING_AUTH"
	CodeConflictingTLSMode ErrorCode = "CONFLICTING_TLS_MODE"
	CodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	CodeEndpointNotFound   ErrorCode = "ENDPOINT_NOT_FOUND"
	CodeNotRunning         ErrorCode = "NOT_RUNNING"
	CodeAlreadyStopped     ErrorCode = "ALREADY_STOPPED"
)

// ConfigError is the single typed error raised by construction and by
// dynamic scheduler operations. It carries a closed ErrorCode so callers
// can errors.As against it instead of matching on message text.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dephealth: [%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("dephealth: [%s] %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError builds a ConfigError with no wrapped cause.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// WrapConfigError builds a ConfigError wrapping an underlying cause.
func WrapConfigError(cause error, code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: cause}
}

// --- Probe-intrinsic errors -------------------------------------------------
//
// A probe returns one of these typed errors (or a plain error, classified by
// the rules in classify, classify.go) from its check call. They carry their
// own (category, detail) pair so the classifier never has to guess.

// TimeoutError marks a probe that exceeded its deadline.
type TimeoutError struct{ Msg string }

func (e *TimeoutError) Error() string { return e.Msg }

// ConnectionRefusedError marks a probe that could not open a transport
// connection because the remote end actively refused it.
type ConnectionRefusedError struct{ Msg string }

func (e *ConnectionRefusedError) Error() string { return e.Msg }

// DNSError marks a probe that failed to resolve the endpoint's host.
type DNSError struct{ Msg string }

func (e *DNSError) Error() string { return e.Msg }

// AuthError marks a probe rejected for credential or authorization reasons.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string { return e.Msg }

// TLSError marks a probe that failed a TLS/certificate handshake.
type TLSError struct{ Msg string }

func (e *TLSError) Error() string { return e.Msg }

// UnhealthyError marks a probe that completed but observed the remote
// end report itself as unhealthy; Detail is a protocol-scoped string
// (e.g. "http_503", "no_brokers", "grpc_not_serving").
type UnhealthyError struct {
	Msg    string
	Detail string
}

func (e *UnhealthyError) Error() string { return e.Msg }

// CheckError is the untyped escape hatch: a probe that needs a
// category/detail pair the other typed errors don't cover.
type CheckError struct {
	Msg      string
	Category string
	Detail   string
}

func (e *CheckError) Error() string { return e.Msg }

// errEndpointNotFound builds the *ConfigError (code CodeEndpointNotFound)
// that UpdateEndpoint returns when the key being replaced does not exist.
func errEndpointNotFound(dependency, host, port string) *ConfigError {
	return NewConfigError(CodeEndpointNotFound, fmt.Sprintf("endpoint %s:%s:%s not found", dependency, host, port))
}
