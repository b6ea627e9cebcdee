package dephealth

import (
	"fmt"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/connstring"
)

// dependencyBuilder accumulates everything a DependencyOption can set
// before AddDependency (or a protocol convenience constructor) turns it
// into a validated Dependency.
type dependencyBuilder struct {
	endpoints []Endpoint
	labels    map[string]string
	critical  bool
	config    CheckConfig
	probe     ProbeOptions
	err       error
}

func newDependencyBuilder() *dependencyBuilder {
	return &dependencyBuilder{config: DefaultCheckConfig()}
}

func (b *dependencyBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// DependencyOption configures a single dependency registration: its
// endpoints, policy, labels, and (for the protocol convenience
// constructors) probe-specific knobs.
type DependencyOption func(*dependencyBuilder)

// WithEndpoint adds one explicit (host, port) target.
func WithEndpoint(host, port string) DependencyOption {
	return func(b *dependencyBuilder) {
		b.endpoints = append(b.endpoints, Endpoint{Host: host, Port: port})
	}
}

// FromURL parses a connection URL (postgres://, redis://, https://, ...)
// and appends one endpoint per host it names.
func FromURL(raw string) DependencyOption {
	return func(b *dependencyBuilder) {
		targets, err := connstring.ParseURL(raw)
		if err != nil {
			b.fail(WrapConfigError(err, CodeUnsupportedScheme, fmt.Sprintf("parsing URL %q", raw)))
			return
		}
		for _, t := range targets {
			b.endpoints = append(b.endpoints, Endpoint{Host: t.Host, Port: t.Port})
		}
	}
}

// FromJDBC parses a JDBC connection string.
func FromJDBC(jdbcURL string) DependencyOption {
	return func(b *dependencyBuilder) {
		targets, err := connstring.ParseJDBC(jdbcURL)
		if err != nil {
			b.fail(WrapConfigError(err, CodeUnsupportedScheme, fmt.Sprintf("parsing JDBC URL %q", jdbcURL)))
			return
		}
		for _, t := range targets {
			b.endpoints = append(b.endpoints, Endpoint{Host: t.Host, Port: t.Port})
		}
	}
}

// FromDSN parses a libpq-style key=value connection string.
func FromDSN(dsn string) DependencyOption {
	return func(b *dependencyBuilder) {
		host, port, err := connstring.ParseDSN(dsn)
		if err != nil {
			b.fail(WrapConfigError(err, CodeUnsupportedScheme, fmt.Sprintf("parsing DSN %q", dsn)))
			return
		}
		b.endpoints = append(b.endpoints, Endpoint{Host: host, Port: port})
	}
}

// CheckInterval overrides the default probe interval.
func CheckInterval(d time.Duration) DependencyOption {
	return func(b *dependencyBuilder) { b.config.Interval = d }
}

// CheckTimeout overrides the default per-cycle deadline.
func CheckTimeout(d time.Duration) DependencyOption {
	return func(b *dependencyBuilder) { b.config.Timeout = d }
}

// InitialDelay overrides the delay before the first cycle.
func InitialDelay(d time.Duration) DependencyOption {
	return func(b *dependencyBuilder) { b.config.InitialDelay = d }
}

// FailureThreshold overrides the consecutive-failure count required to
// transition an endpoint to unhealthy.
func FailureThreshold(n int) DependencyOption {
	return func(b *dependencyBuilder) { b.config.FailureThreshold = n }
}

// SuccessThreshold overrides the consecutive-success count required to
// transition an endpoint to healthy.
func SuccessThreshold(n int) DependencyOption {
	return func(b *dependencyBuilder) { b.config.SuccessThreshold = n }
}

// Critical tags the dependency as critical; the tag is exported as the
// critical metric label and does not change scheduling or Health().
func Critical(critical bool) DependencyOption {
	return func(b *dependencyBuilder) { b.critical = critical }
}

// WithLabel attaches a custom label to every endpoint of the dependency.
func WithLabel(key, value string) DependencyOption {
	return func(b *dependencyBuilder) {
		if b.labels == nil {
			b.labels = make(map[string]string)
		}
		b.labels[key] = value
	}
}

// WithHTTPHealthPath overrides the path the HTTP convenience checker
// requests; ignored by protocols other than HTTP.
func WithHTTPHealthPath(path string) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.HTTPHealthPath = path }
}

// WithHTTPMethod overrides the HTTP method the HTTP convenience checker
// uses (default GET); ignored by protocols other than HTTP.
func WithHTTPMethod(method string) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.HTTPMethod = method }
}

// WithHTTPTLSSkipVerify disables certificate verification for the HTTP
// convenience checker; ignored by protocols other than HTTP.
func WithHTTPTLSSkipVerify(skip bool) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.HTTPTLSSkipVerify = skip }
}

// WithGRPCServiceName sets the service name passed to the gRPC health
// protocol's Check RPC; empty means the overall-server check.
func WithGRPCServiceName(name string) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.GRPCServiceName = name }
}

// WithGRPCInsecure disables transport security for the gRPC convenience
// checker's dial.
func WithGRPCInsecure(insecure bool) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.GRPCInsecure = insecure }
}

// WithLDAPBind sets simple-bind credentials for the LDAP convenience
// checker, which then probes with a simple bind; without them it probes
// with an unauthenticated Root DSE search.
func WithLDAPBind(bindDN, password string) DependencyOption {
	return func(b *dependencyBuilder) {
		b.probe.LDAPBindDN = bindDN
		b.probe.LDAPPassword = password
	}
}

// WithLDAPBaseDN records a search base on the probe options. The LDAP
// convenience checker probes only with a Root DSE search or a simple
// bind, so the value does not affect its probe.
func WithLDAPBaseDN(baseDN string) DependencyOption {
	return func(b *dependencyBuilder) { b.probe.LDAPBaseDN = baseDN }
}
