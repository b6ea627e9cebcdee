// Package dephealth monitors the health of external dependencies (databases,
// caches, message brokers, HTTP/gRPC services, directory servers, plain TCP
// endpoints) from inside an application process, and exports the result as
// Prometheus metrics plus a JSON status snapshot.
package dephealth

import (
	"fmt"
	"regexp"
	"time"
)

// DependencyType is the closed set of protocols a dependency can speak.
type DependencyType string

const (
	TypeHTTP     DependencyType = "http"
	TypeGRPC     DependencyType = "grpc"
	TypeTCP      DependencyType = "tcp"
	TypePostgres DependencyType = "postgres"
	TypeMySQL    DependencyType = "mysql"
	TypeRedis    DependencyType = "redis"
	TypeAMQP     DependencyType = "amqp"
	TypeKafka    DependencyType = "kafka"
	TypeLDAP     DependencyType = "ldap"
)

func (t DependencyType) valid() bool {
	switch t {
	case TypeHTTP, TypeGRPC, TypeTCP, TypePostgres, TypeMySQL, TypeRedis, TypeAMQP, TypeKafka, TypeLDAP:
		return true
	default:
		return false
	}
}

// Default, minimum and maximum bounds for CheckConfig fields.
const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultDelay    = 5 * time.Second

	DefaultFailureThreshold = 1
	DefaultSuccessThreshold = 1

	minInterval = 1 * time.Second
	maxInterval = 300 * time.Second
	minTimeout  = 1 * time.Second
	maxTimeout  = 60 * time.Second
	minDelay    = 0 * time.Second
	maxDelay    = 300 * time.Second
	minThresh   = 1
	maxThresh   = 100
)

// CheckConfig is the per-dependency probe policy.
type CheckConfig struct {
	Interval          time.Duration
	Timeout           time.Duration
	InitialDelay      time.Duration
	FailureThreshold  int
	SuccessThreshold  int
}

// DefaultCheckConfig returns the documented defaults.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		Interval:         DefaultInterval,
		Timeout:          DefaultTimeout,
		InitialDelay:     DefaultDelay,
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// withDefaults fills any zero-valued field with the package default; it
// does not validate the result (see validate).
func (c CheckConfig) withDefaults() CheckConfig {
	d := DefaultCheckConfig()
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

func (c CheckConfig) validate() error {
	if c.Interval < minInterval || c.Interval > maxInterval {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("interval %s out of range [%s..%s]", c.Interval, minInterval, maxInterval))
	}
	if c.Timeout < minTimeout || c.Timeout > maxTimeout {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("timeout %s out of range [%s..%s]", c.Timeout, minTimeout, maxTimeout))
	}
	if c.InitialDelay < minDelay || c.InitialDelay > maxDelay {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("initial_delay %s out of range [%s..%s]", c.InitialDelay, minDelay, maxDelay))
	}
	if c.FailureThreshold < minThresh || c.FailureThreshold > maxThresh {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("failure_threshold %d out of range [%d..%d]", c.FailureThreshold, minThresh, maxThresh))
	}
	if c.SuccessThreshold < minThresh || c.SuccessThreshold > maxThresh {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("success_threshold %d out of range [%d..%d]", c.SuccessThreshold, minThresh, maxThresh))
	}
	return nil
}

// Endpoint is one network target of a Dependency; it is the unit of
// scheduling and of metric cardinality.
type Endpoint struct {
	Host   string
	Port   string
	Labels map[string]string
}

// key identifies the endpoint's state record: (dependency, host, port).
func (e Endpoint) key(dependency string) string {
	return dependency + ":" + e.Host + ":" + e.Port
}

// Reserved label identifiers. Custom labels may never collide with these.
var reservedLabels = map[string]bool{
	"name":       true,
	"group":      true,
	"dependency": true,
	"type":       true,
	"host":       true,
	"port":       true,
	"critical":   true,
}

var (
	customLabelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	identNamePattern   = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)
	dependencyPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,62}$`)
)

func validateIdentName(field, value string) error {
	if !identNamePattern.MatchString(value) {
		return NewConfigError(CodeInvalidName, fmt.Sprintf("%s %q does not match ^[a-z][a-z0-9-]{0,62}$", field, value))
	}
	return nil
}

func validateDependencyName(name string) error {
	if !dependencyPattern.MatchString(name) {
		return NewConfigError(CodeInvalidName, fmt.Sprintf("dependency name %q does not match ^[A-Za-z][A-Za-z0-9_-]{0,62}$", name))
	}
	return nil
}

func validateCustomLabel(key string) error {
	if reservedLabels[key] {
		return NewConfigError(CodeReservedLabel, fmt.Sprintf("label %q is reserved", key))
	}
	if !customLabelPattern.MatchString(key) {
		return NewConfigError(CodeInvalidLabel, fmt.Sprintf("label %q does not match ^[A-Za-z_][A-Za-z0-9_]*$", key))
	}
	return nil
}

func validatePort(port string) error {
	n := 0
	if _, err := fmt.Sscanf(port, "%d", &n); err != nil {
		return NewConfigError(CodeInvalidPort, fmt.Sprintf("port %q is not numeric", port))
	}
	// Sscanf accepts a leading numeric prefix; reject trailing garbage.
	if fmt.Sprintf("%d", n) != port {
		return NewConfigError(CodeInvalidPort, fmt.Sprintf("port %q is not a clean integer", port))
	}
	if n < 1 || n > 65535 {
		return NewConfigError(CodeInvalidPort, fmt.Sprintf("port %d out of range [1..65535]", n))
	}
	return nil
}

// Dependency is the logical remote component being probed: a name, a
// protocol kind, a criticality tag, and a non-empty ordered list of
// endpoints sharing one CheckConfig. It is immutable once admitted.
type Dependency struct {
	Name      string
	Type      DependencyType
	Critical  bool
	Endpoints []Endpoint
	Config    CheckConfig
}

func (d Dependency) validate() error {
	if err := validateDependencyName(d.Name); err != nil {
		return err
	}
	if !d.Type.valid() {
		return NewConfigError(CodeUnsupportedScheme, fmt.Sprintf("unknown dependency type %q", d.Type))
	}
	if len(d.Endpoints) == 0 {
		return NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("dependency %q has no endpoints", d.Name))
	}
	for _, ep := range d.Endpoints {
		if ep.Host == "" {
			return NewConfigError(CodeInvalidName, fmt.Sprintf("dependency %q has an endpoint with an empty host", d.Name))
		}
		if err := validatePort(ep.Port); err != nil {
			return err
		}
		for k := range ep.Labels {
			if err := validateCustomLabel(k); err != nil {
				return err
			}
		}
	}
	return d.Config.validate()
}
