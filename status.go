package dephealth

import "time"

// Category is one of the eight closed outcome categories produced by the
// classifier for every check cycle, or "unknown" before the first cycle
// completes.
type Category string

const (
	CategoryOK               Category = "ok"
	CategoryTimeout          Category = "timeout"
	CategoryConnectionError  Category = "connection_error"
	CategoryDNSError         Category = "dns_error"
	CategoryAuthError        Category = "auth_error"
	CategoryTLSError         Category = "tls_error"
	CategoryUnhealthy        Category = "unhealthy"
	CategoryError            Category = "error"
	categoryUnknownSentinel  Category = "unknown"
)

// Categories lists all eight emitted status series, in a fixed order;
// exactly one carries value 1 per endpoint per cycle.
var Categories = []Category{
	CategoryOK,
	CategoryTimeout,
	CategoryConnectionError,
	CategoryDNSError,
	CategoryAuthError,
	CategoryTLSError,
	CategoryUnhealthy,
	CategoryError,
}

// EndpointStatus is a read-only snapshot of one endpoint's last classified
// outcome, as returned by Facade.HealthDetails and serialized by the
// status JSON API.
type EndpointStatus struct {
	Healthy       *bool     `json:"healthy"`
	Status        string    `json:"status"`
	Detail        string    `json:"detail"`
	LatencyMillis float64   `json:"latency_ms"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          string    `json:"port"`
	Critical      bool      `json:"critical"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	Labels        map[string]string `json:"labels"`
}
