// Package connstring normalizes connection strings and host/port pairs
// into an ordered sequence of (host, port, kind) targets for the dephealth
// facade's FromURL/FromJDBC/FromDSN constructors.
package connstring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Target is one (host, port, kind) triple extracted from a connection
// string. Kind is the lower-case scheme name; callers map it onto a
// DependencyType.
type Target struct {
	Host string
	Port string
	Kind string
}

// DefaultPorts maps a recognized scheme to its conventional port.
var DefaultPorts = map[string]string{
	"postgres":   "5432",
	"postgresql": "5432",
	"mysql":      "3306",
	"redis":      "6379",
	"rediss":     "6379",
	"amqp":       "5672",
	"amqps":      "5671",
	"http":       "80",
	"https":      "443",
	"grpc":       "443",
	"kafka":      "9092",
	"ldap":       "389",
	"ldaps":      "636",
}

// schemeKind maps a scheme to the dependency kind it speaks on the wire;
// several schemes (postgresql, https, rediss, amqps, ldaps) are aliases of
// a kind that also has a "plain" scheme.
var schemeKind = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"redis":      "redis",
	"rediss":     "redis",
	"amqp":       "amqp",
	"amqps":      "amqp",
	"http":       "http",
	"https":      "http",
	"grpc":       "grpc",
	"kafka":      "kafka",
	"ldap":       "ldap",
	"ldaps":      "ldap",
}

// jdbcSubprotocol maps a JDBC subprotocol to the dependency kind.
var jdbcSubprotocol = map[string]string{
	"postgresql": "postgres",
	"mysql":      "mysql",
}

// ParseURL parses a URL such as postgres://h:5432/db or kafka://b1:9092,b2:9092
// into an ordered list of targets. Kafka-style multi-host authorities are
// split on commas; IPv6 literals must use bracketed form.
func ParseURL(raw string) ([]Target, error) {
	if raw == "" {
		return nil, fmt.Errorf("connstring: empty URL")
	}
	if !strings.Contains(raw, "://") {
		return nil, fmt.Errorf("connstring: missing scheme in URL %q", raw)
	}

	schemeEnd := strings.Index(raw, "://")
	scheme := strings.ToLower(raw[:schemeEnd])
	kind, ok := schemeKind[scheme]
	if !ok {
		return nil, fmt.Errorf("connstring: unsupported URL scheme %q", scheme)
	}
	defaultPort := DefaultPorts[scheme]

	// net/url rejects comma-separated authorities, so the multi-host case
	// is split from the raw string before url.Parse runs.
	netloc := raw[schemeEnd+3:]
	if i := strings.IndexAny(netloc, "/?#"); i >= 0 {
		netloc = netloc[:i]
	}
	if i := strings.Index(netloc, "@"); i >= 0 {
		netloc = netloc[i+1:]
	}
	if strings.Contains(netloc, ",") {
		return parseMultiHost(netloc, defaultPort, kind)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("connstring: invalid URL %q: %w", raw, err)
	}

	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}
	if host == "" {
		return nil, fmt.Errorf("connstring: missing host in URL %q", raw)
	}
	if err := validatePort(port); err != nil {
		return nil, err
	}
	return []Target{{Host: host, Port: port, Kind: kind}}, nil
}

func parseMultiHost(hostPart, defaultPort, kind string) ([]Target, error) {
	var out []Target
	for _, segment := range strings.Split(hostPart, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		host, port, err := extractHostPort(segment, defaultPort)
		if err != nil {
			return nil, err
		}
		out = append(out, Target{Host: host, Port: port, Kind: kind})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("connstring: no hosts found in multi-host URL")
	}
	return out, nil
}

func extractHostPort(segment, defaultPort string) (string, string, error) {
	var host, port string
	if strings.HasPrefix(segment, "[") {
		end := strings.Index(segment, "]")
		if end == -1 {
			return "", "", fmt.Errorf("connstring: invalid IPv6 address %q", segment)
		}
		host = segment[1:end]
		rest := segment[end+1:]
		if strings.HasPrefix(rest, ":") {
			port = rest[1:]
		} else {
			port = defaultPort
		}
	} else if idx := strings.LastIndex(segment, ":"); idx >= 0 {
		host = segment[:idx]
		port = segment[idx+1:]
		if port == "" {
			port = defaultPort
		}
	} else {
		host = segment
		port = defaultPort
	}
	if err := validatePort(port); err != nil {
		return "", "", err
	}
	return host, port, nil
}

// ParseJDBC parses a JDBC connection string such as
// jdbc:postgresql://host:port/db.
func ParseJDBC(jdbcURL string) ([]Target, error) {
	if jdbcURL == "" {
		return nil, fmt.Errorf("connstring: empty JDBC URL")
	}
	if !strings.HasPrefix(jdbcURL, "jdbc:") {
		return nil, fmt.Errorf("connstring: invalid JDBC URL %q: must start with 'jdbc:'", jdbcURL)
	}
	rest := jdbcURL[len("jdbc:"):]
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return nil, fmt.Errorf("connstring: invalid JDBC URL %q: missing subprotocol", jdbcURL)
	}
	subprotocol := strings.ToLower(rest[:colon])
	kind, ok := jdbcSubprotocol[subprotocol]
	if !ok {
		return nil, fmt.Errorf("connstring: unsupported JDBC subprotocol %q", subprotocol)
	}
	inner := rest[colon+1:]
	parsed, err := url.Parse(inner)
	if err != nil {
		return nil, fmt.Errorf("connstring: invalid JDBC URL %q: %w", jdbcURL, err)
	}
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = DefaultPorts[subprotocol]
	}
	if host == "" {
		return nil, fmt.Errorf("connstring: missing host in JDBC URL %q", jdbcURL)
	}
	if err := validatePort(port); err != nil {
		return nil, err
	}
	return []Target{{Host: host, Port: port, Kind: kind}}, nil
}

// ParseDSN parses a libpq-style key=value connection string, e.g.
// "host=localhost port=5432 dbname=mydb user=admin".
func ParseDSN(dsn string) (host, port string, err error) {
	if dsn == "" {
		return "", "", fmt.Errorf("connstring: empty connection string")
	}
	pairs := make(map[string]string)
	for _, part := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		pairs[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	host = firstValue(pairs, "host", "server")
	port = firstValue(pairs, "port")
	if host == "" {
		return "", "", fmt.Errorf("connstring: host not found in connection string")
	}
	if port == "" {
		return "", "", fmt.Errorf("connstring: port not found in connection string")
	}
	if err := validatePort(port); err != nil {
		return "", "", err
	}
	return host, port, nil
}

func firstValue(pairs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := pairs[k]; ok {
			return v
		}
	}
	return ""
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("connstring: invalid port %q: must be numeric", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("connstring: port %d out of range (1-65535)", n)
	}
	return nil
}
