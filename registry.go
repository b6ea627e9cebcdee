package dephealth

import "sync"

// ProbeOptions carries the protocol-specific knobs the per-protocol
// convenience constructors (HTTP, GRPC, ...) accept, so that a checks/*
// package can register a factory without the root package importing it
// back. This mirrors the database/sql driver registry: checks/httpcheck
// imports dephealth and calls RegisterChecker from an init func; the root
// package never imports checks/httpcheck.
type ProbeOptions struct {
	HTTPHealthPath    string
	HTTPTLSSkipVerify bool
	HTTPMethod        string

	GRPCServiceName string
	GRPCInsecure    bool

	LDAPBindDN   string
	LDAPPassword string
	LDAPBaseDN   string
}

// CheckerFactory builds a Checker for one endpoint set, given the caller's
// protocol-specific options.
type CheckerFactory func(opts ProbeOptions) (Checker, error)

var (
	registryMu sync.Mutex
	registry   = make(map[DependencyType]CheckerFactory)
)

// RegisterChecker binds a DependencyType to the factory that builds its
// standalone-mode Checker. Called from the init() function of a checks/*
// package; panics on duplicate registration since that indicates two
// checker packages were blank-imported for the same protocol.
func RegisterChecker(typ DependencyType, factory CheckerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[typ]; exists {
		panic("dephealth: duplicate checker registration for type " + string(typ))
	}
	registry[typ] = factory
}

func lookupChecker(typ DependencyType) (CheckerFactory, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[typ]
	return f, ok
}
