package dephealth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// pendingDependency is one dependency admitted through an Option before
// New finalizes the exporter's label set and hands everything to the
// scheduler.
type pendingDependency struct {
	dep     Dependency
	checker Checker
}

// buildConfig accumulates the effect of every Option passed to New.
type buildConfig struct {
	name  string
	group string

	logger         *slog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider

	pending []pendingDependency
	err     error
}

func (c *buildConfig) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Option configures the DepHealth instance New constructs.
type Option func(*buildConfig)

// WithLogger sets the logger used for lifecycle and transition messages.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *buildConfig) { c.logger = logger }
}

// WithRegisterer sets the Prometheus registerer metrics are registered
// against. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *buildConfig) { c.registerer = reg }
}

// WithTracerProvider sets the OpenTelemetry TracerProvider used to create
// one span per check cycle. Defaults to the global provider (a no-op
// until the host application installs one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *buildConfig) { c.tracerProvider = tp }
}

// AddDependency registers a dependency with an explicit, caller-supplied
// Checker — the path used for pool-mode probes (e.g. an existing
// *sql.DB/*pgxpool.Pool wrapped by checks/pgcheck).
func AddDependency(name string, typ DependencyType, checker Checker, opts ...DependencyOption) Option {
	return func(c *buildConfig) {
		b := newDependencyBuilder()
		for _, o := range opts {
			o(b)
		}
		if b.err != nil {
			c.fail(b.err)
			return
		}
		if checker == nil {
			c.fail(NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("dependency %q: checker must not be nil", name)))
			return
		}
		dep, err := finalizeDependency(name, typ, b)
		if err != nil {
			c.fail(err)
			return
		}
		c.pending = append(c.pending, pendingDependency{dep: dep, checker: checker})
	}
}

func finalizeDependency(name string, typ DependencyType, b *dependencyBuilder) (Dependency, error) {
	for i := range b.endpoints {
		if len(b.labels) == 0 {
			continue
		}
		merged := make(map[string]string, len(b.labels)+len(b.endpoints[i].Labels))
		for k, v := range b.labels {
			merged[k] = v
		}
		for k, v := range b.endpoints[i].Labels {
			merged[k] = v
		}
		b.endpoints[i].Labels = merged
	}
	dep := Dependency{
		Name:      name,
		Type:      typ,
		Critical:  b.critical,
		Endpoints: b.endpoints,
		Config:    b.config.withDefaults(),
	}
	// The builder starts from DefaultCheckConfig, so a zero InitialDelay
	// here was set explicitly and means "start the first cycle at once".
	dep.Config.InitialDelay = b.config.InitialDelay
	if err := dep.validate(); err != nil {
		return Dependency{}, err
	}
	return dep, nil
}

// protocolDependency is shared by every per-protocol convenience
// constructor (HTTP, GRPC, TCP, ...): it builds the endpoint/policy set
// the same way AddDependency does, then asks the registry for the
// Checker factory a checks/* package registered for typ.
func protocolDependency(name string, typ DependencyType, opts ...DependencyOption) Option {
	return func(c *buildConfig) {
		b := newDependencyBuilder()
		for _, o := range opts {
			o(b)
		}
		if b.err != nil {
			c.fail(b.err)
			return
		}
		factory, ok := lookupChecker(typ)
		if !ok {
			c.fail(NewConfigError(CodeUnsupportedScheme,
				fmt.Sprintf("no checker registered for type %q; blank-import the matching checks/* package", typ)))
			return
		}
		checker, err := factory(b.probe)
		if err != nil {
			c.fail(WrapConfigError(err, CodeUnsupportedScheme, fmt.Sprintf("building %s checker for %q", typ, name)))
			return
		}
		dep, err := finalizeDependency(name, typ, b)
		if err != nil {
			c.fail(err)
			return
		}
		c.pending = append(c.pending, pendingDependency{dep: dep, checker: checker})
	}
}

// HTTP registers an HTTP/HTTPS dependency using the checker registered by
// checks/httpcheck (blank-import it to make this constructor usable).
func HTTP(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeHTTP, opts...) }

// GRPC registers a gRPC dependency using the checker registered by
// checks/grpccheck.
func GRPC(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeGRPC, opts...) }

// TCP registers a plain TCP-dial dependency using the checker registered
// by checks/tcpcheck.
func TCP(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeTCP, opts...) }

// Postgres registers a PostgreSQL dependency using the checker registered
// by checks/pgcheck (standalone mode; use AddDependency + pgcheck.WithDB
// for pool mode).
func Postgres(name string, opts ...DependencyOption) Option {
	return protocolDependency(name, TypePostgres, opts...)
}

// MySQL registers a MySQL dependency using the checker registered by
// checks/mysqlcheck.
func MySQL(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeMySQL, opts...) }

// Redis registers a Redis dependency using the checker registered by
// checks/redischeck.
func Redis(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeRedis, opts...) }

// AMQP registers an AMQP broker dependency using the checker registered
// by checks/amqpcheck.
func AMQP(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeAMQP, opts...) }

// Kafka registers a Kafka cluster dependency using the checker registered
// by checks/kafkacheck.
func Kafka(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeKafka, opts...) }

// LDAP registers a directory-server dependency using the checker
// registered by checks/ldapcheck.
func LDAP(name string, opts ...DependencyOption) Option { return protocolDependency(name, TypeLDAP, opts...) }

// DepHealth is the facade: one instance per application process, created
// with New and driven through Start/Stop. It owns the scheduler and the
// Prometheus exporter for the lifetime of the process.
type DepHealth struct {
	name  string
	group string

	logger *slog.Logger
	exp    *exporter
	sched  *scheduler

	mu      sync.Mutex
	started bool
	stopped bool
}

// New validates name and group, applies every Option, applies the
// DEPHEALTH_* environment overlay, and returns a DepHealth ready for
// Start. It does not itself start any probe loop.
func New(name, group string, opts ...Option) (*DepHealth, error) {
	if err := validateIdentName("instance name", name); err != nil {
		return nil, err
	}
	if err := validateIdentName("group", group); err != nil {
		return nil, err
	}

	cfg := &buildConfig{name: name, group: group, logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
		if cfg.err != nil {
			return nil, cfg.err
		}
	}

	applyEnvOverlay(cfg)
	if cfg.err != nil {
		return nil, cfg.err
	}

	deps := make([]Dependency, 0, len(cfg.pending))
	for _, pd := range cfg.pending {
		deps = append(deps, pd.dep)
	}
	customLabels := unionSortedLabels(deps)

	reg := cfg.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exp := newExporter(reg, cfg.name, cfg.group, customLabels)

	var tracer trace.Tracer
	if cfg.tracerProvider != nil {
		tracer = cfg.tracerProvider.Tracer("github.com/BigKAA/topologymetrics/sdk-go/dephealth")
	} else {
		tracer = otel.Tracer("github.com/BigKAA/topologymetrics/sdk-go/dephealth")
	}

	sched := newScheduler(exp, cfg.logger, tracer)
	for _, pd := range cfg.pending {
		sched.add(pd.dep, pd.checker)
	}

	return &DepHealth{
		name:   cfg.name,
		group:  cfg.group,
		logger: cfg.logger,
		exp:    exp,
		sched:  sched,
	}, nil
}

// applyEnvOverlay lets deployment environments override the instance
// name/group and per-dependency criticality/labels without touching
// code, named DEPHEALTH_NAME, DEPHEALTH_GROUP,
// DEPHEALTH_<DEP>_CRITICAL, and DEPHEALTH_<DEP>_LABEL_<KEY>, where <DEP>
// is the dependency name upper-cased with '-' replaced by '_'. CRITICAL
// accepts yes/no in any case; any other value is recorded as a config
// error on cfg.
func applyEnvOverlay(cfg *buildConfig) {
	if v := os.Getenv("DEPHEALTH_NAME"); v != "" {
		cfg.name = v
	}
	if v := os.Getenv("DEPHEALTH_GROUP"); v != "" {
		cfg.group = v
	}

	for i := range cfg.pending {
		dep := &cfg.pending[i].dep
		envDep := strings.ToUpper(strings.ReplaceAll(dep.Name, "-", "_"))

		criticalKey := fmt.Sprintf("DEPHEALTH_%s_CRITICAL", envDep)
		if v := os.Getenv(criticalKey); v != "" {
			switch strings.ToLower(v) {
			case "yes":
				dep.Critical = true
			case "no":
				dep.Critical = false
			default:
				cfg.fail(NewConfigError(CodeInvalidConfigRange, fmt.Sprintf("%s must be yes or no, got %q", criticalKey, v)))
			}
		}

		prefix := fmt.Sprintf("DEPHEALTH_%s_LABEL_", envDep)
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(k, prefix) {
				continue
			}
			labelKey := strings.ToLower(strings.TrimPrefix(k, prefix))
			for j := range dep.Endpoints {
				if dep.Endpoints[j].Labels == nil {
					dep.Endpoints[j].Labels = make(map[string]string)
				}
				dep.Endpoints[j].Labels[labelKey] = v
			}
		}
	}
}

// Start spawns the probe loop for every admitted endpoint. Calling Start
// more than once is a no-op; calling Start after Stop fails.
func (d *DepHealth) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return NewConfigError(CodeAlreadyStopped, "DepHealth was already stopped")
	}
	if d.started {
		return nil
	}
	d.started = true
	d.sched.start(ctx)
	d.logger.Info("dephealth: started", "name", d.name, "group", d.group)
	return nil
}

// Stop cancels every probe loop and waits for it to exit. Idempotent.
func (d *DepHealth) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.sched.stop()
	d.logger.Info("dephealth: stopped", "name", d.name, "group", d.group)
}

// Health returns, per dependency, whether at least one endpoint is
// healthy.
func (d *DepHealth) Health() map[string]bool {
	return d.sched.health()
}

// HealthDetails returns the full per-endpoint status snapshot, keyed
// "dependency:host:port".
func (d *DepHealth) HealthDetails() map[string]EndpointStatus {
	return d.sched.healthDetails()
}

// AddEndpoint schedules a new endpoint for an already-registered
// dependency, reusing its type, criticality, policy, and checker. Fails
// with CodeNotRunning if called before Start or after Stop, and with
// CodeEndpointNotFound if depName names no registered dependency.
func (d *DepHealth) AddEndpoint(ctx context.Context, depName, host, port string, labels map[string]string) error {
	depType, critical, config, probe, ok := d.sched.template(depName)
	if !ok {
		return NewConfigError(CodeEndpointNotFound, fmt.Sprintf("dependency %q is not registered", depName))
	}
	ep := Endpoint{Host: host, Port: port, Labels: labels}
	if host == "" {
		return NewConfigError(CodeInvalidName, fmt.Sprintf("dependency %q: endpoint host must not be empty", depName))
	}
	if err := validatePort(port); err != nil {
		return err
	}
	for k := range labels {
		if err := validateCustomLabel(k); err != nil {
			return err
		}
	}
	return d.sched.addEndpoint(ctx, depName, depType, critical, ep, config, probe)
}

// RemoveEndpoint cancels the probe loop for (depName, host, port) and
// deletes its metric series. Idempotent.
func (d *DepHealth) RemoveEndpoint(depName, host, port string) {
	d.sched.removeEndpoint(depName, host, port)
}

// UpdateEndpoint replaces (depName, oldHost, oldPort) with a new
// address, atomically: the old endpoint's metric series are removed and
// a new probe loop is started at the new address with the dependency's
// existing type, criticality, policy, and checker.
func (d *DepHealth) UpdateEndpoint(ctx context.Context, depName, oldHost, oldPort, newHost, newPort string, labels map[string]string) error {
	_, _, config, probe, ok := d.sched.template(depName)
	if !ok {
		return errEndpointNotFound(depName, oldHost, oldPort)
	}
	newEp := Endpoint{Host: newHost, Port: newPort, Labels: labels}
	return d.sched.updateEndpoint(ctx, depName, oldHost, oldPort, newEp, config, probe)
}
