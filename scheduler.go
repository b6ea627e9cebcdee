package dephealth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// endpointState is the per-endpoint bookkeeping the scheduler maintains.
// healthy is nil until the first threshold crossing (tri-state).
type endpointState struct {
	healthy          *bool
	consecSuccesses  int
	consecFailures   int
	lastCategory     Category
	lastDetail       string
	lastLatency      time.Duration
	lastCheckedAt    *time.Time
}

// endpointEntry pairs one scheduled endpoint with its owning dependency's
// static identity, its probe, its policy, and its cancellation handle.
type endpointEntry struct {
	depName  string
	depType  DependencyType
	critical bool
	ep       Endpoint
	config   CheckConfig
	probe    Checker

	cancel context.CancelFunc
	done   chan struct{}
	state  *endpointState
}

func (e *endpointEntry) dependency() Dependency {
	return Dependency{Name: e.depName, Type: e.depType, Critical: e.critical}
}

// scheduler owns the collection of scheduled endpoints, their probe loops,
// and their state records. All mutation of entries and of depIndex happens
// under mu; health()/healthDetails() snapshot under mu and release before
// returning, per the concurrency model.
type scheduler struct {
	mu       sync.Mutex
	entries  map[string]*endpointEntry // key: dep:host:port
	depIndex map[string][]string       // dependency name -> endpoint keys
	running  bool
	stopped  bool

	exp    *exporter
	logger *slog.Logger
	tracer trace.Tracer
}

func newScheduler(exp *exporter, logger *slog.Logger, tracer trace.Tracer) *scheduler {
	return &scheduler{
		entries:  make(map[string]*endpointEntry),
		depIndex: make(map[string][]string),
		exp:      exp,
		logger:   logger,
		tracer:   tracer,
	}
}

// add admits a dependency's endpoints before start(); it does not spawn
// loops. Called only at construction, after validation.
func (s *scheduler) add(dep Dependency, probe Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range dep.Endpoints {
		key := ep.key(dep.Name)
		s.entries[key] = &endpointEntry{
			depName:  dep.Name,
			depType:  dep.Type,
			critical: dep.Critical,
			ep:       ep,
			config:   dep.Config,
			probe:    probe,
			state:    &endpointState{lastCategory: categoryUnknownSentinel},
		}
		s.depIndex[dep.Name] = append(s.depIndex[dep.Name], key)
	}
}

// start transitions the scheduler to running and spawns one probe loop
// per already-admitted endpoint.
func (s *scheduler) start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.stopped = false
	entries := make([]*endpointEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.spawn(ctx, e)
	}
}

func (s *scheduler) spawn(parent context.Context, e *endpointEntry) {
	loopCtx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.done = make(chan struct{})
	go s.runLoop(loopCtx, e)
}

// stop cancels every loop and awaits its termination. Idempotent.
func (s *scheduler) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running = false
	entries := make([]*endpointEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	for _, e := range entries {
		if e.done != nil {
			<-e.done
		}
	}
}

// addEndpoint admits and starts one endpoint after start(). It is a silent
// no-op if the (dependency, host, port) key already exists.
func (s *scheduler) addEndpoint(ctx context.Context, depName string, depType DependencyType, critical bool, ep Endpoint, config CheckConfig, probe Checker) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return NewConfigError(CodeNotRunning, "scheduler is stopped")
	}
	if !s.running {
		s.mu.Unlock()
		return NewConfigError(CodeNotRunning, "scheduler is not running")
	}
	key := ep.key(depName)
	if _, exists := s.entries[key]; exists {
		s.mu.Unlock()
		return nil
	}
	entry := &endpointEntry{
		depName:  depName,
		depType:  depType,
		critical: critical,
		ep:       ep,
		config:   config,
		probe:    probe,
		state:    &endpointState{lastCategory: categoryUnknownSentinel},
	}
	s.entries[key] = entry
	s.depIndex[depName] = append(s.depIndex[depName], key)
	s.mu.Unlock()

	s.logger.Info("dephealth: endpoint added", "dependency", depName, "host", ep.Host, "port", ep.Port)
	s.spawn(ctx, entry)
	return nil
}

// removeEndpoint cancels the loop for (depName, host, port), awaits its
// exit, then deletes the state record and all its metric series.
// Idempotent: removing an unknown key is a no-op.
func (s *scheduler) removeEndpoint(depName, host, port string) {
	key := depName + ":" + host + ":" + port

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.depIndex[depName] = removeString(s.depIndex[depName], key)
	s.mu.Unlock()

	if entry.cancel != nil {
		entry.cancel()
	}
	if entry.done != nil {
		<-entry.done
	}
	s.exp.removeEndpoint(entry.dependency(), entry.ep)
}

// updateEndpoint is an atomic remove-then-add: the old key must exist or
// EndpointNotFound is returned; the new endpoint is admitted with a
// snapshot of type/critical taken while the lock was held.
func (s *scheduler) updateEndpoint(ctx context.Context, depName, oldHost, oldPort string, newEp Endpoint, config CheckConfig, probe Checker) error {
	oldKey := depName + ":" + oldHost + ":" + oldPort

	s.mu.Lock()
	old, ok := s.entries[oldKey]
	if !ok {
		s.mu.Unlock()
		return errEndpointNotFound(depName, oldHost, oldPort)
	}
	depType := old.depType
	critical := old.critical
	s.mu.Unlock()

	s.removeEndpoint(depName, oldHost, oldPort)
	return s.addEndpoint(ctx, depName, depType, critical, newEp, config, probe)
}

// health returns dependency -> bool: healthy iff at least one of its
// endpoints is healthy. Endpoints in unknown state contribute neither
// true nor false; a dependency whose endpoints are all unknown is false.
func (s *scheduler) health() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]bool, len(s.depIndex))
	for depName, keys := range s.depIndex {
		healthy := false
		for _, key := range keys {
			if e, ok := s.entries[key]; ok && e.state.healthy != nil && *e.state.healthy {
				healthy = true
				break
			}
		}
		result[depName] = healthy
	}
	return result
}

// healthDetails returns a snapshot keyed "name:host:port" of every
// endpoint's last classified outcome.
func (s *scheduler) healthDetails() map[string]EndpointStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]EndpointStatus, len(s.entries))
	for key, e := range s.entries {
		st := e.state
		out[key] = EndpointStatus{
			Healthy:       st.healthy,
			Status:        string(st.lastCategory),
			Detail:        st.lastDetail,
			LatencyMillis: float64(st.lastLatency.Microseconds()) / 1000.0,
			Type:          string(e.depType),
			Name:          e.depName,
			Host:          e.ep.Host,
			Port:          e.ep.Port,
			Critical:      e.critical,
			LastCheckedAt: st.lastCheckedAt,
			Labels:        e.ep.Labels,
		}
	}
	return out
}

// template returns the static identity (type, criticality, policy, probe)
// already recorded for depName, so AddEndpoint can extend a running
// dependency without the caller repeating configuration it gave at
// construction time.
func (s *scheduler) template(depName string) (depType DependencyType, critical bool, config CheckConfig, probe Checker, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.depIndex[depName]
	if len(keys) == 0 {
		return "", false, CheckConfig{}, nil, false
	}
	e, exists := s.entries[keys[0]]
	if !exists {
		return "", false, CheckConfig{}, nil, false
	}
	return e.depType, e.critical, e.config, e.probe, true
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// runLoop is the per-endpoint probe loop: wait the initial delay
// (cancellable), then on each tick run the probe under a deadline, observe
// latency/status/detail unconditionally, and advance the
// success/failure-threshold state machine.
func (s *scheduler) runLoop(ctx context.Context, e *endpointEntry) {
	defer close(e.done)

	if e.config.InitialDelay > 0 {
		if !sleepCancellable(ctx, e.config.InitialDelay) {
			return
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		s.runCycle(ctx, e)
		if !sleepCancellable(ctx, e.config.Interval) {
			return
		}
	}
}

func (s *scheduler) runCycle(ctx context.Context, e *endpointEntry) {
	spanCtx, span := s.tracer.Start(ctx, "dephealth.check",
		trace.WithAttributes(
			attribute.String("dephealth.dependency", e.depName),
			attribute.String("dephealth.type", string(e.depType)),
			attribute.String("dephealth.host", e.ep.Host),
			attribute.String("dephealth.port", e.ep.Port),
		))
	defer span.End()

	cctx, cancel := context.WithTimeout(spanCtx, e.config.Timeout)
	defer cancel()

	t0 := time.Now()
	err := runProbe(cctx, e.probe, e.ep)
	d := time.Since(t0)

	res := classify(err)
	dep := e.dependency()
	span.SetAttributes(attribute.String("dephealth.status", string(res.Category)))
	if err != nil {
		span.SetStatus(codes.Error, res.Detail)
	}

	s.exp.observeLatency(dep, e.ep, d.Seconds())
	s.exp.setStatus(dep, e.ep, res.Category)
	s.exp.setStatusDetail(dep, e.ep, res.Detail)

	now := time.Now()

	s.mu.Lock()
	st := e.state
	st.lastCategory = res.Category
	st.lastDetail = res.Detail
	st.lastLatency = d
	st.lastCheckedAt = &now

	var emitHealthy *bool
	if err == nil {
		st.consecSuccesses++
		st.consecFailures = 0
		if st.consecSuccesses >= e.config.SuccessThreshold {
			if st.healthy == nil || !*st.healthy {
				s.logger.Info("dephealth: endpoint transitioned healthy", "dependency", e.depName, "host", e.ep.Host, "port", e.ep.Port)
			}
			t := true
			st.healthy = &t
			emitHealthy = &t
		}
	} else {
		st.consecFailures++
		st.consecSuccesses = 0
		if st.consecFailures >= e.config.FailureThreshold {
			if st.healthy == nil || *st.healthy {
				s.logger.Warn("dephealth: endpoint transitioned unhealthy", "dependency", e.depName, "host", e.ep.Host, "port", e.ep.Port, "category", res.Category, "detail", res.Detail)
			}
			f := false
			st.healthy = &f
			emitHealthy = &f
		}
		s.logger.Debug("dephealth: check cycle failed", "dependency", e.depName, "host", e.ep.Host, "port", e.ep.Port, "category", res.Category, "detail", res.Detail)
	}
	s.mu.Unlock()

	if emitHealthy != nil {
		s.exp.setHealth(dep, e.ep, *emitHealthy)
	}
}

// runProbe invokes the checker, converting a panic into a classified error
// so a misbehaving probe can never tear down the scheduler.
func runProbe(ctx context.Context, probe Checker, ep Endpoint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CheckError{Msg: fmt.Sprintf("probe panicked: %v", r), Category: string(CategoryError), Detail: "error"}
		}
	}()
	return probe.Check(ctx, ep)
}

// sleepCancellable sleeps for d or returns false early if ctx is done.
func sleepCancellable(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
