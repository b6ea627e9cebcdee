package dephealth

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0}

// exporter owns the four Prometheus metric families described in the
// component design and enforces the delete-on-change invariant on the
// detail series. Its own "previous detail" map is guarded independently
// of the scheduler's state-table mutex.
type exporter struct {
	instanceName  string
	instanceGroup string
	customLabels  []string // sorted, frozen at construction

	health *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	status  *prometheus.GaugeVec
	detail  *prometheus.GaugeVec

	mu         sync.Mutex
	prevDetail map[string]string // endpoint key -> last-set detail value
}

func newExporter(reg prometheus.Registerer, instanceName, instanceGroup string, customLabels []string) *exporter {
	sorted := append([]string(nil), customLabels...)
	sort.Strings(sorted)

	baseLabels := append([]string{"name", "group", "dependency", "type", "host", "port", "critical"}, sorted...)
	statusLabels := append(append([]string{}, baseLabels...), "status")
	detailLabels := append(append([]string{}, baseLabels...), "detail")

	factory := promauto.With(reg)

	return &exporter{
		instanceName:  instanceName,
		instanceGroup: instanceGroup,
		customLabels:  sorted,
		health: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "app_dependency_health",
			Help: "Health status of a dependency (1 = healthy, 0 = unhealthy)",
		}, baseLabels),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "app_dependency_latency_seconds",
			Help:    "Latency of dependency health check in seconds",
			Buckets: latencyBuckets,
		}, baseLabels),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "app_dependency_status",
			Help: "Category of the last check result",
		}, statusLabels),
		detail: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "app_dependency_status_detail",
			Help: "Detailed reason of the last check result",
		}, detailLabels),
		prevDetail: make(map[string]string),
	}
}

func criticalLabel(critical bool) string {
	if critical {
		return "yes"
	}
	return "no"
}

func (e *exporter) baseValues(dep Dependency, ep Endpoint) []string {
	vals := make([]string, 0, 7+len(e.customLabels))
	vals = append(vals, e.instanceName, e.instanceGroup, dep.Name, string(dep.Type), ep.Host, ep.Port, criticalLabel(dep.Critical))
	for _, k := range e.customLabels {
		vals = append(vals, ep.Labels[k])
	}
	return vals
}

func (e *exporter) observeLatency(dep Dependency, ep Endpoint, seconds float64) {
	e.latency.WithLabelValues(e.baseValues(dep, ep)...).Observe(seconds)
}

// setStatus sets the series for `cat` to 1 and every other of the eight
// categories to 0, so that exactly one carries value 1 per endpoint.
func (e *exporter) setStatus(dep Dependency, ep Endpoint, cat Category) {
	base := e.baseValues(dep, ep)
	for _, c := range Categories {
		v := 0.0
		if c == cat {
			v = 1.0
		}
		labels := append(append([]string{}, base...), string(c))
		e.status.WithLabelValues(labels...).Set(v)
	}
}

// setStatusDetail sets the single live detail series for the endpoint,
// deleting the previous one first (delete-on-change invariant).
func (e *exporter) setStatusDetail(dep Dependency, ep Endpoint, detail string) {
	key := ep.key(dep.Name)
	base := e.baseValues(dep, ep)

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.prevDetail[key]; ok && prev != detail {
		e.detail.DeleteLabelValues(append(append([]string{}, base...), prev)...)
	}
	e.detail.WithLabelValues(append(append([]string{}, base...), detail)...).Set(1)
	e.prevDetail[key] = detail
}

func (e *exporter) setHealth(dep Dependency, ep Endpoint, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	e.health.WithLabelValues(e.baseValues(dep, ep)...).Set(v)
}

// removeEndpoint deletes every series associated with the endpoint: the
// health series, the latency series, all eight status series, and the
// single live detail series.
func (e *exporter) removeEndpoint(dep Dependency, ep Endpoint) {
	base := e.baseValues(dep, ep)
	e.health.DeleteLabelValues(base...)
	e.latency.DeleteLabelValues(base...)
	for _, c := range Categories {
		e.status.DeleteLabelValues(append(append([]string{}, base...), string(c))...)
	}

	key := ep.key(dep.Name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.prevDetail[key]; ok {
		e.detail.DeleteLabelValues(append(append([]string{}, base...), prev)...)
		delete(e.prevDetail, key)
	}
}

// unionSortedLabels computes the sorted union of custom label keys
// declared across every endpoint of every dependency.
func unionSortedLabels(deps []Dependency) []string {
	set := make(map[string]bool)
	for _, d := range deps {
		for _, ep := range d.Endpoints {
			for k := range ep.Labels {
				set[k] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
