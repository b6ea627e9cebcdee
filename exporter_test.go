package dephealth

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if metricMatches(m, labels) {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func metricMatches(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestUnionSortedLabels(t *testing.T) {
	deps := []Dependency{
		{Endpoints: []Endpoint{{Labels: map[string]string{"shard": "a", "az": "us-east"}}}},
		{Endpoints: []Endpoint{{Labels: map[string]string{"tier": "critical"}}}},
	}
	assert.Equal(t, []string{"az", "shard", "tier"}, unionSortedLabels(deps))
}

func TestExporter_SetHealthAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := newExporter(reg, "svc", "grp", unionSortedLabels(nil))

	dep := Dependency{Name: "pg", Type: TypePostgres, Critical: true}
	ep := Endpoint{Host: "db", Port: "5432"}

	exp.setHealth(dep, ep, true)
	v, ok := gaugeValue(t, reg, "app_dependency_health", map[string]string{
		"dependency": "pg", "host": "db", "port": "5432", "critical": "yes",
	})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	exp.setStatus(dep, ep, CategoryTimeout)
	vOK, ok := gaugeValue(t, reg, "app_dependency_status", map[string]string{"dependency": "pg", "status": "ok"})
	require.True(t, ok)
	assert.Equal(t, 0.0, vOK)
	vTimeout, ok := gaugeValue(t, reg, "app_dependency_status", map[string]string{"dependency": "pg", "status": "timeout"})
	require.True(t, ok)
	assert.Equal(t, 1.0, vTimeout)
}

func TestExporter_DetailDeleteOnChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := newExporter(reg, "svc", "grp", nil)
	dep := Dependency{Name: "redis", Type: TypeRedis}
	ep := Endpoint{Host: "cache", Port: "6379"}

	exp.setStatusDetail(dep, ep, "ok")
	_, ok := gaugeValue(t, reg, "app_dependency_status_detail", map[string]string{"detail": "ok"})
	require.True(t, ok)

	exp.setStatusDetail(dep, ep, "connection_refused")
	_, stillThere := gaugeValue(t, reg, "app_dependency_status_detail", map[string]string{"detail": "ok"})
	assert.False(t, stillThere)
	v, ok := gaugeValue(t, reg, "app_dependency_status_detail", map[string]string{"detail": "connection_refused"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestExporter_RemoveEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := newExporter(reg, "svc", "grp", nil)
	dep := Dependency{Name: "redis", Type: TypeRedis}
	ep := Endpoint{Host: "cache", Port: "6379"}

	exp.setHealth(dep, ep, true)
	exp.setStatus(dep, ep, CategoryOK)
	exp.setStatusDetail(dep, ep, "ok")

	exp.removeEndpoint(dep, ep)

	_, ok := gaugeValue(t, reg, "app_dependency_health", map[string]string{"dependency": "redis"})
	assert.False(t, ok)
	_, ok = gaugeValue(t, reg, "app_dependency_status_detail", map[string]string{"dependency": "redis"})
	assert.False(t, ok)
}

func TestExporter_CustomLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := newExporter(reg, "svc", "grp", []string{"shard"})
	dep := Dependency{Name: "pg", Type: TypePostgres}
	ep := Endpoint{Host: "db", Port: "5432", Labels: map[string]string{"shard": "a"}}

	exp.setHealth(dep, ep, true)
	v, ok := gaugeValue(t, reg, "app_dependency_health", map[string]string{"shard": "a"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}
