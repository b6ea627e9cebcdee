package dephealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig_WithDefaults(t *testing.T) {
	c := CheckConfig{}.withDefaults()
	assert.Equal(t, DefaultInterval, c.Interval)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, DefaultDelay, c.InitialDelay)
	assert.Equal(t, DefaultFailureThreshold, c.FailureThreshold)
	assert.Equal(t, DefaultSuccessThreshold, c.SuccessThreshold)
}

func TestCheckConfig_Validate_Rejects(t *testing.T) {
	cases := []CheckConfig{
		{Interval: 0, Timeout: time.Second, InitialDelay: 0, FailureThreshold: 1, SuccessThreshold: 1},
		{Interval: time.Second, Timeout: 61 * time.Second, InitialDelay: 0, FailureThreshold: 1, SuccessThreshold: 1},
		{Interval: time.Second, Timeout: time.Second, InitialDelay: -time.Second, FailureThreshold: 1, SuccessThreshold: 1},
		{Interval: time.Second, Timeout: time.Second, InitialDelay: 0, FailureThreshold: 0, SuccessThreshold: 1},
		{Interval: time.Second, Timeout: time.Second, InitialDelay: 0, FailureThreshold: 1, SuccessThreshold: 101},
	}
	for _, c := range cases {
		err := c.validate()
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, CodeInvalidConfigRange, cfgErr.Code)
	}
}

func TestDependency_Validate_Name(t *testing.T) {
	dep := Dependency{
		Name:      "_bad-name",
		Type:      TypeHTTP,
		Endpoints: []Endpoint{{Host: "h", Port: "80"}},
		Config:    DefaultCheckConfig(),
	}
	err := dep.validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, CodeInvalidName, cfgErr.Code)
}

func TestDependency_Validate_UnknownType(t *testing.T) {
	dep := Dependency{
		Name:      "svc",
		Type:      DependencyType("carrier-pigeon"),
		Endpoints: []Endpoint{{Host: "h", Port: "80"}},
		Config:    DefaultCheckConfig(),
	}
	err := dep.validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, CodeUnsupportedScheme, cfgErr.Code)
}

func TestDependency_Validate_NoEndpoints(t *testing.T) {
	dep := Dependency{Name: "svc", Type: TypeHTTP, Config: DefaultCheckConfig()}
	err := dep.validate()
	require.Error(t, err)
}

func TestDependency_Validate_ReservedLabel(t *testing.T) {
	dep := Dependency{
		Name: "svc",
		Type: TypeHTTP,
		Endpoints: []Endpoint{
			{Host: "h", Port: "80", Labels: map[string]string{"group": "x"}},
		},
		Config: DefaultCheckConfig(),
	}
	err := dep.validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, CodeReservedLabel, cfgErr.Code)
}

func TestDependency_Validate_BadPort(t *testing.T) {
	dep := Dependency{
		Name:      "svc",
		Type:      TypeTCP,
		Endpoints: []Endpoint{{Host: "h", Port: "99999"}},
		Config:    DefaultCheckConfig(),
	}
	err := dep.validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, CodeInvalidPort, cfgErr.Code)
}

func TestDependency_Validate_OK(t *testing.T) {
	dep := Dependency{
		Name:     "postgres-main",
		Type:     TypePostgres,
		Critical: true,
		Endpoints: []Endpoint{
			{Host: "db.internal", Port: "5432", Labels: map[string]string{"shard": "a"}},
		},
		Config: DefaultCheckConfig(),
	}
	assert.NoError(t, dep.validate())
}

func TestEndpoint_Key(t *testing.T) {
	ep := Endpoint{Host: "db.internal", Port: "5432"}
	assert.Equal(t, "postgres-main:db.internal:5432", ep.key("postgres-main"))
}
