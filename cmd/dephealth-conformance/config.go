package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "DEPHEALTH_HARNESS_"
	configEnvVar = "DEPHEALTH_HARNESS_CONFIG"
)

// TargetConfig describes one dependency the harness registers with
// dephealth, declaratively — the shape a host application's own
// deployment-time dependency list would take.
type TargetConfig struct {
	Name             string            `koanf:"name"`
	Type             string            `koanf:"type"`
	URL              string            `koanf:"url"`
	Critical         bool              `koanf:"critical"`
	Interval         time.Duration     `koanf:"interval"`
	Timeout          time.Duration     `koanf:"timeout"`
	FailureThreshold int               `koanf:"failure_threshold"`
	SuccessThreshold int               `koanf:"success_threshold"`
	Labels           map[string]string `koanf:"labels"`
}

// Config is the harness's own configuration: which scenario to drive,
// where to listen, how to log, and the declarative target list.
type Config struct {
	App struct {
		Name        string `koanf:"name"`
		Environment string `koanf:"environment"`
	} `koanf:"app"`

	HTTP struct {
		Port int `koanf:"port"`
	} `koanf:"http"`

	Log struct {
		Level      string `koanf:"level"`
		Format     string `koanf:"format"`
		Output     string `koanf:"output"`
		FilePath   string `koanf:"file_path"`
		MaxSize    int    `koanf:"max_size"`
		MaxBackups int    `koanf:"max_backups"`
		MaxAge     int    `koanf:"max_age"`
	} `koanf:"log"`

	Tracing struct {
		Enabled    bool    `koanf:"enabled"`
		Endpoint   string  `koanf:"endpoint"`
		SampleRate float64 `koanf:"sample_rate"`
	} `koanf:"tracing"`

	Postgres struct {
		DSN string `koanf:"dsn"`
	} `koanf:"postgres"`

	Targets []TargetConfig `koanf:"targets"`
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

// Loader loads harness configuration with defaults -> yaml file -> env
// precedence, the same layering as the reference service's pkg/config.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

type LoaderOption func(*Loader)

func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.configPaths = paths }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
		},
		envPrefix: envPrefix,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loader) Load() (*Config, error) {
	defaults := map[string]any{
		"app.name":            "dephealth-conformance",
		"app.environment":     "development",
		"http.port":           8090,
		"log.level":           "info",
		"log.format":          "json",
		"log.output":          "stdout",
		"log.max_size":        100,
		"log.max_backups":     3,
		"log.max_age":         7,
		"tracing.enabled":     false,
		"tracing.endpoint":    "localhost:4317",
		"tracing.sample_rate": 0.1,
	}
	if err := l.k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "dephealth-conformance: %v\n", err)
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, l.envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadConfigFile() error {
	if path := os.Getenv(configEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return l.k.Load(file.Provider(path), yaml.Parser())
		}
	}
	for _, path := range l.configPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return l.k.Load(file.Provider(abs), yaml.Parser())
		}
	}
	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

func Load() (*Config, error) {
	return NewLoader().Load()
}
