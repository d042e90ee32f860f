// Package config defines the worker's startup configuration: listen
// address, registry path, artifact cache directory, injected config
// values, and ambient logging/profiling knobs. Values can come from a
// YAML file, CLI flags, or defaults, with flags taking precedence.
package config

import (
	"fmt"

	ourerrors "github.com/open-lambda/ol-wasm-worker/internal/errors"
)

// Config holds the worker's full startup configuration.
type Config struct {
	ListenAddress     string            `yaml:"listen_address"`
	RegistryPath      string            `yaml:"registry_path"`
	CacheDir          string            `yaml:"cache_dir"`
	ConfigValues      map[string]string `yaml:"config_values"`
	MaxIdleInstances  int               `yaml:"max_idle_instances"`
	EnableCPUProfiler bool              `yaml:"enable_cpu_profiler"`
	ProfilerAddress   string            `yaml:"profiler_address"`
	LogFormat         string            `yaml:"log_format"` // "console" or "json"
	LogLevel          string            `yaml:"log_level"`  // "debug", "info", "warn", "error"
	MetricsAddress    string            `yaml:"metrics_address"`
}

// DefaultConfig returns a configuration with the defaults named in
// the worker's CLI surface.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:    "localhost:5000",
		RegistryPath:     "./test-registry.wasm",
		CacheDir:         "./test-registry.wasm.worker.cache",
		ConfigValues:     map[string]string{},
		MaxIdleInstances: 100,
		ProfilerAddress:  "localhost:6060",
		LogFormat:        "console",
		LogLevel:         "info",
		MetricsAddress:   "localhost:9090",
	}
}

// ApplyDefaults fills zero-valued fields with DefaultConfig's values.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.ListenAddress == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if c.RegistryPath == "" {
		c.RegistryPath = defaults.RegistryPath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaults.CacheDir
	}
	if c.ConfigValues == nil {
		c.ConfigValues = map[string]string{}
	}
	if c.MaxIdleInstances == 0 {
		c.MaxIdleInstances = defaults.MaxIdleInstances
	}
	if c.ProfilerAddress == "" {
		c.ProfilerAddress = defaults.ProfilerAddress
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.MetricsAddress == "" {
		c.MetricsAddress = defaults.MetricsAddress
	}
}

// Validate checks the configuration for errors, returning every
// violation found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, fieldError("ListenAddress", "must not be empty"))
	}
	if c.RegistryPath == "" {
		errs = append(errs, fieldError("RegistryPath", "must not be empty"))
	}
	if c.MaxIdleInstances <= 0 {
		errs = append(errs, fieldError("MaxIdleInstances", "must be positive"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fieldError("LogFormat", "must be \"console\" or \"json\""))
	}

	return errs
}

func fieldError(field, message string) error {
	return ourerrors.NewStartupError(fmt.Sprintf("%s: %s", field, message), nil)
}
