// Package config resolves the catalog CLI's configuration from, in
// increasing precedence: defaults, a YAML file, a .env file, FAULTCATALOG_*
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/go-faultcatalog/eventloop"
)

// Config is the catalog CLI configuration.
type Config struct {
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Workdir      string        `yaml:"workdir"`
	HookPolicy   string        `yaml:"hook_policy"`
	Scenarios    []string      `yaml:"scenarios"`
	Timeout      time.Duration `yaml:"timeout"`
	SimulateExit bool          `yaml:"simulate_exit"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	// Format is one of json, console or text.
	Format string `yaml:"format"`
	// Level is a syslog-style level name, e.g. "info" or "debug".
	Level string `yaml:"level"`
}

// MetricsConfig controls the fault metrics dump.
type MetricsConfig struct {
	// Output is a file path, or "-" for stdout.
	Output  string `yaml:"output"`
	Enabled bool   `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Format: "console",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Output: "-",
		},
		HookPolicy: "replace",
		Timeout:    10 * time.Second,
	}
}

// Policy returns the parsed hook policy.
func (c *Config) Policy() (eventloop.HookPolicy, error) {
	switch strings.ToLower(c.HookPolicy) {
	case "", "replace":
		return eventloop.PolicyReplace, nil
	case "reject":
		return eventloop.PolicyReject, nil
	default:
		return 0, fmt.Errorf("config: invalid hook policy %q (want replace or reject)", c.HookPolicy)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "console", "text":
	default:
		return fmt.Errorf("config: invalid log format %q (want json, console or text)", c.Log.Format)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout %s", c.Timeout)
	}
	return nil
}
