package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/go-faultcatalog/codec"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by [Resolve].
const EnvPrefix = "FAULTCATALOG_"

// Load reads configuration from a YAML file on top of [Default].
// Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", fault.Wrap(err))
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := codec.YAML.Decode([]byte(expandedData), cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Options is the result of parsing command-line flags.
type Options struct {
	flags *flag.FlagSet

	ConfigPath string
	EnvFile    string
	List       bool
	Help       bool
}

// NewFlagSet returns the CLI flag set, bound to a fresh [Options] and a
// config to receive flag values.
func NewFlagSet(name string) (*flag.FlagSet, *Options, *Config) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &Options{flags: fs}
	cfg := Default()

	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	fs.StringVar(&opts.EnvFile, "env-file", "", ".env file to load (default .env, if present)")
	fs.BoolVarP(&opts.List, "list", "l", false, "list scenarios and exit")
	fs.BoolVarP(&opts.Help, "help", "h", false, "show usage")
	fs.StringSliceVarP(&cfg.Scenarios, "scenario", "s", nil, "scenario names or IDs to run (default all)")
	fs.StringVar(&cfg.Workdir, "workdir", cfg.Workdir, "directory file paths are resolved against")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-scenario timeout")
	fs.StringVar(&cfg.HookPolicy, "hook-policy", cfg.HookPolicy, "hook re-registration policy: replace or reject")
	fs.BoolVar(&cfg.SimulateExit, "simulate-exit", cfg.SimulateExit, "record fatal exits instead of exiting the process")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: json, console or text")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics", cfg.Metrics.Enabled, "dump fault metrics after the run")
	fs.StringVar(&cfg.Metrics.Output, "metrics-output", cfg.Metrics.Output, `metrics destination file, or "-" for stdout`)

	return fs, opts, cfg
}

// Resolve parses args and layers every configuration source.
// lookupEnv is normally [os.LookupEnv].
func Resolve(args []string, lookupEnv func(string) (string, bool)) (*Config, *Options, error) {
	fs, opts, flagged := NewFlagSet("faultcatalog")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if opts.Help || opts.List {
		return flagged, opts, nil
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, nil, err
	}

	cfg := Default()

	path := opts.ConfigPath
	if path == "" {
		path, _ = lookupEnv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, nil, err
		}
	}

	if err := applyEnv(cfg, lookupEnv); err != nil {
		return nil, nil, err
	}
	applyFlags(cfg, flagged, fs)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, opts, nil
}

// Usage returns the flag usage text.
func (o *Options) Usage() string {
	return o.flags.FlagUsages()
}

func loadEnvFile(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookupEnv(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("SCENARIOS"); ok {
		cfg.Scenarios = splitList(v)
	}
	if v, ok := get("WORKDIR"); ok {
		cfg.Workdir = v
	}
	if v, ok := get("HOOK_POLICY"); ok {
		cfg.HookPolicy = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("METRICS_OUTPUT"); ok {
		cfg.Metrics.Output = v
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Timeout = d
	}
	for key, dst := range map[string]*bool{
		"SIMULATE_EXIT": &cfg.SimulateExit,
		"METRICS":       &cfg.Metrics.Enabled,
	} {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}

// applyFlags copies values of flags set on the command line.
func applyFlags(cfg, flagged *Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenario":
			cfg.Scenarios = flagged.Scenarios
		case "workdir":
			cfg.Workdir = flagged.Workdir
		case "timeout":
			cfg.Timeout = flagged.Timeout
		case "hook-policy":
			cfg.HookPolicy = flagged.HookPolicy
		case "simulate-exit":
			cfg.SimulateExit = flagged.SimulateExit
		case "log-format":
			cfg.Log.Format = flagged.Log.Format
		case "log-level":
			cfg.Log.Level = flagged.Log.Level
		case "metrics":
			cfg.Metrics.Enabled = flagged.Metrics.Enabled
		case "metrics-output":
			cfg.Metrics.Output = flagged.Metrics.Output
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
