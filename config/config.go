// Package config provides YAML configuration parsing for the edgedash binary.
//
// This package enables running the dashboard state layer as a standalone
// binary with a configuration file, as an alternative to constructing a
// registry with options in code.
//
// Example configuration:
//
//	catcher_url: ${CATCHER_URL:-http://127.0.0.1:8000}
//	port: 8080
//	refresh_interval: 15s
//	order_policy: latest_issued
//
//	headers:
//	  Authorization: Bearer ${CATCHER_TOKEN}
//
//	projections:
//	  days: 5
//
//	resources:
//	  jobs:
//	    interval: 5s
//
//	toasts:
//	  ttl: 4s
//	  on_failure: true
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	edgedash "github.com/mowgli42/bookish-train"
)

// minRefreshInterval is the minimum allowed refresh interval.
// This keeps a misconfigured dashboard from hammering the catcher.
const minRefreshInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort            = 8080
	DefaultRefreshInterval = 15 * time.Second
	DefaultLogLevel        = "info"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// CatcherURL is the catcher base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	// Defaults to $CATCHER_URL, then http://127.0.0.1:8000.
	CatcherURL string `yaml:"catcher_url"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// RefreshInterval is the time between refreshes of every resource.
	// Accepts duration strings like "10s", "1m". Defaults to 15s.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// MaxConcurrency limits concurrent refreshes. Defaults to one per resource.
	MaxConcurrency int `yaml:"max_concurrency"`

	// OrderPolicy is "latest_issued" (default) or "last_resolved".
	OrderPolicy string `yaml:"order_policy"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Headers are sent with every catcher request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Projections sets the default projection horizon.
	Projections ProjectionsConfig `yaml:"projections"`

	// Resources holds per-resource overrides keyed by resource name.
	Resources map[string]ResourceConfig `yaml:"resources"`

	// Toasts configures notifications.
	Toasts ToastsConfig `yaml:"toasts"`
}

// ProjectionsConfig sets the default projection query.
type ProjectionsConfig struct {
	// Days is the horizon in days. Defaults to 5.
	Days int `yaml:"days"`

	// Seconds is the horizon in seconds. When unset, the dashboard asks for
	// 10 seconds only while the catcher reports demo mode.
	Seconds *int `yaml:"seconds"`
}

// ResourceConfig overrides settings of one resource.
type ResourceConfig struct {
	// Interval is the custom refresh interval for this resource.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// ToastsConfig configures the notification queue.
type ToastsConfig struct {
	// TTL is how long a toast stays visible. Defaults to 4s.
	TTL Duration `yaml:"ttl"`

	// Desktop mirrors toasts to desktop notifications.
	Desktop bool `yaml:"desktop"`

	// OnFailure enqueues a toast when a resource fails or recovers.
	OnFailure bool `yaml:"on_failure"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in CatcherURL and Header values.
// Defaults are applied for Port, RefreshInterval, LogLevel and
// Projections.Days.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Projections.Days == 0 {
		cfg.Projections.Days = edgedash.DefaultProjectionDays
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.CatcherURL != "" {
		expanded, err := expandEnvVars(c.CatcherURL)
		if err != nil {
			return fmt.Errorf("catcher_url: %w", err)
		}
		c.CatcherURL = expanded

		parsedURL, err := url.Parse(c.CatcherURL)
		if err != nil {
			return fmt.Errorf("catcher_url: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("catcher_url: scheme must be http or https, got %q", parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("catcher_url: host is required")
		}
	}

	if c.Timeout != 0 && c.Timeout.Duration() < time.Second {
		return fmt.Errorf("timeout must be at least 1s if specified, got %s", c.Timeout.Duration())
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.RefreshInterval.Duration() < minRefreshInterval {
		return fmt.Errorf("refresh_interval must be at least %s, got %s", minRefreshInterval, c.RefreshInterval.Duration())
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	if _, err := edgedash.ParseOrderPolicy(c.OrderPolicy); err != nil {
		return fmt.Errorf("order_policy: %w", err)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	for k, v := range c.Headers {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("headers: name cannot be empty")
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.Projections.Days < 0 {
		return fmt.Errorf("projections: days must be positive, got %d", c.Projections.Days)
	}
	if s := c.Projections.Seconds; s != nil && *s <= 0 {
		return fmt.Errorf("projections: seconds must be positive, got %d", *s)
	}

	known := make(map[string]struct{})
	for _, name := range edgedash.ResourceNames() {
		known[name] = struct{}{}
	}
	for name, rc := range c.Resources {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("resources[%s]: unknown resource (expected one of %s)",
				name, strings.Join(edgedash.ResourceNames(), ", "))
		}
		if rc.Interval != 0 {
			if rc.Interval.Duration() < time.Second {
				return fmt.Errorf("resources[%s]: interval must be at least 1s, got %s", name, rc.Interval.Duration())
			}
			if rc.Interval.Duration() > time.Hour {
				return fmt.Errorf("resources[%s]: interval must not exceed 1h, got %s", name, rc.Interval.Duration())
			}
		}
	}

	if c.Toasts.TTL < 0 {
		return fmt.Errorf("toasts: ttl cannot be negative, got %s", c.Toasts.TTL.Duration())
	}

	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel parses debug, info, warn or error. An empty string is info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}
