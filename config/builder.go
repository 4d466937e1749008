package config

import (
	"sort"

	edgedash "github.com/mowgli42/bookish-train"
)

// BuildOptions converts parsed configuration into registry options.
//
// Desktop toasts and logging are left to the caller, since they depend on
// the process environment rather than the catcher.
func BuildOptions(cfg *Config) ([]edgedash.Option, error) {
	var opts []edgedash.Option

	if cfg.CatcherURL != "" {
		opts = append(opts, edgedash.WithBaseURL(cfg.CatcherURL))
	}

	if cfg.Timeout != 0 {
		opts = append(opts, edgedash.WithTimeout(cfg.Timeout.Duration()))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, edgedash.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	if cfg.Port != 0 {
		opts = append(opts, edgedash.WithPort(cfg.Port))
	}

	if cfg.RefreshInterval != 0 {
		opts = append(opts, edgedash.WithRefreshInterval(cfg.RefreshInterval.Duration()))
	}

	if cfg.MaxConcurrency > 0 {
		opts = append(opts, edgedash.WithMaxConcurrency(cfg.MaxConcurrency))
	}

	policy, err := edgedash.ParseOrderPolicy(cfg.OrderPolicy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, edgedash.WithOrderPolicy(policy))

	if cfg.Projections.Days > 0 {
		opts = append(opts, edgedash.WithProjectionQuery(edgedash.ProjectionQuery{
			Days:    cfg.Projections.Days,
			Seconds: cfg.Projections.Seconds,
		}))
	}

	// sort names for deterministic ordering
	names := make([]string, 0, len(cfg.Resources))
	for name := range cfg.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if iv := cfg.Resources[name].Interval; iv != 0 {
			opts = append(opts, edgedash.WithResourceInterval(name, iv.Duration()))
		}
	}

	if cfg.Toasts.TTL != 0 {
		opts = append(opts, edgedash.WithToastTTL(cfg.Toasts.TTL.Duration()))
	}
	if cfg.Toasts.OnFailure {
		opts = append(opts, edgedash.WithFailureToasts())
	}

	return opts, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
