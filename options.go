package edgedash

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mowgli42/bookish-train/toast"
)

const (
	// DefaultBaseURL is the catcher address used when neither [WithBaseURL]
	// nor CATCHER_URL is set.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// BaseURLEnv names the environment variable consulted for the catcher address.
	BaseURLEnv = "CATCHER_URL"

	defaultRefreshInterval = 15 * time.Second
	defaultPort            = 8080
	defaultMaxConcurrency  = 7
)

// registryConfig holds mutable state during Registry construction.
type registryConfig struct {
	baseURL           string
	httpClient        *http.Client
	timeout           time.Duration
	headers           map[string]string
	fetcher           Fetcher
	logger            *slog.Logger
	clock             clockwork.Clock
	policy            OrderPolicy
	projection        ProjectionQuery
	recorder          Recorder
	promRegistry      *prometheus.Registry
	callbacks         []func(RefreshResult)
	toastTTL          time.Duration
	toastSinks        []toast.Sink
	failureToasts     bool
	refreshInterval   time.Duration
	resourceIntervals map[string]time.Duration
	port              int
	maxConcurrency    int
}

func defaultConfig() *registryConfig {
	baseURL := os.Getenv(BaseURLEnv)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &registryConfig{
		baseURL:           baseURL,
		projection:        ProjectionQuery{Days: DefaultProjectionDays},
		toastTTL:          toast.DefaultTTL,
		refreshInterval:   defaultRefreshInterval,
		resourceIntervals: make(map[string]time.Duration),
		port:              defaultPort,
		maxConcurrency:    defaultMaxConcurrency,
	}
}

// Option configures a [Registry] during construction. Options return an
// error if validation fails.
type Option func(*registryConfig) error

// WithBaseURL sets the catcher base URL, e.g. "http://catcher:8000".
// Defaults to $CATCHER_URL, then [DefaultBaseURL].
func WithBaseURL(u string) Option {
	return func(cfg *registryConfig) error {
		if u == "" {
			return errors.New("base URL cannot be empty")
		}
		cfg.baseURL = u
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for catcher reads.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *registryConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(cfg *registryConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithHeaders adds headers sent with every catcher read. Accepts key-value
// pairs; an odd number of arguments is an error.
//
//	edgedash.New(edgedash.WithHeaders("Authorization", "Bearer token"))
func WithHeaders(keyValues ...string) Option {
	return func(cfg *registryConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("headers must be key-value pairs")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(keyValues)/2)
		}
		for i := 0; i < len(keyValues); i += 2 {
			if keyValues[i] == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithFetcher replaces the HTTP transport. [WithBaseURL], [WithHTTPClient],
// [WithTimeout] and [WithHeaders] are ignored when a fetcher is set.
func WithFetcher(f Fetcher) Option {
	return func(cfg *registryConfig) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetcher = f
		return nil
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *registryConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock sets the clock used for timestamps, toast expiry and scheduling.
func WithClock(c clockwork.Clock) Option {
	return func(cfg *registryConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithOrderPolicy selects how overlapping refreshes of the same resource are
// resolved. Defaults to [OrderLatestIssued].
func WithOrderPolicy(p OrderPolicy) Option {
	return func(cfg *registryConfig) error {
		if p != OrderLatestIssued && p != OrderLastResolved {
			return fmt.Errorf("unknown order policy %d", p)
		}
		cfg.policy = p
		return nil
	}
}

// WithProjectionQuery sets the default projection query. Days must be positive.
func WithProjectionQuery(q ProjectionQuery) Option {
	return func(cfg *registryConfig) error {
		if q.Days <= 0 {
			return errors.New("projection days must be positive")
		}
		if q.Seconds != nil && *q.Seconds <= 0 {
			return errors.New("projection seconds must be positive")
		}
		cfg.projection = q
		return nil
	}
}

// WithRecorder sets a custom metrics recorder. If it also implements
// IncToast and SetActiveToasts it receives toast metrics too.
func WithRecorder(r Recorder) Option {
	return func(cfg *registryConfig) error {
		if r == nil {
			return errors.New("recorder cannot be nil")
		}
		cfg.recorder = r
		return nil
	}
}

// WithPrometheus records refresh and toast metrics on reg and exposes them
// at /metrics when serving.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(cfg *registryConfig) error {
		if reg == nil {
			return errors.New("prometheus registry cannot be nil")
		}
		cfg.promRegistry = reg
		return nil
	}
}

// WithRefreshCallback registers a function called after every completed
// refresh of any resource, including discarded stale responses.
//
// Callbacks run on the refreshing goroutine and must not block. Panics are
// recovered and logged. Nil callbacks are ignored.
func WithRefreshCallback(cb func(RefreshResult)) Option {
	return func(cfg *registryConfig) error {
		if cb != nil {
			cfg.callbacks = append(cfg.callbacks, cb)
		}
		return nil
	}
}

// WithToastTTL overrides how long toasts stay visible. Defaults to [toast.DefaultTTL].
func WithToastTTL(d time.Duration) Option {
	return func(cfg *registryConfig) error {
		if d <= 0 {
			return errors.New("toast TTL must be positive")
		}
		cfg.toastTTL = d
		return nil
	}
}

// WithToastSink mirrors every toast to s, e.g. a desktop notifier.
func WithToastSink(s toast.Sink) Option {
	return func(cfg *registryConfig) error {
		if s != nil {
			cfg.toastSinks = append(cfg.toastSinks, s)
		}
		return nil
	}
}

// WithFailureToasts enqueues an error toast when a resource enters the
// failure phase, and an info toast when it recovers.
func WithFailureToasts() Option {
	return func(cfg *registryConfig) error {
		cfg.failureToasts = true
		return nil
	}
}

// WithRefreshInterval sets how often [Registry.Serve] refreshes resources.
// Defaults to 15 seconds.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *registryConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithResourceInterval overrides the refresh interval of one resource.
func WithResourceInterval(name string, d time.Duration) Option {
	return func(cfg *registryConfig) error {
		if !isResourceName(name) {
			return fmt.Errorf("unknown resource %q", name)
		}
		if d <= 0 {
			return fmt.Errorf("interval for %q must be positive", name)
		}
		cfg.resourceIntervals[name] = d
		return nil
	}
}

// WithPort sets the port [Registry.Serve] listens on. Defaults to 8080.
func WithPort(port int) Option {
	return func(cfg *registryConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits concurrent refreshes in [Registry.Serve].
func WithMaxConcurrency(n int) Option {
	return func(cfg *registryConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}
