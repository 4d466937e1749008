package edgedash

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mowgli42/bookish-train/internal/metrics"
	"github.com/mowgli42/bookish-train/internal/refresher"
	"github.com/mowgli42/bookish-train/internal/remote"
	"github.com/mowgli42/bookish-train/internal/server"
	"github.com/mowgli42/bookish-train/internal/store"
	"github.com/mowgli42/bookish-train/toast"
)

// ToastsSnapshot is the snapshot name under which the toast queue is published.
const ToastsSnapshot = "toasts"

// resourceNames lists every resource in display order.
var resourceNames = []string{
	StatusResource,
	BucketsResource,
	SourcesResource,
	PackagesResource,
	JobsResource,
	ConfigResource,
	ProjectionsResource,
}

func isResourceName(name string) bool {
	for _, n := range resourceNames {
		if n == name {
			return true
		}
	}
	return false
}

// ResourceNames returns the names of all resources.
func ResourceNames() []string {
	return append([]string(nil), resourceNames...)
}

// Registry owns one [Resource] per catcher resource kind and the toast queue.
//
// The process-wide instance is obtained with [Init] or [Default]; [New]
// creates isolated instances, e.g. for tests.
//
//	reg, err := edgedash.New(edgedash.WithBaseURL("http://catcher:8000"))
//	if err != nil {
//	    slog.Error("failed to create registry", "error", err)
//	    os.Exit(1)
//	}
//	reg.RefreshAll(ctx)
//	for _, job := range reg.Jobs().Data() { ... }
type Registry struct {
	baseURL           string
	policy            OrderPolicy
	projection        ProjectionQuery
	refreshInterval   time.Duration
	resourceIntervals map[string]time.Duration
	port              int
	maxConcurrency    int
	failureToasts     bool
	callbacks         []func(RefreshResult)
	logger            *slog.Logger
	clock             clockwork.Clock
	promRegistry      *prometheus.Registry

	client *remote.Client
	hub    *store.MemoryStore
	toasts *toast.Queue

	buckets     *Resource[NoParams, []Bucket]
	config      *Resource[NoParams, RetentionConfig]
	jobs        *Resource[NoParams, []Job]
	packages    *Resource[NoParams, []Package]
	sources     *Resource[NoParams, []Source]
	status      *Resource[NoParams, ComponentStatus]
	projections *Resource[ProjectionQuery, Projection]

	closeOnce sync.Once
}

// New creates a [Registry]. Every resource starts idle holding its empty
// default; nothing is fetched until a refresh is requested.
//
// Returns an error if an option is invalid or the base URL is malformed.
func New(opts ...Option) (*Registry, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	r := &Registry{
		baseURL:           cfg.baseURL,
		policy:            cfg.policy,
		projection:        cfg.projection,
		refreshInterval:   cfg.refreshInterval,
		resourceIntervals: cfg.resourceIntervals,
		port:              cfg.port,
		maxConcurrency:    cfg.maxConcurrency,
		failureToasts:     cfg.failureToasts,
		callbacks:         cfg.callbacks,
		logger:            logger,
		clock:             clock,
		promRegistry:      cfg.promRegistry,
		hub:               store.NewMemoryStore(),
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		clientOpts := []remote.ClientOption{remote.WithHeaders(cfg.headers)}
		if cfg.httpClient != nil {
			clientOpts = append(clientOpts, remote.WithHTTPClient(cfg.httpClient))
		}
		if cfg.timeout > 0 {
			clientOpts = append(clientOpts, remote.WithTimeout(cfg.timeout))
		}
		client, err := remote.NewClient(cfg.baseURL, clientOpts...)
		if err != nil {
			return nil, err
		}
		r.client = client
		fetcher = &httpFetcher{client: client}
	}

	recorder := cfg.recorder
	if recorder == nil && cfg.promRegistry != nil {
		recorder = metrics.NewPrometheusRecorder(cfg.promRegistry)
	}

	toastOpts := []toast.Option{
		toast.WithClock(clock),
		toast.WithTTL(cfg.toastTTL),
		toast.WithLogger(logger),
		toast.WithOnChange(r.publishToasts),
	}
	if tr, ok := recorder.(toast.Recorder); ok {
		toastOpts = append(toastOpts, toast.WithRecorder(tr))
	}
	for _, sink := range cfg.toastSinks {
		toastOpts = append(toastOpts, toast.WithSink(sink))
	}
	r.toasts = toast.New(toastOpts...)
	r.publishToasts(nil)

	rc := ResourceConfig{
		Fetcher:    fetcher,
		Policy:     cfg.policy,
		Clock:      clock,
		Logger:     logger,
		Recorder:   recorder,
		OnComplete: r.onRefresh,
		hub:        r.hub,
	}

	var err error
	if r.buckets, err = NewResource(BucketsDefinition(), rc); err != nil {
		return nil, err
	}
	if r.config, err = NewResource(ConfigDefinition(), rc); err != nil {
		return nil, err
	}
	if r.jobs, err = NewResource(JobsDefinition(), rc); err != nil {
		return nil, err
	}
	if r.packages, err = NewResource(PackagesDefinition(), rc); err != nil {
		return nil, err
	}
	if r.sources, err = NewResource(SourcesDefinition(), rc); err != nil {
		return nil, err
	}
	if r.status, err = NewResource(StatusDefinition(), rc); err != nil {
		return nil, err
	}
	if r.projections, err = NewResource(ProjectionsDefinition(cfg.projection), rc); err != nil {
		return nil, err
	}

	return r, nil
}

// Buckets returns the per-tier summary resource.
func (r *Registry) Buckets() *Resource[NoParams, []Bucket] { return r.buckets }

// Config returns the retention configuration resource.
func (r *Registry) Config() *Resource[NoParams, RetentionConfig] { return r.config }

// Jobs returns the ingestion job resource.
func (r *Registry) Jobs() *Resource[NoParams, []Job] { return r.jobs }

// Packages returns the package resource.
func (r *Registry) Packages() *Resource[NoParams, []Package] { return r.packages }

// Sources returns the edge client resource.
func (r *Registry) Sources() *Resource[NoParams, []Source] { return r.sources }

// Status returns the component status resource.
func (r *Registry) Status() *Resource[NoParams, ComponentStatus] { return r.status }

// Projections returns the projection resource.
func (r *Registry) Projections() *Resource[ProjectionQuery, Projection] { return r.projections }

// Toasts returns the notification queue.
func (r *Registry) Toasts() *toast.Queue { return r.toasts }

// BaseURL returns the configured catcher base URL.
func (r *Registry) BaseURL() string { return r.baseURL }

// Port returns the port [Registry.Serve] listens on.
func (r *Registry) Port() int { return r.port }

// RefreshInterval returns the default interval between refreshes in [Registry.Serve].
func (r *Registry) RefreshInterval() time.Duration { return r.refreshInterval }

// OrderPolicy returns the policy for overlapping refreshes.
func (r *Registry) OrderPolicy() OrderPolicy { return r.policy }

// ProjectionQuery returns the query the next projections refresh will use:
// the configured default, adjusted for demo mode from the current config.
func (r *Registry) ProjectionQuery() ProjectionQuery {
	return ProjectionQueryFor(r.config.Data(), r.projection)
}

// RefreshProjections refreshes the projections with [Registry.ProjectionQuery].
func (r *Registry) RefreshProjections(ctx context.Context) State[Projection] {
	return r.projections.RefreshWith(ctx, r.ProjectionQuery())
}

// RefreshAll refreshes every resource and waits until all have settled. The
// parameterless resources run concurrently; projections follow once the
// config has settled, so the demo-mode horizon is known. Cancelling ctx does
// not abort reads already issued.
func (r *Registry) RefreshAll(ctx context.Context) {
	done := []<-chan struct{}{
		r.status.Begin(ctx, NoParams{}),
		r.buckets.Begin(ctx, NoParams{}),
		r.sources.Begin(ctx, NoParams{}),
		r.packages.Begin(ctx, NoParams{}),
		r.jobs.Begin(ctx, NoParams{}),
		r.config.Begin(ctx, NoParams{}),
	}
	for _, ch := range done {
		<-ch
	}
	r.RefreshProjections(ctx)
}

// Close stops the toast timers and releases idle connections. The registry
// must not be refreshed afterwards.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.toasts.Close()
		r.client.Close()
	})
}

// Serve refreshes every resource periodically and serves the state API
// until ctx is cancelled.
//
// All resources are refreshed immediately, then at the configured interval
// (per-resource overrides via [WithResourceInterval]). The API listens on
// the configured port.
//
// Returns nil on graceful shutdown, or an error if the server cannot start.
func (r *Registry) Serve(ctx context.Context) error {
	r.logger.Info("edgedash starting", "catcher_url", r.baseURL, "order_policy", r.policy.String())
	r.logger.Info("refresh configured", "interval", r.refreshInterval.String())
	r.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", r.port))

	if ctx.Err() != nil {
		return nil
	}

	scheduler := refresher.New(r.targets(), r.refreshInterval, r.maxConcurrency,
		refresher.WithClock(r.clock),
		refresher.WithLogger(r.logger),
	)
	scheduler.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range scheduler.Results() {
			logAttrs := []any{
				"resource", result.Target,
				"duration_ms", result.Duration.Milliseconds(),
			}
			if result.Err != nil {
				r.logger.Debug("scheduled refresh failed", append(logAttrs, "error", result.Err.Error())...)
			} else {
				r.logger.Debug("scheduled refresh completed", logAttrs...)
			}
		}
	}()

	cleanup := func() {
		scheduler.Stop()
		wg.Wait()
	}

	serverOpts := []server.Option{
		server.WithToasts(r.toasts),
		server.WithRefresh(r.RefreshAll),
	}
	if h := r.metricsHandler(); h != nil {
		serverOpts = append(serverOpts, server.WithMetrics(h))
	}
	httpServer := server.NewServer(r.hub, r.port, r.logger, serverOpts...)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	r.logger.Info("edgedash stopped")
	return nil
}

func (r *Registry) metricsHandler() http.Handler {
	if r.promRegistry == nil {
		return nil
	}
	return metrics.HTTPHandler(r.promRegistry)
}

// targets builds one scheduler target per resource.
func (r *Registry) targets() []refresher.Target {
	return []refresher.Target{
		target(r.status, r.resourceIntervals[StatusResource]),
		target(r.buckets, r.resourceIntervals[BucketsResource]),
		target(r.sources, r.resourceIntervals[SourcesResource]),
		target(r.packages, r.resourceIntervals[PackagesResource]),
		target(r.jobs, r.resourceIntervals[JobsResource]),
		target(r.config, r.resourceIntervals[ConfigResource]),
		{
			Name:     ProjectionsResource,
			Interval: r.resourceIntervals[ProjectionsResource],
			Refresh: func(ctx context.Context) error {
				return r.RefreshProjections(ctx).Err
			},
		},
	}
}

func target[T any](res *Resource[NoParams, T], interval time.Duration) refresher.Target {
	return refresher.Target{
		Name:     res.Name(),
		Interval: interval,
		Refresh: func(ctx context.Context) error {
			return res.Refresh(ctx).Err
		},
	}
}

// onRefresh runs after every completed fetch of any resource.
func (r *Registry) onRefresh(result RefreshResult) {
	if r.failureToasts && !result.Stale {
		switch {
		case result.Phase == PhaseFailure && result.Previous != PhaseFailure:
			r.toasts.Error(fmt.Sprintf("%s: %s", result.Resource, result.Err))
		case result.Phase == PhaseSuccess && result.Previous == PhaseFailure:
			r.toasts.Info(fmt.Sprintf("%s: recovered", result.Resource))
		}
	}

	for _, cb := range r.callbacks {
		invokeCallbackSafe(cb, result, r.logger)
	}
}

// publishToasts mirrors the toast queue into the snapshot hub.
func (r *Registry) publishToasts(toasts []toast.Toast) {
	if toasts == nil {
		toasts = []toast.Toast{}
	}
	r.hub.Update(store.Snapshot{
		Name:      ToastsSnapshot,
		Phase:     PhaseSuccess.String(),
		Data:      toasts,
		UpdatedAt: r.clock.Now(),
	})
}

// invokeCallbackSafe calls a refresh callback with panic recovery.
func invokeCallbackSafe(cb func(RefreshResult), result RefreshResult, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("refresh callback panicked",
				"panic", rec,
				"resource", result.Resource,
			)
		}
	}()
	cb(result)
}
