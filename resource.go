package edgedash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mowgli42/bookish-train/internal/metrics"
	"github.com/mowgli42/bookish-train/internal/store"
)

// Fetcher performs one GET against the catcher and returns the raw body of a
// 2xx response. Failures should be returned as [*FetchError] so their kind is
// preserved; any other error is treated as a [TransportFailure].
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, path string, query url.Values) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return f(ctx, path, query)
}

// Definition describes one remote resource: where it lives, how requests are
// parameterised and how a response body becomes state.
type Definition[P, T any] struct {
	// Name identifies the resource in logs, metrics and snapshots.
	Name string

	// Path is the endpoint path, e.g. "/api/v1/jobs".
	Path string

	// Query builds the query string for params. Nil means no query string.
	Query func(params P) url.Values

	// Extract maps a 2xx body to the stored value, applying the declared
	// defaults for absent fields. A returned error is a parse failure.
	Extract func(body []byte, params P) (T, error)

	// Empty returns the value stored before the first success and after
	// every failure. Nil means the zero value of T.
	Empty func(params P) T

	// Defaults are the params used by [Resource.Refresh].
	Defaults P
}

// State is a point-in-time view of a resource.
type State[T any] struct {
	// Data is the last successfully fetched value, or the empty default.
	Data T

	// Phase is the lifecycle phase.
	Phase Phase

	// Err is set only in [PhaseFailure]; it is a [*FetchError].
	Err error

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time
}

// Loading reports whether a fetch is in flight.
func (s State[T]) Loading() bool {
	return s.Phase == PhaseLoading
}

// ErrorMessage returns the failure description, or "" when there is none.
func (s State[T]) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// RefreshResult describes one completed fetch. It is delivered to completion
// callbacks after the state has been updated.
type RefreshResult struct {
	// Resource is the resource name.
	Resource string

	// Phase is the phase the fetch produced (success or failure).
	Phase Phase

	// Previous is the phase the previous applied fetch produced, or
	// [PhaseIdle] for the first one.
	Previous Phase

	// Err is the failure, nil on success.
	Err error

	// Latency is the time from issuing the request to its completion.
	Latency time.Duration

	// Stale is true when the response was discarded because a newer
	// refresh had been issued. Stale results did not change the state.
	Stale bool

	// CompletedAt is when the fetch completed.
	CompletedAt time.Time
}

// Recorder receives refresh metrics. The Prometheus recorder installed by
// [WithPrometheus] implements it.
type Recorder interface {
	ObserveRefresh(resource, outcome string, d time.Duration)
	IncFailureKind(resource, kind string)
}

// ResourceConfig holds the collaborators of a [Resource].
type ResourceConfig struct {
	// Fetcher performs the network read. Required.
	Fetcher Fetcher

	// Policy decides which of several overlapping responses is applied.
	Policy OrderPolicy

	// Clock stamps state changes and measures latency. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Recorder defaults to a no-op recorder.
	Recorder Recorder

	// OnComplete is called after every completed fetch, outside any lock.
	OnComplete func(RefreshResult)

	// hub receives a snapshot on every state change.
	hub store.Store
}

// Resource synchronises one piece of state with one read endpoint.
//
// A refresh moves the resource to [PhaseLoading] synchronously, performs the
// read on its own goroutine and then settles in [PhaseSuccess] or
// [PhaseFailure]. Refreshes never return errors and never panic; the failure
// is recorded in the state instead. Overlapping refreshes are not cancelled;
// which response is applied depends on the configured [OrderPolicy].
//
// Resource is safe for concurrent use.
type Resource[P, T any] struct {
	def Definition[P, T]
	cfg ResourceConfig

	mu       sync.Mutex
	state    State[T]
	settled  Phase
	issued   uint64
	inflight int
}

// NewResource creates a [Resource] in [PhaseIdle] holding the empty default
// for def.Defaults.
func NewResource[P, T any](def Definition[P, T], cfg ResourceConfig) (*Resource[P, T], error) {
	if def.Name == "" {
		return nil, errors.New("resource name cannot be empty")
	}
	if def.Path == "" {
		return nil, fmt.Errorf("resource %q: path cannot be empty", def.Name)
	}
	if def.Extract == nil {
		return nil, fmt.Errorf("resource %q: extract function is required", def.Name)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("resource %q: fetcher is required", def.Name)
	}
	if def.Empty == nil {
		def.Empty = func(P) T {
			var zero T
			return zero
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}

	r := &Resource[P, T]{
		def:     def,
		cfg:     cfg,
		settled: PhaseIdle,
		state: State[T]{
			Data:      def.Empty(def.Defaults),
			Phase:     PhaseIdle,
			UpdatedAt: cfg.Clock.Now(),
		},
	}

	r.mu.Lock()
	r.publishLocked()
	r.mu.Unlock()

	return r, nil
}

// Name returns the resource name.
func (r *Resource[P, T]) Name() string {
	return r.def.Name
}

// Path returns the endpoint path.
func (r *Resource[P, T]) Path() string {
	return r.def.Path
}

// Defaults returns the params used by [Resource.Refresh].
func (r *Resource[P, T]) Defaults() P {
	return r.def.Defaults
}

// Begin starts one refresh with params and returns a channel that is closed
// once the response has been applied or discarded.
//
// The transition to [PhaseLoading] happens before Begin returns. The previous
// data stays visible until the fetch completes.
//
// Cancelling ctx does not abort the read: once issued, a fetch runs until it
// answers or the transport timeout expires. Only ctx's values are used.
func (r *Resource[P, T]) Begin(ctx context.Context, params P) <-chan struct{} {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	token := r.begin()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx, token, params)
	}()
	return done
}

// RefreshWith refreshes with params, waits for completion and returns the
// resulting state. If a newer refresh is still in flight the returned state
// may still be loading.
func (r *Resource[P, T]) RefreshWith(ctx context.Context, params P) State[T] {
	<-r.Begin(ctx, params)
	return r.State()
}

// Refresh refreshes with the definition's default params.
func (r *Resource[P, T]) Refresh(ctx context.Context) State[T] {
	return r.RefreshWith(ctx, r.def.Defaults)
}

// State returns the current state.
func (r *Resource[P, T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Data returns the current data.
func (r *Resource[P, T]) Data() T {
	return r.State().Data
}

// Phase returns the current phase.
func (r *Resource[P, T]) Phase() Phase {
	return r.State().Phase
}

// Loading reports whether a fetch is in flight.
func (r *Resource[P, T]) Loading() bool {
	return r.State().Loading()
}

// ErrorMessage returns the current failure description, or "".
func (r *Resource[P, T]) ErrorMessage() string {
	return r.State().ErrorMessage()
}

// InFlight returns the number of fetches that have not completed yet.
func (r *Resource[P, T]) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight
}

// begin performs the synchronous part of a refresh and returns its token.
func (r *Resource[P, T]) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.issued++
	r.inflight++
	r.state.Phase = PhaseLoading
	r.state.Err = nil
	r.state.UpdatedAt = r.cfg.Clock.Now()
	r.publishLocked()

	return r.issued
}

func (r *Resource[P, T]) run(ctx context.Context, token uint64, params P) {
	start := r.cfg.Clock.Now()
	data, err := r.fetch(ctx, params)
	r.complete(token, params, data, err, r.cfg.Clock.Since(start))
}

// fetch performs the read and extraction, converting panics into parse failures.
func (r *Resource[P, T]) fetch(ctx context.Context, params P) (data T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			r.cfg.Logger.Error("refresh panic",
				"resource", r.def.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)

			var zero T
			data = zero
			err = &FetchError{
				Kind:     ParseFailure,
				Resource: r.def.Name,
				Message:  fmt.Sprintf("refresh panic (correlation_id: %s)", correlationID),
			}
		}
	}()

	var query url.Values
	if r.def.Query != nil {
		query = r.def.Query(params)
	}

	body, err := r.cfg.Fetcher.Fetch(ctx, r.def.Path, query)
	if err != nil {
		return data, classify(r.def.Name, err)
	}

	data, err = r.def.Extract(body, params)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = parseError(err)
		}
		return data, classify(r.def.Name, err)
	}
	return data, nil
}

// complete applies or discards the outcome of the fetch identified by token.
func (r *Resource[P, T]) complete(token uint64, params P, data T, err error, latency time.Duration) {
	var empty T
	if err != nil {
		empty = r.emptyFor(params)
	}

	r.mu.Lock()
	r.inflight--
	now := r.cfg.Clock.Now()

	if r.cfg.Policy == OrderLatestIssued && token != r.issued {
		previous := r.settled
		r.mu.Unlock()

		r.cfg.Logger.Debug("discarding stale response",
			"resource", r.def.Name,
			"token", token,
			"latency_ms", latency.Milliseconds(),
		)
		r.cfg.Recorder.ObserveRefresh(r.def.Name, metrics.OutcomeStale, latency)
		r.notify(RefreshResult{
			Resource:    r.def.Name,
			Phase:       PhaseLoading,
			Previous:    previous,
			Err:         err,
			Latency:     latency,
			Stale:       true,
			CompletedAt: now,
		})
		return
	}

	if err != nil {
		r.state = State[T]{Data: empty, Phase: PhaseFailure, Err: err, UpdatedAt: now}
	} else {
		r.state = State[T]{Data: data, Phase: PhaseSuccess, UpdatedAt: now}
	}
	previous := r.settled
	r.settled = r.state.Phase
	phase := r.state.Phase
	r.publishLocked()
	r.mu.Unlock()

	logAttrs := []any{
		"resource", r.def.Name,
		"phase", phase.String(),
		"latency_ms", latency.Milliseconds(),
	}
	if err != nil {
		kind := KindOf(err).String()
		logAttrs = append(logAttrs, "kind", kind, "error", err.Error())
		var fe *FetchError
		if errors.As(err, &fe) && fe.Err != nil && fe.Err.Error() != err.Error() {
			logAttrs = append(logAttrs, "cause", fe.Err.Error())
		}
		r.cfg.Logger.Warn("refresh failed", logAttrs...)
		r.cfg.Recorder.ObserveRefresh(r.def.Name, metrics.OutcomeFailure, latency)
		r.cfg.Recorder.IncFailureKind(r.def.Name, kind)
	} else {
		r.cfg.Logger.Debug("refresh completed", logAttrs...)
		r.cfg.Recorder.ObserveRefresh(r.def.Name, metrics.OutcomeSuccess, latency)
	}

	r.notify(RefreshResult{
		Resource:    r.def.Name,
		Phase:       phase,
		Previous:    previous,
		Err:         err,
		Latency:     latency,
		CompletedAt: now,
	})
}

// emptyFor returns the definition's empty value for params. A panicking
// Empty yields the zero value.
func (r *Resource[P, T]) emptyFor(params P) (empty T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Error("empty default panicked",
				"resource", r.def.Name,
				"panic", fmt.Sprintf("%v", rec),
			)
			var zero T
			empty = zero
		}
	}()
	return r.def.Empty(params)
}

// notify invokes the completion callback with panic recovery.
func (r *Resource[P, T]) notify(result RefreshResult) {
	if r.cfg.OnComplete == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Error("refresh callback panicked",
				"panic", rec,
				"resource", result.Resource,
			)
		}
	}()
	r.cfg.OnComplete(result)
}

// publishLocked pushes the current state to the hub. Caller must hold r.mu,
// which keeps snapshots in transition order.
func (r *Resource[P, T]) publishLocked() {
	if r.cfg.hub == nil {
		return
	}
	var errMsg *string
	if r.state.Err != nil {
		s := r.state.Err.Error()
		errMsg = &s
	}
	r.cfg.hub.Update(store.Snapshot{
		Name:      r.def.Name,
		Phase:     r.state.Phase.String(),
		Loading:   r.state.Loading(),
		Error:     errMsg,
		Data:      r.state.Data,
		UpdatedAt: r.state.UpdatedAt,
	})
}
