package edgedash

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mowgli42/bookish-train/internal/mockcatcher"
	"github.com/mowgli42/bookish-train/toast"
)

// queryLog records the raw query of every request to a path.
type queryLog struct {
	mu      sync.Mutex
	queries map[string][]url.Values
}

func (l *queryLog) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		if l.queries == nil {
			l.queries = make(map[string][]url.Values)
		}
		l.queries[r.URL.Path] = append(l.queries[r.URL.Path], r.URL.Query())
		l.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (l *queryLog) last(path string) url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queries[path]
	if len(q) == 0 {
		return nil
	}
	return q[len(q)-1]
}

type catcherEnv struct {
	catcher *mockcatcher.Catcher
	log     *queryLog
	srv     *httptest.Server
}

func newCatcherEnv(t *testing.T, opts ...mockcatcher.Option) *catcherEnv {
	t.Helper()
	opts = append([]mockcatcher.Option{mockcatcher.WithLogger(testLogger())}, opts...)
	env := &catcherEnv{
		catcher: mockcatcher.New(mockcatcher.DefaultFixture(), opts...),
		log:     &queryLog{},
	}
	env.srv = httptest.NewServer(env.log.wrap(env.catcher.Handler()))
	t.Cleanup(env.srv.Close)
	return env
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	r := newTestRegistry(t)

	assert.Equal(t, DefaultBaseURL, r.BaseURL())
	assert.Equal(t, defaultPort, r.Port())
	assert.Equal(t, defaultRefreshInterval, r.RefreshInterval())
	assert.Equal(t, OrderLatestIssued, r.OrderPolicy())
	assert.Equal(t, ProjectionQuery{Days: DefaultProjectionDays}, r.ProjectionQuery())

	assert.Equal(t, PhaseIdle, r.Buckets().Phase())
	assert.Equal(t, []Bucket{}, r.Buckets().Data())
	assert.Equal(t, EmptyConfig(), r.Config().Data())
	assert.Equal(t, []Job{}, r.Jobs().Data())
	assert.Equal(t, []Package{}, r.Packages().Data())
	assert.Equal(t, []Source{}, r.Sources().Data())
	assert.Nil(t, r.Status().Data())
	assert.Equal(t, Projection{Days: DefaultProjectionDays, Transitions: []Transition{}}, r.Projections().Data())
	assert.Empty(t, r.Toasts().Toasts())
}

func TestNew_BaseURLFromEnv(t *testing.T) {
	t.Setenv(BaseURLEnv, "http://catcher.local:9000")
	r := newTestRegistry(t)
	assert.Equal(t, "http://catcher.local:9000", r.BaseURL())

	r = newTestRegistry(t, WithBaseURL("http://other:8000"))
	assert.Equal(t, "http://other:8000", r.BaseURL())
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(WithBaseURL("ftp://catcher"), WithLogger(testLogger()))
	assert.ErrorContains(t, err, "scheme")
}

func TestNew_Isolated(t *testing.T) {
	a := newTestRegistry(t, WithFetcher(staticFetcher(`[{"job_id":"job-1"}]`, nil)))
	b := newTestRegistry(t, WithFetcher(staticFetcher(`[]`, nil)))

	a.Jobs().Refresh(context.Background())

	assert.Len(t, a.Jobs().Data(), 1)
	assert.Equal(t, PhaseIdle, b.Jobs().Phase())
	assert.Empty(t, b.Jobs().Data())
}

func TestResourceNames(t *testing.T) {
	names := ResourceNames()
	assert.Equal(t, []string{"status", "buckets", "sources", "packages", "jobs", "config", "projections"}, names)

	names[0] = "mutated"
	assert.Equal(t, StatusResource, ResourceNames()[0])
}

func TestRegistry_RefreshAll(t *testing.T) {
	env := newCatcherEnv(t)
	r := newTestRegistry(t, WithBaseURL(env.srv.URL))

	r.RefreshAll(context.Background())

	for _, name := range ResourceNames() {
		snap, ok := r.hub.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, PhaseSuccess.String(), snap.Phase, name)
		assert.Nil(t, snap.Error, name)
	}

	assert.Len(t, r.Jobs().Data(), 3)
	assert.Len(t, r.Packages().Data(), 3)
	assert.Len(t, r.Sources().Data(), 2)
	assert.Len(t, r.Buckets().Data(), 4)
	assert.Contains(t, r.Config().Data().RuleSets, "user_data")
	assert.Equal(t, "days", r.Config().Data().Unit)

	summary, err := r.Status().Data().Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Components.Catcher.JobsCount)

	proj := r.Projections().Data()
	assert.Equal(t, DefaultProjectionDays, proj.Days)
	require.Len(t, proj.Transitions, 1)
	assert.Equal(t, "warm", proj.Transitions[0].BucketTo)
	assert.Equal(t, url.Values{"days": {"5"}}, env.log.last(ProjectionsPath))
}

func TestRegistry_DemoModeProjections(t *testing.T) {
	env := newCatcherEnv(t, mockcatcher.WithDemoMode(true))
	r := newTestRegistry(t, WithBaseURL(env.srv.URL))

	r.RefreshAll(context.Background())

	require.True(t, r.Config().Data().DemoMode)
	assert.Equal(t, ProjectionQuery{Days: 5, Seconds: intPtr(DemoProjectionSeconds)}, r.ProjectionQuery())
	assert.Equal(t, url.Values{"days": {"5"}, "seconds": {"10"}}, env.log.last(ProjectionsPath))
}

func TestRegistry_RefreshAllSurvivesCallerCancel(t *testing.T) {
	env := newCatcherEnv(t, mockcatcher.WithLatency(50*time.Millisecond))
	r := newTestRegistry(t, WithBaseURL(env.srv.URL))

	r.RefreshAll(context.Background())
	require.Len(t, r.Jobs().Data(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	r.RefreshAll(ctx)

	require.Error(t, ctx.Err())
	for _, name := range ResourceNames() {
		snap, ok := r.hub.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, PhaseSuccess.String(), snap.Phase, name)
		assert.Nil(t, snap.Error, name)
	}
	assert.Len(t, r.Jobs().Data(), 3)
	assert.Len(t, r.Buckets().Data(), 4)
}

func TestRegistry_FailureIsolatedPerResource(t *testing.T) {
	env := newCatcherEnv(t)
	env.catcher.Fail(mockcatcher.JobsPath, http.StatusServiceUnavailable)
	env.catcher.Corrupt(mockcatcher.BucketsPath)
	r := newTestRegistry(t, WithBaseURL(env.srv.URL))

	r.RefreshAll(context.Background())

	assert.Equal(t, PhaseFailure, r.Jobs().Phase())
	assert.Equal(t, "Service Unavailable", r.Jobs().ErrorMessage())
	assert.Equal(t, StatusFailure, KindOf(r.Jobs().State().Err))
	assert.Equal(t, []Job{}, r.Jobs().Data())

	assert.Equal(t, PhaseFailure, r.Buckets().Phase())
	assert.Equal(t, ParseFailure, KindOf(r.Buckets().State().Err))
	assert.Equal(t, []Bucket{}, r.Buckets().Data())

	assert.Equal(t, PhaseSuccess, r.Packages().Phase())
	assert.Equal(t, PhaseSuccess, r.Sources().Phase())
	assert.Equal(t, PhaseSuccess, r.Projections().Phase())
}

func TestRegistry_TransportFailure(t *testing.T) {
	env := newCatcherEnv(t)
	base := env.srv.URL
	env.srv.Close()

	r := newTestRegistry(t, WithBaseURL(base), WithTimeout(time.Second))
	st := r.Status().Refresh(context.Background())

	assert.Equal(t, PhaseFailure, st.Phase)
	assert.Equal(t, TransportFailure, KindOf(st.Err))
	assert.NotEmpty(t, st.ErrorMessage())
	assert.Nil(t, st.Data)
}

func TestRegistry_FailureToasts(t *testing.T) {
	env := newCatcherEnv(t)
	env.catcher.Fail(mockcatcher.JobsPath, http.StatusServiceUnavailable)
	clock := clockwork.NewFakeClock()
	r := newTestRegistry(t, WithBaseURL(env.srv.URL), WithClock(clock), WithFailureToasts())

	r.RefreshAll(context.Background())
	toasts := r.Toasts().Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "jobs: Service Unavailable", toasts[0].Message)
	assert.Equal(t, toast.CategoryError, toasts[0].Category)

	r.RefreshAll(context.Background())
	assert.Len(t, r.Toasts().Toasts(), 1, "a resource that stays failed must not toast again")

	env.catcher.Recover(mockcatcher.JobsPath)
	r.Jobs().Refresh(context.Background())
	toasts = r.Toasts().Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "jobs: recovered", toasts[1].Message)
	assert.Equal(t, toast.CategoryInfo, toasts[1].Category)

	clock.Advance(toast.DefaultTTL)
	assert.Eventually(t, func() bool { return r.Toasts().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRegistry_NoFailureToastsByDefault(t *testing.T) {
	r := newTestRegistry(t, WithFetcher(staticFetcher("", statusError(500, "Internal Server Error"))))
	r.RefreshAll(context.Background())
	assert.Empty(t, r.Toasts().Toasts())
}

func TestRegistry_RefreshCallbacks(t *testing.T) {
	var (
		mu      sync.Mutex
		results = make(map[string]RefreshResult)
	)
	r := newTestRegistry(t,
		WithFetcher(staticFetcher(`[]`, nil)),
		WithRefreshCallback(func(RefreshResult) { panic("boom") }),
		WithRefreshCallback(func(res RefreshResult) {
			mu.Lock()
			defer mu.Unlock()
			results[res.Resource] = res
		}),
		WithRefreshCallback(nil),
	)

	r.RefreshAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, len(ResourceNames()), "later callbacks run after one panics")

	assert.Equal(t, PhaseSuccess, results[JobsResource].Phase)
	assert.Equal(t, PhaseIdle, results[JobsResource].Previous)
	// `[]` is not an object, so the object-shaped resources fail to parse
	assert.Equal(t, PhaseFailure, results[BucketsResource].Phase)
	assert.Equal(t, ParseFailure, KindOf(results[BucketsResource].Err))
}

func TestRegistry_ToastsSnapshot(t *testing.T) {
	r := newTestRegistry(t, WithFetcher(staticFetcher(`[]`, nil)), WithClock(clockwork.NewFakeClock()))

	snap, ok := r.hub.Get(ToastsSnapshot)
	require.True(t, ok)
	assert.Equal(t, []toast.Toast{}, snap.Data)

	id := r.Toasts().Success("rules updated")
	snap, _ = r.hub.Get(ToastsSnapshot)
	toasts, ok := snap.Data.([]toast.Toast)
	require.True(t, ok)
	require.Len(t, toasts, 1)
	assert.Equal(t, id, toasts[0].ID)

	r.Toasts().Dismiss(id)
	snap, _ = r.hub.Get(ToastsSnapshot)
	assert.Empty(t, snap.Data)

	assert.Len(t, r.hub.GetAll(), len(ResourceNames())+1)
}

func TestRegistry_Prometheus(t *testing.T) {
	env := newCatcherEnv(t)
	env.catcher.Fail(mockcatcher.StatusPath, http.StatusInternalServerError)
	reg := prometheus.NewRegistry()
	r := newTestRegistry(t, WithBaseURL(env.srv.URL), WithPrometheus(reg), WithClock(clockwork.NewFakeClock()))

	r.RefreshAll(context.Background())
	r.Toasts().Info("hello")

	count, err := testutil.GatherAndCount(reg, "edgedash_refresh_results_total")
	require.NoError(t, err)
	assert.Equal(t, len(ResourceNames()), count)

	count, err = testutil.GatherAndCount(reg, "edgedash_refresh_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "edgedash_toasts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistry_CloseIdempotent(t *testing.T) {
	r, err := New(WithFetcher(staticFetcher(`[]`, nil)), WithLogger(testLogger()))
	require.NoError(t, err)
	r.Close()
	r.Close()
}

func TestRegistry_ServeCancelledContext(t *testing.T) {
	r := newTestRegistry(t, WithFetcher(staticFetcher(`[]`, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, r.Serve(ctx))
	assert.Equal(t, PhaseIdle, r.Jobs().Phase())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRegistry_Serve(t *testing.T) {
	env := newCatcherEnv(t)
	port := freePort(t)
	r := newTestRegistry(t,
		WithBaseURL(env.srv.URL),
		WithPort(port),
		WithRefreshInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return r.Jobs().Phase() == PhaseSuccess && r.Projections().Phase() == PhaseSuccess
	}, 2*time.Second, 20*time.Millisecond, "initial refresh runs immediately")

	resp, err := http.Get(base + "/api/state/jobs")
	require.NoError(t, err)
	var snap struct {
		Name  string `json:"name"`
		Phase string `json:"phase"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, JobsResource, snap.Name)
	assert.Equal(t, "success", snap.Phase)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRegistry_ServePortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	r := newTestRegistry(t,
		WithFetcher(staticFetcher(`[]`, nil)),
		WithPort(ln.Addr().(*net.TCPAddr).Port),
	)
	err = r.Serve(context.Background())
	assert.ErrorContains(t, err, "failed to start HTTP server")
}
