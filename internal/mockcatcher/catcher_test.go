package mockcatcher

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCatcher(t *testing.T, opts ...Option) (*Catcher, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	k := New(DefaultFixture(), opts...)
	srv := httptest.NewServer(k.Handler())
	t.Cleanup(srv.Close)
	return k, srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCatcher_Health(t *testing.T) {
	_, srv := newTestCatcher(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+HealthPath, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCatcher_FixtureEndpoints(t *testing.T) {
	_, srv := newTestCatcher(t)

	var jobs []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath, &jobs))
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-1", jobs[0]["job_id"])
	assert.Equal(t, "completed", jobs[0]["status"])
	assert.Equal(t, float64(100), jobs[0]["progress_percent"])

	var sources []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+SourcesPath, &sources))
	require.Len(t, sources, 2)
	assert.Equal(t, "Warehouse NAS", sources[0]["label"])
	assert.Nil(t, sources[1]["label"])

	var buckets struct {
		Buckets []bucketView `json:"buckets"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+BucketsPath, &buckets))
	assert.Equal(t, []bucketView{
		{Name: "hot", Count: 1, TotalBytes: 1200},
		{Name: "warm", Count: 1, TotalBytes: 5120},
		{Name: "cold", Count: 1, TotalBytes: 1 << 20},
		{Name: "offsite"},
	}, buckets.Buckets)

	var config map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+ConfigPath, &config))
	assert.Nil(t, config["retention"])
	assert.Equal(t, "days", config["unit"])
	assert.Contains(t, config["rule_sets"], "audit_logs")
}

func TestCatcher_PackagesAge(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	_, srv := newTestCatcher(t, WithClock(clock))
	clock.Advance(90 * time.Second)

	var pkgs []packageView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+PackagesPath, &pkgs))
	require.Len(t, pkgs, 3)

	assert.Equal(t, "docs/readme.md", pkgs[0].Path)
	assert.Equal(t, "hot", pkgs[0].Bucket)
	assert.Equal(t, "user_data", pkgs[0].PackageType)
	assert.Equal(t, int64(1), pkgs[0].AgeDays)
	assert.Equal(t, int64(24*3600+90), pkgs[0].AgeSeconds)
	assert.Equal(t, "2026-02-28T12:00:00Z", pkgs[0].CreatedAt)
}

func TestCatcher_Status(t *testing.T) {
	k, srv := newTestCatcher(t)
	require.True(t, k.Expire("job-2"))
	assert.False(t, k.Expire("job-2"))

	var status struct {
		Components struct {
			Client       map[string]string `json:"client"`
			Catcher      map[string]int    `json:"catcher"`
			Buckets      map[string]int64  `json:"buckets"`
			DeletedCount int64             `json:"deleted_count"`
		} `json:"components"`
		DemoMode bool `json:"demo_mode"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+StatusPath, &status))
	assert.Equal(t, "ok", status.Components.Client["status"])
	assert.Equal(t, 2, status.Components.Catcher["jobs_count"])
	assert.Equal(t, map[string]int64{"hot": 1, "warm": 0, "cold": 1, "offsite": 0}, status.Components.Buckets)
	assert.Equal(t, int64(1), status.Components.DeletedCount)
	assert.False(t, status.DemoMode)
}

func TestCatcher_Ingest(t *testing.T) {
	_, srv := newTestCatcher(t)

	code, body := post(t, srv.URL+IngestPath, `{"source_id":"edge-03","path":"a.txt","size_bytes":10,"checksum":"ff","tier_hint":"warm"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "job-4", body["job_id"])

	var job map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath+"/job-4", &job))
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, "warm", job["tier"])

	var sources []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+SourcesPath, &sources))
	assert.Len(t, sources, 3, "ingest registers unknown sources")

	var filtered []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath+"?source_id=edge-03&status=pending", &filtered))
	assert.Len(t, filtered, 1)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+JobsPath+"/job-99", nil))
}

func TestCatcher_IngestAcceptsAnyObject(t *testing.T) {
	_, srv := newTestCatcher(t)

	code, body := post(t, srv.URL+IngestPath, `{"source_id":"edge-09","path":"big.bin","size_bytes":10,"tier_hint":"offsite"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "job-4", body["job_id"])

	var job map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath+"/job-4", &job))
	assert.Equal(t, "offsite", job["tier"])

	code, body = post(t, srv.URL+IngestPath, `{`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["detail"], "invalid JSON")
}

func TestCatcher_Advance(t *testing.T) {
	k, srv := newTestCatcher(t)

	steps := []struct{ id, status string }{
		{"job-3", "completed"},
		{"job-1", "expired"},
		{"job-2", "expired"},
		{"job-3", "expired"},
	}
	for _, want := range steps {
		id, status, ok := k.Advance()
		require.True(t, ok)
		assert.Equal(t, want.id, id)
		assert.Equal(t, want.status, status)
	}
	_, _, ok := k.Advance()
	assert.False(t, ok)

	var status struct {
		Components struct {
			DeletedCount int64 `json:"deleted_count"`
		} `json:"components"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+StatusPath, &status))
	assert.Equal(t, int64(3), status.Components.DeletedCount)
}

func TestCatcher_RegisterSource(t *testing.T) {
	_, srv := newTestCatcher(t)

	code, body := post(t, srv.URL+SourcesPath, `{"source_id":"edge-02","label":"Backup box"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Backup box", body["label"])
	assert.NotEmpty(t, body["last_seen_at"])

	var sources []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+SourcesPath, &sources))
	require.Len(t, sources, 2)
	assert.Equal(t, "Backup box", sources[1]["label"])
}

func TestCatcher_Projections(t *testing.T) {
	k, srv := newTestCatcher(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+ProjectionsPath+"?days=7", &body))
	assert.Equal(t, float64(7), body["days"])
	assert.NotContains(t, body, "seconds")
	transitions := body["transitions"].([]any)
	require.Len(t, transitions, 1)
	assert.Equal(t, "hot", transitions[0].(map[string]any)["bucket_from"])

	k.SetDemoMode(true)
	body = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+ProjectionsPath+"?days=5&seconds=10", &body))
	assert.Equal(t, float64(10), body["seconds"])

	var config map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+ConfigPath, &config))
	assert.Equal(t, true, config["demo_mode"])
	assert.Equal(t, "seconds", config["unit"])

	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+ProjectionsPath+"?days=x", nil))
}

func TestCatcher_Faults(t *testing.T) {
	k, srv := newTestCatcher(t)

	k.Fail(JobsPath, http.StatusServiceUnavailable)
	resp, err := http.Get(srv.URL + JobsPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	k.Corrupt(BucketsPath)
	resp, err = http.Get(srv.URL + BucketsPath)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var v any
	assert.Error(t, json.Unmarshal(raw, &v))

	k.Recover(JobsPath)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath, nil))

	k.RecoverAll()
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+BucketsPath, nil))

	assert.Equal(t, 2, k.Requests(JobsPath))
	assert.Equal(t, 2, k.Requests(BucketsPath))
	assert.Equal(t, 0, k.Requests(StatusPath))
}

func TestCatcher_AdvancePending(t *testing.T) {
	k, _ := newTestCatcher(t)
	require.True(t, k.SetJobStatus("job-1", "pending"))

	id, status, ok := k.Advance()
	require.True(t, ok)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "in_progress", status)
}

func TestCatcher_SetJobStatus(t *testing.T) {
	k, srv := newTestCatcher(t)

	require.True(t, k.SetJobStatus("job-3", "failed"))
	assert.False(t, k.SetJobStatus("job-42", "failed"))

	var job map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+JobsPath+"/job-3", &job))
	assert.Equal(t, "failed", job["status"])
	assert.Equal(t, float64(0), job["progress_percent"])
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
demo_mode: true
sources:
  - id: edge-a
    label: Lab
files:
  - source: edge-a
    path: x.bin
    tier: cold
    size_bytes: 42
    checksum: "00"
rule_sets:
  user_data:
    hot_seconds: 5
    cache_seconds: 3
transitions:
  - from: cold
    to: offsite
    jobs: [job-1]
`), 0o644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	assert.True(t, f.DemoMode)
	require.Len(t, f.Files, 1)
	assert.Equal(t, int64(42), f.Files[0].SizeBytes)
	require.NotNil(t, f.RuleSets["user_data"].CacheSeconds)
	assert.Equal(t, 3, *f.RuleSets["user_data"].CacheSeconds)

	_, err = ParseFixture([]byte("files:\n  - path: orphan\n"))
	assert.ErrorContains(t, err, "source and path are required")

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
