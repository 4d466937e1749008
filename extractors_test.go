package edgedash

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestConfigDefinition(t *testing.T) {
	tests := []struct {
		name string
		body string
		want RetentionConfig
	}{
		{
			name: "legacy shape with null retention",
			body: `{"retention": null}`,
			want: RetentionConfig{Retention: nil, RuleSets: map[string]RuleSet{}, DemoMode: false, Unit: "days"},
		},
		{
			name: "empty object",
			body: `{}`,
			want: EmptyConfig(),
		},
		{
			name: "legacy shape with retention",
			body: `{"retention": {"hot_days": 7}}`,
			want: RetentionConfig{
				Retention: map[string]any{"hot_days": float64(7)},
				RuleSets:  map[string]RuleSet{},
				Unit:      "days",
			},
		},
		{
			name: "full shape",
			body: `{
				"retention": null,
				"rule_sets": {"user_data": {"hot_seconds": 5, "warm_seconds": 10, "replicate_to_all": true, "cache_seconds": 30}},
				"demo_mode": true,
				"unit": "seconds"
			}`,
			want: RetentionConfig{
				RuleSets: map[string]RuleSet{
					"user_data": {HotSeconds: 5, WarmSeconds: 10, ReplicateToAll: true, CacheSeconds: intPtr(30)},
				},
				DemoMode: true,
				Unit:     "seconds",
			},
		},
		{
			name: "null rule sets and empty unit fall back",
			body: `{"rule_sets": null, "unit": ""}`,
			want: EmptyConfig(),
		},
	}

	def := ConfigDefinition()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := def.Extract([]byte(tt.body), NoParams{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigResource_RetentionNullExample(t *testing.T) {
	r, err := NewResource(ConfigDefinition(), ResourceConfig{
		Fetcher: staticFetcher(`{"retention": null}`, nil),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	st := r.Refresh(context.Background())
	require.Equal(t, PhaseSuccess, st.Phase)
	assert.Nil(t, st.Data.Retention)
	assert.Equal(t, map[string]RuleSet{}, st.Data.RuleSets)
	assert.False(t, st.Data.DemoMode)
	assert.Equal(t, "days", st.Data.Unit)
}

func TestConfigResource_FailureResetsToDefaults(t *testing.T) {
	r, err := NewResource(ConfigDefinition(), ResourceConfig{
		Fetcher: staticFetcher("", statusError(500, "Internal Server Error")),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	st := r.Refresh(context.Background())
	assert.Equal(t, PhaseFailure, st.Phase)
	assert.Equal(t, EmptyConfig(), st.Data)
}

func TestProjectionQuery_Values(t *testing.T) {
	assert.Equal(t, url.Values{"days": {"5"}}, ProjectionQuery{Days: 5}.Values())
	assert.Equal(t, url.Values{"days": {"5"}, "seconds": {"10"}}, ProjectionQuery{Days: 5, Seconds: intPtr(10)}.Values())

	_, hasSeconds := ProjectionQuery{Days: 3}.Values()["seconds"]
	assert.False(t, hasSeconds, "absent seconds must be omitted, not sent empty")
}

func TestProjectionQueryFor(t *testing.T) {
	base := ProjectionQuery{Days: 5}

	assert.Equal(t, base, ProjectionQueryFor(EmptyConfig(), base))

	demo := EmptyConfig()
	demo.DemoMode = true
	assert.Equal(t, ProjectionQuery{Days: 5, Seconds: intPtr(DemoProjectionSeconds)}, ProjectionQueryFor(demo, base))

	explicit := ProjectionQuery{Days: 2, Seconds: intPtr(30)}
	assert.Equal(t, explicit, ProjectionQueryFor(demo, explicit))

	assert.Equal(t, DefaultProjectionDays, ProjectionQueryFor(EmptyConfig(), ProjectionQuery{}).Days)
}

func TestProjectionsResource(t *testing.T) {
	tests := []struct {
		name      string
		query     ProjectionQuery
		body      string
		wantQuery url.Values
		want      Projection
	}{
		{
			name:      "days falls back to requested value",
			query:     ProjectionQuery{Days: 5},
			body:      `{"transitions": [{"id":"t1"}]}`,
			wantQuery: url.Values{"days": {"5"}},
			want:      Projection{Days: 5, Transitions: []Transition{{ID: "t1"}}},
		},
		{
			name:      "days echoed by catcher",
			query:     ProjectionQuery{Days: 5, Seconds: intPtr(10)},
			body:      `{"days": 7, "transitions": [{"id":"t1","bucket_from":"hot","bucket_to":"warm","count":2,"jobs":["job-1","job-2"]}]}`,
			wantQuery: url.Values{"days": {"5"}, "seconds": {"10"}},
			want: Projection{Days: 7, Transitions: []Transition{
				{ID: "t1", BucketFrom: "hot", BucketTo: "warm", Count: 2, Jobs: []any{"job-1", "job-2"}},
			}},
		},
		{
			name:      "missing transitions",
			query:     ProjectionQuery{Days: 3},
			body:      `{}`,
			wantQuery: url.Values{"days": {"3"}},
			want:      Projection{Days: 3, Transitions: []Transition{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatedFetcher()
			r, err := NewResource(ProjectionsDefinition(ProjectionQuery{}), ResourceConfig{Fetcher: f, Logger: testLogger()})
			require.NoError(t, err)

			done := r.Begin(context.Background(), tt.query)
			call := f.next(t)
			assert.Equal(t, ProjectionsPath, call.path)
			assert.Equal(t, tt.wantQuery, call.query)
			call.respond(tt.body)
			wait(t, done)

			st := r.State()
			require.Equal(t, PhaseSuccess, st.Phase)
			assert.Equal(t, tt.want, st.Data)
		})
	}
}

func TestProjectionsResource_FailureKeepsRequestedDays(t *testing.T) {
	r, err := NewResource(ProjectionsDefinition(ProjectionQuery{Days: 5}), ResourceConfig{
		Fetcher: staticFetcher("", statusError(502, "Bad Gateway")),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	st := r.RefreshWith(context.Background(), ProjectionQuery{Days: 9})
	assert.Equal(t, PhaseFailure, st.Phase)
	assert.Equal(t, Projection{Days: 9, Transitions: []Transition{}}, st.Data)
}

func TestProjectionsDefinition_Defaults(t *testing.T) {
	def := ProjectionsDefinition(ProjectionQuery{})
	assert.Equal(t, DefaultProjectionDays, def.Defaults.Days)
	assert.Nil(t, def.Defaults.Seconds)
	assert.Equal(t, Projection{Days: DefaultProjectionDays, Transitions: []Transition{}}, def.Empty(def.Defaults))
}

func TestBucketsDefinition(t *testing.T) {
	def := BucketsDefinition()

	got, err := def.Extract([]byte(`{"buckets": [{"name":"hot","count":3,"total_bytes":2048}]}`), NoParams{})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Name: "hot", Count: 3, TotalBytes: 2048}}, got)

	got, err = def.Extract([]byte(`{"buckets": null}`), NoParams{})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{}, got)

	got, err = def.Extract([]byte(`{}`), NoParams{})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{}, got)

	_, err = def.Extract([]byte(`[]`), NoParams{})
	assert.Error(t, err)
}

func TestListDefinitions(t *testing.T) {
	jobs, err := JobsDefinition().Extract([]byte(`null`), NoParams{})
	require.NoError(t, err)
	assert.Equal(t, []Job{}, jobs)

	pkgs, err := PackagesDefinition().Extract([]byte(`[
		{"path":"/data/a.txt","source_id":"edge-1","package_type":"user_data","bucket":"warm",
		 "status":"in_progress","age_days":2,"age_seconds":172800,"progress_percent":40,
		 "size_bytes":1024,"checksum":"abc","created_at":"2026-01-01T00:00:00Z"}
	]`), NoParams{})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "warm", pkgs[0].Bucket)
	require.NotNil(t, pkgs[0].AgeSeconds)
	assert.Equal(t, int64(172800), *pkgs[0].AgeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", pkgs[0].LastActivity())

	sources, err := SourcesDefinition().Extract([]byte(`[{"source_id":"edge-1","label":null,"last_seen_at":"2026-01-01T00:00:00Z"}]`), NoParams{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Nil(t, sources[0].Label)
	require.NotNil(t, sources[0].LastSeenAt)

	_, err = JobsDefinition().Extract([]byte(`{"jobs": []}`), NoParams{})
	assert.Error(t, err, "jobs are a bare array")
}

func TestStatusDefinition(t *testing.T) {
	def := StatusDefinition()
	assert.Nil(t, def.Empty(NoParams{}))

	got, err := def.Extract([]byte(`{"components": {"catcher": {"jobs_count": 4}}, "demo_mode": true}`), NoParams{})
	require.NoError(t, err)
	assert.True(t, got.DemoMode())

	summary, err := got.Summary()
	require.NoError(t, err)
	assert.True(t, summary.DemoMode)
	assert.Equal(t, int64(4), summary.Components.Catcher.JobsCount)
}

func TestStatusResource_FailureIsNil(t *testing.T) {
	r, err := NewResource(StatusDefinition(), ResourceConfig{
		Fetcher: staticFetcher("", statusError(503, "Service Unavailable")),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	st := r.Refresh(context.Background())
	assert.Equal(t, PhaseFailure, st.Phase)
	assert.Nil(t, st.Data)
	assert.Equal(t, "Service Unavailable", st.ErrorMessage())
}

func TestComponentStatus_Summary(t *testing.T) {
	status := ComponentStatus{
		"components": map[string]any{
			"client":        map[string]any{"status": "ok"},
			"catcher":       map[string]any{"jobs_count": "12"},
			"buckets":       map[string]any{"hot": 1, "warm": 2, "cold": 3, "offsite": 4},
			"deleted_count": float64(5),
		},
	}

	got, err := status.Summary()
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Components.Client.Status)
	assert.Equal(t, int64(12), got.Components.Catcher.JobsCount)
	assert.Equal(t, BucketCounts{Hot: 1, Warm: 2, Cold: 3, Offsite: 4}, got.Components.Buckets)
	assert.Equal(t, int64(5), got.Components.DeletedCount)

	var empty ComponentStatus
	got, err = empty.Summary()
	require.NoError(t, err)
	assert.Equal(t, StatusSummary{}, got)

	_, err = ComponentStatus{"components": map[string]any{"client": "offline"}}.Summary()
	assert.Error(t, err)
}

func TestExtractors_LenientNumbers(t *testing.T) {
	pkgs, err := PackagesDefinition().Extract([]byte(`[
		{"path":"a","age_days":"3","age_seconds":12.5,"size_bytes":1.5e3,"progress_percent":"40"}
	]`), NoParams{})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, int64(3), pkgs[0].AgeDays)
	require.NotNil(t, pkgs[0].AgeSeconds)
	assert.Equal(t, int64(12), *pkgs[0].AgeSeconds)
	assert.Equal(t, int64(1500), pkgs[0].SizeBytes)
	assert.Equal(t, 40, pkgs[0].ProgressPercent)

	buckets, err := BucketsDefinition().Extract([]byte(`{"buckets":[{"name":"hot","count":"2","total_bytes":1.5e3}]}`), NoParams{})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Name: "hot", Count: 2, TotalBytes: 1500}}, buckets)

	cfg, err := ConfigDefinition().Extract([]byte(`{
		"rule_sets": {"user_data": {"hot_days": "7", "cache_seconds": 2.5}},
		"demo_mode": true, "unit": "seconds"
	}`), NoParams{})
	require.NoError(t, err)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, "seconds", cfg.Unit)
	rs := cfg.RuleSets["user_data"]
	assert.Equal(t, int64(7), rs.HotDays)
	require.NotNil(t, rs.CacheSeconds)
	assert.Equal(t, 2, *rs.CacheSeconds)

	proj, err := ProjectionsDefinition(ProjectionQuery{}).Extract([]byte(`{"days":"3","transitions":[{"bucket_from":"hot","bucket_to":"warm","count":1.0}]}`), ProjectionQuery{Days: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, proj.Days)
	require.Len(t, proj.Transitions, 1)
	assert.Equal(t, int64(1), proj.Transitions[0].Count)
}

func TestExtractors_KeepUnknownFields(t *testing.T) {
	jobs, err := JobsDefinition().Extract([]byte(`[{"job_id":"job-1","retries":2,"meta":{"k":"v"}}]`), NoParams{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].JobID)
	assert.Equal(t, map[string]any{"retries": float64(2), "meta": map[string]any{"k": "v"}}, jobs[0].Extra)

	sources, err := SourcesDefinition().Extract([]byte(`[{"source_id":"edge-1"}]`), NoParams{})
	require.NoError(t, err)
	assert.Nil(t, sources[0].Extra)
}

func TestExtractors_ShapeErrors(t *testing.T) {
	_, err := PackagesDefinition().Extract([]byte(`{"path":"a"}`), NoParams{})
	assert.ErrorContains(t, err, "expected a JSON array, got object")

	_, err = ConfigDefinition().Extract([]byte(`["days"]`), NoParams{})
	assert.ErrorContains(t, err, "expected a JSON object, got array")

	_, err = PackagesDefinition().Extract([]byte(`[{"age_days":"soon"}]`), NoParams{})
	assert.Error(t, err)
}

func TestPackagesResource_FloatAgeSucceeds(t *testing.T) {
	r, err := NewResource(PackagesDefinition(), ResourceConfig{
		Fetcher: staticFetcher(`[{"path":"a","age_seconds":12.5}]`, nil),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	st := r.Refresh(context.Background())
	assert.Equal(t, PhaseSuccess, st.Phase)
	assert.Nil(t, st.Err)
	require.Len(t, st.Data, 1)
}
