package mockcatcher

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Catcher API paths.
const (
	HealthPath      = "/health"
	IngestPath      = "/api/v1/ingest"
	BucketsPath     = "/api/v1/buckets"
	ConfigPath      = "/api/v1/config"
	JobsPath        = "/api/v1/jobs"
	PackagesPath    = "/api/v1/packages"
	SourcesPath     = "/api/v1/sources"
	StatusPath      = "/api/v1/status"
	ProjectionsPath = "/api/v1/projections"
)

// Tiers lists the storage tiers in display order.
var Tiers = []string{"hot", "warm", "cold", "offsite"}

const maxBodyBytes = 1 << 20

type job struct {
	JobID           string `json:"job_id"`
	SourceID        string `json:"source_id"`
	Path            string `json:"path"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	Tier            string `json:"tier"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`

	packageType string
	sizeBytes   int64
	checksum    string
	created     time.Time
}

type source struct {
	SourceID   string  `json:"source_id"`
	Label      *string `json:"label"`
	LastSeenAt *string `json:"last_seen_at"`
}

type fault struct {
	status    int
	malformed bool
}

// Catcher is an in-memory stand-in for the catcher backend. It serves the
// read endpoints the dashboard consumes plus ingest and source registration,
// and can be told to fail individual paths.
type Catcher struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	latency time.Duration

	mu          sync.Mutex
	demoMode    bool
	jobs        []*job
	jobsByID    map[string]*job
	sources     []*source
	sourcesByID map[string]*source
	ruleSets    map[string]RuleSet
	transitions []TransitionFixture
	deleted     int64
	nextJobID   int
	faults      map[string]fault
	requests    map[string]int
}

// Option configures a [Catcher].
type Option func(*Catcher)

// WithClock sets the clock used for timestamps and package ages.
func WithClock(c clockwork.Clock) Option {
	return func(k *Catcher) { k.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Catcher) { k.logger = l }
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(k *Catcher) { k.latency = d }
}

// WithDemoMode switches the catcher to second-based retention.
func WithDemoMode(on bool) Option {
	return func(k *Catcher) { k.demoMode = on }
}

// New creates a Catcher seeded from f.
func New(f Fixture, opts ...Option) *Catcher {
	k := &Catcher{
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		demoMode:    f.DemoMode,
		jobsByID:    make(map[string]*job),
		sourcesByID: make(map[string]*source),
		ruleSets:    make(map[string]RuleSet, len(f.RuleSets)),
		transitions: append([]TransitionFixture(nil), f.Transitions...),
		faults:      make(map[string]fault),
		requests:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(k)
	}
	for name, rs := range f.RuleSets {
		k.ruleSets[name] = rs
	}

	now := k.clock.Now()
	for _, s := range f.Sources {
		var label *string
		if s.Label != "" {
			label = &s.Label
		}
		k.registerSource(s.ID, label, now)
	}
	for _, file := range f.Files {
		created := now.Add(-time.Duration(file.AgeDays) * 24 * time.Hour)
		j := k.addJob(file.Source, file.Path, file.Tier, created)
		j.packageType = file.PackageType
		j.sizeBytes = file.SizeBytes
		j.checksum = file.Checksum
		if file.Status != "" {
			j.Status = file.Status
		}
		j.ProgressPercent = progressFor(j.Status)
	}
	return k
}

func progressFor(status string) int {
	switch status {
	case "completed":
		return 100
	case "in_progress":
		return 50
	default:
		return 0
	}
}

// Fail makes every request to path answer with status.
func (k *Catcher) Fail(path string, status int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.faults[path] = fault{status: status}
}

// Corrupt makes path answer 200 with a body that is not valid JSON.
func (k *Catcher) Corrupt(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.faults[path] = fault{malformed: true}
}

// Recover clears any fault on path.
func (k *Catcher) Recover(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.faults, path)
}

// RecoverAll clears every fault.
func (k *Catcher) RecoverAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.faults)
}

// Requests returns how many requests reached path.
func (k *Catcher) Requests(path string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.requests[path]
}

// SetDemoMode toggles demo mode.
func (k *Catcher) SetDemoMode(on bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.demoMode = on
}

// SetJobStatus moves a job to status. It returns false if the job is unknown.
func (k *Catcher) SetJobStatus(jobID, status string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	j, ok := k.jobsByID[jobID]
	if !ok {
		return false
	}
	k.setStatusLocked(j, status)
	return true
}

// Expire drops a job as retention would and counts it as deleted.
func (k *Catcher) Expire(jobID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.jobsByID[jobID]; !ok {
		return false
	}
	k.expireLocked(jobID)
	return true
}

// Advance moves the catcher one step forward: the oldest unfinished job
// progresses pending -> in_progress -> completed. When every job is done the
// oldest completed one expires. It returns the job touched and its new
// status ("expired" for a removed job), or ok=false when there are no jobs.
func (k *Catcher) Advance() (jobID, status string, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, j := range k.jobs {
		switch j.Status {
		case "pending":
			k.setStatusLocked(j, "in_progress")
			return j.JobID, j.Status, true
		case "in_progress":
			k.setStatusLocked(j, "completed")
			return j.JobID, j.Status, true
		}
	}
	for _, j := range k.jobs {
		if j.Status == "completed" {
			id := j.JobID
			k.expireLocked(id)
			return id, "expired", true
		}
	}
	return "", "", false
}

func (k *Catcher) setStatusLocked(j *job, status string) {
	j.Status = status
	j.ProgressPercent = progressFor(status)
	j.UpdatedAt = formatTime(k.clock.Now())
}

func (k *Catcher) expireLocked(jobID string) {
	delete(k.jobsByID, jobID)
	k.jobs = slices.DeleteFunc(k.jobs, func(j *job) bool { return j.JobID == jobID })
	k.deleted++
}

// Handler returns the catcher's HTTP handler.
func (k *Catcher) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+HealthPath, k.handleHealth)
	mux.HandleFunc("POST "+IngestPath, k.handleIngest)
	mux.HandleFunc("GET "+BucketsPath, k.handleBuckets)
	mux.HandleFunc("GET "+ConfigPath, k.handleConfig)
	mux.HandleFunc("GET "+JobsPath, k.handleJobs)
	mux.HandleFunc("GET "+JobsPath+"/{id}", k.handleJob)
	mux.HandleFunc("GET "+PackagesPath, k.handlePackages)
	mux.HandleFunc("GET "+SourcesPath, k.handleSources)
	mux.HandleFunc("POST "+SourcesPath, k.handleRegisterSource)
	mux.HandleFunc("GET "+StatusPath, k.handleStatus)
	mux.HandleFunc("GET "+ProjectionsPath, k.handleProjections)
	return k.intercept(mux)
}

// intercept counts requests, applies latency and serves injected faults.
func (k *Catcher) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		k.requests[r.URL.Path]++
		f, faulty := k.faults[r.URL.Path]
		k.mu.Unlock()

		if k.latency > 0 {
			select {
			case <-k.clock.After(k.latency):
			case <-r.Context().Done():
				return
			}
		}

		if faulty {
			k.logger.Debug("injected fault", "path", r.URL.Path, "status", f.status, "malformed", f.malformed)
			if f.malformed {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"truncated":`)
				return
			}
			writeDetail(w, f.status, http.StatusText(f.status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (k *Catcher) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestBody struct {
	SourceID    string `json:"source_id"`
	Path        string `json:"path"`
	Checksum    string `json:"checksum"`
	SizeBytes   int64  `json:"size_bytes"`
	TierHint    string `json:"tier_hint"`
	PackageType string `json:"package_type"`
}

// handleIngest records any JSON body as a pending job. Only a body that is
// not JSON is refused.
func (k *Catcher) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body ingestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	k.mu.Lock()
	j := k.addJob(body.SourceID, body.Path, body.TierHint, k.clock.Now())
	j.packageType = body.PackageType
	j.sizeBytes = body.SizeBytes
	j.checksum = body.Checksum
	id := j.JobID
	k.mu.Unlock()

	k.logger.Info("ingested", "job_id", id, "source_id", body.SourceID, "path", body.Path)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

// addJob records a pending job and touches its source. Callers hold k.mu or
// own k exclusively.
func (k *Catcher) addJob(sourceID, path, tier string, created time.Time) *job {
	if tier == "" {
		tier = "hot"
	}
	k.nextJobID++
	ts := formatTime(created)
	j := &job{
		JobID:     "job-" + strconv.Itoa(k.nextJobID),
		SourceID:  sourceID,
		Path:      path,
		Status:    "pending",
		Tier:      tier,
		CreatedAt: ts,
		UpdatedAt: ts,
		created:   created,
	}
	k.jobs = append(k.jobs, j)
	k.jobsByID[j.JobID] = j

	if s, ok := k.sourcesByID[sourceID]; ok {
		s.LastSeenAt = &ts
	} else {
		k.registerSource(sourceID, nil, created)
	}
	return j
}

func (k *Catcher) registerSource(id string, label *string, seen time.Time) *source {
	ts := formatTime(seen)
	s, ok := k.sourcesByID[id]
	if !ok {
		s = &source{SourceID: id}
		k.sources = append(k.sources, s)
		k.sourcesByID[id] = s
	}
	s.Label = label
	s.LastSeenAt = &ts
	return s
}

func (k *Catcher) handleJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	sourceID := r.URL.Query().Get("source_id")

	k.mu.Lock()
	out := make([]job, 0, len(k.jobs))
	for _, j := range k.jobs {
		if status != "" && j.Status != status {
			continue
		}
		if sourceID != "" && j.SourceID != sourceID {
			continue
		}
		out = append(out, *j)
	}
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (k *Catcher) handleJob(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	j, ok := k.jobsByID[r.PathValue("id")]
	var out job
	if ok {
		out = *j
	}
	k.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type packageView struct {
	Path            string `json:"path"`
	SourceID        string `json:"source_id"`
	PackageType     string `json:"package_type"`
	Bucket          string `json:"bucket"`
	Status          string `json:"status"`
	AgeDays         int64  `json:"age_days"`
	AgeSeconds      int64  `json:"age_seconds"`
	ProgressPercent int    `json:"progress_percent"`
	SizeBytes       int64  `json:"size_bytes"`
	Checksum        string `json:"checksum"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func (k *Catcher) handlePackages(w http.ResponseWriter, _ *http.Request) {
	k.mu.Lock()
	now := k.clock.Now()
	out := make([]packageView, 0, len(k.jobs))
	for _, j := range k.jobs {
		age := now.Sub(j.created)
		out = append(out, packageView{
			Path:            j.Path,
			SourceID:        j.SourceID,
			PackageType:     j.packageType,
			Bucket:          j.Tier,
			Status:          j.Status,
			AgeDays:         int64(age / (24 * time.Hour)),
			AgeSeconds:      int64(age / time.Second),
			ProgressPercent: j.ProgressPercent,
			SizeBytes:       j.sizeBytes,
			Checksum:        j.checksum,
			CreatedAt:       j.CreatedAt,
			UpdatedAt:       j.UpdatedAt,
		})
	}
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

type bucketView struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	TotalBytes int64  `json:"total_bytes"`
}

// bucketsLocked aggregates jobs per tier. Callers hold k.mu.
func (k *Catcher) bucketsLocked() []bucketView {
	idx := make(map[string]int, len(Tiers))
	out := make([]bucketView, len(Tiers))
	for i, t := range Tiers {
		idx[t] = i
		out[i].Name = t
	}
	for _, j := range k.jobs {
		i, ok := idx[j.Tier]
		if !ok {
			continue
		}
		out[i].Count++
		out[i].TotalBytes += j.sizeBytes
	}
	return out
}

func (k *Catcher) handleBuckets(w http.ResponseWriter, _ *http.Request) {
	k.mu.Lock()
	buckets := k.bucketsLocked()
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (k *Catcher) handleConfig(w http.ResponseWriter, _ *http.Request) {
	k.mu.Lock()
	ruleSets := make(map[string]RuleSet, len(k.ruleSets))
	for name, rs := range k.ruleSets {
		ruleSets[name] = rs
	}
	demo := k.demoMode
	k.mu.Unlock()

	unit := "days"
	if demo {
		unit = "seconds"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"retention": nil,
		"rule_sets": ruleSets,
		"demo_mode": demo,
		"unit":      unit,
	})
}

func (k *Catcher) handleSources(w http.ResponseWriter, _ *http.Request) {
	k.mu.Lock()
	out := make([]source, 0, len(k.sources))
	for _, s := range k.sources {
		out = append(out, *s)
	}
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

type sourceBody struct {
	SourceID string  `json:"source_id"`
	Label    *string `json:"label"`
}

func (k *Catcher) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var body sourceBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if body.SourceID == "" || len(body.SourceID) > 256 {
		writeDetail(w, http.StatusUnprocessableEntity, "source_id must be 1-256 characters")
		return
	}

	k.mu.Lock()
	out := *k.registerSource(body.SourceID, body.Label, k.clock.Now())
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (k *Catcher) handleStatus(w http.ResponseWriter, _ *http.Request) {
	k.mu.Lock()
	counts := make(map[string]int64, len(Tiers))
	for _, b := range k.bucketsLocked() {
		counts[b.Name] = b.Count
	}
	clientStatus := "none"
	if len(k.sources) > 0 {
		clientStatus = "ok"
	}
	body := map[string]any{
		"components": map[string]any{
			"client":        map[string]any{"status": clientStatus},
			"catcher":       map[string]any{"jobs_count": len(k.jobs)},
			"buckets":       counts,
			"deleted_count": k.deleted,
		},
		"demo_mode": k.demoMode,
	}
	k.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

type transitionView struct {
	ID         string   `json:"id"`
	BucketFrom string   `json:"bucket_from"`
	BucketTo   string   `json:"bucket_to"`
	Count      int      `json:"count"`
	Jobs       []string `json:"jobs"`
}

// handleProjections serves the canned transitions and echoes the requested
// horizon.
func (k *Catcher) handleProjections(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 5)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	seconds, err := queryInt(r, "seconds", 0)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	k.mu.Lock()
	out := make([]transitionView, 0, len(k.transitions))
	for i, t := range k.transitions {
		jobs := append([]string{}, t.Jobs...)
		out = append(out, transitionView{
			ID:         fmt.Sprintf("t%d", i+1),
			BucketFrom: t.From,
			BucketTo:   t.To,
			Count:      len(jobs),
			Jobs:       jobs,
		})
	}
	k.mu.Unlock()

	body := map[string]any{"days": days, "transitions": out}
	if seconds > 0 {
		body["seconds"] = seconds
	}
	writeJSON(w, http.StatusOK, body)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
