package mockcatcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture seeds a [Catcher].
type Fixture struct {
	DemoMode    bool                `yaml:"demo_mode"`
	Sources     []SourceFixture     `yaml:"sources"`
	Files       []FileFixture       `yaml:"files"`
	RuleSets    map[string]RuleSet  `yaml:"rule_sets"`
	Transitions []TransitionFixture `yaml:"transitions"`
}

// SourceFixture is one pre-registered edge client.
type SourceFixture struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// FileFixture is one pre-ingested file.
type FileFixture struct {
	Source      string `yaml:"source"`
	Path        string `yaml:"path"`
	PackageType string `yaml:"package_type"`
	Tier        string `yaml:"tier"`
	Status      string `yaml:"status"`
	SizeBytes   int64  `yaml:"size_bytes"`
	Checksum    string `yaml:"checksum"`
	AgeDays     int64  `yaml:"age_days"`
}

// RuleSet is the retention rule of one package type, in catcher wire form.
type RuleSet struct {
	HotDays        int64 `yaml:"hot_days" json:"hot_days"`
	WarmDays       int64 `yaml:"warm_days" json:"warm_days"`
	ColdDays       int64 `yaml:"cold_days" json:"cold_days"`
	OffsiteDays    int64 `yaml:"offsite_days" json:"offsite_days"`
	HotSeconds     int64 `yaml:"hot_seconds" json:"hot_seconds"`
	WarmSeconds    int64 `yaml:"warm_seconds" json:"warm_seconds"`
	ColdSeconds    int64 `yaml:"cold_seconds" json:"cold_seconds"`
	OffsiteSeconds int64 `yaml:"offsite_seconds" json:"offsite_seconds"`
	ReplicateToAll bool  `yaml:"replicate_to_all" json:"replicate_to_all"`
	CacheSeconds   *int  `yaml:"cache_seconds" json:"cache_seconds,omitempty"`
}

// TransitionFixture is one canned projection entry.
type TransitionFixture struct {
	From string   `yaml:"from"`
	To   string   `yaml:"to"`
	Jobs []string `yaml:"jobs"`
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses a YAML fixture.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parsing fixture: %w", err)
	}
	for i, file := range f.Files {
		if file.Source == "" || file.Path == "" {
			return Fixture{}, fmt.Errorf("file %d: source and path are required", i)
		}
	}
	return f, nil
}

// DefaultFixture is a small data set covering every resource.
func DefaultFixture() Fixture {
	cache := 5
	return Fixture{
		Sources: []SourceFixture{
			{ID: "edge-01", Label: "Warehouse NAS"},
			{ID: "edge-02"},
		},
		Files: []FileFixture{
			{Source: "edge-01", Path: "docs/readme.md", PackageType: "user_data", Tier: "hot", Status: "completed", SizeBytes: 1200, Checksum: "a1b2c3d4e5f60718293a4b5c6d7e8f90", AgeDays: 1},
			{Source: "edge-01", Path: "logs/app.log", PackageType: "app_logs", Tier: "warm", Status: "completed", SizeBytes: 5120, Checksum: "c0ffee", AgeDays: 12},
			{Source: "edge-02", Path: "audit/2025-q4.csv", PackageType: "audit_logs", Tier: "cold", Status: "in_progress", SizeBytes: 1 << 20, Checksum: "deadbeef", AgeDays: 40},
		},
		RuleSets: map[string]RuleSet{
			"user_data":  {HotDays: 7, WarmDays: 30, ColdDays: 365, HotSeconds: 30, WarmSeconds: 60, ColdSeconds: 90},
			"app_logs":   {HotDays: 3, WarmDays: 14, ColdDays: 90, HotSeconds: 10, WarmSeconds: 20, ColdSeconds: 40},
			"cache":      {HotDays: 1, HotSeconds: 5, CacheSeconds: &cache},
			"audit_logs": {HotDays: 30, WarmDays: 90, ColdDays: 2555, OffsiteDays: 2555, HotSeconds: 60, WarmSeconds: 80, ColdSeconds: 100, ReplicateToAll: true},
		},
		Transitions: []TransitionFixture{
			{From: "hot", To: "warm", Jobs: []string{"job-1"}},
		},
	}
}
