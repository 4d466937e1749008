package edgedash

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Records are decoded leniently: numbers may arrive as floats or numeric
// strings, and fields the dashboard does not know are kept in Extra.

// Bucket summarises one storage tier.
type Bucket struct {
	Name       string         `json:"name" mapstructure:"name"`
	Count      int64          `json:"count" mapstructure:"count"`
	TotalBytes int64          `json:"total_bytes" mapstructure:"total_bytes"`
	Extra      map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// Job is one ingestion job.
type Job struct {
	JobID           string         `json:"job_id" mapstructure:"job_id"`
	SourceID        string         `json:"source_id" mapstructure:"source_id"`
	Path            string         `json:"path" mapstructure:"path"`
	Status          string         `json:"status" mapstructure:"status"`
	ProgressPercent int            `json:"progress_percent" mapstructure:"progress_percent"`
	Tier            string         `json:"tier" mapstructure:"tier"`
	CreatedAt       string         `json:"created_at" mapstructure:"created_at"`
	UpdatedAt       string         `json:"updated_at" mapstructure:"updated_at"`
	Extra           map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// Package is one backed-up file as tracked by the catcher.
type Package struct {
	Path            string         `json:"path" mapstructure:"path"`
	SourceID        string         `json:"source_id" mapstructure:"source_id"`
	PackageType     string         `json:"package_type" mapstructure:"package_type"`
	Bucket          string         `json:"bucket" mapstructure:"bucket"`
	Status          string         `json:"status" mapstructure:"status"`
	AgeDays         int64          `json:"age_days" mapstructure:"age_days"`
	AgeSeconds      *int64         `json:"age_seconds" mapstructure:"age_seconds"`
	ProgressPercent int            `json:"progress_percent" mapstructure:"progress_percent"`
	SizeBytes       int64          `json:"size_bytes" mapstructure:"size_bytes"`
	Checksum        string         `json:"checksum" mapstructure:"checksum"`
	CreatedAt       string         `json:"created_at" mapstructure:"created_at"`
	UpdatedAt       string         `json:"updated_at" mapstructure:"updated_at"`
	Extra           map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// LastActivity returns UpdatedAt, or CreatedAt when the package was never updated.
func (p Package) LastActivity() string {
	if p.UpdatedAt != "" {
		return p.UpdatedAt
	}
	return p.CreatedAt
}

// Source is one registered edge client.
type Source struct {
	SourceID   string         `json:"source_id" mapstructure:"source_id"`
	Label      *string        `json:"label" mapstructure:"label"`
	LastSeenAt *string        `json:"last_seen_at" mapstructure:"last_seen_at"`
	Extra      map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// RuleSet is the retention rule for one package type. Day fields apply in
// normal operation, second fields in demo mode.
type RuleSet struct {
	HotDays        int64          `json:"hot_days" mapstructure:"hot_days"`
	WarmDays       int64          `json:"warm_days" mapstructure:"warm_days"`
	ColdDays       int64          `json:"cold_days" mapstructure:"cold_days"`
	OffsiteDays    int64          `json:"offsite_days" mapstructure:"offsite_days"`
	HotSeconds     int64          `json:"hot_seconds" mapstructure:"hot_seconds"`
	WarmSeconds    int64          `json:"warm_seconds" mapstructure:"warm_seconds"`
	ColdSeconds    int64          `json:"cold_seconds" mapstructure:"cold_seconds"`
	OffsiteSeconds int64          `json:"offsite_seconds" mapstructure:"offsite_seconds"`
	ReplicateToAll bool           `json:"replicate_to_all" mapstructure:"replicate_to_all"`
	CacheSeconds   *int           `json:"cache_seconds" mapstructure:"cache_seconds"`
	Extra          map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// RetentionConfig is the catcher's retention configuration. Older catchers
// only send Retention; the other fields then keep their defaults.
type RetentionConfig struct {
	Retention map[string]any     `json:"retention"`
	RuleSets  map[string]RuleSet `json:"rule_sets"`
	DemoMode  bool               `json:"demo_mode"`
	Unit      string             `json:"unit"`
}

// Transition is one projected tier move.
type Transition struct {
	ID         string         `json:"id" mapstructure:"id"`
	BucketFrom string         `json:"bucket_from" mapstructure:"bucket_from"`
	BucketTo   string         `json:"bucket_to" mapstructure:"bucket_to"`
	Count      int64          `json:"count" mapstructure:"count"`
	Jobs       []any          `json:"jobs" mapstructure:"jobs"`
	Extra      map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

// Projection is the forecast of upcoming tier transitions.
type Projection struct {
	Days        int          `json:"days"`
	Transitions []Transition `json:"transitions"`
}

// ComponentStatus is the catcher's status record, kept as decoded JSON.
// A nil ComponentStatus means no status is available.
type ComponentStatus map[string]any

// StatusSummary is the typed view of the fields of a [ComponentStatus] the
// dashboard displays.
type StatusSummary struct {
	DemoMode   bool            `mapstructure:"demo_mode"`
	Components ComponentsField `mapstructure:"components"`
}

// ComponentsField holds per-component status.
type ComponentsField struct {
	Client       ClientStatus  `mapstructure:"client"`
	Catcher      CatcherStatus `mapstructure:"catcher"`
	Buckets      BucketCounts  `mapstructure:"buckets"`
	DeletedCount int64         `mapstructure:"deleted_count"`
}

// ClientStatus is the aggregated edge client status.
type ClientStatus struct {
	Status string `mapstructure:"status"`
}

// CatcherStatus describes the catcher itself.
type CatcherStatus struct {
	JobsCount int64 `mapstructure:"jobs_count"`
}

// BucketCounts is the file count per tier.
type BucketCounts struct {
	Hot     int64 `mapstructure:"hot"`
	Warm    int64 `mapstructure:"warm"`
	Cold    int64 `mapstructure:"cold"`
	Offsite int64 `mapstructure:"offsite"`
}

// Summary decodes the displayed fields. Numbers sent as strings are accepted;
// a component of the wrong shape is an error.
func (s ComponentStatus) Summary() (StatusSummary, error) {
	var out StatusSummary
	if s == nil {
		return out, nil
	}
	if err := weakDecode(map[string]any(s), &out); err != nil {
		return out, fmt.Errorf("decoding status: %w", err)
	}
	return out, nil
}

// weakDecode maps a decoded JSON value onto out. Integer fields accept
// floats (truncated) and numeric strings such as "12" or "1.5e3".
func weakDecode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       numericStringHook,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// numericStringHook turns numeric strings bound for number fields into
// float64, which mapstructure then converts to the field's kind.
func numericStringHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return data, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64)
	if err != nil {
		// leave it to mapstructure, which reports the field
		return data, nil
	}
	return f, nil
}

// DemoMode reports whether the status record flags demo mode.
func (s ComponentStatus) DemoMode() bool {
	v, _ := s["demo_mode"].(bool)
	return v
}
