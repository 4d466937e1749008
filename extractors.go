package edgedash

import (
	"fmt"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Catcher read endpoints.
const (
	BucketsPath     = "/api/v1/buckets"
	ConfigPath      = "/api/v1/config"
	JobsPath        = "/api/v1/jobs"
	PackagesPath    = "/api/v1/packages"
	SourcesPath     = "/api/v1/sources"
	StatusPath      = "/api/v1/status"
	ProjectionsPath = "/api/v1/projections"
)

// Resource names.
const (
	BucketsResource     = "buckets"
	ConfigResource      = "config"
	JobsResource        = "jobs"
	PackagesResource    = "packages"
	SourcesResource     = "sources"
	StatusResource      = "status"
	ProjectionsResource = "projections"
)

// DefaultProjectionDays is the projection horizon requested when none is given.
const DefaultProjectionDays = 5

// DemoProjectionSeconds is the horizon requested in demo mode.
const DemoProjectionSeconds = 10

// DefaultUnit is the retention display unit when the catcher sends none.
const DefaultUnit = "days"

// NoParams is the parameter type of resources whose endpoint takes no query.
type NoParams struct{}

// ProjectionQuery parameterises the projections resource.
type ProjectionQuery struct {
	// Days is the horizon in days. Always sent.
	Days int

	// Seconds is the horizon in seconds, used in demo mode. Sent only when set.
	Seconds *int
}

// Values encodes the query. Seconds is omitted entirely when nil.
func (q ProjectionQuery) Values() url.Values {
	v := url.Values{}
	v.Set("days", strconv.Itoa(q.Days))
	if q.Seconds != nil {
		v.Set("seconds", strconv.Itoa(*q.Seconds))
	}
	return v
}

// ProjectionQueryFor derives the projection query from the retention
// configuration: in demo mode without an explicit horizon in seconds,
// [DemoProjectionSeconds] is requested.
func ProjectionQueryFor(cfg RetentionConfig, base ProjectionQuery) ProjectionQuery {
	if base.Days <= 0 {
		base.Days = DefaultProjectionDays
	}
	if cfg.DemoMode && base.Seconds == nil {
		secs := DemoProjectionSeconds
		base.Seconds = &secs
	}
	return base
}

// BucketsDefinition reads the per-tier summaries from {"buckets": [...]}.
func BucketsDefinition() Definition[NoParams, []Bucket] {
	return Definition[NoParams, []Bucket]{
		Name: BucketsResource,
		Path: BucketsPath,
		Extract: func(body []byte, _ NoParams) ([]Bucket, error) {
			var wire struct {
				Buckets []Bucket `mapstructure:"buckets"`
			}
			if err := decodeRecord(body, &wire); err != nil {
				return nil, err
			}
			return nonNil(wire.Buckets), nil
		},
		Empty: func(NoParams) []Bucket { return []Bucket{} },
	}
}

// ConfigDefinition reads the retention configuration. Both the legacy shape
// (retention only) and the full shape are accepted; absent fields take the
// defaults of [EmptyConfig].
func ConfigDefinition() Definition[NoParams, RetentionConfig] {
	return Definition[NoParams, RetentionConfig]{
		Name:    ConfigResource,
		Path:    ConfigPath,
		Extract: func(body []byte, _ NoParams) (RetentionConfig, error) { return decodeConfig(body) },
		Empty:   func(NoParams) RetentionConfig { return EmptyConfig() },
	}
}

// EmptyConfig returns the configuration used before the first success and
// after a failure.
func EmptyConfig() RetentionConfig {
	return RetentionConfig{
		Retention: nil,
		RuleSets:  map[string]RuleSet{},
		DemoMode:  false,
		Unit:      DefaultUnit,
	}
}

func decodeConfig(body []byte) (RetentionConfig, error) {
	var wire struct {
		Retention map[string]any     `mapstructure:"retention"`
		RuleSets  map[string]RuleSet `mapstructure:"rule_sets"`
		DemoMode  *bool              `mapstructure:"demo_mode"`
		Unit      *string            `mapstructure:"unit"`
	}
	if err := decodeRecord(body, &wire); err != nil {
		return RetentionConfig{}, err
	}

	cfg := EmptyConfig()
	cfg.Retention = wire.Retention
	if wire.RuleSets != nil {
		cfg.RuleSets = wire.RuleSets
	}
	if wire.DemoMode != nil {
		cfg.DemoMode = *wire.DemoMode
	}
	if wire.Unit != nil && *wire.Unit != "" {
		cfg.Unit = *wire.Unit
	}
	return cfg, nil
}

// JobsDefinition reads the bare job array.
func JobsDefinition() Definition[NoParams, []Job] {
	return listDefinition[Job](JobsResource, JobsPath)
}

// PackagesDefinition reads the bare package array.
func PackagesDefinition() Definition[NoParams, []Package] {
	return listDefinition[Package](PackagesResource, PackagesPath)
}

// SourcesDefinition reads the bare source array.
func SourcesDefinition() Definition[NoParams, []Source] {
	return listDefinition[Source](SourcesResource, SourcesPath)
}

// StatusDefinition reads the status record as-is. Its empty value is nil.
func StatusDefinition() Definition[NoParams, ComponentStatus] {
	return Definition[NoParams, ComponentStatus]{
		Name: StatusResource,
		Path: StatusPath,
		Extract: func(body []byte, _ NoParams) (ComponentStatus, error) {
			var status ComponentStatus
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, err
			}
			return status, nil
		},
	}
}

// ProjectionsDefinition reads the projection for a [ProjectionQuery]. The
// resulting Days falls back to the requested horizon when the response
// omits it.
func ProjectionsDefinition(defaults ProjectionQuery) Definition[ProjectionQuery, Projection] {
	if defaults.Days <= 0 {
		defaults.Days = DefaultProjectionDays
	}
	return Definition[ProjectionQuery, Projection]{
		Name:     ProjectionsResource,
		Path:     ProjectionsPath,
		Defaults: defaults,
		Query:    ProjectionQuery.Values,
		Extract: func(body []byte, q ProjectionQuery) (Projection, error) {
			var wire struct {
				Days        *int         `mapstructure:"days"`
				Transitions []Transition `mapstructure:"transitions"`
			}
			if err := decodeRecord(body, &wire); err != nil {
				return Projection{}, err
			}
			p := Projection{Days: q.Days, Transitions: nonNil(wire.Transitions)}
			if wire.Days != nil {
				p.Days = *wire.Days
			}
			return p, nil
		},
		Empty: func(q ProjectionQuery) Projection {
			return Projection{Days: q.Days, Transitions: []Transition{}}
		},
	}
}

func listDefinition[E any](name, path string) Definition[NoParams, []E] {
	return Definition[NoParams, []E]{
		Name: name,
		Path: path,
		Extract: func(body []byte, _ NoParams) ([]E, error) {
			var raw any
			if err := json.Unmarshal(body, &raw); err != nil {
				return nil, err
			}
			if _, ok := raw.([]any); !ok && raw != nil {
				return nil, fmt.Errorf("expected a JSON array, got %s", jsonKind(raw))
			}
			var items []E
			if err := weakDecode(raw, &items); err != nil {
				return nil, err
			}
			return nonNil(items), nil
		},
		Empty: func(NoParams) []E { return []E{} },
	}
}

// decodeRecord decodes a JSON object body onto out with [weakDecode].
func decodeRecord(body []byte, out any) error {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}
	if _, ok := raw.(map[string]any); !ok && raw != nil {
		return fmt.Errorf("expected a JSON object, got %s", jsonKind(raw))
	}
	return weakDecode(raw, out)
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}

// nonNil turns a JSON null or absent array into an empty slice.
func nonNil[E any](s []E) []E {
	if s == nil {
		return []E{}
	}
	return s
}
