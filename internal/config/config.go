// Package config defines the configuration model of a bagetl run. A pipeline
// file is JSON, or YAML when its extension is .yaml or .yml, and maps onto
// Pipeline field by field.
//
// Example (trimmed):
//
//	{
//	  "job":     "mapping_van",
//	  "source":  { "kind": "csvdir", "dir": "/data/bags", "ext": ".bag" },
//	  "storage": { "kind": "postgres", "db": { "dsn": "postgresql://...", "auto_create_table": true } },
//	  "ingest":  { "policy": "skip", "trip_profile": 2 },
//	  "correction": { "enabled": true, "table": "camera", "sensor_ids": [3, 4, 5], "period_seconds": 0.04 }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source     Source        `json:"source" yaml:"source"`
	Storage    Storage       `json:"storage" yaml:"storage"`
	Output     Output        `json:"output" yaml:"output"`
	Ingest     Ingest        `json:"ingest" yaml:"ingest"`
	Correction Correction    `json:"correction" yaml:"correction"`
	Blobs      Blobs         `json:"blobs" yaml:"blobs"`
	Runtime    RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Source locates the recorded sessions.
type Source struct {
	// Kind selects the log reader: "csvdir" or "memory".
	Kind string `json:"kind" yaml:"kind"`
	// Dir is searched for sessions when none is named on the command line.
	Dir string `json:"dir" yaml:"dir"`
	// Ext is the session file extension, ".bag" by default.
	Ext string `json:"ext" yaml:"ext"`

	// Options holds reader-specific settings. "list" names a text file with
	// one session path per line, used instead of scanning Dir.
	Options Options `json:"options" yaml:"options"`
}

// Storage selects the sink.
type Storage struct {
	// Kind is a registered storage kind, or "csv" for file output only.
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`

	// BatchSize is the number of rows per bulk-load call.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// DBConfig configures a relational sink.
type DBConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`

	// AutoCreateTable creates the reference and destination tables on start.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// Output configures CSV file output.
type Output struct {
	CSVDir    string `json:"csv_dir" yaml:"csv_dir"`
	Overwrite bool   `json:"overwrite" yaml:"overwrite"`
}

// Ingest holds the session bookkeeping settings.
type Ingest struct {
	// Policy is "skip", "overwrite_all" or "overwrite_one".
	Policy string `json:"policy" yaml:"policy"`
	// TripProfile is the 1-based profile number new sessions are attached to.
	TripProfile int `json:"trip_profile" yaml:"trip_profile"`
	// BaseStation overrides the profile's base station name.
	BaseStation string `json:"base_station" yaml:"base_station"`
	VehicleID   int64  `json:"vehicle_id" yaml:"vehicle_id"`
}

// Correction configures the trigger-time correction pass.
type Correction struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	Table         string  `json:"table" yaml:"table"`
	SensorIDs     []int64 `json:"sensor_ids" yaml:"sensor_ids"`
	PeriodSeconds float64 `json:"period_seconds" yaml:"period_seconds"`
}

// Blobs configures the payload store.
type Blobs struct {
	Dir string `json:"dir" yaml:"dir"`
}

// RuntimeConfig controls run-wide limits.
type RuntimeConfig struct {
	// Timeout bounds the whole run, e.g. "2h". Empty means no limit.
	Timeout string `json:"timeout" yaml:"timeout"`
}

// Defaults.
const (
	DefaultBatchSize = 5000
	DefaultExt       = ".bag"
	DefaultPolicy    = "skip"
)

// Load reads and decodes the pipeline file at path, then applies defaults.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// Decode decodes b as YAML when ext is ".yaml" or ".yml" and as JSON
// otherwise. Unknown fields are rejected.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	}
	p.ApplyDefaults()
	return p, nil
}

// ApplyDefaults fills zero values with their defaults.
func (p *Pipeline) ApplyDefaults() {
	if p.Source.Ext == "" {
		p.Source.Ext = DefaultExt
	}
	if p.Source.Options == nil {
		p.Source.Options = Options{}
	}
	if p.Storage.BatchSize == 0 {
		p.Storage.BatchSize = DefaultBatchSize
	}
	if p.Ingest.Policy == "" {
		p.Ingest.Policy = DefaultPolicy
	}
	if p.Ingest.VehicleID == 0 {
		p.Ingest.VehicleID = 1
	}
	if p.Correction.Enabled {
		if p.Correction.Table == "" {
			p.Correction.Table = "camera"
		}
		if len(p.Correction.SensorIDs) == 0 {
			p.Correction.SensorIDs = []int64{3, 4, 5}
		}
		if p.Correction.PeriodSeconds == 0 {
			p.Correction.PeriodSeconds = 1.0 / 25.0
		}
	}
}

// ApplyEnv overrides the DSN from BAGETL_DSN when it is set.
func (p *Pipeline) ApplyEnv(getenv func(string) string) {
	if dsn := getenv("BAGETL_DSN"); dsn != "" {
		p.Storage.DB.DSN = dsn
	}
}

// TimeoutDuration returns the parsed run timeout, or 0 when unset.
func (r RuntimeConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(r.Timeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Timeout)
}

// Options is a small helper to fetch typed values from arbitrary decoded maps.
// It performs only minimal type coercion and returns provided defaults when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 and YAML integers as int, so both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null
// "options" object decodes to a non-nil, empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
