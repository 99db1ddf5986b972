package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validPipeline() Pipeline {
	p := Pipeline{
		Job:     "mapping_van",
		Source:  Source{Kind: "csvdir", Dir: "/data"},
		Storage: Storage{Kind: "sqlite", DB: DBConfig{DSN: "file:bag.db"}},
		Ingest:  Ingest{TripProfile: 2},
	}
	p.ApplyDefaults()
	return p
}

func TestValidatePipeline_ValidMinimal(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("ValidatePipeline() = %+v; want none", issues)
	}
}

func TestValidatePipeline_MissingJob(t *testing.T) {
	t.Parallel()

	p := validPipeline()
	p.Job = " "
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "job", "job must not be empty") {
		t.Fatalf("expected SeverityError for job")
	}
}

func TestValidatePipeline_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Pipeline)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"empty source kind", func(p *Pipeline) { p.Source.Kind = "" }, SeverityError, "source.kind", "must not be empty"},
		{"unknown source kind", func(p *Pipeline) { p.Source.Kind = "rosbag" }, SeverityWarning, "source.kind", "unknown source kind"},
		{"no dir", func(p *Pipeline) { p.Source.Dir = "" }, SeverityWarning, "source.dir", "command line"},
		{"bad ext", func(p *Pipeline) { p.Source.Ext = "bag" }, SeverityError, "source.ext", "dot"},
		{"empty storage kind", func(p *Pipeline) { p.Storage.Kind = "" }, SeverityError, "storage.kind", "must not be empty"},
		{"unknown storage kind", func(p *Pipeline) { p.Storage.Kind = "oracle" }, SeverityWarning, "storage.kind", "unknown storage kind"},
		{"missing dsn", func(p *Pipeline) { p.Storage.DB.DSN = "" }, SeverityError, "storage.db.dsn", "BAGETL_DSN"},
		{"csv without dir", func(p *Pipeline) { p.Storage.Kind = "csv" }, SeverityError, "output.csv_dir", "requires"},
		{"batch size", func(p *Pipeline) { p.Storage.BatchSize = -1 }, SeverityError, "storage.batch_size", "positive"},
		{"policy", func(p *Pipeline) { p.Ingest.Policy = "merge" }, SeverityError, "ingest.policy", "unknown policy"},
		{"no trip", func(p *Pipeline) { p.Ingest.TripProfile = 0 }, SeverityWarning, "ingest.trip_profile", "without a trip"},
		{"unknown trip", func(p *Pipeline) { p.Ingest.TripProfile = 99 }, SeverityError, "ingest.trip_profile", "unknown trip profile"},
		{"unknown base station", func(p *Pipeline) { p.Ingest.BaseStation = "Mars" }, SeverityError, "ingest.base_station", "Mars"},
		{"correction period", func(p *Pipeline) {
			p.Correction = Correction{Enabled: true, Table: "camera", SensorIDs: []int64{3}, PeriodSeconds: 2}
		}, SeverityError, "correction.period_seconds", "(0, 1]"},
		{"correction fractional rate", func(p *Pipeline) {
			p.Correction = Correction{Enabled: true, Table: "camera", SensorIDs: []int64{3}, PeriodSeconds: 0.3}
		}, SeverityWarning, "correction.period_seconds", "whole frame rate"},
		{"correction table", func(p *Pipeline) {
			p.Correction = Correction{Enabled: true, SensorIDs: []int64{3}, PeriodSeconds: 0.04}
		}, SeverityError, "correction.table", "must not be empty"},
		{"timeout", func(p *Pipeline) { p.Runtime.Timeout = "soon" }, SeverityError, "runtime.timeout", "cannot parse"},
		{"negative timeout", func(p *Pipeline) { p.Runtime.Timeout = "-1s" }, SeverityError, "runtime.timeout", "negative"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tc.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.msg) {
				t.Fatalf("missing %s at %s containing %q; got %+v", tc.sev, tc.path, tc.msg, issues)
			}
		})
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "job", Message: "empty"}
	if got, want := iss.Error(), "error at job: empty"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
}
