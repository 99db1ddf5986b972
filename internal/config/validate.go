package config

import (
	"fmt"
	"math"
	"strings"

	"bagetl/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.db.dsn"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Policies lists the accepted ingest.policy values. "ask" prompts the
// operator for every already-parsed session.
var Policies = []string{"skip", "overwrite_all", "overwrite_one", "ask"}

// ValidatePipeline performs static validation of a decoded Pipeline. It does
// not mutate p. Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateStorage(p.Storage, p.Output)...)
	issues = append(issues, validateIngest(p.Ingest)...)
	issues = append(issues, validateCorrection(p.Correction)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	}

	known := map[string]struct{}{
		"csvdir": {},
		"memory": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching reader is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.Dir) == "" && s.Options.String("list", "") == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.dir",
			Message:  "no source.dir or source.options.list; sessions must be named on the command line",
		})
	}
	if s.Ext != "" && !strings.HasPrefix(s.Ext, ".") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.ext",
			Message:  fmt.Sprintf("source.ext %q must start with a dot", s.Ext),
		})
	}

	return issues
}

func validateStorage(s Storage, out Output) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}

	needsDSN := map[string]bool{
		"postgres": true,
		"mysql":    true,
		"mssql":    true,
		"sqlite":   true,
		"memory":   false,
		"csv":      false,
	}
	dsn, ok := needsDSN[s.Kind]
	if !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if dsn && strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  fmt.Sprintf("storage.db.dsn must not be empty for kind %q (or set BAGETL_DSN)", s.Kind),
		})
	}
	if s.Kind == "csv" && strings.TrimSpace(out.CSVDir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.csv_dir",
			Message:  "storage.kind \"csv\" requires output.csv_dir",
		})
	}
	if s.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", s.BatchSize),
		})
	}

	return issues
}

func validateIngest(in Ingest) []Issue {
	var issues []Issue

	valid := false
	for _, p := range Policies {
		if in.Policy == p {
			valid = true
		}
	}
	if !valid {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ingest.policy",
			Message:  fmt.Sprintf("unknown policy %q; want one of %s", in.Policy, strings.Join(Policies, ", ")),
		})
	}

	switch {
	case in.TripProfile == 0:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "ingest.trip_profile",
			Message:  "no trip profile; new sessions are stored without a trip",
		})
	default:
		if _, err := schema.TripProfileByID(in.TripProfile); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "ingest.trip_profile",
				Message:  err.Error(),
			})
		}
	}

	if in.BaseStation != "" {
		if _, ok := schema.BaseStationByName(in.BaseStation); !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "ingest.base_station",
				Message:  fmt.Sprintf("unknown base station %q", in.BaseStation),
			})
		}
	}
	if in.VehicleID < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ingest.vehicle_id",
			Message:  "vehicle_id must not be negative",
		})
	}

	return issues
}

func validateCorrection(c Correction) []Issue {
	var issues []Issue
	if !c.Enabled {
		return nil
	}

	if strings.TrimSpace(c.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "correction.table",
			Message:  "correction.table must not be empty",
		})
	}
	if c.PeriodSeconds <= 0 || c.PeriodSeconds > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "correction.period_seconds",
			Message:  fmt.Sprintf("period_seconds=%v; must be in (0, 1]", c.PeriodSeconds),
		})
	} else if fps := 1 / c.PeriodSeconds; math.Abs(fps-math.Round(fps)) > 1e-6 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "correction.period_seconds",
			Message:  fmt.Sprintf("1/period_seconds=%v is not a whole frame rate; it is rounded", fps),
		})
	}
	if len(c.SensorIDs) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "correction.sensor_ids",
			Message:  "no sensor ids; the correction pass has nothing to do",
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	d, err := r.TimeoutDuration()
	switch {
	case err != nil:
		return []Issue{{
			Severity: SeverityError,
			Path:     "runtime.timeout",
			Message:  fmt.Sprintf("cannot parse timeout %q: %v", r.Timeout, err),
		}}
	case d < 0:
		return []Issue{{
			Severity: SeverityError,
			Path:     "runtime.timeout",
			Message:  "timeout must not be negative",
		}}
	}
	return nil
}
