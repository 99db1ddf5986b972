// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from an ingest run.
//
// It exposes a narrow Backend interface (counters and timings) and a global,
// pluggable backend that defaults to a no-op, so instrumentation is always
// safe to call even when no real backend is configured. Concrete systems live
// in subpackages (prompush, datadog).
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names.
const (
	StepTotal       = "bagetl_step_total"
	StepDuration    = "bagetl_step_duration_seconds"
	RowsTotal       = "bagetl_rows_total"
	BatchesTotal    = "bagetl_batches_total"
	TopicsTotal     = "bagetl_topics_total"
	CorrectionShift = "bagetl_correction_shift_seconds"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one run step
// (session, topic, correction).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta rows loaded into table.
func RecordRow(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordBatches increments the bulk-load batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordTopic counts one topic outcome: "loaded", "skipped" or "failed".
// kind is the error class for skipped and failed topics, "" otherwise.
func RecordTopic(job, outcome, kind string) {
	backend.IncCounter(TopicsTotal, 1, Labels{
		"job":     job,
		"outcome": outcome,
		"kind":    kind,
	})
}

// RecordCorrection observes the size of one timestamp correction.
func RecordCorrection(job, table string, shift float64) {
	backend.ObserveHistogram(CorrectionShift, shift, Labels{
		"job":   job,
		"table": table,
	})
}
