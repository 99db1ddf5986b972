// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It maps the metrics names onto client_golang collectors and pushes the
// registry to a Pushgateway on Flush instead of exposing a scrape endpoint.
// The "job" label becomes the Pushgateway grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"bagetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // bagetl_step_total
	stepDuration *prometheus.SummaryVec // bagetl_step_duration_seconds

	rowCounter   *prometheus.CounterVec // bagetl_rows_total
	batchCounter prometheus.Counter     // bagetl_batches_total
	topicCounter *prometheus.CounterVec // bagetl_topics_total

	correction *prometheus.HistogramVec // bagetl_correction_shift_seconds
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "bagetl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.StepTotal,
				Help: "Run steps executed, partitioned by step and status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.StepDuration,
				Help:       "Duration of run steps in seconds, partitioned by step and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"step", "status"},
		),
		rowCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.RowsTotal,
				Help: "Rows loaded per destination table.",
			},
			[]string{"table"},
		),
		batchCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metrics.BatchesTotal,
				Help: "Bulk-load batches flushed.",
			},
		),
		topicCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.TopicsTotal,
				Help: "Topic outcomes (loaded, skipped, failed) by error kind.",
			},
			[]string{"outcome", "kind"},
		),
		correction: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metrics.CorrectionShift,
				Help:    "Absolute shift applied by the trigger-time correction, in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"table"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":  b.stepCounter,
		"step summary":  b.stepDuration,
		"row counter":   b.rowCounter,
		"batch counter": b.batchCounter,
		"topic counter": b.topicCounter,
		"correction":    b.correction,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.Add(delta)

	case metrics.TopicsTotal:
		if b.topicCounter == nil {
			return
		}
		b.topicCounter.WithLabelValues(labels["outcome"], labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDuration:
		if b.stepDuration != nil {
			b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
		}
	case metrics.CorrectionShift:
		if b.correction != nil {
			b.correction.WithLabelValues(labels["table"]).Observe(value)
		}
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
