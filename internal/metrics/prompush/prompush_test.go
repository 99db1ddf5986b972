package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"bagetl/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCount reads the sample count of one SummaryVec child.
func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) uint64 {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "van", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "bagetl"},
		{name: "explicit job name is preserved", jobName: "van", gatewayURL: "http://pushgateway:9091", wantJobName: "van"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q) = %v, %v; want nil, error", tt.jobName, tt.gatewayURL, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q; want %q", b.jobName, tt.wantJobName)
			}
		})
	}
}

func TestIncCounterAndObserve(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("van", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "topic", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 40, metrics.Labels{"table": "gps"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"table": "gps"})
	b.IncCounter(metrics.BatchesTotal, 3, nil)
	b.IncCounter(metrics.TopicsTotal, 1, metrics.Labels{"outcome": "skipped", "kind": "unmapped_topic"})
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "topic", "status": "success"})
	b.ObserveHistogram(metrics.CorrectionShift, 0.004, metrics.Labels{"table": "camera"})

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("topic", "success")); got != 1 {
		t.Errorf("step counter = %v; want 1", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("gps")); got != 42 {
		t.Errorf("row counter = %v; want 42", got)
	}
	if got := readCounterValue(t, b.batchCounter); got != 3 {
		t.Errorf("batch counter = %v; want 3", got)
	}
	if got := readCounterValue(t, b.topicCounter.WithLabelValues("skipped", "unmapped_topic")); got != 1 {
		t.Errorf("topic counter = %v; want 1", got)
	}
	if got := readSummaryCount(t, b.stepDuration, "topic", "success"); got != 1 {
		t.Errorf("step summary count = %d; want 1", got)
	}
}

func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "x", "status": "y"})
	b.IncCounter(metrics.TopicsTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
	b.ObserveHistogram(metrics.CorrectionShift, 1, nil)
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("van", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"table": "gps"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("push method = %q; want PUT", got.method)
	}
	if got.path != "/metrics/job/van" {
		t.Fatalf("push path = %q; want /metrics/job/van", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push body length = 0; want > 0")
	}
}

// BenchmarkIncCounterRows measures the cost of incrementing the row counter
// through the Backend abstraction.
func BenchmarkIncCounterRows(b *testing.B) {
	backend, err := NewBackend("van", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"table": "gps"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}
