// Package metrics records operation outcomes and latencies.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names shared by the pipeline components.
const (
	OpUpload       = "results_upload"
	OpAlignment    = "vquest_request"
	OpBlast        = "blast_search"
	OpCorpusScan   = "corpus_scan"
	OpCDR3Search   = "cdr3_search"
	OpFastaExport  = "fasta_export"
	OpResultsTable = "results_table"
)

// Recorder receives one observation per completed operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(context.Context, string, bool, time.Duration) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Prometheus exports observations as a counter and a histogram partitioned
// by operation.
type Prometheus struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antigen",
			Subsystem: "sequencing",
			Name:      "operations_total",
			Help:      "Completed sequencing pipeline operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antigen",
			Subsystem: "sequencing",
			Name:      "operation_duration_seconds",
			Help:      "Latency of sequencing pipeline operations.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{p.results, p.durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Observe implements Recorder.
func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	p.results.WithLabelValues(operation, status).Inc()
	p.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Since observes the time elapsed from start, reading success from *errp so
// it can be deferred with a named error result.
func Since(ctx context.Context, r Recorder, operation string, start time.Time, errp *error) {
	success := errp == nil || *errp == nil
	OrNop(r).Observe(ctx, operation, success, time.Since(start))
}
