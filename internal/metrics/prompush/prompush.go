// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Metrics accumulate in a private registry and are
// pushed on Flush, which suits a batch job that exits when done.
package prompush

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"analyticsetl/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	records   *prometheus.CounterVec
	batches   prometheus.Counter
}

// NewBackend returns a backend pushing to url under job.
func NewBackend(job, url string) (*Backend, error) {
	job = strings.TrimSpace(job)
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("pushgateway url is required")
	}
	if job == "" {
		return nil, errors.New("pushgateway job is required")
	}

	b := &Backend{
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_step_total",
			Help: "Completed pipeline steps by outcome.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_step_duration_seconds",
			Help:    "Pipeline step durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_records_total",
			Help: "Records processed by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etl_batches_total",
			Help: "Warehouse write batches.",
		}),
	}
	b.reg.MustRegister(b.steps, b.durations, b.records, b.batches)
	b.pusher = push.New(url, job).Gatherer(b.reg)
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case "etl_step_total":
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case "etl_records_total":
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case "etl_batches_total":
		b.batches.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	if name == "etl_step_duration_seconds" {
		b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	}
}

// Flush pushes the registry, replacing the previous push for this job.
func (b *Backend) Flush() error {
	return b.FlushContext(context.Background())
}

// FlushContext is Flush with cancellation.
func (b *Backend) FlushContext(ctx context.Context) error {
	return b.pusher.PushContext(ctx)
}

// Registry exposes the collected metrics for inspection.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
