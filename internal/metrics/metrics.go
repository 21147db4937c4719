// Package metrics is the backend-neutral metrics facade used by the pipeline.
//
// Pipeline code records through the package-level helpers. A process selects
// one Backend at startup with SetBackend; until then every call is a no-op.
//
// Metric names:
//
//	etl_step_total{step,status}             counter
//	etl_step_duration_seconds{step,status}  histogram
//	etl_records_total{kind}                 counter
//	etl_batches_total                       counter
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer and submit on demand.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// StepDone records one completed pipeline step and its duration.
func StepDone(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter("etl_step_total", 1, l)
	b.ObserveHistogram("etl_step_duration_seconds", time.Since(start).Seconds(), l)
}

// Rows counts records of a kind ("orders_raw", "analytics", "warehouse_inserted"...).
func Rows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter("etl_records_total", float64(n), Labels{"kind": kind})
}

// Batch counts one warehouse write batch.
func Batch() {
	current().IncCounter("etl_batches_total", 1, nil)
}
