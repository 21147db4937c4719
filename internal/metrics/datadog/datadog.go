// Package datadog implements a Datadog backend for internal/metrics.
//
// Observations are buffered in memory and submitted on Flush. A background
// loop flushes every FlushEvery so a long run produces a time series instead
// of a single point at exit; Close stops the loop and flushes the tail.
//
// Submission failures drop the flushed window. Delivery is at most once.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"analyticsetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>". Defaults to "analytics_etl".
	JobName string

	// Tags are extra Datadog tags such as "service:etl".
	Tags []string

	// FlushEvery is the periodic submission interval. Defaults to 60s.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend and metrics.Flusher for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu     sync.Mutex
	window window
}

// window is one collection interval of buffered observations.
type window struct {
	steps     map[string]float64   // step\x00status -> count
	records   map[string]float64   // kind -> count
	batches   float64
	durations map[string][]float64 // step\x00status -> seconds
}

func newWindow() window {
	return window{
		steps:     make(map[string]float64),
		records:   make(map[string]float64),
		durations: make(map[string][]float64),
	}
}

func (w window) empty() bool {
	return len(w.steps) == 0 && len(w.records) == 0 && w.batches == 0 && len(w.durations) == 0
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend and starts its flush loop.
//
// Credentials and site come from the standard DD_API_KEY / DD_SITE
// environment variables via dd.NewDefaultContext. Network errors surface
// from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "analytics_etl"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        opts.now,
		newTicker:  opts.newTicker,
		window:     newWindow(),
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs a final Flush. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "etl_step_total":
		b.window.steps[stepStatusKey(labels["step"], labels["status"])] += delta
	case "etl_records_total":
		if kind := labels["kind"]; kind != "" {
			b.window.records[kind] += delta
		}
	case "etl_batches_total":
		b.window.batches += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != "etl_step_duration_seconds" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := stepStatusKey(labels["step"], labels["status"])
	b.window.durations[k] = append(b.window.durations[k], value)
}

func (b *Backend) swapWindow() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.window
	b.window = newWindow()
	return w
}

// Flush submits the current window and starts a new one. It returns nil
// without submitting when nothing was recorded. The window is discarded
// even when submission fails.
func (b *Backend) Flush() error {
	w := b.swapWindow()
	if w.empty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries converts a window to Datadog series at one timestamp.
func (b *Backend) buildSeries(w window, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(w.steps)+len(w.records)+6*len(w.durations)+1)

	for _, k := range sortedKeys(w.steps) {
		step, status := splitStepStatusKey(k)
		series = append(series, countSeries("etl.step.total", w.steps[k], withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for _, kind := range sortedKeys(w.records) {
		series = append(series, countSeries("etl.records.total", w.records[kind], withTags(b.baseTags, "kind:"+kind), nowUnix))
	}
	if w.batches != 0 {
		series = append(series, countSeries("etl.batches.total", w.batches, b.baseTags, nowUnix))
	}
	for _, k := range sortedKeys(w.durations) {
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		series = addPercentiles(series, "etl.step.duration_seconds", w.durations[k], tags, nowUnix)
	}
	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. samples is not
// modified.
func addPercentiles(series []datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	return append(series,
		gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(prefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(prefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return point(metric, datadogV2.METRICINTAKETYPE_COUNT, value, tags, nowUnix)
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return point(metric, datadogV2.METRICINTAKETYPE_GAUGE, value, tags, nowUnix)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	if i := strings.IndexByte(k, 0); i >= 0 {
		return k[:i], k[i+1:]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	return s[min(max(idx, 0), n-1)]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,service:etl".
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
