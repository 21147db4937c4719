package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"analyticsetl/internal/metrics"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func idleTicker(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) }

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "job1",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: idleTicker,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "  ", dd: "\t", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	for _, tc := range [][2]string{{"join", "ok"}, {"", "error"}, {"gate", ""}} {
		step, status := splitStepStatusKey(stepStatusKey(tc[0], tc[1]))
		if step != tc[0] || status != tc[1] {
			t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc[0], tc[1])
		}
	}
	if step, status := splitStepStatusKey("no-sep"); step != "no-sep" || status != "unknown" {
		t.Fatalf("got (%q,%q)", step, status)
	}
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	base := []string{"env:test", "job:etl"}
	got := withTags(base, "step:join")
	if !reflect.DeepEqual(got, []string{"env:test", "job:etl", "step:join"}) {
		t.Fatalf("withTags()=%v", got)
	}
	got[0] = "env:mutated"
	if base[0] != "env:test" {
		t.Fatalf("withTags output aliases base")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		s    []float64
		p    float64
		want float64
	}{
		{nil, 0.5, 0},
		{[]float64{7}, 0.95, 7},
		{[]float64{1, 2, 3}, -1, 1},
		{[]float64{1, 2, 3}, 2, 3},
		{[]float64{1, 2, 3, 4, 5}, 0.5, 3},
		{[]float64{1, 2, 3, 4, 5}, 0.9, 5},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
			t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
		}
	}
}

func TestAddPercentiles_DoesNotMutateSamples(t *testing.T) {
	in := []float64{5, 1, 3, 2, 4}
	series := addPercentiles(nil, "etl.step.duration_seconds", in, []string{"step:join"}, 1)
	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, []float64{5, 1, 3, 2, 4}) {
		t.Fatalf("samples mutated: %v", in)
	}
	if last := series[5]; last.Metric != "etl.step.duration_seconds.samples" || *last.Points[0].Value != 5 {
		t.Fatalf("unexpected samples gauge: %+v", last)
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"service:etl"},
		submitter: &fakeSubmitter{},
		newTicker: idleTicker,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:analytics_etl") || !contains(b.baseTags, "service:etl") {
		t.Fatalf("unexpected base tags: %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("etl_step_total", 1, metrics.Labels{"step": "join", "status": "ok"})
	b.IncCounter("etl_records_total", 4, metrics.Labels{"kind": "analytics"})
	b.IncCounter("etl_records_total", 4, metrics.Labels{})
	b.IncCounter("etl_batches_total", 2, nil)
	b.IncCounter("etl_unknown", 1, nil)
	b.ObserveHistogram("etl_step_duration_seconds", 0.5, metrics.Labels{"step": "join", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if !b.window.empty() {
		t.Fatalf("window not reset after Flush")
	}

	var names []string
	for _, s := range fs.last().Series {
		names = append(names, s.Metric)
		if *s.Points[0].Timestamp != 1000 {
			t.Fatalf("series %s has timestamp %d", s.Metric, *s.Points[0].Timestamp)
		}
	}
	for _, want := range []string{
		"etl.step.total",
		"etl.records.total",
		"etl.batches.total",
		"etl.step.duration_seconds.p50",
		"etl.step.duration_seconds.samples",
	} {
		if !contains(names, want) {
			t.Fatalf("payload missing %q; got=%v", want, names)
		}
	}
	// 1 step + 1 record kind + 1 batch + 6 duration gauges.
	if len(names) != 9 {
		t.Fatalf("series count=%d, want 9: %v", len(names), names)
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submissions=%d, want 0", fs.count())
	}
}

func TestFlush_SubmitErrorDropsWindow(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("403")}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("etl_batches_total", 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}
	fs.err = nil
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("failed window must not be resubmitted; submissions=%d", fs.count())
	}
}

func TestClose_FlushesTailAndIsRepeatable(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("etl_records_total", 1, metrics.Labels{"kind": "users"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submissions=%d, want 1", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLoop_FlushesOnTick(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		submitter:  fs,
		FlushEvery: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter("etl_batches_total", 1, nil)
	deadline := time.Now().Add(2 * time.Second)
	for fs.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not flush within deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod, ,service:etl ")
	if !reflect.DeepEqual(got, []string{"env:prod", "service:etl"}) {
		t.Fatalf("ParseTagsCSV()=%v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("empty input must return nil")
	}
}
