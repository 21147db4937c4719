package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	calls    []call
	flushErr error
	flushes  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushes++
	return r.flushErr
}

func TestStepDone_RecordsCounterAndDuration(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	StepDone("join", time.Now().Add(-time.Second), nil)
	StepDone("gate", time.Now(), errors.New("boom"))

	require.Len(t, r.calls, 4)
	assert.Equal(t, "etl_step_total", r.calls[0].name)
	assert.Equal(t, Labels{"step": "join", "status": "ok"}, r.calls[0].labels)
	assert.Equal(t, "etl_step_duration_seconds", r.calls[1].name)
	assert.GreaterOrEqual(t, r.calls[1].value, 1.0)
	assert.Equal(t, "error", r.calls[2].labels["status"])
}

func TestRows_SkipsNonPositive(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	Rows("analytics", 0)
	Rows("analytics", 3)
	Batch()

	require.Len(t, r.calls, 2)
	assert.Equal(t, 3.0, r.calls[0].value)
	assert.Equal(t, "etl_batches_total", r.calls[1].name)
}

func TestFlush_DelegatesToFlusher(t *testing.T) {
	r := &recorder{flushErr: errors.New("submit failed")}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	assert.EqualError(t, Flush(), "submit failed")
	assert.Equal(t, 1, r.flushes)

	SetBackend(nil)
	assert.NoError(t, Flush(), "nop backend does not buffer")
}
