package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsRaggedColumns(t *testing.T) {
	_, err := New(
		Column{Name: "a", V: []any{"x", "y"}},
		Column{Name: "b", V: []any{"x"}},
	)
	require.Error(t, err)

	_, err = New(
		Column{Name: "a", V: []any{"x"}},
		Column{Name: "a", V: []any{"y"}},
	)
	require.Error(t, err)
}

func TestWith_ReplacesAndAppendsWithoutMutatingSource(t *testing.T) {
	f := MustNew(Column{Name: "a", Kind: KindText, V: []any{"x", "y"}})

	g, err := f.With(Column{Name: "a", Kind: KindText, V: []any{"X", "Y"}})
	require.NoError(t, err)
	h, err := g.With(Column{Name: "b", Kind: KindInt, V: []any{int64(1), nil}})
	require.NoError(t, err)

	assert.Equal(t, "x", f.Value("a", 0))
	assert.Equal(t, "X", g.Value("a", 0))
	assert.Equal(t, []string{"a", "b"}, h.Names())
	assert.Equal(t, 2, h.Len())

	_, err = h.With(Column{Name: "c", V: []any{1}})
	require.Error(t, err)
}

func TestDropAndTake(t *testing.T) {
	f := MustNew(
		Column{Name: "a", V: []any{"1", "2", "3"}},
		Column{Name: "b", V: []any{"x", "y", "z"}},
	)

	d := f.Drop("b", "missing")
	assert.Equal(t, []string{"a"}, d.Names())
	assert.Equal(t, 3, d.Len())

	tk := f.Take([]int{2, 0})
	assert.Equal(t, 2, tk.Len())
	assert.Equal(t, "3", tk.Value("a", 0))
	assert.Equal(t, "x", tk.Value("b", 1))
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(nil))
	assert.True(t, IsMissing(math.NaN()))
	assert.True(t, IsMissing(time.Time{}))
	assert.False(t, IsMissing(""))
	assert.False(t, IsMissing(0.0))
	assert.False(t, IsMissing(false))
}

func TestFloats(t *testing.T) {
	c := Column{Name: "n", V: []any{int64(2), 1.5, nil, "x"}}
	vals, present := Floats(c)
	assert.Equal(t, []bool{true, true, false, false}, present)
	assert.Equal(t, 2.0, vals[0])
	assert.Equal(t, 1.5, vals[1])
	assert.Equal(t, 2, MissingCount(Column{V: []any{nil, 1.0, math.NaN()}}))
}
