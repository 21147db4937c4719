package transformer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyticsetl/internal/frame"
)

func TestNormalizeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" Paid ", "paid"},
		{"PAID\t\tLATE", "paid late"},
		{"  Straße  ", "strasse"},
		{"refunded", "refunded"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeString(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	in := text("status", " Paid ", "SHIPPED  now", nil, "ǅemal", "ΣΊΣΥΦΟΣ", " x ")
	once := NormalizeText(in)
	twice := NormalizeText(once)
	assert.Equal(t, once.V, twice.V)
	assert.Nil(t, once.V[2])
}

func TestNormalizeStatus(t *testing.T) {
	f := frame.MustNew(text("status", " Paid "))
	out, err := NormalizeStatus(f)
	require.NoError(t, err)
	assert.Equal(t, "paid", out.Value("status_clean", 0))
	assert.Equal(t, " Paid ", out.Value("status", 0))

	_, err = NormalizeStatus(frame.MustNew(text("other", "x")))
	require.Error(t, err)
}

func TestMapping(t *testing.T) {
	m := Mapping{"usa": "US", "u.s.": "US"}
	assert.Equal(t, "US", m.Lookup("usa"))
	assert.Equal(t, "DE", m.Lookup("DE"))

	f := frame.MustNew(text("country", "usa", "DE", nil))
	out, err := ApplyMapping(f, "country", m)
	require.NoError(t, err)
	assert.Equal(t, []any{"US", "DE", nil}, []any{out.Value("country", 0), out.Value("country", 1), out.Value("country", 2)})
}

func TestAddMissingFlags(t *testing.T) {
	f := frame.MustNew(
		frame.Column{Name: "amount", Kind: frame.KindFloat, V: []any{1.0, nil}},
		frame.Column{Name: "quantity", Kind: frame.KindInt, V: []any{nil, int64(3)}},
	)
	out, err := AddMissingFlags(f, "amount", "quantity")
	require.NoError(t, err)
	assert.Equal(t, false, out.Value("amount_missing", 0))
	assert.Equal(t, true, out.Value("amount_missing", 1))
	assert.Equal(t, true, out.Value("quantity_missing", 0))

	// Existing flags survive later fills.
	filled := out.MustWith(frame.Column{Name: "amount", Kind: frame.KindFloat, V: []any{1.0, 0.0}})
	again, err := AddMissingFlags(filled, "amount")
	require.NoError(t, err)
	assert.Equal(t, true, again.Value("amount_missing", 1))

	_, err = AddMissingFlags(f, "nope")
	require.Error(t, err)
}

func TestDedupeLatest(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	f := frame.MustNew(
		text("order_id", "o1", "o2", "o1", "o2", "o3", "o3"),
		frame.Column{Name: "created_at", Kind: frame.KindTimestamp, V: []any{t2, nil, t1, t1, t1, t1}},
		text("tag", "a", "b", "c", "d", "e", "f"),
	)

	out, err := DedupeLatest(f, []string{"order_id"}, "created_at")
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "o1", out.Value("order_id", 0))
	assert.Equal(t, "a", out.Value("tag", 0), "max timestamp wins")
	assert.Equal(t, "d", out.Value("tag", 1), "missing ranks lowest")
	assert.Equal(t, "f", out.Value("tag", 2), "ties keep the later row")

	_, err = DedupeLatest(f, []string{"nope"}, "created_at")
	require.Error(t, err)
	_, err = DedupeLatest(f, nil, "created_at")
	require.Error(t, err)
}

func TestAddTimeParts(t *testing.T) {
	f := frame.MustNew(frame.Column{
		Name: "created_at",
		Kind: frame.KindTimestamp,
		V:    []any{time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC), nil},
	})
	out, err := AddTimeParts(f, "created_at")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), out.Value("date", 0))
	assert.Equal(t, int64(2024), out.Value("year", 0))
	assert.Equal(t, "2024-01", out.Value("month", 0))
	assert.Equal(t, "Monday", out.Value("dow", 0))
	assert.Equal(t, int64(13), out.Value("hour", 0))
	for _, c := range TimePartColumns {
		assert.Nil(t, out.Value(c, 1), c)
	}

	_, err = AddTimeParts(f, "nope")
	require.Error(t, err)
}

func TestCleanOrders_FractionalQuantityIsMissing(t *testing.T) {
	f := frame.MustNew(
		text("order_id", "o1", "o2", "o3"),
		text("amount", "1", "2", "3"),
		text("quantity", "2", "2.5", "abc"),
		text("created_at", nil, nil, nil),
	)

	out, results := CleanOrders(f)

	q := resultFor(t, results, "quantity")
	assert.Equal(t, Coerced, q.Outcome)
	assert.Nil(t, q.Err)
	assert.Equal(t, 2, q.Invalid)

	c, _ := out.Column("quantity")
	assert.Equal(t, frame.KindInt, c.Kind)
	assert.Equal(t, []any{int64(2), nil, nil}, c.V)

	flagged, err := AddMissingFlags(out, "quantity")
	require.NoError(t, err)
	qm, ok := flagged.Column("quantity_missing")
	require.True(t, ok)
	assert.Equal(t, []any{false, true, true}, qm.V)
}

func TestEnforceSchemaWith_FractionalAsInvalidOnlyWhenAsked(t *testing.T) {
	f := frame.MustNew(text("quantity", "1", "1.5"))

	_, results := EnforceSchema(f, Schema{"quantity": TypeInteger})
	assert.Equal(t, KeptOriginal, resultFor(t, results, "quantity").Outcome)

	out, results := EnforceSchemaWith(f, Schema{"quantity": TypeInteger}, EnforceOptions{FractionalAsInvalid: true})
	assert.Equal(t, Coerced, resultFor(t, results, "quantity").Outcome)
	assert.Equal(t, 1, resultFor(t, results, "quantity").Invalid)
	assert.Nil(t, out.Value("quantity", 1))
}
