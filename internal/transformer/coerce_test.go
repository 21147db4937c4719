package transformer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyticsetl/internal/frame"
)

func text(name string, v ...any) frame.Column {
	return frame.Column{Name: name, Kind: frame.KindText, V: v}
}

func resultFor(t *testing.T, results []CoercionResult, col string) CoercionResult {
	t.Helper()
	for _, r := range results {
		if r.Column == col {
			return r
		}
	}
	t.Fatalf("no coercion result for %q", col)
	return CoercionResult{}
}

func TestEnforceSchema_CoercesAndCountsInvalid(t *testing.T) {
	f := frame.MustNew(
		text("amount", "100", "abc", nil, "1e2"),
		text("quantity", "2", "2.0", "x", nil),
		text("created_at", "2024-01-01T00:00:00Z", "2024-01-01 10:30:00", "yesterday", "2024-01-01T02:00:00+02:00"),
	)

	out, results := EnforceSchema(f, Schema{
		"amount":     TypeFloat,
		"quantity":   TypeInteger,
		"created_at": TypeTimestamp,
		"absent":     TypeText,
	})

	require.Len(t, results, 4)
	assert.Equal(t, []string{"absent", "amount", "created_at", "quantity"},
		[]string{results[0].Column, results[1].Column, results[2].Column, results[3].Column})

	assert.Equal(t, Skipped, resultFor(t, results, "absent").Outcome)
	assert.False(t, out.Has("absent"))

	amt := resultFor(t, results, "amount")
	assert.Equal(t, Coerced, amt.Outcome)
	assert.Equal(t, 1, amt.Invalid)
	assert.Equal(t, 100.0, out.Value("amount", 0))
	assert.Nil(t, out.Value("amount", 1))
	assert.Nil(t, out.Value("amount", 2))
	assert.Equal(t, 100.0, out.Value("amount", 3))

	qty := resultFor(t, results, "quantity")
	assert.Equal(t, Coerced, qty.Outcome)
	assert.Equal(t, 1, qty.Invalid)
	assert.Equal(t, int64(2), out.Value("quantity", 1))

	ts := resultFor(t, results, "created_at")
	assert.Equal(t, Coerced, ts.Outcome)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), out.Value("created_at", 0))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), out.Value("created_at", 1))
	assert.Nil(t, out.Value("created_at", 2))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), out.Value("created_at", 3))

	c, _ := out.Column("quantity")
	assert.Equal(t, frame.KindInt, c.Kind)
}

func TestEnforceSchema_WholeColumnFailuresKeepOriginal(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := frame.MustNew(
		frame.Column{Name: "created_at", Kind: frame.KindTimestamp, V: []any{ts}},
		text("quantity", "2.5"),
		text("status", "paid"),
	)

	out, results := EnforceSchema(f, Schema{
		"created_at": TypeFloat,
		"quantity":   TypeInteger,
		"status":     Type("uuid"),
	})

	for _, col := range []string{"created_at", "quantity", "status"} {
		r := resultFor(t, results, col)
		assert.Equal(t, KeptOriginal, r.Outcome, col)
		require.NotNil(t, r.Err, col)
		assert.Equal(t, col, r.Err.Column)
	}
	assert.Equal(t, ts, out.Value("created_at", 0))
	assert.Equal(t, "2.5", out.Value("quantity", 0))
	assert.Len(t, Failures(results), 3)
}

func TestEnforceSchema_DoesNotMutateInput(t *testing.T) {
	f := frame.MustNew(text("amount", "1"))
	_, _ = EnforceSchema(f, Schema{"amount": TypeFloat})
	assert.Equal(t, "1", f.Value("amount", 0))
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeInteger, ParseType("bigint"))
	assert.Equal(t, TypeFloat, ParseType(" Double "))
	assert.Equal(t, TypeTimestamp, ParseType("datetime"))
	assert.Equal(t, Type("blob"), ParseType("blob"))
}

func TestCleanUsers_DayFirst(t *testing.T) {
	f := frame.MustNew(
		text("user_id", "u1", "u2", "u3", "u4"),
		text("signup_date", "03/04/2024", "2024-04-03", "31.12.2023", "13/13/2024"),
	)
	out, results := CleanUsers(f)

	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), out.Value("signup_date", 0))
	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), out.Value("signup_date", 1))
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), out.Value("signup_date", 2))
	assert.Nil(t, out.Value("signup_date", 3))
	assert.Equal(t, 1, resultFor(t, results, "signup_date").Invalid)
}

func TestParseTimestamp_Layouts(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T10:00:00Z", want},
		{"2024-01-01T10:00:00.000Z", want},
		{"2024-01-01T12:00:00+02:00", want},
		{"2024-01-01T10:00:00+0000", want},
		{"2024-01-01T11:00:00+0100", want},
		{"2024-01-01T10:00:00", want},
		{"2024-01-01T10:00", want},
		{"2024-01-01 10:00:00", want},
		{"2024-01-01 10:00:00.5", want.Add(500 * time.Millisecond)},
		{"2024-01-01 12:00:00+02:00", want},
		{"2024-01-01 10:00:00+0000", want},
		{"2024-01-01 12:00:00+02", want},
		{"2024-01-01 10:00", want},
		{"2024/01/01 10:00:00", want},
		{"2024/01/01 10:00", want},
		{"2024/01/01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, ok := parseTimestamp(tc.in)
		if !ok {
			t.Fatalf("parseTimestamp(%q) failed", tc.in)
		}
		if !got.Equal(tc.want) || got.Location() != time.UTC {
			t.Fatalf("parseTimestamp(%q)=%v, want %v UTC", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "01/02/2024 10:00", "2024-13-01"} {
		if _, ok := parseTimestamp(bad); ok {
			t.Fatalf("parseTimestamp(%q) ok, want failure", bad)
		}
	}
}
