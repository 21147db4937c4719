package builtin

import (
	"testing"
	"time"

	"analyticsetl/internal/frame"
)

func orderFrame(ids []any, statuses []any) *frame.Frame {
	return frame.MustNew(
		frame.Column{Name: "order_id", Kind: frame.KindText, V: ids},
		frame.Column{Name: "status", Kind: frame.KindText, V: statuses},
	)
}

func TestHash_Deterministic_WithTrim(t *testing.T) {
	h := Hash{
		Fields:            []string{"order_id", "status"},
		TargetField:       "row_hash",
		IncludeFieldNames: true,
		TrimSpace:         true,
		Overwrite:         true,
	}

	a, err := h.Apply(orderFrame([]any{"o1"}, []any{" paid "}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	b, err := h.Apply(orderFrame([]any{"o1"}, []any{"paid"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	s1, ok := a.Value("row_hash", 0).(string)
	if !ok || len(s1) != 64 {
		t.Fatalf("expected 64-char hex row_hash, got=%T %v", a.Value("row_hash", 0), a.Value("row_hash", 0))
	}
	if s2 := b.Value("row_hash", 0); s1 != s2 {
		t.Fatalf("expected same hash after trimming; s1=%q s2=%q", s1, s2)
	}
}

func TestHash_ChangesWhenFieldChanges(t *testing.T) {
	h := Hash{Fields: []string{"order_id", "status"}, TargetField: "row_hash", Overwrite: true}

	out, err := h.Apply(orderFrame([]any{"o1", "o1"}, []any{"paid", "refunded"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Value("row_hash", 0) == out.Value("row_hash", 1) {
		t.Fatalf("expected different hashes when inputs differ; both=%v", out.Value("row_hash", 0))
	}
}

func TestHash_MissingVsEmptyDifferent(t *testing.T) {
	h := Hash{Fields: []string{"order_id", "status"}, TargetField: "row_hash", Overwrite: true}

	out, err := h.Apply(orderFrame([]any{"o1", "o1"}, []any{nil, ""}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Value("row_hash", 0) == out.Value("row_hash", 1) {
		t.Fatalf("expected different hashes for missing vs empty; got=%v", out.Value("row_hash", 0))
	}
}

func TestHash_DefaultFieldsCoverAllColumns(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := frame.MustNew(
		frame.Column{Name: "order_id", Kind: frame.KindText, V: []any{"o1", "o1"}},
		frame.Column{Name: "created_at", Kind: frame.KindTimestamp, V: []any{ts, ts.Add(time.Second)}},
	)

	out, err := Hash{TargetField: "row_hash"}.Apply(f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Value("row_hash", 0) == out.Value("row_hash", 1) {
		t.Fatalf("expected created_at to participate in the default field set")
	}
}

func TestHash_OverwriteFalsePreservesExisting(t *testing.T) {
	f := frame.MustNew(
		frame.Column{Name: "order_id", Kind: frame.KindText, V: []any{"o1"}},
		frame.Column{Name: "row_hash", Kind: frame.KindText, V: []any{"preexisting"}},
	)

	out, err := Hash{Fields: []string{"order_id"}, TargetField: "row_hash"}.Apply(f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := out.Value("row_hash", 0); got != "preexisting" {
		t.Fatalf("expected preexisting preserved, got=%v", got)
	}
}

func TestHash_UnknownFieldFails(t *testing.T) {
	_, err := Hash{Fields: []string{"nope"}, TargetField: "row_hash"}.Apply(orderFrame([]any{"o1"}, []any{"paid"}))
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestHasEdgeSpace(t *testing.T) {
	cases := map[string]bool{"": false, "a": false, " a": true, "a\t": true, "a b": false}
	for in, want := range cases {
		if got := HasEdgeSpace(in); got != want {
			t.Fatalf("HasEdgeSpace(%q)=%v want %v", in, got, want)
		}
	}
}

func BenchmarkHashApply(b *testing.B) {
	const n = 10_000
	ids := make([]any, n)
	statuses := make([]any, n)
	for i := 0; i < n; i++ {
		ids[i] = "o" + itoaBench(i)
		statuses[i] = " paid "
	}
	f := orderFrame(ids, statuses)
	h := Hash{
		Fields:            []string{"order_id", "status"},
		TargetField:       "row_hash",
		IncludeFieldNames: true,
		TrimSpace:         true,
		Overwrite:         true,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Apply(f); err != nil {
			b.Fatal(err)
		}
	}
}

func itoaBench(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [16]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + (i % 10))
		i /= 10
	}
	return string(buf[pos:])
}
