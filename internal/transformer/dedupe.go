package transformer

import (
	"fmt"
	"strings"
	"time"

	"analyticsetl/internal/frame"
)

// DedupeLatest keeps one row per key combination: the one with the latest
// tsCol value.
//
// Edge cases:
//   - Missing timestamps rank below every present one.
//   - On equal timestamps (or both missing) the later row wins.
//   - Missing key values form their own group per combination.
//   - Output rows are ordered by the first appearance of their key.
//
// Errors:
//   - Any key column or tsCol is absent.
func DedupeLatest(f *frame.Frame, keys []string, tsCol string) (*frame.Frame, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("dedupe: no key columns")
	}
	keyCols := make([]frame.Column, len(keys))
	for i, k := range keys {
		c, ok := f.Column(k)
		if !ok {
			return nil, fmt.Errorf("dedupe: missing key column %q", k)
		}
		keyCols[i] = c
	}
	ts, ok := f.Column(tsCol)
	if !ok {
		return nil, fmt.Errorf("dedupe: missing timestamp column %q", tsCol)
	}

	best := make(map[string]int, f.Len())
	var order []string
	var b strings.Builder
	for row := 0; row < f.Len(); row++ {
		b.Reset()
		for i, c := range keyCols {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			if frame.IsMissing(c.V[row]) {
				b.WriteByte('\x00')
				continue
			}
			b.WriteString(fmt.Sprint(c.V[row]))
		}
		key := b.String()

		cur, seen := best[key]
		if !seen {
			best[key] = row
			order = append(order, key)
			continue
		}
		if !tsAfter(ts.V[cur], ts.V[row]) {
			best[key] = row
		}
	}

	rows := make([]int, len(order))
	for i, k := range order {
		rows[i] = best[k]
	}
	return f.Take(rows), nil
}

// tsAfter reports whether a is strictly later than b, with missing lowest.
func tsAfter(a, b any) bool {
	am, bm := frame.IsMissing(a), frame.IsMissing(b)
	switch {
	case am:
		return false
	case bm:
		return true
	}
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.After(bt)
	}
	af, aok := frame.Float(a)
	bf, bok := frame.Float(b)
	if aok && bok {
		return af > bf
	}
	// Unparsed text timestamps compare lexically, which is correct for ISO 8601.
	return fmt.Sprint(a) > fmt.Sprint(b)
}
