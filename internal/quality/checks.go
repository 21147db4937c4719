package quality

import (
	"fmt"

	"analyticsetl/internal/frame"
)

const maxExamples = 5

// RequireColumns fails with *SchemaError naming every column of cols absent
// from f, in the order given.
func RequireColumns(f *frame.Frame, dataset string, cols []string) error {
	var missing []string
	for _, c := range cols {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Dataset: dataset, Missing: missing}
	}
	return nil
}

// AssertNonEmpty fails with *EmptyDatasetError when f has no rows.
func AssertNonEmpty(f *frame.Frame, dataset string) error {
	if f.Len() == 0 {
		return &EmptyDatasetError{Dataset: dataset}
	}
	return nil
}

// AssertUniqueKey checks that present values of key never repeat.
//
// Edge cases:
//   - Missing values never count as duplicates of each other.
//   - When allowMissing is false any missing value fails first with
//     *MissingKeyError.
//
// Errors:
//   - *SchemaError when key is absent.
//   - *MissingKeyError, *DuplicateKeyError as above.
func AssertUniqueKey(f *frame.Frame, dataset, key string, allowMissing bool) error {
	c, ok := f.Column(key)
	if !ok {
		return &SchemaError{Dataset: dataset, Missing: []string{key}}
	}

	if !allowMissing {
		if n := frame.MissingCount(c); n > 0 {
			return &MissingKeyError{Dataset: dataset, Column: key, Count: n}
		}
	}

	seen := make(map[string]int, len(c.V))
	var dupOrder []string
	for _, v := range c.V {
		if frame.IsMissing(v) {
			continue
		}
		k := fmt.Sprint(v)
		seen[k]++
		if seen[k] == 2 {
			dupOrder = append(dupOrder, k)
		}
	}
	if len(dupOrder) == 0 {
		return nil
	}
	ex := dupOrder
	if len(ex) > maxExamples {
		ex = ex[:maxExamples]
	}
	return &DuplicateKeyError{Dataset: dataset, Column: key, Count: len(dupOrder), Examples: ex}
}

// AssertInRange checks that every present numeric value of col lies within
// the inclusive bounds [lo, hi]. Use math.Inf for an open side.
//
// Errors:
//   - *SchemaError when col is absent.
//   - *RangeError when any present value is out of bounds.
//   - A plain error when lo > hi or a present value is not numeric.
func AssertInRange(f *frame.Frame, dataset, col string, lo, hi float64) error {
	if lo > hi {
		return fmt.Errorf("%s: range check on %q: lo %g > hi %g", dataset, col, lo, hi)
	}
	c, ok := f.Column(col)
	if !ok {
		return &SchemaError{Dataset: dataset, Missing: []string{col}}
	}
	var rerr *RangeError
	for i, v := range c.V {
		if frame.IsMissing(v) {
			continue
		}
		x, ok := frame.Float(v)
		if !ok {
			return fmt.Errorf("%s: range check on %q: row %d value %v is not numeric", dataset, col, i, v)
		}
		if x >= lo && x <= hi {
			continue
		}
		if rerr == nil {
			rerr = &RangeError{Dataset: dataset, Column: col, Lo: lo, Hi: hi, First: x}
		}
		rerr.Count++
	}
	if rerr != nil {
		return rerr
	}
	return nil
}
