// Package join implements the validated left join used to attach users to
// orders.
package join

import (
	"fmt"

	"analyticsetl/internal/frame"
)

// Validate is the declared cardinality of a join.
type Validate uint8

const (
	// ManyToOne requires the right side to be unique on present keys.
	ManyToOne Validate = iota
	// OneToOne additionally requires the left side to be unique.
	OneToOne
)

func (v Validate) String() string {
	switch v {
	case ManyToOne:
		return "many_to_one"
	case OneToOne:
		return "one_to_one"
	default:
		return fmt.Sprintf("validate(%d)", uint8(v))
	}
}

// DefaultSuffix is appended to overlapping right-side column names.
const DefaultSuffix = "_user"

// Options configures SafeLeftJoin.
type Options struct {
	Validate Validate
	// Suffix for right columns whose name collides with a left column.
	// Empty means DefaultSuffix.
	Suffix string
}

// Stats describes one join.
type Stats struct {
	LeftRows  int
	RightRows int
	OutRows   int
	// Matched counts output rows that found a right-side row.
	Matched int
}

// MatchRate is Matched / OutRows, or 0 for an empty join.
func (s Stats) MatchRate() float64 {
	if s.OutRows == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.OutRows)
}

// JoinCardinalityError means a side that must be unique on the key is not.
type JoinCardinalityError struct {
	Side     string
	Key      string
	Validate Validate
	Value    string
}

func (e *JoinCardinalityError) Error() string {
	return fmt.Sprintf("join %s: %s side is not unique on %q (value %q repeats)", e.Validate, e.Side, e.Key, e.Value)
}

// RowCountInvariantViolation means the output row count differs from the left
// row count.
type RowCountInvariantViolation struct {
	Left, Out int
}

func (e *RowCountInvariantViolation) Error() string {
	return fmt.Sprintf("join changed row count: left=%d out=%d", e.Left, e.Out)
}

// SafeLeftJoin joins right onto left by the key column on.
//
// Edge cases:
//   - Missing keys never match, on either side.
//   - Non-key right columns that collide with left names get Suffix.
//   - Unmatched left rows get missing values in every right column.
//
// Errors:
//   - A key column is absent from either side.
//   - *JoinCardinalityError when the declared cardinality does not hold;
//     checked before any row is produced.
//   - *RowCountInvariantViolation when the output row count differs from the
//     left row count.
func SafeLeftJoin(left, right *frame.Frame, on string, opt Options) (*frame.Frame, Stats, error) {
	st := Stats{LeftRows: left.Len(), RightRows: right.Len()}
	suffix := opt.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}

	lk, ok := left.Column(on)
	if !ok {
		return nil, st, fmt.Errorf("join: left side has no key column %q", on)
	}
	rk, ok := right.Column(on)
	if !ok {
		return nil, st, fmt.Errorf("join: right side has no key column %q", on)
	}

	index, err := uniqueIndex(rk, "right", opt.Validate)
	if err != nil {
		return nil, st, err
	}
	if opt.Validate == OneToOne {
		if _, err := uniqueIndex(lk, "left", opt.Validate); err != nil {
			return nil, st, err
		}
	}

	// match[i] is the right row for left row i, or -1.
	match := make([]int, len(lk.V))
	for i, v := range lk.V {
		match[i] = -1
		if frame.IsMissing(v) {
			continue
		}
		if r, ok := index[keyString(v)]; ok {
			match[i] = r
			st.Matched++
		}
	}

	cols := left.Columns()
	for _, rc := range right.Columns() {
		if rc.Name == on {
			continue
		}
		name := rc.Name
		if left.Has(name) {
			name += suffix
		}
		v := make([]any, len(match))
		for i, r := range match {
			if r >= 0 {
				v[i] = rc.V[r]
			}
		}
		cols = append(cols, frame.Column{Name: name, Kind: rc.Kind, V: v})
	}

	out, err := frame.New(cols...)
	if err != nil {
		return nil, st, fmt.Errorf("join: %w", err)
	}
	st.OutRows = out.Len()
	if err := CheckRowCount(st.LeftRows, st.OutRows); err != nil {
		return nil, st, err
	}
	return out, st, nil
}

// CheckRowCount returns *RowCountInvariantViolation when left != out.
func CheckRowCount(left, out int) error {
	if left != out {
		return &RowCountInvariantViolation{Left: left, Out: out}
	}
	return nil
}

// uniqueIndex maps each present key to its row and fails on the first repeat.
func uniqueIndex(c frame.Column, side string, v Validate) (map[string]int, error) {
	idx := make(map[string]int, len(c.V))
	for i, x := range c.V {
		if frame.IsMissing(x) {
			continue
		}
		k := keyString(x)
		if _, dup := idx[k]; dup {
			return nil, &JoinCardinalityError{Side: side, Key: c.Name, Validate: v, Value: k}
		}
		idx[k] = i
	}
	return idx, nil
}

// keyString renders key values so that text "1" and integer 1 join, which
// matches user_id being read as text on one side and typed on the other.
func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
