// Package frame provides the in-memory columnar record set shared by every
// pipeline stage.
//
// A Frame is an ordered list of equally long columns. Values are stored as
// []any holding string, int64, float64, bool or time.Time; nil is the missing
// marker. Frames are treated as immutable: every operation returns a new
// Frame and never writes into a column it did not allocate.
package frame

import (
	"fmt"
	"math"
	"time"
)

// Kind is the semantic type of a column.
type Kind uint8

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTimestamp
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Column is a named, typed value vector.
type Column struct {
	Name string
	Kind Kind
	V    []any
}

// Len returns the number of values in the column.
func (c Column) Len() int { return len(c.V) }

// Clone returns a column with a private copy of the value slice.
func (c Column) Clone() Column {
	v := make([]any, len(c.V))
	copy(v, c.V)
	return Column{Name: c.Name, Kind: c.Kind, V: v}
}

// Frame is an immutable, ordered set of columns of equal length.
type Frame struct {
	cols []Column
	idx  map[string]int
	rows int
}

// New builds a Frame from columns.
//
// Errors:
//   - Returns an error when column lengths differ or a name is repeated.
func New(cols ...Column) (*Frame, error) {
	f := &Frame{
		cols: make([]Column, 0, len(cols)),
		idx:  make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("frame: column %d has empty name", i)
		}
		if _, dup := f.idx[c.Name]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", c.Name)
		}
		if i == 0 {
			f.rows = len(c.V)
		} else if len(c.V) != f.rows {
			return nil, fmt.Errorf("frame: column %q has %d rows, want %d", c.Name, len(c.V), f.rows)
		}
		f.idx[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// MustNew is New for fixtures and literals known to be well formed.
func MustNew(cols ...Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// Empty returns a frame with the given text columns and no rows.
func Empty(names ...string) *Frame {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: KindText, V: []any{}}
	}
	return MustNew(cols...)
}

// Len returns the row count.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return f.rows
}

// Names returns column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.idx[name]
	return ok
}

// Column returns the named column. The returned value slice is shared with the
// frame and must not be modified.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.idx[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// Columns returns all columns in order (shared value slices, read-only).
func (f *Frame) Columns() []Column {
	out := make([]Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Value returns the value at (name, row) or nil when the column is absent.
func (f *Frame) Value(name string, row int) any {
	i, ok := f.idx[name]
	if !ok {
		return nil
	}
	return f.cols[i].V[row]
}

// With returns a new frame where col replaces the column of the same name,
// or is appended when no such column exists.
//
// Errors:
//   - Returns an error when col has a different length than the frame
//     (an empty frame with no columns accepts any length).
func (f *Frame) With(col Column) (*Frame, error) {
	if len(f.cols) > 0 && len(col.V) != f.rows {
		return nil, fmt.Errorf("frame: column %q has %d rows, want %d", col.Name, len(col.V), f.rows)
	}
	cols := make([]Column, len(f.cols), len(f.cols)+1)
	copy(cols, f.cols)
	if i, ok := f.idx[col.Name]; ok {
		cols[i] = col
	} else {
		cols = append(cols, col)
	}
	return New(cols...)
}

// MustWith is With for callers that construct col from the frame itself.
func (f *Frame) MustWith(col Column) *Frame {
	out, err := f.With(col)
	if err != nil {
		panic(err)
	}
	return out
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	cols := make([]Column, 0, len(f.cols))
	for _, c := range f.cols {
		if _, ok := skip[c.Name]; ok {
			continue
		}
		cols = append(cols, c)
	}
	out := MustNew(cols...)
	if len(cols) == 0 {
		out.rows = 0
	}
	return out
}

// Take returns a frame holding the rows at the given indices, in that order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		v := make([]any, len(rows))
		for j, r := range rows {
			v[j] = c.V[r]
		}
		cols[i] = Column{Name: c.Name, Kind: c.Kind, V: v}
	}
	out := MustNew(cols...)
	out.rows = len(rows)
	return out
}

// Row returns a map view of one row; intended for tests and diagnostics.
func (f *Frame) Row(i int) map[string]any {
	out := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		out[c.Name] = c.V[i]
	}
	return out
}

// IsMissing reports whether v is the missing marker. Float NaN counts as
// missing so arithmetic results never masquerade as values.
func IsMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

// Float returns v as float64 when it is a present numeric value.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// Floats extracts a column as float64 with a parallel presence mask.
func Floats(c Column) (vals []float64, present []bool) {
	vals = make([]float64, len(c.V))
	present = make([]bool, len(c.V))
	for i, v := range c.V {
		vals[i], present[i] = Float(v)
	}
	return vals, present
}

// MissingCount returns how many values in c are missing.
func MissingCount(c Column) int {
	n := 0
	for _, v := range c.V {
		if IsMissing(v) {
			n++
		}
	}
	return n
}
