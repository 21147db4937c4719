// Package outlier computes IQR bounds, winsorized series and outlier flags.
//
// The flag and the winsorized value are derived independently from the same
// input column, so neither depends on the other having run.
package outlier

import (
	"fmt"
	"math"
	"sort"

	"analyticsetl/internal/frame"
)

// Default winsorization percentiles and IQR multiplier.
const (
	DefaultLoPct = 0.01
	DefaultHiPct = 0.99
	DefaultK     = 1.5
)

// Suffixes of the derived columns.
const (
	FlagSuffix   = "_is_outlier"
	WinsorSuffix = "_winsor"
)

// Quantile returns the q-quantile of sorted using the Hazen definition
// (piecewise linear between midpoints: rank n*q + 0.5). sorted must be
// ascending and non-empty; ranks outside the sample clamp to its ends.
//
// With five values [1 2 3 4 100] this gives Q1 = 1.75 and Q3 = 28, so a
// single extreme value widens the IQR instead of hiding inside it.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	pos := float64(n)*q - 0.5
	if pos <= 0 {
		return sorted[0]
	}
	if pos >= float64(n-1) {
		return sorted[n-1]
	}
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Bounds is a closed interval. Valid is false when it was computed from no
// values.
type Bounds struct {
	Lo, Hi float64
	Valid  bool
}

// Contains reports whether x lies within the bounds. Invalid bounds contain
// everything.
func (b Bounds) Contains(x float64) bool {
	if !b.Valid {
		return true
	}
	return x >= b.Lo && x <= b.Hi
}

// present returns the sorted non-missing values of c.
func present(c frame.Column) []float64 {
	vals, ok := frame.Floats(c)
	out := make([]float64, 0, len(vals))
	for i, v := range vals {
		if ok[i] {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// IQRBounds returns [Q1 - k*IQR, Q3 + k*IQR] over the present values of c.
// A constant column yields Lo == Hi == that value.
func IQRBounds(c frame.Column, k float64) Bounds {
	s := present(c)
	if len(s) == 0 {
		return Bounds{}
	}
	q1 := Quantile(s, 0.25)
	q3 := Quantile(s, 0.75)
	iqr := q3 - q1
	return Bounds{Lo: q1 - k*iqr, Hi: q3 + k*iqr, Valid: true}
}

// PercentileBounds returns the [loPct, hiPct] quantiles over the present
// values of c.
func PercentileBounds(c frame.Column, loPct, hiPct float64) Bounds {
	s := present(c)
	if len(s) == 0 {
		return Bounds{}
	}
	return Bounds{Lo: Quantile(s, loPct), Hi: Quantile(s, hiPct), Valid: true}
}

// Winsorize clips every present value of c to its [loPct, hiPct] quantile
// interval. Missing values stay missing. The result is a float column with the
// same name.
func Winsorize(c frame.Column, loPct, hiPct float64) (frame.Column, error) {
	if loPct < 0 || hiPct > 1 || loPct > hiPct {
		return frame.Column{}, fmt.Errorf("winsorize %s: invalid percentiles [%g, %g]", c.Name, loPct, hiPct)
	}
	b := PercentileBounds(c, loPct, hiPct)
	vals, ok := frame.Floats(c)
	out := make([]any, len(vals))
	for i, v := range vals {
		if !ok[i] {
			continue
		}
		out[i] = math.Min(math.Max(v, b.Lo), b.Hi)
	}
	return frame.Column{Name: c.Name, Kind: frame.KindFloat, V: out}, nil
}

// Flags marks present values of c outside IQRBounds(c, k). Missing values
// and invalid bounds yield false.
func Flags(c frame.Column, k float64) []bool {
	b := IQRBounds(c, k)
	vals, ok := frame.Floats(c)
	out := make([]bool, len(vals))
	if !b.Valid {
		return out
	}
	for i, v := range vals {
		out[i] = ok[i] && (v < b.Lo || v > b.Hi)
	}
	return out
}

// AddOutlierFlag adds <col>_is_outlier to f.
func AddOutlierFlag(f *frame.Frame, col string, k float64) (*frame.Frame, error) {
	c, ok := f.Column(col)
	if !ok {
		return nil, fmt.Errorf("outlier flag: missing column %q", col)
	}
	if k < 0 {
		return nil, fmt.Errorf("outlier flag: negative k %g", k)
	}
	flags := Flags(c, k)
	v := make([]any, len(flags))
	for i, b := range flags {
		v[i] = b
	}
	return f.With(frame.Column{Name: col + FlagSuffix, Kind: frame.KindBool, V: v})
}

// AddWinsorized adds <col>_winsor to f.
func AddWinsorized(f *frame.Frame, col string, loPct, hiPct float64) (*frame.Frame, error) {
	c, ok := f.Column(col)
	if !ok {
		return nil, fmt.Errorf("winsorize: missing column %q", col)
	}
	w, err := Winsorize(c, loPct, hiPct)
	if err != nil {
		return nil, err
	}
	w.Name = col + WinsorSuffix
	return f.With(w)
}
