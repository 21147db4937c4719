package transformer

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"analyticsetl/internal/frame"
)

// NormalizeString trims s, applies Unicode case folding and collapses runs of
// whitespace to a single space. It is idempotent.
func NormalizeString(s string) string {
	return normalizeWith(cases.Fold(), s)
}

func normalizeWith(fold cases.Caser, s string) string {
	return strings.Join(strings.Fields(fold.String(s)), " ")
}

// NormalizeText applies NormalizeString to every present text value of c.
// Missing values stay missing; non-text values pass through.
func NormalizeText(c frame.Column) frame.Column {
	fold := cases.Fold()
	out := make([]any, len(c.V))
	for i, v := range c.V {
		s, ok := v.(string)
		if !ok {
			out[i] = v
			continue
		}
		out[i] = normalizeWith(fold, s)
	}
	return frame.Column{Name: c.Name, Kind: frame.KindText, V: out}
}

// NormalizeStatus adds status_clean, the normalized form of status.
func NormalizeStatus(f *frame.Frame) (*frame.Frame, error) {
	return NormalizeInto(f, "status", "status_clean")
}

// NormalizeInto writes the normalized form of column src into dst.
func NormalizeInto(f *frame.Frame, src, dst string) (*frame.Frame, error) {
	c, ok := f.Column(src)
	if !ok {
		return nil, fmt.Errorf("normalize: missing column %q", src)
	}
	n := NormalizeText(c)
	n.Name = dst
	return f.With(n)
}

// Mapping replaces category values. It is a total function: values that are
// not keys map to themselves.
type Mapping map[string]string

// Lookup returns the mapped value for s, or s itself.
func (m Mapping) Lookup(s string) string {
	if v, ok := m[s]; ok {
		return v
	}
	return s
}

// ApplyMapping rewrites the text column col through m. Missing values and
// unmapped values are left as they are.
func ApplyMapping(f *frame.Frame, col string, m Mapping) (*frame.Frame, error) {
	c, ok := f.Column(col)
	if !ok {
		return nil, fmt.Errorf("mapping: missing column %q", col)
	}
	out := make([]any, len(c.V))
	for i, v := range c.V {
		if s, ok := v.(string); ok {
			out[i] = m.Lookup(s)
		} else {
			out[i] = v
		}
	}
	return f.With(frame.Column{Name: c.Name, Kind: c.Kind, V: out})
}
