// Package builtin contains small, reusable frame transforms.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"analyticsetl/internal/frame"
)

// Hash computes a deterministic SHA-256 hash from selected columns and stores
// it in a text column on every row.
//
// The warehouse loader uses it as a stable, always-present dedupe key: reruns of
// the same batch produce the same hashes, so INSERT ... ON CONFLICT DO NOTHING
// (or the backend equivalent) keeps loads idempotent even when natural-key
// columns contain missing values.
//
// Canonicalization rules:
//   - Columns are concatenated in the given order using Separator.
//   - Missing values are encoded as a single NUL byte so missing differs from
//     the empty string.
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Output is a lowercase hex string (length 64).
type Hash struct {
	// Fields is the ordered list of input columns. Empty means every column of
	// the frame except TargetField, in frame order.
	Fields []string

	// TargetField is the output column name.
	TargetField string

	// IncludeFieldNames writes "field=value" into the canonical form.
	IncludeFieldNames bool

	// Separator between components. Defaults to ASCII Unit Separator (0x1f).
	Separator string

	// Overwrite replaces an existing TargetField column. When false and the
	// column exists, the frame is returned unchanged.
	Overwrite bool

	// TrimSpace trims string values before hashing.
	TrimSpace bool
}

// Apply returns f with TargetField added (or replaced).
//
// Errors:
//   - TargetField is empty.
//   - A listed field does not exist in f.
func (h Hash) Apply(f *frame.Frame) (*frame.Frame, error) {
	if h.TargetField == "" {
		return nil, fmt.Errorf("hash: target field is required")
	}
	if f.Has(h.TargetField) && !h.Overwrite {
		return f, nil
	}

	fields := h.Fields
	if len(fields) == 0 {
		for _, n := range f.Names() {
			if n != h.TargetField {
				fields = append(fields, n)
			}
		}
	}

	cols := make([]frame.Column, len(fields))
	for i, name := range fields {
		c, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("hash: missing field %q", name)
		}
		cols[i] = c
	}

	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}

	out := make([]any, f.Len())
	var b strings.Builder
	for row := range out {
		b.Reset()
		for i, c := range cols {
			if i > 0 {
				b.WriteString(sep)
			}
			if h.IncludeFieldNames {
				b.WriteString(c.Name)
				b.WriteByte('=')
			}
			appendCanonicalValue(&b, c.V[row], h.TrimSpace)
		}
		sum := sha256.Sum256([]byte(b.String()))
		out[row] = hex.EncodeToString(sum[:])
	}

	return f.With(frame.Column{Name: h.TargetField, Kind: frame.KindText, V: out})
}

// appendCanonicalValue appends a stable representation of v.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	if frame.IsMissing(v) {
		b.WriteByte('\x00')
		return
	}
	switch t := v.(type) {
	case string:
		if trimSpace && HasEdgeSpace(t) {
			b.WriteString(strings.TrimSpace(t))
		} else {
			b.WriteString(t)
		}
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// hot paths skip strings.TrimSpace for the common already-clean value.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
