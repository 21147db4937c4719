// Package tsv reads tab-separated files with a header row into text frames.
package tsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"analyticsetl/internal/frame"
	"analyticsetl/internal/transformer/builtin"
)

// DefaultNATokens are the cell values read as missing. Matching is exact and
// case-sensitive.
var DefaultNATokens = []string{"", "NA", "N/A", "null", "None"}

// Options controls how a file is read.
type Options struct {
	// Comma is the field delimiter. Zero means tab.
	Comma rune

	// NATokens overrides DefaultNATokens when non-nil.
	NATokens []string

	// HeaderMap renames source headers (after BOM strip and trim) to canonical
	// column names.
	HeaderMap map[string]string

	// TrimSpace trims cell values before NA matching. Off by default so that
	// text normalization stays the Cleaner's responsibility.
	TrimSpace bool

	// LazyQuotes is passed through to encoding/csv.
	LazyQuotes bool

	// OnError, when set, receives malformed records and reading continues.
	// When nil the first malformed record fails the read.
	OnError func(line int, err error)
}

// ReadFile opens path and reads it with ReadFrame.
func ReadFile(ctx context.Context, path string, opt Options) (*frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tsv: open %s: %w", path, err)
	}
	fr, err := ReadFrame(ctx, f, opt)
	if err != nil {
		return nil, fmt.Errorf("tsv: read %s: %w", path, err)
	}
	return fr, nil
}

// ReadFrame reads a header row followed by records into a frame whose columns
// are all KindText. Missing tokens become nil. Short records are padded with
// missing values; extra fields are ignored.
//
// Cancellation:
//   - ctx is checked between records; a canceled read returns ctx.Err().
//
// Errors:
//   - An empty input (no header) is an error.
//   - Duplicate header names are an error.
func ReadFrame(ctx context.Context, src io.ReadCloser, opt Options) (*frame.Frame, error) {
	defer src.Close()

	comma := opt.Comma
	if comma == 0 {
		comma = '\t'
	}
	na := opt.NATokens
	if na == nil {
		na = DefaultNATokens
	}
	naSet := make(map[string]struct{}, len(na))
	for _, tok := range na {
		naSet[tok] = struct{}{}
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(hdr))
	seen := make(map[string]struct{}, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if builtin.HasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		if mapped, ok := opt.HeaderMap[h]; ok {
			h = mapped
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("duplicate header %q", h)
		}
		seen[h] = struct{}{}
		names[i] = h
	}

	values := make([][]any, len(names))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if opt.OnError != nil {
				opt.OnError(line, err)
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for i := range names {
			if i >= len(rec) {
				values[i] = append(values[i], nil)
				continue
			}
			v := rec[i]
			if opt.TrimSpace && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if _, missing := naSet[v]; missing {
				values[i] = append(values[i], nil)
				continue
			}
			// ReuseRecord shares the backing array; strings themselves are
			// immutable, so keeping v is safe.
			values[i] = append(values[i], v)
		}
	}

	cols := make([]frame.Column, len(names))
	for i, n := range names {
		v := values[i]
		if v == nil {
			v = []any{}
		}
		cols[i] = frame.Column{Name: n, Kind: frame.KindText, V: v}
	}
	return frame.New(cols...)
}
