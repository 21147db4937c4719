// Package quality holds the precondition checks that abort a run before any
// expensive work happens. Every failure is a typed error matchable with
// errors.As.
package quality

import (
	"fmt"
	"strings"
)

// SchemaError lists every required column absent from a dataset.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// EmptyDatasetError means a dataset has zero rows.
type EmptyDatasetError struct {
	Dataset string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("%s: dataset is empty", e.Dataset)
}

// DuplicateKeyError reports present key values that occur more than once.
// Examples holds up to maxExamples offending values in first-seen order.
type DuplicateKeyError struct {
	Dataset  string
	Column   string
	Count    int
	Examples []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: column %q has %d duplicated key value(s), e.g. %s",
		e.Dataset, e.Column, e.Count, strings.Join(e.Examples, ", "))
}

// MissingKeyError reports missing key values where none are allowed.
type MissingKeyError struct {
	Dataset string
	Column  string
	Count   int
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: column %q has %d missing key value(s)", e.Dataset, e.Column, e.Count)
}

// RangeError reports present values outside [Lo, Hi].
type RangeError struct {
	Dataset string
	Column  string
	Lo, Hi  float64
	Count   int
	// First is the first offending value.
	First float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: column %q has %d value(s) outside [%g, %g], first %g",
		e.Dataset, e.Column, e.Count, e.Lo, e.Hi, e.First)
}
