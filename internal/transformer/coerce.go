package transformer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"analyticsetl/internal/frame"
)

// Type is a target semantic type for schema enforcement.
type Type string

const (
	TypeInteger   Type = "integer"
	TypeFloat     Type = "float"
	TypeText      Type = "text"
	TypeTimestamp Type = "timestamp"
	TypeDate      Type = "date"
	TypeBool      Type = "bool"
)

// ParseType maps configuration spellings to a Type. Unknown names are
// returned as-is so EnforceSchema can report them per column.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "bigint", "int64":
		return TypeInteger
	case "float", "double", "numeric", "float64":
		return TypeFloat
	case "text", "string", "str":
		return TypeText
	case "timestamp", "datetime", "timestamptz":
		return TypeTimestamp
	case "date":
		return TypeDate
	case "bool", "boolean":
		return TypeBool
	default:
		return Type(s)
	}
}

func (t Type) kind() (frame.Kind, bool) {
	switch t {
	case TypeInteger:
		return frame.KindInt, true
	case TypeFloat:
		return frame.KindFloat, true
	case TypeText:
		return frame.KindText, true
	case TypeTimestamp:
		return frame.KindTimestamp, true
	case TypeDate:
		return frame.KindDate, true
	case TypeBool:
		return frame.KindBool, true
	default:
		return 0, false
	}
}

// Schema maps column names to target types.
type Schema map[string]Type

// Outcome tags how a schema entry was handled.
type Outcome uint8

const (
	// Coerced means the column now has the target type.
	Coerced Outcome = iota
	// KeptOriginal means the whole column could not be coerced and was left
	// unchanged. The result carries the CoercionFailure.
	KeptOriginal
	// Skipped means the column is not present in the input.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Coerced:
		return "coerced"
	case KeptOriginal:
		return "kept_original"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// CoercionFailure describes why a whole column was left unchanged.
type CoercionFailure struct {
	Column string
	From   frame.Kind
	To     Type
	Reason string
}

func (e *CoercionFailure) Error() string {
	return fmt.Sprintf("coerce %s: %s -> %s: %s", e.Column, e.From, e.To, e.Reason)
}

// CoercionResult reports what happened to one schema entry.
type CoercionResult struct {
	Column  string
	Target  Type
	Outcome Outcome
	// Invalid counts present values that could not be parsed and became
	// missing. Zero unless Outcome is Coerced.
	Invalid int
	Err     *CoercionFailure
}

// EnforceSchema coerces every column named in schema to its target type and
// returns the new frame together with one result per schema entry, ordered by
// column name.
//
// When to use:
//   - After ingestion, where every cell is text, to type the columns a stage
//     depends on.
//
// Edge cases:
//   - Columns absent from f are Skipped and not synthesized.
//   - Present values that do not parse become missing and are counted in
//     CoercionResult.Invalid.
//
// Errors:
//   - None are returned. A whole-column failure (unknown target type, a
//     timestamp/date/bool column coerced to a number, non-integral values
//     coerced to integer) leaves the column unchanged and is recorded in the
//     result with Outcome KeptOriginal.
func EnforceSchema(f *frame.Frame, schema Schema) (*frame.Frame, []CoercionResult) {
	return EnforceSchemaWith(f, schema, EnforceOptions{})
}

// EnforceOptions tunes EnforceSchemaWith.
type EnforceOptions struct {
	// FractionalAsInvalid turns a non-integral value in an integer column into
	// a missing value counted in Invalid, instead of failing the whole column.
	FractionalAsInvalid bool
}

// EnforceSchemaWith is EnforceSchema with options.
func EnforceSchemaWith(f *frame.Frame, schema Schema, opt EnforceOptions) (*frame.Frame, []CoercionResult) {
	names := make([]string, 0, len(schema))
	for n := range schema {
		names = append(names, n)
	}
	sort.Strings(names)

	out := f
	results := make([]CoercionResult, 0, len(names))
	for _, name := range names {
		target := schema[name]
		res := CoercionResult{Column: name, Target: target}

		col, ok := out.Column(name)
		if !ok {
			res.Outcome = Skipped
			results = append(results, res)
			continue
		}

		coerced, invalid, failure := coerceColumn(col, target, opt)
		if failure != nil {
			res.Outcome = KeptOriginal
			res.Err = failure
			results = append(results, res)
			continue
		}
		out = out.MustWith(coerced)
		res.Outcome = Coerced
		res.Invalid = invalid
		results = append(results, res)
	}
	return out, results
}

// Failures returns the results whose column was kept unchanged.
func Failures(results []CoercionResult) []CoercionResult {
	var out []CoercionResult
	for _, r := range results {
		if r.Outcome == KeptOriginal {
			out = append(out, r)
		}
	}
	return out
}

// coerceColumn is all-or-nothing: the first whole-column failure discards any
// partial work.
func coerceColumn(c frame.Column, target Type, opt EnforceOptions) (frame.Column, int, *CoercionFailure) {
	kind, ok := target.kind()
	fail := func(reason string) (frame.Column, int, *CoercionFailure) {
		return frame.Column{}, 0, &CoercionFailure{Column: c.Name, From: c.Kind, To: target, Reason: reason}
	}
	if !ok {
		return fail("unknown target type")
	}

	conv, err := converter(c.Kind, target)
	if err != "" {
		return fail(err)
	}

	out := make([]any, len(c.V))
	invalid := 0
	for i, v := range c.V {
		if frame.IsMissing(v) {
			continue
		}
		nv, res := conv(v)
		switch res {
		case convOK:
			out[i] = nv
		case convInvalid:
			invalid++
		case convUnsafe:
			if opt.FractionalAsInvalid {
				invalid++
				continue
			}
			return fail(fmt.Sprintf("value %v at row %d is not representable", v, i))
		}
	}
	return frame.Column{Name: c.Name, Kind: kind, V: out}, invalid, nil
}

type convResult uint8

const (
	convOK convResult = iota
	convInvalid
	convUnsafe
)

type convFunc func(v any) (any, convResult)

// converter picks a value converter for (from, to), or a non-empty reason
// when the pair is not a supported coercion.
func converter(from frame.Kind, to Type) (convFunc, string) {
	switch to {
	case TypeText:
		if from == frame.KindDate {
			return func(v any) (any, convResult) {
				if t, ok := v.(time.Time); ok {
					return t.Format(time.DateOnly), convOK
				}
				return formatText(v), convOK
			}, ""
		}
		return func(v any) (any, convResult) { return formatText(v), convOK }, ""

	case TypeFloat:
		switch from {
		case frame.KindText:
			return func(v any) (any, convResult) {
				s, _ := v.(string)
				f, ok := parseFloat(s)
				if !ok {
					return nil, convInvalid
				}
				return f, convOK
			}, ""
		case frame.KindInt, frame.KindFloat:
			return func(v any) (any, convResult) {
				f, ok := frame.Float(v)
				if !ok {
					return nil, convInvalid
				}
				return f, convOK
			}, ""
		}

	case TypeInteger:
		switch from {
		case frame.KindText:
			return func(v any) (any, convResult) {
				s, _ := v.(string)
				n, integral, ok := parseInt(s)
				if !ok {
					return nil, convInvalid
				}
				if !integral {
					return nil, convUnsafe
				}
				return n, convOK
			}, ""
		case frame.KindInt, frame.KindFloat:
			return func(v any) (any, convResult) {
				if n, ok := v.(int64); ok {
					return n, convOK
				}
				f, ok := frame.Float(v)
				if !ok {
					return nil, convInvalid
				}
				n, integral := floatToInt(f)
				if !integral {
					return nil, convUnsafe
				}
				return n, convOK
			}, ""
		}

	case TypeTimestamp:
		switch from {
		case frame.KindText:
			return func(v any) (any, convResult) {
				s, _ := v.(string)
				t, ok := parseTimestamp(s)
				if !ok {
					return nil, convInvalid
				}
				return t, convOK
			}, ""
		case frame.KindTimestamp, frame.KindDate:
			return func(v any) (any, convResult) {
				t, ok := v.(time.Time)
				if !ok {
					return nil, convInvalid
				}
				return t.UTC(), convOK
			}, ""
		}

	case TypeDate:
		switch from {
		case frame.KindText:
			return func(v any) (any, convResult) {
				s, _ := v.(string)
				t, ok := parseDateDayFirst(s)
				if !ok {
					return nil, convInvalid
				}
				return t, convOK
			}, ""
		case frame.KindTimestamp, frame.KindDate:
			return func(v any) (any, convResult) {
				t, ok := v.(time.Time)
				if !ok {
					return nil, convInvalid
				}
				return truncateDate(t), convOK
			}, ""
		}

	case TypeBool:
		switch from {
		case frame.KindText:
			return func(v any) (any, convResult) {
				s, _ := v.(string)
				b, ok := parseBool(s)
				if !ok {
					return nil, convInvalid
				}
				return b, convOK
			}, ""
		case frame.KindBool:
			return func(v any) (any, convResult) { return v, convOK }, ""
		case frame.KindInt:
			return func(v any) (any, convResult) {
				switch v {
				case int64(0):
					return false, convOK
				case int64(1):
					return true, convOK
				}
				return nil, convInvalid
			}, ""
		}
	}
	return nil, fmt.Sprintf("cannot coerce %s column", from)
}

func formatText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
