package transformer

import (
	"fmt"

	"analyticsetl/internal/frame"
)

// OrdersSchema is the typing applied by CleanOrders.
var OrdersSchema = Schema{
	"amount":     TypeFloat,
	"quantity":   TypeInteger,
	"created_at": TypeTimestamp,
}

// UsersSchema is the typing applied by CleanUsers. signup_date is parsed
// day-first.
var UsersSchema = Schema{
	"user_id":     TypeText,
	"signup_date": TypeDate,
}

// CleanOrders types amount, quantity and created_at. Unparseable values
// become missing. A fractional quantity such as "2.5" is also missing, so
// quantity is always an integer column.
func CleanOrders(f *frame.Frame) (*frame.Frame, []CoercionResult) {
	return EnforceSchemaWith(f, OrdersSchema, EnforceOptions{FractionalAsInvalid: true})
}

// CleanUsers types user_id and signup_date.
func CleanUsers(f *frame.Frame) (*frame.Frame, []CoercionResult) {
	return EnforceSchema(f, UsersSchema)
}

// MissingFlagSuffix is appended to a column name to form its missing flag.
const MissingFlagSuffix = "_missing"

// AddMissingFlags adds a boolean <col>_missing column for each named column.
// A flag column that already exists is left alone, so flags taken before a
// value-mutating step are never recomputed afterwards.
func AddMissingFlags(f *frame.Frame, cols ...string) (*frame.Frame, error) {
	out := f
	for _, name := range cols {
		flag := name + MissingFlagSuffix
		if out.Has(flag) {
			continue
		}
		c, ok := out.Column(name)
		if !ok {
			return nil, fmt.Errorf("missing flags: missing column %q", name)
		}
		v := make([]any, len(c.V))
		for i, x := range c.V {
			v[i] = frame.IsMissing(x)
		}
		var err error
		out, err = out.With(frame.Column{Name: flag, Kind: frame.KindBool, V: v})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
