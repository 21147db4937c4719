package quality

import (
	"math"

	"analyticsetl/internal/frame"
)

// Required columns of the raw inputs.
var (
	OrderColumns = []string{"order_id", "user_id", "amount", "quantity", "created_at", "status"}
	UserColumns  = []string{"user_id", "country", "signup_date"}
)

// Gate bundles the preconditions checked on raw inputs before cleaning.
type Gate struct {
	OrderColumns []string
	UserColumns  []string
	// UserKey must be unique and present in users.
	UserKey string
	// OrderRanges are optional bounds checked after cleaning. None are set by
	// default: quantity is non-negative by convention only.
	OrderRanges []Range
}

// Range is an inclusive bound on a numeric column. Use math.Inf for an open
// side.
type Range struct {
	Column string
	Lo, Hi float64
}

// AtLeast returns a Range open on the upper side.
func AtLeast(col string, lo float64) Range {
	return Range{Column: col, Lo: lo, Hi: math.Inf(1)}
}

// DefaultGate checks the orders/users contract.
func DefaultGate() Gate {
	return Gate{OrderColumns: OrderColumns, UserColumns: UserColumns, UserKey: "user_id"}
}

// CheckRaw runs, in order: required columns for both datasets, non-empty
// orders and users, and uniqueness of the user key. The first failure is
// returned.
func (g Gate) CheckRaw(orders, users *frame.Frame) error {
	if err := RequireColumns(orders, "orders", g.OrderColumns); err != nil {
		return err
	}
	if err := RequireColumns(users, "users", g.UserColumns); err != nil {
		return err
	}
	if err := AssertNonEmpty(orders, "orders"); err != nil {
		return err
	}
	if err := AssertNonEmpty(users, "users"); err != nil {
		return err
	}
	return AssertUniqueKey(users, "users", g.UserKey, false)
}

// CheckRanges applies the configured range rules to cleaned orders. Columns
// that are absent after cleaning fail with *SchemaError.
func (g Gate) CheckRanges(orders *frame.Frame) error {
	for _, r := range g.OrderRanges {
		if err := AssertInRange(orders, "orders", r.Column, r.Lo, r.Hi); err != nil {
			return err
		}
	}
	return nil
}
