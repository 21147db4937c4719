package report

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is an exact decimal used for money totals in run metadata, so the
// reported sum does not drift with float accumulation order.
type Decimal struct {
	value apd.Decimal
}

var decimalCtx = apd.BaseContext.WithPrecision(34)

// DecimalFromFloat converts f through its shortest decimal representation.
func DecimalFromFloat(f float64) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(strconv.FormatFloat(f, 'f', -1, 64)); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %v: %w", f, err)
	}
	return Decimal{value: d}, nil
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	decimalCtx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

func (d Decimal) String() string {
	return d.value.Text('f')
}
