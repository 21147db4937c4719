package transformer

import (
	"fmt"
	"time"

	"analyticsetl/internal/frame"
)

// TimePartColumns are the columns added by AddTimeParts, in order.
var TimePartColumns = []string{"date", "year", "month", "dow", "hour"}

// AddTimeParts derives date, year, month ("YYYY-MM"), dow (English day name)
// and hour from the UTC timestamp column tsCol. Missing timestamps yield
// missing parts.
func AddTimeParts(f *frame.Frame, tsCol string) (*frame.Frame, error) {
	ts, ok := f.Column(tsCol)
	if !ok {
		return nil, fmt.Errorf("time parts: missing column %q", tsCol)
	}
	n := len(ts.V)
	date := make([]any, n)
	year := make([]any, n)
	month := make([]any, n)
	dow := make([]any, n)
	hour := make([]any, n)
	for i, v := range ts.V {
		t, ok := v.(time.Time)
		if !ok || t.IsZero() {
			continue
		}
		t = t.UTC()
		date[i] = truncateDate(t)
		year[i] = int64(t.Year())
		month[i] = t.Format("2006-01")
		dow[i] = t.Weekday().String()
		hour[i] = int64(t.Hour())
	}

	out := f
	for _, c := range []frame.Column{
		{Name: "date", Kind: frame.KindDate, V: date},
		{Name: "year", Kind: frame.KindInt, V: year},
		{Name: "month", Kind: frame.KindText, V: month},
		{Name: "dow", Kind: frame.KindText, V: dow},
		{Name: "hour", Kind: frame.KindInt, V: hour},
	} {
		var err error
		if out, err = out.With(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
