package transformer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// tsLayouts are tried in order for timestamp columns. Layouts without a zone
// are read as UTC.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// dateLayouts are day-first: 03/04/2024 is the 3rd of April.
var dateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, lay := range tsLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDateDayFirst parses s as a calendar date. Full timestamps are accepted
// and truncated to their UTC date.
func parseDateDayFirst(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	if t, ok := parseTimestamp(s); ok {
		return truncateDate(t), true
	}
	return time.Time{}, false
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseFloat accepts decimal and exponent notation. NaN and infinities are
// not values.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseInt returns (value, integral, ok). "2" and "2.0" are integral; "2.5"
// parses but is not integral.
func parseInt(s string) (int64, bool, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, true
	}
	f, ok := parseFloat(s)
	if !ok {
		return 0, false, false
	}
	n, integral := floatToInt(f)
	return n, integral, true
}

func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}
