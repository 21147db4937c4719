package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a dedupe key value to a canonical string so keys
// compare equal across driver-level types ("8429529" vs int64(8429529)).
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeKey joins the normalized values of row at idx into one map key.
func DedupeKey(row []any, idx []int) string {
	var b strings.Builder
	for i, j := range idx {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(NormalizeKey(row[j]))
	}
	return b.String()
}
