// Package provider holds value normalization shared by upstream clients.
package provider

import (
	"math"
	"strconv"
	"strings"
)

// ParseCount normalizes a count from the formats upstream APIs return.
//
// Strava returns totals as display strings ("12,181"), leader effort counts
// as numbers, and sometimes omits the field entirely. Distances such as
// "890 mi" keep their leading number.
//
// Returns ok=false if no count can be extracted.
func ParseCount(val interface{}) (int, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case string:
		s := strings.TrimSpace(v)
		if i := strings.IndexByte(s, ' '); i >= 0 {
			s = s[:i]
		}
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// CountOrZero is ParseCount with failures mapped to 0.
func CountOrZero(val interface{}) int {
	n, _ := ParseCount(val)
	return n
}
