package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseTimeParam parses a query time bound. It accepts an RFC 3339 timestamp,
// with or without fractional seconds, or a positive Go duration such as "90m"
// meaning that long before now. The result is in UTC.
func ParseTimeParam(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("time %q is neither RFC 3339 nor a positive duration", value)
	}
	return now.Add(-d).UTC(), nil
}

// DurationMinutes returns the distance between two timestamps in minutes,
// regardless of their order.
func DurationMinutes(a, b time.Time) float64 {
	if b.Before(a) {
		a, b = b, a
	}
	return b.Sub(a).Minutes()
}
