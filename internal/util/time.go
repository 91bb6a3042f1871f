package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince accepts RFC 3339, epoch milliseconds or a Go duration such as
// "15m", which is taken relative to now. An empty string yields the zero time.
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid time format: %s", value)
}
