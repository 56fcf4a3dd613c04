package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeUTC converts t to UTC and drops its monotonic reading so stored
// timestamps compare and order consistently regardless of the feed's offset.
func NormalizeUTC(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// NowUTC returns the current time normalized with NormalizeUTC.
func NowUTC() time.Time {
	return NormalizeUTC(time.Now())
}

// ParseWindow parses a trailing window such as "24h", "90m" or "7d".
// Day suffixes are accepted in addition to time.ParseDuration units.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty window")
	}

	var d time.Duration
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
		if int64(days) > math.MaxInt64/int64(24*time.Hour) {
			return 0, fmt.Errorf("window %q out of range", s)
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", s)
	}
	return d, nil
}

// FormatUTC formats a time as RFC 3339 in UTC.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
