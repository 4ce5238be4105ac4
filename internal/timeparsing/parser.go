// Package timeparsing turns the --since argument of history queries into an
// instant. ParseRelativeTime accepts compact offsets such as "-3d", absolute
// dates, and phrases like "last monday".
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// shifts maps a compact unit letter to calendar arithmetic. Days and longer
// go through AddDate so DST changes keep the wall-clock time.
var shifts = map[string]func(t time.Time, n int) time.Time{
	"h": func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Hour) },
	"d": func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
	"w": func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) },
	"m": func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
	"y": func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) },
}

// ParseCompactDuration offsets now by an amount like "+6h", "-1d", "2w",
// "3m" (months) or "1y". A missing sign means forward.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("compact duration %q: %w", s, err)
	}
	if m[1] == "-" {
		n = -n
	}
	return shifts[m[3]](now, n), nil
}

// IsCompactDuration reports whether s is in ParseCompactDuration's syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}
