package company

import (
	"strings"
	"time"
)

// TimestampLayout is the canonical text form of stored timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses stored timestamp text as UTC. It returns false for
// empty or unrecognised input.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in TimestampLayout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
