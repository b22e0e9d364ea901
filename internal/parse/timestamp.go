package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// zoneSuffixRe matches an explicit zone designator at the end of a timestamp.
var zoneSuffixRe = regexp.MustCompile(`(?i)(z|[+-]\d{2}:?\d{2})$`)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Timestamp is a parsed wire timestamp. Zoned is false when the string carried
// no zone designator and the caller-supplied location was assumed.
type Timestamp struct {
	Time  time.Time
	Zoned bool
	raw   string
}

// In re-reads a naive timestamp's wall clock in loc. Zoned timestamps are
// returned unchanged.
func (t Timestamp) In(loc *time.Location) time.Time {
	if t.Zoned {
		return t.Time
	}
	y, mo, d := t.Time.Date()
	h, mi, s := t.Time.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Time.Nanosecond(), loc)
}

// String returns the original wire form.
func (t Timestamp) String() string {
	return t.raw
}

// ParseTimestamp parses a backend timestamp. Strings with a zone suffix are
// parsed as-is; naive strings are interpreted in loc (local time when nil).
func ParseTimestamp(raw string, loc *time.Location) (Timestamp, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}

	if zoneSuffixRe.MatchString(s) {
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Timestamp{Time: t, Zoned: true, raw: raw}, nil
			}
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Timestamp{Time: t, Zoned: false, raw: raw}, nil
		}
	}

	return Timestamp{}, fmt.Errorf("unable to parse timestamp: %q", raw)
}

// FormatTimestamp renders t in the zone-qualified form sent for optimistic
// updates.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
