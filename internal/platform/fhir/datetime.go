package fhir

import (
	"fmt"
	"strings"
	"time"
)

// dateTimeLayouts are tried in order. Values without an offset are read as UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDateTime parses an ISO-8601 date or dateTime. The result is in UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty dateTime")
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid dateTime %q", s)
}

// FormatDateTime renders t as an ISO-8601 dateTime in UTC. Fractional
// seconds are kept and trailing zeros dropped.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
