package fhir

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T12:00:00+00:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01T12:00:00Z", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01T14:30:00+02:00", time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)},
		{"2024-01-01T12:00:00.250Z", time.Date(2024, 1, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"2024-01-01T12:00:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01 12:00:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01T12:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDateTime(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if got.Location() != time.UTC {
				t.Errorf("expected UTC, got %s", got.Location())
			}
		})
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-date", "2024-13-01", "01/02/2024"} {
		if _, err := ParseDateTime(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2024, 1, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	if got := FormatDateTime(ts); got != "2024-01-01T12:00:00Z" {
		t.Errorf("expected 2024-01-01T12:00:00Z, got %s", got)
	}
}

func TestFormatDateTime_KeepsFraction(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 123456000, time.UTC)
	got := FormatDateTime(ts)
	if got != "2024-01-01T12:00:00.123456Z" {
		t.Fatalf("expected 2024-01-01T12:00:00.123456Z, got %s", got)
	}
	back, err := ParseDateTime(got)
	if err != nil {
		t.Fatalf("ParseDateTime(%q): %v", got, err)
	}
	if !back.Equal(ts) {
		t.Errorf("round trip changed %v to %v", ts, back)
	}
}
