// Package iso8601 formats and parses the ISO8601 timestamps used throughout
// Sentinel's log entries and signed documents, so every package agrees on
// one textual representation regardless of which clock produced the value.
package iso8601

import "time"

// Layout is the ISO8601 profile used for all Sentinel timestamps: UTC,
// millisecond precision, "Z" suffix.
const Layout = "2006-01-02T15:04:05.000Z07:00"

// Format renders t in UTC using Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse parses a Layout-formatted timestamp.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}
