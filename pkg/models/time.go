package models

import "time"

const (
	// DateLayout is the storage format for calendar dates (birth dates, match days).
	DateLayout = "2006-01-02"

	// TimestampLayout is the fixed-width storage format for instants, so that
	// text ordering in SQL matches chronological ordering.
	TimestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp. Empty or legacy values that do not
// parse yield the zero time.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ValidDate reports whether s is empty or a YYYY-MM-DD date.
func ValidDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// IntPtr returns a pointer to v. Convenience for optional numeric fields.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
