package util

import "fmt"

// DefaultDetailMaxLen caps free-form text persisted to the audit trail.
// Provider error bodies can be arbitrarily large; the audit row only needs
// enough to identify the failure.
const DefaultDetailMaxLen = 1024

// Truncate shortens long strings, noting the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateDetail applies the audit-trail cap.
func TruncateDetail(s string) string {
	return Truncate(s, DefaultDetailMaxLen)
}
