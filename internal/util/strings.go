// Package util provides small helpers shared across the extension-oauth packages.
package util

// SafeTruncate returns at most maxLen bytes of s without panicking.
// It is used to log short prefixes of authorization codes and tokens.
// A negative maxLen is treated as 0.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// FirstNonEmpty returns the first argument that is not the empty string.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
