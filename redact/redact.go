package redact

import "strings"

// String masks the middle half of s, keeping the outer quarters so a value
// can still be recognized in logs. Values shorter than 8 bytes are fully
// masked.
func String(s string) string {
	l := len(s)
	if l == 0 {
		return ""
	}

	if l < 8 {
		return strings.Repeat("*", l)
	}

	keep := l / 4

	return s[:keep] + strings.Repeat("*", l-2*keep) + s[l-keep:]
}
