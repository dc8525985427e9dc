package utils

import (
	"strings"
	"unicode/utf8"
)

// ErrJSON produces a standard JSON error response.
func ErrJSON(code, msg string) map[string]any {
	return map[string]any{
		"success": false,
		"code":    code,
		"error":   msg,
	}
}

// LimitStr truncates s to n runes, appending "..." when it was longer.
func LimitStr(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// SanitizeFilename replaces path separators and other characters that are
// unsafe in file names with underscores.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s)
}
