// Package util holds small helpers shared by the HTTP and pipeline layers.
package util

import "regexp"

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog collapses each run of control characters, newlines included,
// into one space so user-supplied values cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	return controlChars.ReplaceAllString(s, " ")
}

// SanitizeAndClip sanitizes s and cuts it to at most max bytes.
func SanitizeAndClip(s string, max int) string {
	s = SanitizeForLog(s)
	if max >= 0 && len(s) > max {
		s = s[:max]
	}
	return s
}
