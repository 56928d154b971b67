// Package prune shortens oversized message text before it is placed in a prompt.
package prune

import (
	"fmt"
	"unicode/utf8"
)

// Marker separates the kept head and tail of a pruned text.
const Marker = "[...snip...]"

// Exceeds reports whether s is longer than maxBytes. A non-positive limit never exceeds.
func Exceeds(s string, maxBytes int) bool {
	return maxBytes > 0 && len(s) > maxBytes
}

// Text keeps the head and tail of s so the result fits in maxBytes, cutting only
// on rune boundaries. Two thirds of the budget go to the head. Text that already
// fits, or a non-positive maxBytes, is returned unchanged.
func Text(s string, maxBytes int) string {
	if !Exceeds(s, maxBytes) {
		return s
	}
	note := fmt.Sprintf(" %s (%d bytes omitted) ", Marker, len(s)-maxBytes)
	budget := maxBytes - len(note)
	if budget <= 0 {
		return safeUTF8Prefix(s, maxBytes)
	}
	headBytes := budget * 2 / 3
	head := safeUTF8Prefix(s, headBytes)
	tail := safeUTF8Suffix(s, budget-len(head))
	return head + note + tail
}

func safeUTF8Prefix(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) == 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func safeUTF8Suffix(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) == 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
