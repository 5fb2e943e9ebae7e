package util

import (
	"strings"
)

// TruncateString truncates s to maxLen runes and appends "..." if truncated.
// If preserveWords is true, it cuts at the last whitespace before maxLen when possible.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBefore(runes, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

func lastSpaceBefore(runes []rune, pos int) int {
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// CleanStrings trims every item and drops the blank ones. Order is kept.
func CleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HeadN returns at most n leading items of a cleaned list. n < 0 means no limit.
func HeadN(items []string, n int) []string {
	clean := CleanStrings(items)
	if n >= 0 && len(clean) > n {
		return clean[:n]
	}
	return clean
}

// BoundList keeps at most maxItems items and truncates each to maxChars runes.
func BoundList(items []string, maxItems, maxChars int) []string {
	head := HeadN(items, maxItems)
	for i, it := range head {
		head[i] = TruncateString(it, maxChars, true)
	}
	return head
}
