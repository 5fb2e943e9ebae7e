package reflection

import (
	"strings"
	"unicode/utf8"
)

// ShouldReview reports whether candidate is risky enough for a second review.
// It never performs I/O.
func ShouldReview(candidate Candidate, policy Policy) bool {
	return TriggerReason(candidate, policy) != ""
}

// TriggerReason returns the signal that fires for candidate: "tool:<name>"
// when the producing tool is a trigger tool, "pattern:<p>" for the first
// content pattern found, or "" when the candidate should not be reviewed.
func TriggerReason(candidate Candidate, policy Policy) string {
	if !policy.Enabled || candidate.Text == "" {
		return ""
	}
	if utf8.RuneCountInString(candidate.Text) < policy.MinResponseLength {
		return ""
	}
	if candidate.Tool != "" {
		if _, ok := policy.tools[candidate.Tool]; ok {
			return "tool:" + candidate.Tool
		}
	}
	if len(policy.patterns) == 0 {
		return ""
	}
	text := strings.ToLower(candidate.Text)
	for _, p := range policy.patterns {
		if strings.Contains(text, p) {
			return "pattern:" + p
		}
	}
	return ""
}

// triggerSignal strips the detail from a trigger reason for metric labels.
func triggerSignal(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}
