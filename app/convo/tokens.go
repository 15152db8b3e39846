// Package convo normalizes the free-text control tokens users type
// during multi-step flows.
package convo

import "strings"

// Normalize lowercases and trims user input for token comparison.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// IsCancel reports whether the input aborts the active flow.
func IsCancel(input string) bool {
	switch Normalize(input) {
	case "cancel", "/cancel", "abort", "❌":
		return true
	}
	return false
}

// IsSkip reports whether the input leaves an optional field unset.
func IsSkip(input string) bool {
	switch Normalize(input) {
	case "skip", "n/a", "none", "-":
		return true
	}
	return false
}

// IsAffirmative reports whether the input confirms a pending action.
func IsAffirmative(input string) bool {
	switch Normalize(input) {
	case "yes", "y", "confirm", "✅", "👍":
		return true
	}
	return false
}

// IsNegative reports whether the input rejects a pending action.
func IsNegative(input string) bool {
	switch Normalize(input) {
	case "no", "n", "❌", "👎":
		return true
	}
	return false
}
