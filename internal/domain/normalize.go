package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for participant name normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail trims whitespace and lower-cases an address so comparisons are stable.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsFullName reports whether a (normalized) name has at least two words.
func IsFullName(s string) bool {
	return strings.Contains(NormalizeHumanName(s), " ")
}
