package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for member and candidate name normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FoldEmail returns the comparison key for an email address. Email uniqueness is
// case-insensitive, so every lookup and de-duplication goes through this.
func FoldEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
