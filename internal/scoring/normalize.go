// Package scoring implements the rule engine: text normalization, placeholder
// token expansion against an evaluation context, and transcript evaluation for
// the six scoring-rule types. Every function is pure and safe for concurrent
// use.
package scoring

import "strings"

// Normalize trims, case-folds and collapses internal whitespace runs to
// single spaces. Idempotent. Used wherever two strings are compared for
// semantic equality, never for numeric parsing.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
