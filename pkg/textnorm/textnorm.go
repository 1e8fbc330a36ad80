// Package textnorm folds text for keyword matching.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold applies NFKC normalization and Unicode case folding, so matching is
// case-insensitive across scripts and compatibility forms.
func Fold(s string) string {
	// Casers are stateful; one per call.
	return cases.Fold().String(norm.NFKC.String(s))
}

// FoldAll folds every term and drops empty ones.
func FoldAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if f := Fold(t); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FirstMatch returns the first folded term contained in folded text.
func FirstMatch(folded string, terms []string) (string, bool) {
	for _, t := range terms {
		if strings.Contains(folded, t) {
			return t, true
		}
	}
	return "", false
}

// CountMatches counts the folded terms contained in folded text.
func CountMatches(folded string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(folded, t) {
			n++
		}
	}
	return n
}
