// Package firewall is the input sanity filter that runs before any pipeline
// phase. A rejected request has no side effects: no profile transition, no
// evidence lookup, no audit entry.
package firewall

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/textnorm"
)

// ErrInputRejected is returned for every rejected input.
var ErrInputRejected = errors.New("input rejected by sanity filter")

// InputFirewall enforces length bounds and forbidden patterns.
type InputFirewall struct {
	minLength int
	maxLength int
	patterns  []string
	folded    []string
}

// New creates a firewall from the policy table.
func New(p policy.FirewallPolicy) *InputFirewall {
	f := &InputFirewall{
		minLength: p.MinLength,
		maxLength: p.MaxLength,
	}
	for _, pat := range p.ForbiddenPatterns {
		if folded := textnorm.Fold(pat); folded != "" {
			f.patterns = append(f.patterns, pat)
			f.folded = append(f.folded, folded)
		}
	}
	return f
}

// Validate returns nil or an error wrapping ErrInputRejected.
func (f *InputFirewall) Validate(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: empty input", ErrInputRejected)
	}
	if n := utf8.RuneCountInString(trimmed); n < f.minLength {
		return fmt.Errorf("%w: input shorter than %d characters", ErrInputRejected, f.minLength)
	} else if f.maxLength > 0 && n > f.maxLength {
		return fmt.Errorf("%w: input longer than %d characters", ErrInputRejected, f.maxLength)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: input is not valid UTF-8", ErrInputRejected)
	}

	folded := textnorm.Fold(text)
	for i, pat := range f.folded {
		if strings.Contains(folded, pat) {
			return fmt.Errorf("%w: forbidden pattern %q", ErrInputRejected, f.patterns[i])
		}
	}
	return nil
}
