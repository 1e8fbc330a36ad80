package contracts

import "fmt"

// Criticality is the 1-5 severity classification of a request.
// The zero value is invalid.
type Criticality int

const (
	CI1 Criticality = iota + 1 // Low
	CI2                        // Moderate
	CI3                        // Medium
	CI4                        // High
	CI5                        // Existential
)

const (
	MinCriticality = CI1
	MaxCriticality = CI5
)

// Valid reports whether c lies inside the closed 1-5 range.
func (c Criticality) Valid() bool {
	return c >= MinCriticality && c <= MaxCriticality
}

// String implements fmt.Stringer for Criticality.
func (c Criticality) String() string {
	if !c.Valid() {
		return fmt.Sprintf("CI_INVALID(%d)", int(c))
	}
	return fmt.Sprintf("CI_%d", int(c))
}

// Label is the human-readable band name.
func (c Criticality) Label() string {
	switch c {
	case CI1:
		return "LOW"
	case CI2:
		return "MODERATE"
	case CI3:
		return "MEDIUM"
	case CI4:
		return "HIGH"
	case CI5:
		return "EXISTENTIAL"
	default:
		return "INVALID"
	}
}

// Raise returns the larger of c and other. Criticality only escalates.
func (c Criticality) Raise(other Criticality) Criticality {
	if other > c {
		return other
	}
	return c
}

// ParseCriticality accepts "CI_3", "3" and similar forms.
func ParseCriticality(s string) (Criticality, error) {
	var n int
	if _, err := fmt.Sscanf(s, "CI_%d", &n); err != nil {
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return 0, fmt.Errorf("parse criticality %q: %w", s, err)
		}
	}
	c := Criticality(n)
	if !c.Valid() {
		return 0, fmt.Errorf("criticality %q out of range 1-5", s)
	}
	return c, nil
}
