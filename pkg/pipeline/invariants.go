package pipeline

import (
	"errors"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

var (
	// ErrInvalidInput is returned when a request is rejected before SEED.
	// Nothing is recorded for it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvariantViolation reports a broken pipeline contract. It is never
	// corrected silently.
	ErrInvariantViolation = errors.New("pipeline invariant violation")
)

// phaseMachine enforces SEED -> EXPANSION -> AUDIT -> SYNTHESIS, each
// entered exactly once.
type phaseMachine struct {
	next contracts.Phase
	done bool
}

func (m *phaseMachine) enter(p contracts.Phase) error {
	if m.done || p != m.next {
		return fmt.Errorf("%w: phase %s entered out of order (expected %s)", ErrInvariantViolation, p, m.next)
	}
	if n, ok := p.Next(); ok {
		m.next = n
	} else {
		m.done = true
	}
	return nil
}

func (m *phaseMachine) complete() bool { return m.done }

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...)
}

// checkRecord validates a synthesized record before it is sealed.
func checkRecord(rec *contracts.DecisionRecord) error {
	r := &rec.Risk
	switch {
	case !rec.Criticality.Valid():
		return violation("criticality %d outside 1-5", int(rec.Criticality))
	case r.Score() > contracts.TolerableCeiling && !r.Veto:
		return violation("score %d above %d without veto", r.Score(), contracts.TolerableCeiling)
	case rec.ContainmentActive != (rec.Criticality == contracts.CI5):
		return violation("containment %t at %s", rec.ContainmentActive, rec.Criticality)
	case r.Collusion && !(r.Veto && rec.Content.Wiped):
		return violation("collusion without wipe and veto")
	case (r.Veto || rec.ContainmentActive) && !rec.RequiresHumanApproval:
		return violation("veto or containment without human approval")
	case rec.ContainmentActive && rec.Content.SurvivalProtocol == nil:
		return violation("containment without survival protocol")
	}
	return nil
}
