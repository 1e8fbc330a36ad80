package contracts

// Phase is a stage of the request pipeline.
type Phase int

const (
	PhaseSeed Phase = iota
	PhaseExpansion
	PhaseAudit
	PhaseSynthesis
)

// String implements fmt.Stringer for Phase.
func (p Phase) String() string {
	switch p {
	case PhaseSeed:
		return "SEED"
	case PhaseExpansion:
		return "EXPANSION"
	case PhaseAudit:
		return "AUDIT"
	case PhaseSynthesis:
		return "SYNTHESIS"
	default:
		return "UNKNOWN"
	}
}

// Next returns the phase that follows p and false when p is terminal.
func (p Phase) Next() (Phase, bool) {
	if p >= PhaseSynthesis || p < PhaseSeed {
		return p, false
	}
	return p + 1, true
}
