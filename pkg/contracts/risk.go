package contracts

// ALARPStatus is the risk-tolerance band of a score.
type ALARPStatus string

const (
	ALARPBroadlyAcceptable ALARPStatus = "BROADLY_ACCEPTABLE"
	ALARPTolerable         ALARPStatus = "TOLERABLE_IF_ALARP"
	ALARPUnacceptable      ALARPStatus = "UNACCEPTABLE"
)

// Score bands.
const (
	AcceptableCeiling = 6
	TolerableCeiling  = 15
)

// BandFor maps a probability x impact score to its ALARP band.
func BandFor(score int) ALARPStatus {
	switch {
	case score <= AcceptableCeiling:
		return ALARPBroadlyAcceptable
	case score <= TolerableCeiling:
		return ALARPTolerable
	default:
		return ALARPUnacceptable
	}
}

// RiskAssessment is the AUDIT phase verdict.
//
// CandidateVeto records that the bias metric exceeded the active threshold
// whether or not it bound. BiasVetoSuperseded is set when a mission-priority
// rule lifted the candidate under a non-Standard profile.
type RiskAssessment struct {
	Probability        int         `json:"probability"`
	Impact             int         `json:"impact"`
	BiasMetric         float64     `json:"bias_metric"`
	BiasThreshold      float64     `json:"bias_threshold"`
	CandidateVeto      bool        `json:"candidate_veto"`
	BiasVetoSuperseded bool        `json:"bias_veto_superseded,omitempty"`
	SupersededBy       string      `json:"superseded_by,omitempty"`
	Veto               bool        `json:"veto"`
	Containment        bool        `json:"containment"`
	Collusion          bool        `json:"collusion"`
	Correlation        float64     `json:"correlation,omitempty"`
	Status             ALARPStatus `json:"status"`
	Description        string      `json:"description"`
	Mitigation         string      `json:"mitigation,omitempty"`
	VetoReasons        []string    `json:"veto_reasons,omitempty"`
}

// Score is probability x impact.
func (r *RiskAssessment) Score() int {
	return r.Probability * r.Impact
}

// AddVeto sets Veto and records why.
func (r *RiskAssessment) AddVeto(reason string) {
	r.Veto = true
	r.VetoReasons = append(r.VetoReasons, reason)
}

// Summary is the subset of the assessment carried by audit entries.
func (r *RiskAssessment) Summary() RiskSummary {
	return RiskSummary{
		Score:         r.Score(),
		Status:        r.Status,
		BiasMetric:    r.BiasMetric,
		BiasThreshold: r.BiasThreshold,
		Veto:          r.Veto,
		Containment:   r.Containment,
		Collusion:     r.Collusion,
	}
}

// RiskSummary is the audit-facing projection of a RiskAssessment.
type RiskSummary struct {
	Score         int         `json:"score"`
	Status        ALARPStatus `json:"status"`
	BiasMetric    float64     `json:"bias_metric"`
	BiasThreshold float64     `json:"bias_threshold"`
	Veto          bool        `json:"veto"`
	Containment   bool        `json:"containment"`
	Collusion     bool        `json:"collusion"`
}
