// Package risk computes the probability x impact risk score of a request and
// applies the bias veto rules of the active operational profile.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
)

// Evaluator is pure given its policy table.
type Evaluator struct {
	policy *policy.Policy
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger uses the default.
func NewEvaluator(p *policy.Policy, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default().With("component", "risk")
	}
	return &Evaluator{policy: p, logger: logger}
}

// ActiveThreshold is the bias threshold in force for profile at ci. At CI_5
// no profile may relax below the Standard threshold.
func (e *Evaluator) ActiveThreshold(profile contracts.Profile, ci contracts.Criticality) float64 {
	t := e.policy.Threshold(profile)
	if ci == contracts.CI5 {
		t = min(t, e.policy.Threshold(contracts.ProfileStandard))
	}
	return t
}

// Evaluate produces the AUDIT phase assessment.
//
// The score ceiling binds under every profile. A bias candidate veto binds
// under Standard and at CI_5; elsewhere a matching mission rule may
// supersede it, and a rule evaluation error keeps it binding.
func (e *Evaluator) Evaluate(ci contracts.Criticality, rc *contracts.RequestContract, profile contracts.Profile, bias float64) contracts.RiskAssessment {
	alarp := e.policy.ALARP

	ra := contracts.RiskAssessment{
		Probability: 1,
		Impact:      int(ci),
		BiasMetric:  bias,
	}
	if ci == contracts.CI5 {
		ra.Impact = int(contracts.MaxCriticality)
		ra.Probability = alarp.ExistentialProbability
		ra.Containment = true
	}
	if rc.MissingEvidence() > 0 {
		ra.Probability += alarp.MissingEvidenceIncrement
	}
	if rc.AverageConfidence() < alarp.LowConfidenceFloor {
		ra.Probability += alarp.LowConfidenceIncrement
	}

	ra.BiasThreshold = e.ActiveThreshold(profile, ci)
	if bias > ra.BiasThreshold {
		ra.CandidateVeto = true
		e.applyBiasVeto(&ra, ci, rc.Domain, profile)
	}

	score := ra.Score()
	ra.Status = contracts.BandFor(score)
	ra.Description = fmt.Sprintf("Risk Assessment for %s", rc.Domain)
	switch ra.Status {
	case contracts.ALARPUnacceptable:
		ra.Description = "CRITICAL: Risk threshold exceeded (ALARP Violation)"
		ra.Mitigation = alarp.UnacceptableMitigation
		ra.AddVeto(fmt.Sprintf("risk score %d exceeds ALARP ceiling %d", score, contracts.TolerableCeiling))
	case contracts.ALARPTolerable:
		ra.Mitigation = alarp.TolerableMitigation
	}
	return ra
}

func (e *Evaluator) applyBiasVeto(ra *contracts.RiskAssessment, ci contracts.Criticality, domain contracts.Domain, profile contracts.Profile) {
	reason := fmt.Sprintf("bias %.4f exceeds %s threshold %.4f", ra.BiasMetric, profile, ra.BiasThreshold)
	if profile == contracts.ProfileStandard || ci == contracts.CI5 {
		ra.AddVeto(reason)
		return
	}

	rule, ok, err := e.policy.Rules().FirstMatch(policy.RuleFacts{
		Criticality: ci,
		Score:       ra.Score(),
		Bias:        ra.BiasMetric,
		Threshold:   ra.BiasThreshold,
		Domain:      domain,
		Profile:     profile,
	})
	switch {
	case err != nil:
		e.logger.Warn("mission rule failed; bias veto binds", "profile", profile, "error", err)
		ra.AddVeto(reason)
	case ok:
		ra.BiasVetoSuperseded = true
		ra.SupersededBy = rule
		e.logger.Info("candidate bias veto superseded",
			"profile", profile,
			"criticality", ci.String(),
			"bias", ra.BiasMetric,
			"threshold", ra.BiasThreshold,
			"rule", rule,
		)
	default:
		ra.AddVeto(reason)
	}
}
