// Package classifier maps a request to its criticality index.
//
// The existential-trigger check runs first and dominates every other signal.
// Otherwise a complexity score built from axiom count, input length and
// unsupported claims is mapped onto CI_1..CI_5 through fixed breakpoints,
// and the domain floor is applied by taking the maximum. The classifier is
// pure: no clock, no randomness, no I/O.
package classifier

import (
	"strings"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/textnorm"
)

// Result is the outcome of one classification.
type Result struct {
	Criticality contracts.Criticality `json:"criticality"`
	Score       float64               `json:"score"`
	Base        contracts.Criticality `json:"base"`
	Floor       contracts.Criticality `json:"floor,omitempty"`
	Trigger     string                `json:"trigger,omitempty"`
}

// Existential reports whether a trigger term forced CI_5.
func (r Result) Existential() bool { return r.Trigger != "" }

// Classifier scores requests against one policy table.
type Classifier struct {
	triggers   []string
	complexity policy.ComplexityPolicy
	floor      func(contracts.Domain) contracts.Criticality
}

// New builds a classifier from p.
func New(p *policy.Policy) *Classifier {
	return &Classifier{
		triggers:   textnorm.FoldAll(p.ExistentialTriggers),
		complexity: p.Complexity,
		floor:      p.Floor,
	}
}

// Trigger returns the first existential trigger contained in text.
func (c *Classifier) Trigger(text string) (string, bool) {
	return textnorm.FirstMatch(textnorm.Fold(text), c.triggers)
}

// Score is the complexity score of a request.
func (c *Classifier) Score(text string, axioms, missingEvidence int) float64 {
	words := float64(len(strings.Fields(text)))
	return float64(axioms)*c.complexity.AxiomWeight +
		words/c.complexity.WordsPerPoint +
		float64(missingEvidence)*c.complexity.MissingEvidenceWeight
}

// Band maps a complexity score onto the criticality scale.
func (c *Classifier) Band(score float64) contracts.Criticality {
	for i, bp := range c.complexity.Breakpoints {
		if score < bp {
			return contracts.Criticality(i + 1)
		}
	}
	return contracts.MaxCriticality
}

// Classify scores text for domain with the given axiom count and number of
// axioms lacking evidence.
func (c *Classifier) Classify(text string, domain contracts.Domain, axioms, missingEvidence int) Result {
	score := c.Score(text, axioms, missingEvidence)

	if trigger, ok := c.Trigger(text); ok {
		return Result{
			Criticality: contracts.CI5,
			Score:       score,
			Base:        contracts.CI5,
			Trigger:     trigger,
		}
	}

	base := c.Band(score)
	floor := c.floor(domain)
	return Result{
		Criticality: base.Raise(floor),
		Score:       score,
		Base:        base,
		Floor:       floor,
	}
}

// ClassifyContract classifies a request contract.
func (c *Classifier) ClassifyContract(rc *contracts.RequestContract) Result {
	return c.Classify(rc.RawText, rc.Domain, len(rc.AxiomSet), rc.MissingEvidence())
}
