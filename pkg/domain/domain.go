// Package domain detects the knowledge domain of a request and adapts raw
// text into a request contract.
package domain

import (
	"context"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/evidence"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/textnorm"
)

// Classifier returns a domain tag for raw text.
type Classifier interface {
	Detect(text string) contracts.Domain
}

// KeywordClassifier counts keyword hits per domain. The highest count wins,
// ties go to the domain listed first, and no hits at all yield the default.
type KeywordClassifier struct {
	order    []contracts.Domain
	keywords map[contracts.Domain][]string
	fallback contracts.Domain
}

// NewKeywordClassifier builds a classifier from the policy detection table.
func NewKeywordClassifier(p *policy.Policy) *KeywordClassifier {
	k := &KeywordClassifier{
		order:    append([]contracts.Domain(nil), p.DetectionOrder...),
		keywords: make(map[contracts.Domain][]string, len(p.DetectionOrder)),
		fallback: p.DefaultDomain,
	}
	for _, d := range p.DetectionOrder {
		k.keywords[d] = textnorm.FoldAll(p.Domains[d].Keywords)
	}
	return k
}

// Detect implements Classifier.
func (k *KeywordClassifier) Detect(text string) contracts.Domain {
	folded := textnorm.Fold(text)
	best, bestCount := k.fallback, 0
	for _, d := range k.order {
		if n := textnorm.CountMatches(folded, k.keywords[d]); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// Adapter builds request contracts from the policy's domain templates.
type Adapter struct {
	policy   *policy.Policy
	resolver *evidence.Resolver
}

// NewAdapter creates an adapter resolving axioms through r.
func NewAdapter(p *policy.Policy, r *evidence.Resolver) *Adapter {
	return &Adapter{policy: p, resolver: r}
}

// Build resolves every axiom of d's template and returns the contract.
// A domain without its own template borrows the default domain's axioms but
// keeps its own tag, so domain floors still apply. The raw text hash is
// always computed here, never taken from the caller.
func (a *Adapter) Build(ctx context.Context, d contracts.Domain, raw string, budget time.Duration) *contracts.RequestContract {
	_, tmpl := a.policy.Domain(d)
	data := a.resolver.ResolveAll(ctx, tmpl.Axioms)
	return contracts.NewRequestContract(d, tmpl.Axioms, tmpl.SuccessCriteria, raw, data, budget)
}
