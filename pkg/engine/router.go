package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/deadline"
)

// ErrNoEngine means the routing matrix selected an unregistered type.
var ErrNoEngine = errors.New("no engine registered")

// UnavailableText is the draft body used when no engine answered.
const UnavailableText = "Draft unavailable: content engine did not respond"

// Select is the routing matrix.
func Select(domain contracts.Domain, ci contracts.Criticality, phase contracts.Phase) Type {
	switch {
	case phase == contracts.PhaseAudit:
		return Adversarial
	case ci == contracts.CI5:
		return Structured
	case domain == contracts.DomainMathematics || domain == contracts.DomainComputerScience:
		return Structured
	case (domain == contracts.DomainArts || domain == contracts.DomainPhilosophy) && ci <= contracts.CI2:
		return Creative
	default:
		return Structured
	}
}

// RigorFor escalates rigor with criticality.
func RigorFor(ci contracts.Criticality) string {
	if ci >= contracts.CI4 {
		return contracts.RigorMaximum
	}
	return contracts.RigorStandard
}

// Router drives the EXPANSION draft and the AUDIT review.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a router over reg.
func NewRouter(reg *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default().With("component", "engine")
	}
	return &Router{registry: reg, logger: logger}
}

// Expand produces the draft for a contract. Engine failure degrades to a
// placeholder draft flagged engine_unavailable. Untriangulated Empirical
// evidence is flagged by source.
func (r *Router) Expand(ctx context.Context, ci contracts.Criticality, rc *contracts.RequestContract) *contracts.Draft {
	kind := Select(rc.Domain, ci, contracts.PhaseExpansion)
	draft := &contracts.Draft{
		Engine:           string(kind),
		RigorLevel:       RigorFor(ci),
		AxiomsApplied:    len(rc.AxiomSet),
		UncertaintyFlags: []string{},
	}
	for _, src := range rc.UntriangulatedSources() {
		draft.UncertaintyFlags = append(draft.UncertaintyFlags, contracts.FlagUntriangulatedPrefix+src)
	}

	text, err := r.generate(ctx, kind, Request{
		Phase:           contracts.PhaseExpansion,
		Criticality:     ci,
		Domain:          rc.Domain,
		RigorLevel:      draft.RigorLevel,
		AxiomSet:        rc.AxiomSet,
		SuccessCriteria: rc.SuccessCriteria,
		Evidence:        rc.Evidence,
	})
	if err != nil {
		r.logger.Warn("content engine unavailable", "engine", kind, "error", err)
		draft.Text = UnavailableText
		draft.UncertaintyFlags = append(draft.UncertaintyFlags, contracts.FlagEngineUnavailable)
		return draft
	}
	draft.Text = text
	return draft
}

// Review asks the adversarial engine for an AUDIT note. An empty string
// means no review was available.
func (r *Router) Review(ctx context.Context, ci contracts.Criticality, rc *contracts.RequestContract, draft *contracts.Draft) string {
	kind := Select(rc.Domain, ci, contracts.PhaseAudit)
	text, err := r.generate(ctx, kind, Request{
		Phase:       contracts.PhaseAudit,
		Criticality: ci,
		Domain:      rc.Domain,
		RigorLevel:  RigorFor(ci),
		AxiomSet:    rc.AxiomSet,
		Evidence:    rc.Evidence,
		Draft:       draft,
	})
	if err != nil {
		r.logger.Warn("adversarial review unavailable", "error", err)
		return ""
	}
	return text
}

func (r *Router) generate(ctx context.Context, kind Type, req Request) (string, error) {
	e, ok := r.registry.Get(kind)
	if !ok {
		return "", fmt.Errorf("%w for %s", ErrNoEngine, kind)
	}
	return deadline.Call(ctx, func(ctx context.Context) (string, error) {
		return e.Generate(ctx, req)
	})
}
