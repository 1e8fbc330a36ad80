// Package engine routes drafting work to content engines. Engines are
// external collaborators: the pipeline treats their output as opaque text.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// Type names an engine family.
type Type string

const (
	Creative    Type = "CREATIVE"
	Structured  Type = "STRUCTURED"
	Adversarial Type = "ADVERSARIAL"
)

// Request is what an engine is given.
type Request struct {
	Phase           contracts.Phase
	Criticality     contracts.Criticality
	Domain          contracts.Domain
	RigorLevel      string
	AxiomSet        []string
	SuccessCriteria []string
	Evidence        []*contracts.Datum
	// Draft is set for the AUDIT review.
	Draft *contracts.Draft
}

// Engine produces content for a request.
type Engine interface {
	Type() Type
	Generate(ctx context.Context, req Request) (string, error)
}

// Registry holds engines keyed by type.
type Registry struct {
	mu      sync.RWMutex
	engines map[Type]Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[Type]Engine)}
}

// DefaultRegistry registers a template engine for every type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Type{Creative, Structured, Adversarial} {
		r.Register(TemplateEngine{Kind: t})
	}
	return r
}

// Register adds or replaces the engine for e.Type().
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Type()] = e
}

// Get looks up an engine.
func (r *Registry) Get(t Type) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[t]
	return e, ok
}

// Types lists registered engine types, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.engines))
	for t := range r.engines {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TemplateEngine renders deterministic text. It stands in for a real
// generator and is what the CLI uses by default.
type TemplateEngine struct {
	Kind Type
}

// Type implements Engine.
func (t TemplateEngine) Type() Type { return t.Kind }

// Generate implements Engine.
func (t TemplateEngine) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Phase == contracts.PhaseAudit {
		flags := 0
		if req.Draft != nil {
			flags = len(req.Draft.UncertaintyFlags)
		}
		return fmt.Sprintf("Adversarial review of %s draft at %s: %d uncertainty flags, %d claims challenged",
			req.Domain, req.Criticality, flags, len(req.AxiomSet)), nil
	}
	criteria := "no stated criteria"
	if len(req.SuccessCriteria) > 0 {
		criteria = strings.Join(req.SuccessCriteria, ", ")
	}
	return fmt.Sprintf("Technical proposal for %s (%s engine, %s rigor): %d axioms applied; targets %s",
		req.Domain, t.Kind, req.RigorLevel, len(req.AxiomSet), criteria), nil
}
