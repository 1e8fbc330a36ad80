// Package evidence resolves confidence-tagged data for contract axioms from
// a registry of named oracles.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// ErrEvidenceUnavailable is what an oracle returns when it has nothing for a
// query. The resolver absorbs it; it never reaches pipeline callers.
var ErrEvidenceUnavailable = errors.New("evidence unavailable")

// Oracle is an external data source.
//
// Fetch returns nil (with or without an error) when it has no datum for
// the query at the requested tier. Triangulate reports whether this oracle
// independently corroborates a datum found elsewhere.
type Oracle interface {
	Fetch(ctx context.Context, query string, tier contracts.EvidenceTier) (*contracts.Datum, error)
	Triangulate(ctx context.Context, d *contracts.Datum) bool
}

// Registry holds oracles keyed by name. Iteration is in name order so that
// resolution is deterministic.
type Registry struct {
	mu      sync.RWMutex
	oracles map[string]Oracle
}

// NewRegistry creates an empty oracle registry.
func NewRegistry() *Registry {
	return &Registry{oracles: make(map[string]Oracle)}
}

// Register adds an oracle. Names are unique.
func (r *Registry) Register(name string, o Oracle) error {
	if name == "" {
		return fmt.Errorf("evidence: oracle name is required")
	}
	if o == nil {
		return fmt.Errorf("evidence: oracle %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.oracles[name]; exists {
		return fmt.Errorf("evidence: oracle %q already registered", name)
	}
	r.oracles[name] = o
	return nil
}

// Names returns the registered oracle names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.oracles))
	for n := range r.oracles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get looks up one oracle.
func (r *Registry) Get(name string) (Oracle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.oracles[name]
	return o, ok
}

// Len is the number of registered oracles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.oracles)
}

type namedOracle struct {
	name   string
	oracle Oracle
}

func (r *Registry) snapshot() []namedOracle {
	names := r.Names()
	out := make([]namedOracle, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if o, ok := r.oracles[n]; ok {
			out = append(out, namedOracle{name: n, oracle: o})
		}
	}
	return out
}
