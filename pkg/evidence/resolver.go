package evidence

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/deadline"
)

// Resolver picks the best available datum for a query across all oracles.
type Resolver struct {
	registry *Registry
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLimiter bounds the rate of oracle fetches across all queries.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Resolver) { r.limiter = l }
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over reg.
func NewResolver(reg *Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: reg,
		logger:   slog.Default().With("component", "evidence"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Placeholder is the zero-confidence datum returned when nothing answers.
func Placeholder(query string) *contracts.Datum {
	return &contracts.Datum{
		Query:      query,
		Content:    "No data for " + query,
		Tier:       contracts.TierUnverified,
		Source:     contracts.PlaceholderSource,
		Confidence: 0,
	}
}

// Resolve never fails. Each oracle is asked for the query tier by tier, in
// TierOrder, and contributes its first answer. The highest-confidence answer
// wins, earlier oracle names breaking ties. An Empirical winner is then
// triangulated across all oracles and its confidence halved when fewer than
// MinTriangulationSources corroborate it. Oracle calls are abandoned once
// the context expires. When no oracle answered in time, the zero-confidence
// placeholder is returned.
func (r *Resolver) Resolve(ctx context.Context, query string) *contracts.Datum {
	oracles := r.registry.snapshot()
	results := make([]*contracts.Datum, len(oracles))

	// Oracle failures are absorbed per oracle, so the group never errors.
	var g errgroup.Group
	for i, no := range oracles {
		g.Go(func() error {
			results[i] = r.fetchFirstTier(ctx, no, query)
			return nil
		})
	}
	_ = g.Wait()

	var best *contracts.Datum
	for _, d := range results {
		if d == nil {
			continue
		}
		if best == nil || d.Confidence > best.Confidence {
			best = d
		}
	}
	if best == nil {
		r.logger.Warn("evidence degraded to placeholder", "query", query, "oracles", len(oracles))
		return Placeholder(query)
	}

	if best.Tier == contracts.TierEmpirical {
		// oracles see a copy; an abandoned call may still be reading it
		candidate := best.Clone()
		for _, no := range oracles {
			ok, err := deadline.Call(ctx, func(ctx context.Context) (bool, error) {
				return no.oracle.Triangulate(ctx, candidate), nil
			})
			if err != nil {
				break
			}
			if ok {
				best.AddTriangulationSource(no.name)
			}
		}
		if !best.IsTriangulated() {
			best.Confidence *= 0.5
			r.logger.Info("untriangulated empirical evidence",
				"query", query,
				"source", best.Source,
				"sources", len(best.TriangulationSources),
			)
		}
	}
	return best
}

// ResolveAll resolves queries concurrently and returns data in query order.
func (r *Resolver) ResolveAll(ctx context.Context, queries []string) []*contracts.Datum {
	out := make([]*contracts.Datum, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			out[i] = r.Resolve(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) fetchFirstTier(ctx context.Context, no namedOracle, query string) *contracts.Datum {
	for _, tier := range contracts.TierOrder {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		d, err := deadline.Call(ctx, func(ctx context.Context) (*contracts.Datum, error) {
			return no.oracle.Fetch(ctx, query, tier)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !errors.Is(err, ErrEvidenceUnavailable) {
				r.logger.Debug("oracle fetch failed", "oracle", no.name, "tier", tier, "error", err)
			}
			continue
		}
		if d == nil {
			continue
		}
		c := d.Clone()
		c.Query = query
		if c.Source == "" {
			c.Source = no.name
		}
		if c.Tier == "" {
			c.Tier = tier
		}
		c.TriangulationSources = nil
		return c
	}
	return nil
}
