// Package sharding decomposes existential (CI_5) work into blind partitions,
// evaluates them in isolation and checks the complete output set for
// collusion.
package sharding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
)

// Task is everything one shard may see. It never carries the raw request.
type Task struct {
	Index       int
	Partition   string
	Criticality contracts.Criticality
	Domain      contracts.Domain
	Axioms      []string
}

// Evaluator produces the output of one shard.
type Evaluator interface {
	EvaluateShard(ctx context.Context, task Task) (string, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, task Task) (string, error)

// EvaluateShard implements Evaluator.
func (f EvaluatorFunc) EvaluateShard(ctx context.Context, task Task) (string, error) {
	return f(ctx, task)
}

// TemplateEvaluator renders a deterministic review note per partition.
type TemplateEvaluator struct{}

// EvaluateShard implements Evaluator.
func (TemplateEvaluator) EvaluateShard(ctx context.Context, task Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	claims := "no claims"
	if len(task.Axioms) > 0 {
		claims = strings.Join(task.Axioms, "; ")
	}
	return fmt.Sprintf("%s review of %s at %s: %s", task.Partition, task.Domain, task.Criticality, claims), nil
}

// Result is the outcome of sharding one request.
type Result struct {
	Shards      []contracts.Shard
	Correlation float64
	Collusion   bool
}

// Sharder runs blind shards for CI_5 requests.
type Sharder struct {
	partitions []string
	threshold  float64
	evaluator  Evaluator
	correlator Correlator
	logger     *slog.Logger
}

// Option configures a Sharder.
type Option func(*Sharder)

// WithEvaluator replaces the shard evaluator.
func WithEvaluator(e Evaluator) Option { return func(s *Sharder) { s.evaluator = e } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Sharder) { s.logger = l } }

// New creates a sharder with partitions and threshold from p.
func New(p *policy.Policy, correlator Correlator, opts ...Option) *Sharder {
	s := &Sharder{
		partitions: append([]string(nil), p.Sharding.Partitions...),
		threshold:  p.Sharding.CollusionThreshold,
		evaluator:  TemplateEvaluator{},
		correlator: correlator,
		logger:     slog.Default().With("component", "sharding"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold is the collusion tolerance.
func (s *Sharder) Threshold() float64 { return s.threshold }

// Tasks splits the contract's axioms round-robin across the partitions.
func (s *Sharder) Tasks(ci contracts.Criticality, rc *contracts.RequestContract) []Task {
	tasks := make([]Task, len(s.partitions))
	for i, p := range s.partitions {
		tasks[i] = Task{Index: i, Partition: p, Criticality: ci, Domain: rc.Domain}
	}
	for j, axiom := range rc.AxiomSet {
		t := &tasks[j%len(tasks)]
		t.Axioms = append(t.Axioms, axiom)
	}
	return tasks
}

// Shard returns nil below CI_5. Shards run concurrently and the correlator
// only sees the complete output set.
func (s *Sharder) Shard(ctx context.Context, ci contracts.Criticality, rc *contracts.RequestContract) (*Result, error) {
	if ci != contracts.CI5 {
		return nil, nil
	}

	tasks := s.Tasks(ci, rc)
	shards := make([]contracts.Shard, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			out, err := s.evaluator.EvaluateShard(gctx, task)
			if err != nil {
				return fmt.Errorf("shard %s: %w", task.Partition, err)
			}
			shards[i] = contracts.Shard{Index: task.Index, Partition: task.Partition, Output: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	corr, err := s.correlator.Correlate(shards)
	if err != nil {
		return nil, err
	}
	res := &Result{Shards: shards, Correlation: corr, Collusion: corr > s.threshold}
	if res.Collusion {
		s.logger.Warn("shard collusion detected",
			"correlation", corr,
			"threshold", s.threshold,
			"shards", len(shards),
		)
	}
	return res, nil
}
