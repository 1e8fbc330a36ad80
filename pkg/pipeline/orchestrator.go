// Package pipeline sequences SEED, EXPANSION, AUDIT and SYNTHESIS into one
// sealed, audited decision per request.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/classifier"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/deadline"
	"github.com/Trindade2023/trindade-protocol/pkg/domain"
	"github.com/Trindade2023/trindade-protocol/pkg/engine"
	"github.com/Trindade2023/trindade-protocol/pkg/evidence"
	"github.com/Trindade2023/trindade-protocol/pkg/firewall"
	"github.com/Trindade2023/trindade-protocol/pkg/interlock"
	"github.com/Trindade2023/trindade-protocol/pkg/notary"
	"github.com/Trindade2023/trindade-protocol/pkg/observability"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/profile"
	"github.com/Trindade2023/trindade-protocol/pkg/risk"
	"github.com/Trindade2023/trindade-protocol/pkg/sharding"
)

// VetoPrefix starts the body of a vetoed decision.
const VetoPrefix = "DECISION VETOED: "

// shardFailureReason is recorded when a CI_5 request could not be sharded.
const shardFailureReason = "shard evaluation incomplete"

// Components are the collaborators of an Orchestrator. Every nil field gets
// a default built from the policy.
type Components struct {
	Resolver         *evidence.Resolver      // default: one reference oracle at 0.85
	Engines          *engine.Registry        // default: engine.DefaultRegistry()
	DomainClassifier domain.Classifier       // default: keyword detection
	Bias             risk.BiasMeter          // default: risk.EvidenceBias
	Correlator       sharding.Correlator     // default: random HMAC key
	ShardEvaluator   sharding.Evaluator      // default: template evaluator
	Notary           notary.Notarizer        // default: ephemeral JWT notary
	Ledger           audit.Ledger            // default: in-memory ledger
	Profiles         *profile.Manager        // default: Standard profile
	Interlock        *interlock.Manager      // default: policy quorums
	Telemetry        *observability.Provider // default: disabled provider
	Clock            func() time.Time
	Logger           *slog.Logger
}

// ReferenceConfidence is the confidence of the default evidence oracle.
const ReferenceConfidence = 0.85

// Orchestrator runs requests through the four phases. It is safe for
// concurrent use; the profile manager and the ledger are its only shared
// state.
type Orchestrator struct {
	policy     *policy.Policy
	firewall   *firewall.InputFirewall
	detector   domain.Classifier
	adapter    *domain.Adapter
	classifier *classifier.Classifier
	router     *engine.Router
	evaluator  *risk.Evaluator
	bias       risk.BiasMeter
	sharder    *sharding.Sharder
	notary     notary.Notarizer
	ledger     audit.Ledger
	profiles   *profile.Manager
	interlock  *interlock.Manager
	telemetry  *observability.Provider
	clock      func() time.Time
	logger     *slog.Logger
}

// New wires an orchestrator for p.
func New(p *policy.Policy, c Components) (*Orchestrator, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline: nil policy")
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "pipeline")
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Resolver == nil {
		reg := evidence.NewRegistry()
		if err := reg.Register("reference", evidence.NewReferenceOracle("reference", ReferenceConfidence)); err != nil {
			return nil, fmt.Errorf("pipeline: evidence registry: %w", err)
		}
		c.Resolver = evidence.NewResolver(reg)
	}
	if c.Engines == nil {
		c.Engines = engine.DefaultRegistry()
	}
	if c.DomainClassifier == nil {
		c.DomainClassifier = domain.NewKeywordClassifier(p)
	}
	if c.Bias == nil {
		c.Bias = risk.EvidenceBias{}
	}
	if c.Correlator == nil {
		corr, err := sharding.NewRandomCorrelator()
		if err != nil {
			return nil, fmt.Errorf("pipeline: correlator: %w", err)
		}
		c.Correlator = corr
	}
	if c.Notary == nil {
		n, err := notary.NewEphemeral(notary.DefaultName)
		if err != nil {
			return nil, fmt.Errorf("pipeline: notary: %w", err)
		}
		c.Notary = n.WithClock(c.Clock)
	}
	if c.Ledger == nil {
		c.Ledger = audit.NewMemoryLedger()
	}
	if c.Profiles == nil {
		c.Profiles = profile.NewManager(p).WithClock(c.Clock)
	}
	if c.Interlock == nil {
		c.Interlock = interlock.NewManager(p.Interlock).WithClock(c.Clock)
	}
	if c.Telemetry == nil {
		tp, err := observability.New(context.Background(), nil)
		if err != nil {
			return nil, err
		}
		c.Telemetry = tp
	}

	shardOpts := []sharding.Option{sharding.WithLogger(c.Logger.With("stage", "sharding"))}
	if c.ShardEvaluator != nil {
		shardOpts = append(shardOpts, sharding.WithEvaluator(c.ShardEvaluator))
	}

	return &Orchestrator{
		policy:     p,
		firewall:   firewall.New(p.Firewall),
		detector:   c.DomainClassifier,
		adapter:    domain.NewAdapter(p, c.Resolver),
		classifier: classifier.New(p),
		router:     engine.NewRouter(c.Engines, c.Logger.With("stage", "engine")),
		evaluator:  risk.NewEvaluator(p, c.Logger.With("stage", "risk")),
		bias:       c.Bias,
		sharder:    sharding.New(p, c.Correlator, shardOpts...),
		notary:     c.Notary,
		ledger:     c.Ledger,
		profiles:   c.Profiles,
		interlock:  c.Interlock,
		telemetry:  c.Telemetry,
		clock:      c.Clock,
		logger:     c.Logger,
	}, nil
}

func (o *Orchestrator) Policy() *policy.Policy             { return o.policy }
func (o *Orchestrator) Ledger() audit.Ledger               { return o.ledger }
func (o *Orchestrator) Profiles() *profile.Manager         { return o.profiles }
func (o *Orchestrator) Interlock() *interlock.Manager      { return o.interlock }
func (o *Orchestrator) Telemetry() *observability.Provider { return o.telemetry }

// run is the per-request state threaded through the phases.
type run struct {
	txID     string
	raw      string
	req      request
	deadline time.Time

	profile contracts.Profile
	rc      *contracts.RequestContract
	class   classifier.Result
	draft   *contracts.Draft
	review  string
	risk    contracts.RiskAssessment
	shards  *sharding.Result
	rec     *contracts.DecisionRecord
}

// bounded limits external calls to the request's time budget. The budget
// runs on the wall clock even when an authority clock is injected.
func (r *run) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, r.deadline)
}

// Process runs rawText through the pipeline and returns the sealed,
// audited record. Vetoes, containment and collusion wipes are successful
// outcomes; errors are ErrInvalidInput, ErrInvariantViolation, or a failure
// to record the decision.
func (o *Orchestrator) Process(ctx context.Context, rawText string, opts ...Option) (rec *contracts.DecisionRecord, err error) {
	req := request{budget: o.policy.TimeBudget}
	if req.budget <= 0 {
		req.budget = contracts.DefaultTimeBudget
	}
	for _, opt := range opts {
		opt(&req)
	}
	if err := o.admit(rawText, &req); err != nil {
		return nil, err
	}

	r := &run{
		txID:     uuid.NewString(),
		raw:      rawText,
		req:      req,
		deadline: time.Now().Add(req.budget),
	}
	ctx, finish := o.telemetry.TrackOperation(ctx, "seasa.process")
	defer func() { finish(err) }()

	var pm phaseMachine
	phases := []struct {
		phase contracts.Phase
		fn    func(context.Context, *run) error
	}{
		{contracts.PhaseSeed, o.seed},
		{contracts.PhaseExpansion, o.expand},
		{contracts.PhaseAudit, o.audit},
		{contracts.PhaseSynthesis, o.synthesize},
	}
	for _, ph := range phases {
		if err := o.runPhase(ctx, &pm, ph.phase, r, ph.fn); err != nil {
			o.logger.Error("pipeline aborted", "transaction_id", r.txID, "phase", ph.phase.String(), "error", err)
			return nil, err
		}
	}
	if !pm.complete() {
		return nil, violation("pipeline finished before SYNTHESIS")
	}
	if err := o.record(ctx, r); err != nil {
		return nil, err
	}
	return r.rec, nil
}

// admit validates options and input before anything is mutated.
func (o *Orchestrator) admit(raw string, req *request) error {
	if req.profile != "" {
		p, err := contracts.ParseProfile(string(req.profile))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		req.profile = p
	}
	if req.domain != "" && contracts.ParseDomain(string(req.domain)) != req.domain {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidInput, req.domain)
	}
	if err := o.firewall.Validate(raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, pm *phaseMachine, p contracts.Phase, r *run, fn func(context.Context, *run) error) (err error) {
	if err := pm.enter(p); err != nil {
		return err
	}
	ctx, end := o.telemetry.TrackOperation(ctx, "seasa.phase."+strings.ToLower(p.String()), observability.PhaseAttributes(p)...)
	defer func() { end(err) }()
	return fn(ctx, r)
}

func (o *Orchestrator) seed(ctx context.Context, r *run) error {
	d := r.req.domain
	if d == "" {
		d = o.detector.Detect(r.raw)
	}

	if r.req.profile != "" {
		if _, err := o.profiles.Override(r.req.profile, "forced for transaction "+r.txID); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		r.profile = r.req.profile
	} else {
		r.profile = o.profiles.DetectAndSetContext(r.raw)
	}

	bctx, cancel := r.bounded(ctx)
	defer cancel()
	r.rc = o.adapter.Build(bctx, d, r.raw, r.req.budget)
	r.class = o.classifier.ClassifyContract(r.rc)
	if !r.class.Criticality.Valid() {
		return violation("classifier returned %s", r.class.Criticality)
	}

	o.logger.Info("request classified",
		"transaction_id", r.txID,
		"domain", r.rc.Domain,
		"profile", r.profile,
		"criticality", r.class.Criticality.String(),
		"score", r.class.Score,
		"missing_evidence", r.rc.MissingEvidence(),
		"trigger", r.class.Trigger,
	)
	return nil
}

func (o *Orchestrator) expand(ctx context.Context, r *run) error {
	bctx, cancel := r.bounded(ctx)
	defer cancel()
	r.draft = o.router.Expand(bctx, r.class.Criticality, r.rc)
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, r *run) error {
	ci := r.class.Criticality
	bctx, cancel := r.bounded(ctx)
	defer cancel()

	bias, err := o.bias.Measure(bctx, r.rc, r.draft)
	if err != nil {
		o.logger.Warn("bias measurement failed; assuming maximum bias", "transaction_id", r.txID, "error", err)
		bias = 1
	}
	r.risk = o.evaluator.Evaluate(ci, r.rc, r.profile, bias)
	r.review = o.router.Review(bctx, ci, r.rc, r.draft)

	if ci != contracts.CI5 {
		return nil
	}
	res, err := o.sharder.Shard(bctx, ci, r.rc)
	if err != nil {
		o.logger.Error("sharding failed", "transaction_id", r.txID, "error", err)
		r.risk.AddVeto(shardFailureReason)
		return nil
	}
	r.shards = res
	r.risk.Correlation = res.Correlation
	r.risk.Collusion = res.Collusion
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) error {
	rec := &contracts.DecisionRecord{
		TransactionID:   r.txID,
		Domain:          r.rc.Domain,
		Profile:         r.profile,
		Criticality:     r.class.Criticality,
		ComplexityScore: r.class.Score,
		Risk:            r.risk,
		PolicyHash:      o.policy.Hash(),
		Content: contracts.Content{
			Draft:          r.draft,
			Review:         r.review,
			MitigationPlan: r.risk.Mitigation,
		},
	}
	if r.shards != nil {
		rec.Shards = r.shards.Shards
	}

	if rec.Criticality == contracts.CI5 {
		rec.ContainmentActive = true
		rec.Risk.Containment = true
		sp := contracts.ActiveSurvivalProtocol
		rec.Content.SurvivalProtocol = &sp
	}

	switch {
	case rec.Risk.Collusion:
		rec.Risk.AddVeto("shard collusion detected")
		wipe(rec)
		o.logger.Warn("decision wiped",
			"transaction_id", r.txID,
			"correlation", rec.Risk.Correlation,
			"criticality", rec.Criticality.String(),
		)
	case rec.Risk.Veto:
		rec.Content.Body = VetoPrefix + strings.Join(rec.Risk.VetoReasons, "; ")
	default:
		rec.Content.Body = r.draft.Text
	}
	rec.RequiresHumanApproval = rec.Risk.Veto || rec.ContainmentActive

	if err := checkRecord(rec); err != nil {
		return err
	}
	o.notarize(ctx, r, rec)
	if err := rec.Seal(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	r.rec = rec
	return nil
}

// wipe destroys every piece of releasable content. Only the survival
// protocol marker survives.
func wipe(rec *contracts.DecisionRecord) {
	rec.Content = contracts.Content{
		Body:             contracts.WipeMarker,
		SurvivalProtocol: rec.Content.SurvivalProtocol,
		Wiped:            true,
	}
	for i := range rec.Shards {
		rec.Shards[i].Output = contracts.WipeMarker
	}
}

// notarize attaches a receipt when the policy requires one. A failed
// notarization holds the record for a human instead of failing the request.
func (o *Orchestrator) notarize(ctx context.Context, r *run, rec *contracts.DecisionRecord) {
	if !o.policy.NotarizationRequired(rec.Profile, rec.Criticality) {
		rec.NotarizationStatus = contracts.NotarizationNotRequired
		return
	}
	if rec.Content.Wiped {
		o.logger.Info("notarization suppressed for wiped record",
			"transaction_id", r.txID,
			"criticality", rec.Criticality.String(),
		)
		rec.NotarizationStatus = contracts.NotarizationSuppressed
		return
	}
	bctx, cancel := r.bounded(ctx)
	defer cancel()

	// the notary gets a snapshot; an abandoned call must not race the seal
	snapshot := *rec
	receipt, err := deadline.Call(bctx, func(ctx context.Context) (*contracts.NotarizationReceipt, error) {
		return o.notary.Notarize(ctx, &snapshot)
	})
	if err != nil {
		o.logger.Warn("notarization failed; human approval required",
			"transaction_id", r.txID,
			"criticality", rec.Criticality.String(),
			"profile", rec.Profile,
			"error", err,
		)
		rec.NotarizationStatus = contracts.NotarizationFailed
		rec.RequiresHumanApproval = true
		return
	}
	rec.NotarizationStatus = contracts.NotarizationNotarized
	rec.Notarization = receipt
}

// record appends the audit entry and engages the interlock. A decision that
// cannot be recorded is not returned.
func (o *Orchestrator) record(ctx context.Context, r *run) error {
	rec := r.rec
	entry := contracts.NewAuditEntry(rec, r.rc.InputHash(), o.clock())
	stored, err := o.ledger.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("pipeline: record decision %s: %w", r.txID, err)
	}
	rec.Audit = stored

	status, err := o.interlock.Engage(ctx, rec)
	if err != nil {
		o.logger.Warn("interlock hold not opened", "transaction_id", r.txID, "error", err)
		status = interlock.Check(rec)
	}
	rec.Interlock = &status

	o.telemetry.RecordDecision(ctx, rec)
	o.logger.Info("decision recorded",
		"transaction_id", r.txID,
		"status", rec.Status(),
		"criticality", rec.Criticality.String(),
		"profile", rec.Profile,
		"sequence", stored.Sequence,
		"interlock", status.State,
	)
	return nil
}
