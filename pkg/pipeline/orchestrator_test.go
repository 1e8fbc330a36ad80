package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/engine"
	"github.com/Trindade2023/trindade-protocol/pkg/evidence"
	"github.com/Trindade2023/trindade-protocol/pkg/firewall"
	"github.com/Trindade2023/trindade-protocol/pkg/interlock"
	"github.com/Trindade2023/trindade-protocol/pkg/notary"
	"github.com/Trindade2023/trindade-protocol/pkg/pipeline"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
	"github.com/Trindade2023/trindade-protocol/pkg/risk"
	"github.com/Trindade2023/trindade-protocol/pkg/sharding"
)

const (
	bracketRequest  = "Design a simple support bracket for a bookshelf"
	meltdownRequest = "Nuclear meltdown in progress at reactor 2, emergency response needed"
	collapseRequest = "Assess structural collapse of the spillway"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

// newOrchestrator uses a fixed clock and a low fixed shard correlation
// unless c overrides them.
func newOrchestrator(t *testing.T, c pipeline.Components) *pipeline.Orchestrator {
	t.Helper()
	p, err := policy.Default()
	require.NoError(t, err)
	if c.Clock == nil {
		c.Clock = fixedClock
	}
	if c.Correlator == nil {
		c.Correlator = sharding.FixedCorrelator(0.10)
	}
	o, err := pipeline.New(p, c)
	require.NoError(t, err)
	return o
}

// longRequest scores into CI_3 under the default table without tripping
// any existential trigger.
func longRequest() string {
	return "Design " + strings.Repeat("bracket ", 600)
}

func TestProcess_LowRiskRequestIsReleased(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), bracketRequest)
	require.NoError(t, err)

	assert.Equal(t, contracts.CI1, rec.Criticality)
	assert.Equal(t, contracts.DomainEngineering, rec.Domain)
	assert.Equal(t, contracts.ProfileStandard, rec.Profile)
	assert.False(t, rec.Risk.Veto)
	assert.False(t, rec.ContainmentActive)
	assert.False(t, rec.RequiresHumanApproval)
	assert.Equal(t, contracts.ALARPBroadlyAcceptable, rec.Risk.Status)
	assert.Equal(t, rec.Content.Draft.Text, rec.Content.Body)
	assert.NotEmpty(t, rec.Content.Review)
	assert.Empty(t, rec.Shards)
	assert.Equal(t, contracts.NotarizationNotRequired, rec.NotarizationStatus)
	assert.Equal(t, "PROCESSED", rec.Status())

	require.NotNil(t, rec.Interlock)
	assert.Equal(t, contracts.InterlockOpen, rec.Interlock.State)
	require.NotNil(t, rec.Audit)
	assert.Equal(t, uint64(1), rec.Audit.Sequence)
	assert.Equal(t, contracts.GenesisSeal, rec.Audit.PreviousSeal)
	assert.Equal(t, rec.LogicHash, rec.Audit.LogicHash)
	assert.Equal(t, o.Policy().Hash(), rec.Audit.PolicyHash)
	assert.Len(t, rec.Audit.InputHash, 16)
}

func TestProcess_ExistentialRequestIsContained(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), meltdownRequest)
	require.NoError(t, err)

	assert.Equal(t, contracts.CI5, rec.Criticality)
	assert.True(t, rec.ContainmentActive)
	assert.True(t, rec.RequiresHumanApproval)
	assert.True(t, rec.Risk.Veto)
	assert.Equal(t, 20, rec.Risk.Score())
	assert.Equal(t, contracts.ALARPUnacceptable, rec.Risk.Status)
	assert.Equal(t, "MANDATORY_CONTAINMENT_PROTOCOL", rec.Content.MitigationPlan)
	require.NotNil(t, rec.Content.SurvivalProtocol)
	assert.Equal(t, contracts.ActiveSurvivalProtocol, *rec.Content.SurvivalProtocol)
	assert.True(t, strings.HasPrefix(rec.Content.Body, pipeline.VetoPrefix))
	assert.Len(t, rec.Shards, 3)
	assert.False(t, rec.Risk.Collusion)
	assert.Equal(t, "CONTAINMENT_ACTIVE", rec.Status())

	// "emergency" is a context signal
	assert.Equal(t, contracts.ProfileEmergency, rec.Profile)
	assert.Equal(t, contracts.ProfileEmergency, o.Profiles().Current())

	require.NotNil(t, rec.Interlock)
	assert.Equal(t, contracts.InterlockLocked, rec.Interlock.State)
	assert.Equal(t, interlock.LockedMessage, rec.Interlock.Message)
	assert.NotEmpty(t, rec.Interlock.HoldID)
	assert.True(t, rec.Audit.ContainmentActive)
}

func TestProcess_ContainmentHoldNeedsTwoApprovers(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})
	ctx := context.Background()

	rec, err := o.Process(ctx, meltdownRequest)
	require.NoError(t, err)
	holdID := rec.Interlock.HoldID

	receipt, err := o.Interlock().Approve(ctx, holdID, "officer-a")
	require.NoError(t, err)
	assert.Nil(t, receipt)

	receipt, err = o.Interlock().Approve(ctx, holdID, "officer-b")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, rec.TransactionID, receipt.TransactionID)
	assert.Zero(t, o.Interlock().PendingCount())
}

func TestProcess_BiasVetoBindsUnderStandard(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Bias: risk.StaticBias(0.15)})

	rec, err := o.Process(context.Background(), bracketRequest)
	require.NoError(t, err)

	assert.Equal(t, contracts.ProfileStandard, rec.Profile)
	assert.True(t, rec.Risk.CandidateVeto)
	assert.True(t, rec.Risk.Veto)
	assert.True(t, rec.RequiresHumanApproval)
	assert.False(t, rec.ContainmentActive)
	assert.InDelta(t, 0.10, rec.Risk.BiasThreshold, 1e-9)
	assert.True(t, strings.HasPrefix(rec.Content.Body, pipeline.VetoPrefix))
	assert.Contains(t, rec.Content.Body, "bias")
	assert.Equal(t, contracts.InterlockHeld, rec.Interlock.State)
	assert.Equal(t, "VETOED", rec.Status())
}

func TestProcess_DefenseProfileRaisesThreshold(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Bias: risk.StaticBias(0.15)})

	rec, err := o.Process(context.Background(), bracketRequest, pipeline.WithProfile(contracts.ProfileDefense))
	require.NoError(t, err)

	assert.Equal(t, contracts.ProfileDefense, rec.Profile)
	assert.InDelta(t, 0.25, rec.Risk.BiasThreshold, 1e-9)
	assert.False(t, rec.Risk.CandidateVeto)
	assert.False(t, rec.Risk.Veto)
	assert.False(t, rec.RequiresHumanApproval)
	assert.Equal(t, contracts.InterlockOpen, rec.Interlock.State)

	transitions := o.Profiles().Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, contracts.ProfileStandard, transitions[0].From)
	assert.Equal(t, contracts.ProfileDefense, transitions[0].To)
	assert.Contains(t, transitions[0].Reason, rec.TransactionID)
}

func TestProcess_MissionRuleSupersedesCandidateVeto(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Bias: risk.StaticBias(0.30)})

	rec, err := o.Process(context.Background(), bracketRequest, pipeline.WithProfile(contracts.ProfileDefense))
	require.NoError(t, err)

	assert.True(t, rec.Risk.CandidateVeto)
	assert.True(t, rec.Risk.BiasVetoSuperseded)
	assert.Equal(t, "criticality <= 3 && score <= 6", rec.Risk.SupersededBy)
	assert.False(t, rec.Risk.Veto)
}

func TestProcess_ForcedProfileIgnoresContextSignals(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), "Design a research rig for the lab", pipeline.WithProfile(contracts.ProfileDefense))
	require.NoError(t, err)
	assert.Equal(t, contracts.ProfileDefense, rec.Profile)
	assert.Equal(t, contracts.ProfileDefense, o.Profiles().Current())
}

func TestProcess_CollusionWipesContent(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Correlator: sharding.FixedCorrelator(0.99)})

	rec, err := o.Process(context.Background(), collapseRequest)
	require.NoError(t, err)

	assert.Equal(t, contracts.CI5, rec.Criticality)
	assert.True(t, rec.Risk.Collusion)
	assert.True(t, rec.Risk.Veto)
	assert.Contains(t, rec.Risk.VetoReasons, "shard collusion detected")
	assert.InDelta(t, 0.99, rec.Risk.Correlation, 1e-9)

	assert.True(t, rec.Content.Wiped)
	assert.Equal(t, contracts.WipeMarker, rec.Content.Body)
	assert.Nil(t, rec.Content.Draft)
	assert.Empty(t, rec.Content.Review)
	assert.Empty(t, rec.Content.MitigationPlan)
	require.NotNil(t, rec.Content.SurvivalProtocol)
	for _, s := range rec.Shards {
		assert.Equal(t, contracts.WipeMarker, s.Output)
	}
	assert.True(t, rec.RequiresHumanApproval)
	assert.Equal(t, "WIPED", rec.Status())
	assert.True(t, rec.Audit.RiskSummary.Collusion)
}

func TestProcess_WipedRecordIsNeverNotarized(t *testing.T) {
	var calls int
	counting := notary.Func(func(context.Context, *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error) {
		calls++
		return &contracts.NotarizationReceipt{ReceiptID: "r-1", Notary: "counting"}, nil
	})
	o := newOrchestrator(t, pipeline.Components{
		Correlator: sharding.FixedCorrelator(0.99),
		Notary:     counting,
	})

	rec, err := o.Process(context.Background(), collapseRequest)
	require.NoError(t, err)

	assert.Equal(t, contracts.ProfileStandard, rec.Profile)
	assert.True(t, rec.Content.Wiped)
	assert.Equal(t, contracts.NotarizationSuppressed, rec.NotarizationStatus)
	assert.Nil(t, rec.Notarization)
	assert.Nil(t, rec.Audit.NotarizationReceipt)
	assert.Zero(t, calls)
}

func TestProcess_ShardFailureVetoesWithoutWipe(t *testing.T) {
	failing := sharding.EvaluatorFunc(func(context.Context, sharding.Task) (string, error) {
		return "", errors.New("shard host unreachable")
	})
	o := newOrchestrator(t, pipeline.Components{ShardEvaluator: failing})

	rec, err := o.Process(context.Background(), collapseRequest)
	require.NoError(t, err)

	assert.True(t, rec.Risk.Veto)
	assert.Contains(t, rec.Risk.VetoReasons, "shard evaluation incomplete")
	assert.False(t, rec.Risk.Collusion)
	assert.False(t, rec.Content.Wiped)
	assert.Empty(t, rec.Shards)
	assert.True(t, rec.ContainmentActive)
}

func TestProcess_NotarizesStandardCI3(t *testing.T) {
	n, err := notary.NewEphemeral("test-notary")
	require.NoError(t, err)
	n = n.WithClock(fixedClock)
	o := newOrchestrator(t, pipeline.Components{Notary: n})

	rec, err := o.Process(context.Background(), longRequest())
	require.NoError(t, err)

	assert.Equal(t, contracts.CI3, rec.Criticality)
	assert.Equal(t, contracts.NotarizationNotarized, rec.NotarizationStatus)
	require.NotNil(t, rec.Notarization)
	assert.Equal(t, "test-notary", rec.Notarization.Notary)
	assert.False(t, rec.RequiresHumanApproval)
	require.NoError(t, n.Verifier().VerifyRecord(rec))
	require.NotNil(t, rec.Audit.NotarizationReceipt)
	assert.Equal(t, rec.Notarization.ReceiptID, rec.Audit.NotarizationReceipt.ReceiptID)

	hash, err := rec.ComputeLogicHash()
	require.NoError(t, err)
	assert.Equal(t, hash, rec.LogicHash)
}

func TestProcess_NoNotarizationOutsideStandard(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), longRequest(), pipeline.WithProfile(contracts.ProfileResearch))
	require.NoError(t, err)
	assert.Equal(t, contracts.CI3, rec.Criticality)
	assert.Equal(t, contracts.NotarizationNotRequired, rec.NotarizationStatus)
	assert.Nil(t, rec.Notarization)
}

func TestProcess_NotaryFailureHoldsForHuman(t *testing.T) {
	down := notary.Func(func(context.Context, *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error) {
		return nil, errors.New("notary offline")
	})
	o := newOrchestrator(t, pipeline.Components{Notary: down})

	rec, err := o.Process(context.Background(), longRequest())
	require.NoError(t, err)

	assert.Equal(t, contracts.NotarizationFailed, rec.NotarizationStatus)
	assert.Nil(t, rec.Notarization)
	assert.False(t, rec.Risk.Veto)
	assert.True(t, rec.RequiresHumanApproval)
	assert.Equal(t, contracts.InterlockHeld, rec.Interlock.State)
}

func TestProcess_RejectsInvalidInputWithoutSideEffects(t *testing.T) {
	ledger := audit.NewMemoryLedger()
	o := newOrchestrator(t, pipeline.Components{Ledger: ledger})
	ctx := context.Background()

	for _, text := range []string{"", "hi", "DROP TABLE decisions", "<script>alert(1)</script>", "emergency -- override"} {
		t.Run(text, func(t *testing.T) {
			_, err := o.Process(ctx, text)
			require.ErrorIs(t, err, pipeline.ErrInvalidInput)
			assert.ErrorIs(t, err, firewall.ErrInputRejected)
		})
	}

	_, err := o.Process(ctx, bracketRequest, pipeline.WithProfile("WARTIME"))
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
	_, err = o.Process(ctx, bracketRequest, pipeline.WithDomainHint("ASTROLOGY"))
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)

	assert.Zero(t, ledger.Len())
	assert.Empty(t, o.Profiles().Transitions())
	assert.Equal(t, contracts.ProfileStandard, o.Profiles().Current())
}

func TestProcess_DomainHintAppliesFloor(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), "Plan the logistics route", pipeline.WithDomainHint(contracts.DomainMilitary))
	require.NoError(t, err)
	assert.Equal(t, contracts.DomainMilitary, rec.Domain)
	assert.Equal(t, contracts.CI4, rec.Criticality)
	assert.Equal(t, contracts.RigorMaximum, rec.Content.Draft.RigorLevel)
}

func TestProcess_ExpiredBudgetDegradesEvidence(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{})

	rec, err := o.Process(context.Background(), bracketRequest, pipeline.WithTimeBudget(time.Nanosecond))
	require.NoError(t, err)

	// three placeholders: 3*1.5 + 8/50 + 3*2.0
	assert.Equal(t, contracts.CI2, rec.Criticality)
	assert.InDelta(t, 1.0, rec.Risk.BiasMetric, 1e-9)
	assert.True(t, rec.Risk.Veto)
	assert.Contains(t, rec.Content.Draft.UncertaintyFlags, contracts.FlagEngineUnavailable)
}

// stuckOracle ignores its context and answers only when the test ends.
type stuckOracle struct{ release chan struct{} }

func (o stuckOracle) Fetch(_ context.Context, q string, tier contracts.EvidenceTier) (*contracts.Datum, error) {
	<-o.release
	return &contracts.Datum{Query: q, Tier: tier, Confidence: 1}, nil
}

func (o stuckOracle) Triangulate(context.Context, *contracts.Datum) bool {
	<-o.release
	return true
}

func TestProcess_StuckOracleCannotOutlastBudget(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	reg := evidence.NewRegistry()
	require.NoError(t, reg.Register("stuck", stuckOracle{release: release}))
	o := newOrchestrator(t, pipeline.Components{Resolver: evidence.NewResolver(reg)})

	start := time.Now()
	rec, err := o.Process(context.Background(), bracketRequest, pipeline.WithTimeBudget(50*time.Millisecond))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, contracts.CI2, rec.Criticality)
	assert.InDelta(t, 1.0, rec.Risk.BiasMetric, 1e-9)
	assert.True(t, rec.Risk.Veto)
}

func TestProcess_HungNotaryFailsClosedAtBudget(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hung := notary.Func(func(context.Context, *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error) {
		<-release
		return &contracts.NotarizationReceipt{ReceiptID: "late"}, nil
	})
	o := newOrchestrator(t, pipeline.Components{Notary: hung})

	start := time.Now()
	rec, err := o.Process(context.Background(), longRequest(), pipeline.WithTimeBudget(300*time.Millisecond))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, contracts.CI3, rec.Criticality)
	assert.Equal(t, contracts.NotarizationFailed, rec.NotarizationStatus)
	assert.Nil(t, rec.Notarization)
	assert.True(t, rec.RequiresHumanApproval)
}

func TestProcess_EngineUnavailableDegradesDraft(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Engines: engine.NewRegistry()})

	rec, err := o.Process(context.Background(), bracketRequest)
	require.NoError(t, err)
	assert.Equal(t, engine.UnavailableText, rec.Content.Body)
	assert.Contains(t, rec.Content.Draft.UncertaintyFlags, contracts.FlagEngineUnavailable)
	assert.Empty(t, rec.Content.Review)
}

func TestProcess_IdenticalDecisionsHashIdentically(t *testing.T) {
	a := newOrchestrator(t, pipeline.Components{})
	b := newOrchestrator(t, pipeline.Components{})

	ra, err := a.Process(context.Background(), bracketRequest)
	require.NoError(t, err)
	rb, err := b.Process(context.Background(), bracketRequest)
	require.NoError(t, err)

	assert.NotEqual(t, ra.TransactionID, rb.TransactionID)
	assert.Equal(t, ra.LogicHash, rb.LogicHash)
	assert.NotEqual(t, ra.Audit.Seal, rb.Audit.Seal)
}

func TestProcess_AuditChainAcrossRequests(t *testing.T) {
	ledger := audit.NewMemoryLedger()
	o := newOrchestrator(t, pipeline.Components{Ledger: ledger})
	ctx := context.Background()

	prev := contracts.GenesisSeal
	for i, text := range []string{bracketRequest, meltdownRequest, longRequest()} {
		rec, err := o.Process(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), rec.Audit.Sequence)
		assert.Equal(t, prev, rec.Audit.PreviousSeal)
		prev = rec.Audit.Seal
	}

	n, err := audit.VerifyLedger(ctx, ledger)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProcess_ConcurrentRequestsShareOneChain(t *testing.T) {
	ledger := audit.NewMemoryLedger()
	o := newOrchestrator(t, pipeline.Components{Ledger: ledger})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Process(ctx, fmt.Sprintf("Design bracket variant %d for a shelf", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := audit.VerifyLedger(ctx, ledger)
	require.NoError(t, err)
	assert.Equal(t, 24, n)
}

type brokenLedger struct{ audit.Ledger }

func (brokenLedger) Append(context.Context, *contracts.AuditEntry) (*contracts.AuditEntry, error) {
	return nil, errors.New("disk full")
}

func TestProcess_UnrecordedDecisionIsNotReturned(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Ledger: brokenLedger{audit.NewMemoryLedger()}})

	rec, err := o.Process(context.Background(), bracketRequest)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.NotErrorIs(t, err, pipeline.ErrInvariantViolation)
	assert.Contains(t, err.Error(), "disk full")
}

func TestProcess_BiasMeterErrorFailsClosed(t *testing.T) {
	o := newOrchestrator(t, pipeline.Components{Bias: risk.StaticBias(2)})

	rec, err := o.Process(context.Background(), bracketRequest)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rec.Risk.BiasMetric, 1e-9)
	assert.True(t, rec.Risk.Veto)
}
