package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriticality_StringAndRange(t *testing.T) {
	assert.Equal(t, "CI_1", CI1.String())
	assert.Equal(t, "CI_5", CI5.String())
	assert.False(t, Criticality(0).Valid())
	assert.False(t, Criticality(6).Valid())
	assert.Equal(t, "CI_INVALID(9)", Criticality(9).String())
	assert.Equal(t, CI4, CI2.Raise(CI4))
	assert.Equal(t, CI4, CI4.Raise(CI2))
}

func TestParseCriticality(t *testing.T) {
	c, err := ParseCriticality("CI_3")
	require.NoError(t, err)
	assert.Equal(t, CI3, c)

	c, err = ParseCriticality("5")
	require.NoError(t, err)
	assert.Equal(t, CI5, c)

	_, err = ParseCriticality("CI_7")
	assert.Error(t, err)
	_, err = ParseCriticality("high")
	assert.Error(t, err)
}

func TestDatum_Triangulation(t *testing.T) {
	axiomatic := &Datum{Tier: TierAxiomatic}
	assert.True(t, axiomatic.IsTriangulated())

	unverified := &Datum{Tier: TierUnverified}
	assert.True(t, unverified.IsTriangulated())

	empirical := &Datum{Tier: TierEmpirical}
	assert.False(t, empirical.IsTriangulated())

	empirical.AddTriangulationSource("a")
	empirical.AddTriangulationSource("b")
	empirical.AddTriangulationSource("b")
	assert.Len(t, empirical.TriangulationSources, 2)
	assert.False(t, empirical.IsTriangulated())

	empirical.AddTriangulationSource("c")
	assert.True(t, empirical.IsTriangulated())
}

func TestRequestContract_HashIsRecomputed(t *testing.T) {
	c := NewRequestContract(DomainEngineering, []string{"a"}, nil, "hello", nil, 0)
	require.NoError(t, c.Verify())
	assert.Equal(t, DefaultTimeBudget, c.TimeBudget)
	assert.Len(t, c.InputHash(), 16)

	c.RawTextHash = "forged"
	assert.ErrorIs(t, c.Verify(), ErrRawTextHashMismatch)
	c.Rehash()
	assert.NoError(t, c.Verify())
}

func TestRequestContract_EvidenceAccounting(t *testing.T) {
	evidence := []*Datum{
		{Query: "a", Tier: TierAxiomatic, Source: "oracle", Confidence: 0.9},
		{Query: "b", Tier: TierUnverified, Source: PlaceholderSource, Confidence: 0},
		{Query: "c", Tier: TierEmpirical, Source: "lab", Confidence: 0.3},
	}
	c := NewRequestContract(DomainEngineering, []string{"a", "b", "c", "d"}, nil, "text", evidence, time.Second)

	assert.Equal(t, 2, c.MissingEvidence())
	assert.False(t, c.EvidenceComplete())
	assert.InDelta(t, 0.4, c.AverageConfidence(), 1e-9)
	assert.Equal(t, []string{"lab"}, c.UntriangulatedSources())

	empty := NewRequestContract(DomainEngineering, nil, nil, "text", nil, time.Second)
	assert.Zero(t, empty.AverageConfidence())
	assert.True(t, empty.EvidenceComplete())
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, ALARPBroadlyAcceptable, BandFor(6))
	assert.Equal(t, ALARPTolerable, BandFor(7))
	assert.Equal(t, ALARPTolerable, BandFor(15))
	assert.Equal(t, ALARPUnacceptable, BandFor(16))
}

func sampleRecord() *DecisionRecord {
	return &DecisionRecord{
		TransactionID:      "tx-1",
		Domain:             DomainEngineering,
		Profile:            ProfileStandard,
		Criticality:        CI2,
		Content:            Content{Body: "draft"},
		Risk:               RiskAssessment{Probability: 1, Impact: 2, Status: ALARPBroadlyAcceptable},
		NotarizationStatus: NotarizationNotRequired,
		PolicyHash:         "p",
	}
}

func TestDecisionRecord_LogicHashIgnoresBookkeeping(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.TransactionID = "tx-2"
	b.Interlock = &InterlockStatus{State: InterlockOpen}

	ha, err := a.ComputeLogicHash()
	require.NoError(t, err)
	hb, err := b.ComputeLogicHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Content.Body = "other"
	hb, err = b.ComputeLogicHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestDecisionRecord_SubjectHashExcludesNotarization(t *testing.T) {
	rec := sampleRecord()
	subject, err := rec.SubjectHash()
	require.NoError(t, err)
	before, err := rec.ComputeLogicHash()
	require.NoError(t, err)

	rec.NotarizationStatus = NotarizationNotarized
	rec.Notarization = &NotarizationReceipt{ReceiptID: "r-1", SubjectHash: subject}

	after, err := rec.SubjectHash()
	require.NoError(t, err)
	assert.Equal(t, subject, after)

	require.NoError(t, rec.Seal())
	assert.NotEqual(t, before, rec.LogicHash)
}

func TestAuditEntry_Seal(t *testing.T) {
	rec := sampleRecord()
	require.NoError(t, rec.Seal())
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	e := NewAuditEntry(rec, "abcdef0123456789", at)
	e.Sequence = 1
	e.PreviousSeal = GenesisSeal

	s1, err := e.ComputeSeal()
	require.NoError(t, err)
	e.Seal = s1
	s2, err := e.ComputeSeal()
	require.NoError(t, err)
	assert.Equal(t, s1, s2, "seal must not cover itself")

	e.PreviousSeal = "tampered"
	s3, err := e.ComputeSeal()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s3)
}

func TestPhase_Next(t *testing.T) {
	p, ok := PhaseSeed.Next()
	assert.True(t, ok)
	assert.Equal(t, PhaseExpansion, p)

	_, ok = PhaseSynthesis.Next()
	assert.False(t, ok)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(" defense ")
	require.NoError(t, err)
	assert.Equal(t, ProfileDefense, p)

	_, err = ParseProfile("chaos")
	assert.Error(t, err)
}
