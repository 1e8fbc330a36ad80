package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

func localProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewInMemoryExporter()
	cfg := DefaultConfig()
	cfg.Enabled = true
	p, err := newProvider(cfg, reader, sdktrace.WithSyncer(spans))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, reader, spans
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "seasa", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Enabled)
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	_, finish := p.TrackOperation(context.Background(), "noop")
	finish(errors.New("ignored"))
	p.RecordDecision(context.Background(), &contracts.DecisionRecord{Criticality: contracts.CI1})
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperationRecordsSpanAndCounters(t *testing.T) {
	p, reader, spans := localProvider(t)
	ctx := context.Background()

	_, finish := p.TrackOperation(ctx, "phase.SEED", PhaseAttributes(contracts.PhaseSeed)...)
	finish(nil)
	_, finish = p.TrackOperation(ctx, "phase.AUDIT", PhaseAttributes(contracts.PhaseAudit)...)
	finish(errors.New("bias meter failed"))

	got := spans.GetSpans()
	require.Len(t, got, 2)
	assert.Equal(t, "phase.SEED", got[0].Name)
	assert.Contains(t, got[0].Attributes, attribute.String("seasa.phase", "SEED"))
	assert.Len(t, got[1].Events, 1)
	svc, ok := got[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "seasa", svc.AsString())

	assert.Equal(t, int64(2), sumOf(t, reader, "seasa.operations.total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "seasa.errors.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "seasa.operations.active"))
}

func TestRecordDecision(t *testing.T) {
	p, reader, _ := localProvider(t)
	rec := &contracts.DecisionRecord{
		Criticality:        contracts.CI5,
		Profile:            contracts.ProfileStandard,
		Domain:             contracts.DomainEngineering,
		ContainmentActive:  true,
		NotarizationStatus: contracts.NotarizationNotRequired,
	}
	p.RecordDecision(context.Background(), rec)
	p.RecordDecision(context.Background(), rec)

	assert.Equal(t, int64(2), sumOf(t, reader, "seasa.decisions.total"))

	attrs := DecisionAttributes(rec)
	assert.Contains(t, attrs, attribute.String("seasa.outcome", "CONTAINMENT_ACTIVE"))
	assert.Contains(t, attrs, attribute.String("seasa.criticality", "CI_5"))
}
