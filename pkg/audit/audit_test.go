package audit_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trindade2023/trindade-protocol/pkg/audit"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func entry(i int) *contracts.AuditEntry {
	return &contracts.AuditEntry{
		TransactionID:   fmt.Sprintf("tx-%d", i),
		Timestamp:       t0.Add(time.Duration(i) * time.Second),
		LogicHash:       fmt.Sprintf("logic-%d", i),
		Criticality:     contracts.CI2,
		CriticalityName: contracts.CI2.String(),
		Profile:         contracts.ProfileStandard,
		Domain:          contracts.DomainEngineering,
		RiskSummary:     contracts.RiskSummary{Score: 2, Status: contracts.ALARPBroadlyAcceptable},
		InputHash:       "0123456789abcdef",
		PolicyHash:      "policy",
	}
}

func TestMemoryLedger_ChainsFromGenesis(t *testing.T) {
	ctx := context.Background()
	l := audit.NewMemoryLedger()

	first, err := l.Append(ctx, entry(1))
	require.NoError(t, err)
	second, err := l.Append(ctx, entry(2))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, contracts.GenesisSeal, first.PreviousSeal)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, first.Seal, second.PreviousSeal)
	assert.NotEqual(t, first.Seal, second.Seal)

	n, err := audit.VerifyLedger(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryLedger_DoesNotMutateCaller(t *testing.T) {
	l := audit.NewMemoryLedger()
	in := entry(1)
	_, err := l.Append(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, in.Sequence)
	assert.Empty(t, in.Seal)
}

func TestMemoryLedger_ConcurrentAppendsStayLinear(t *testing.T) {
	ctx := context.Background()
	l := audit.NewMemoryLedger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, entry(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
	_, err := audit.VerifyLedger(ctx, l)
	require.NoError(t, err)
}

func TestVerify_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	l := audit.NewMemoryLedger()
	for i := 1; i <= 3; i++ {
		_, err := l.Append(ctx, entry(i))
		require.NoError(t, err)
	}
	entries, err := l.Entries(ctx)
	require.NoError(t, err)

	entries[1].RiskSummary.Score = 25
	assert.ErrorIs(t, audit.Verify(entries), audit.ErrSealMismatch)

	entries, _ = l.Entries(ctx)
	entries = append(entries[:1], entries[2:]...)
	assert.ErrorIs(t, audit.Verify(entries), audit.ErrChainBroken)

	entries, _ = l.Entries(ctx)
	entries[2].PreviousSeal = entries[0].Seal
	assert.ErrorIs(t, audit.Verify(entries), audit.ErrChainBroken)
}

func TestVerify_EmptyChain(t *testing.T) {
	require.NoError(t, audit.Verify(nil))
	seq, head := audit.Head(nil)
	assert.Zero(t, seq)
	assert.Equal(t, contracts.GenesisSeal, head)
}

func TestFileLedger_PersistsAndResumes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := audit.OpenFileLedger(path)
	require.NoError(t, err)
	first, err := l.Append(ctx, entry(1))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = audit.OpenFileLedger(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	second, err := l.Append(ctx, entry(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, first.Seal, second.PreviousSeal)

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, audit.Verify(entries))
	assert.True(t, entries[0].Timestamp.Equal(t0.Add(time.Second)))
}

func TestFileLedger_RefusesTamperedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := audit.OpenFileLedger(path)
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		_, err := l.Append(ctx, entry(i))
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	entries, err := audit.ReadFile(path)
	require.NoError(t, err)
	entries[0].Domain = contracts.DomainMilitary
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audit.Encode(f, entries))
	require.NoError(t, f.Close())

	_, err = audit.OpenFileLedger(path)
	assert.ErrorIs(t, err, audit.ErrSealMismatch)
}

func TestFileLedger_AppendAfterClose(t *testing.T) {
	l, err := audit.OpenFileLedger(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	_, err = l.Append(context.Background(), entry(1))
	assert.ErrorIs(t, err, audit.ErrClosed)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	l, err := audit.Open(ctx, "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &audit.MemoryLedger{}, l)

	l, err = audit.Open(ctx, "file", filepath.Join(t.TempDir(), "a.jsonl"))
	require.NoError(t, err)
	assert.IsType(t, &audit.FileLedger{}, l)
	require.NoError(t, l.Close())

	_, err = audit.Open(ctx, "etcd", "")
	assert.Error(t, err)
}

func TestAppend_NilEntry(t *testing.T) {
	_, err := audit.NewMemoryLedger().Append(context.Background(), nil)
	assert.ErrorIs(t, err, audit.ErrNilEntry)
}
