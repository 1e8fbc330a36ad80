package notary

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

var testSeed = bytes.Repeat([]byte{0x5e}, 32)

func testRecord() *contracts.DecisionRecord {
	return &contracts.DecisionRecord{
		TransactionID:      "tx-1",
		Domain:             contracts.DomainEngineering,
		Profile:            contracts.ProfileStandard,
		Criticality:        contracts.CI3,
		ComplexityScore:    16.2,
		Content:            contracts.Content{Body: "bridge load analysis"},
		NotarizationStatus: contracts.NotarizationNotarized,
		PolicyHash:         "policy",
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey(testSeed)
	require.NoError(t, err)
	b, err := DeriveKey(testSeed)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := DeriveKey(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestDeriveKeyRejectsShortSeed(t *testing.T) {
	_, err := DeriveKey([]byte("short"))
	assert.ErrorIs(t, err, ErrSeedTooShort)
}

func TestNotarizeAndVerify(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n, err := New("", testSeed)
	require.NoError(t, err)
	n.WithClock(func() time.Time { return fixed })

	rec := testRecord()
	receipt, err := n.Notarize(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, DefaultName, receipt.Notary)
	assert.Equal(t, fixed, receipt.IssuedAt)
	assert.NotEmpty(t, receipt.ReceiptID)
	subject, err := rec.SubjectHash()
	require.NoError(t, err)
	assert.Equal(t, subject, receipt.SubjectHash)

	claims, err := n.Verifier().VerifyReceipt(receipt)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", claims.Subject)
	assert.Equal(t, "CI_3", claims.Criticality)

	rec.Notarization = receipt
	require.NoError(t, n.Verifier().VerifyRecord(rec))
}

func TestVerifyRejectsTamperedRecord(t *testing.T) {
	n, err := New("notary-a", testSeed)
	require.NoError(t, err)

	rec := testRecord()
	receipt, err := n.Notarize(context.Background(), rec)
	require.NoError(t, err)
	rec.Notarization = receipt

	rec.Content.Body = "altered"
	assert.ErrorIs(t, n.Verifier().VerifyRecord(rec), ErrInvalidReceipt)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	n, err := New("notary-a", testSeed)
	require.NoError(t, err)
	other, err := NewEphemeral("notary-b")
	require.NoError(t, err)

	receipt, err := n.Notarize(context.Background(), testRecord())
	require.NoError(t, err)

	_, err = other.Verifier().VerifyReceipt(receipt)
	assert.ErrorIs(t, err, ErrInvalidReceipt)
}

func TestVerifyRejectsMismatchedFields(t *testing.T) {
	n, err := New("notary-a", testSeed)
	require.NoError(t, err)

	receipt, err := n.Notarize(context.Background(), testRecord())
	require.NoError(t, err)

	forged := *receipt
	forged.SubjectHash = "0000"
	_, err = n.Verifier().VerifyReceipt(&forged)
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	forged = *receipt
	forged.ReceiptID = "other"
	_, err = n.Verifier().VerifyReceipt(&forged)
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	_, err = n.Verifier().VerifyReceipt(nil)
	assert.ErrorIs(t, err, ErrInvalidReceipt)
}

func TestNotarizeHonoursCancelledContext(t *testing.T) {
	n, err := NewEphemeral("")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = n.Notarize(ctx, testRecord())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSameSeedSameKeyID(t *testing.T) {
	a, err := New("a", testSeed)
	require.NoError(t, err)
	b, err := New("b", testSeed)
	require.NoError(t, err)
	assert.Equal(t, a.KeyID(), b.KeyID())
	assert.Len(t, a.KeyID(), 16)
}
