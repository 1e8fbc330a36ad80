package contracts

import (
	"fmt"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
)

// GenesisSeal is the PreviousSeal of the first entry in a ledger.
const GenesisSeal = "genesis"

// AuditEntry is appended once per processed request and never mutated.
// Sequence and PreviousSeal are assigned by the ledger before sealing.
type AuditEntry struct {
	Sequence            uint64               `json:"sequence"`
	TransactionID       string               `json:"transaction_id"`
	Timestamp           time.Time            `json:"timestamp"`
	LogicHash           string               `json:"logic_hash"`
	Criticality         Criticality          `json:"criticality"`
	CriticalityName     string               `json:"criticality_name"`
	Profile             Profile              `json:"profile"`
	Domain              Domain               `json:"domain"`
	ContainmentActive   bool                 `json:"containment_active"`
	RiskSummary         RiskSummary          `json:"risk_summary"`
	NotarizationReceipt *NotarizationReceipt `json:"notarization_receipt,omitempty"`
	InputHash           string               `json:"input_hash"`
	PolicyHash          string               `json:"policy_hash"`
	PreviousSeal        string               `json:"previous_seal"`
	Seal                string               `json:"seal"`
}

// NewAuditEntry projects a sealed decision record into an unsealed entry.
func NewAuditEntry(rec *DecisionRecord, inputHash string, at time.Time) *AuditEntry {
	return &AuditEntry{
		TransactionID:       rec.TransactionID,
		Timestamp:           at.UTC(),
		LogicHash:           rec.LogicHash,
		Criticality:         rec.Criticality,
		CriticalityName:     rec.Criticality.String(),
		Profile:             rec.Profile,
		Domain:              rec.Domain,
		ContainmentActive:   rec.ContainmentActive,
		RiskSummary:         rec.Risk.Summary(),
		NotarizationReceipt: rec.Notarization,
		InputHash:           inputHash,
		PolicyHash:          rec.PolicyHash,
	}
}

// ComputeSeal hashes the canonical form of every field except Seal.
func (e *AuditEntry) ComputeSeal() (string, error) {
	c := *e
	c.Seal = ""
	h, err := canonicalize.CanonicalHash(c)
	if err != nil {
		return "", fmt.Errorf("audit seal: %w", err)
	}
	return h, nil
}

// Clone returns a copy safe to hand to callers.
func (e *AuditEntry) Clone() *AuditEntry {
	c := *e
	if e.NotarizationReceipt != nil {
		r := *e.NotarizationReceipt
		c.NotarizationReceipt = &r
	}
	return &c
}
