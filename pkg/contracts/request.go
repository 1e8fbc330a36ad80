package contracts

import (
	"errors"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
)

// ErrRawTextHashMismatch means a contract's hash does not match its text.
var ErrRawTextHashMismatch = errors.New("raw text hash mismatch")

// DefaultTimeBudget bounds the external calls of one request.
const DefaultTimeBudget = 60 * time.Second

// RequestContract is the normalized input of one pipeline run.
type RequestContract struct {
	Domain          Domain        `json:"domain"`
	AxiomSet        []string      `json:"axiom_set"`
	SuccessCriteria []string      `json:"success_criteria"`
	RawText         string        `json:"raw_text"`
	RawTextHash     string        `json:"raw_text_hash"`
	Evidence        []*Datum      `json:"evidence,omitempty"`
	TimeBudget      time.Duration `json:"time_budget"`
}

// NewRequestContract builds a contract and computes RawTextHash from raw.
func NewRequestContract(domain Domain, axioms, criteria []string, raw string, evidence []*Datum, budget time.Duration) *RequestContract {
	if budget <= 0 {
		budget = DefaultTimeBudget
	}
	return &RequestContract{
		Domain:          domain,
		AxiomSet:        append([]string(nil), axioms...),
		SuccessCriteria: append([]string(nil), criteria...),
		RawText:         raw,
		RawTextHash:     canonicalize.HashString(raw),
		Evidence:        evidence,
		TimeBudget:      budget,
	}
}

// Rehash recomputes RawTextHash from RawText. A hash supplied by the caller
// is never trusted.
func (c *RequestContract) Rehash() {
	c.RawTextHash = canonicalize.HashString(c.RawText)
}

// Verify reports whether RawTextHash matches RawText.
func (c *RequestContract) Verify() error {
	if c.RawTextHash != canonicalize.HashString(c.RawText) {
		return ErrRawTextHashMismatch
	}
	return nil
}

// InputHash is the short form of RawTextHash used in audit entries.
func (c *RequestContract) InputHash() string {
	if len(c.RawTextHash) < 16 {
		return c.RawTextHash
	}
	return c.RawTextHash[:16]
}

// MissingEvidence counts axioms with no datum or only the placeholder.
func (c *RequestContract) MissingEvidence() int {
	supported := make(map[string]bool, len(c.Evidence))
	for _, d := range c.Evidence {
		if d != nil && !d.IsPlaceholder() {
			supported[d.Query] = true
		}
	}
	missing := 0
	for _, axiom := range c.AxiomSet {
		if !supported[axiom] {
			missing++
		}
	}
	return missing
}

// EvidenceComplete reports whether every axiom is supported.
func (c *RequestContract) EvidenceComplete() bool {
	return c.MissingEvidence() == 0
}

// AverageConfidence is zero when there is no evidence at all.
func (c *RequestContract) AverageConfidence() float64 {
	var sum float64
	n := 0
	for _, d := range c.Evidence {
		if d == nil {
			continue
		}
		sum += d.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// UntriangulatedSources lists the sources of Empirical data that failed
// triangulation, in evidence order.
func (c *RequestContract) UntriangulatedSources() []string {
	var out []string
	for _, d := range c.Evidence {
		if d != nil && d.Tier == TierEmpirical && !d.IsTriangulated() {
			out = append(out, d.Source)
		}
	}
	return out
}
