// Package audit implements the append-only, hash-chained decision ledger.
//
// Every ledger assigns Sequence and PreviousSeal under its own lock and
// seals the entry before persisting it, so appends are serialized even when
// requests are evaluated concurrently.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

var (
	ErrChainBroken  = errors.New("audit: hash chain is broken")
	ErrSealMismatch = errors.New("audit: seal mismatch")
	ErrNilEntry     = errors.New("audit: nil entry")
	ErrClosed       = errors.New("audit: ledger closed")
)

// Ledger is the single shared append point for audit entries.
type Ledger interface {
	// Append links, seals and persists a copy of e and returns the stored
	// entry. The caller's entry is not modified.
	Append(ctx context.Context, e *contracts.AuditEntry) (*contracts.AuditEntry, error)
	// Entries returns every stored entry in sequence order.
	Entries(ctx context.Context) ([]*contracts.AuditEntry, error)
	Close() error
}

// link prepares an unsealed copy of e as entry number seq following prev.
func link(e *contracts.AuditEntry, seq uint64, prev string) (*contracts.AuditEntry, error) {
	if e == nil {
		return nil, ErrNilEntry
	}
	c := e.Clone()
	c.Sequence = seq
	c.PreviousSeal = prev
	seal, err := c.ComputeSeal()
	if err != nil {
		return nil, err
	}
	c.Seal = seal
	return c, nil
}

// Verify walks entries from genesis and checks sequence continuity, the
// previous-seal links and every recomputed seal.
func Verify(entries []*contracts.AuditEntry) error {
	prev := contracts.GenesisSeal
	for i, e := range entries {
		want := uint64(i + 1)
		if e.Sequence != want {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, want, e.Sequence)
		}
		if e.PreviousSeal != prev {
			return fmt.Errorf("%w: entry %d links to %s, expected %s", ErrChainBroken, want, e.PreviousSeal, prev)
		}
		seal, err := e.ComputeSeal()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrSealMismatch, want, err)
		}
		if seal != e.Seal {
			return fmt.Errorf("%w: entry %d (computed %s, stored %s)", ErrSealMismatch, want, seal, e.Seal)
		}
		prev = e.Seal
	}
	return nil
}

// VerifyLedger reads every entry of l and verifies the chain. It returns
// the number of entries checked.
func VerifyLedger(ctx context.Context, l Ledger) (int, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), Verify(entries)
}

// Head returns the sequence and seal of the last entry, or zero and the
// genesis seal for an empty chain.
func Head(entries []*contracts.AuditEntry) (uint64, string) {
	if len(entries) == 0 {
		return 0, contracts.GenesisSeal
	}
	last := entries[len(entries)-1]
	return last.Sequence, last.Seal
}
