package audit

import (
	"context"
	"sync"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// MemoryLedger keeps the chain in process memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*contracts.AuditEntry
	head    string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{head: contracts.GenesisSeal}
}

func (m *MemoryLedger) Append(ctx context.Context, e *contracts.AuditEntry) (*contracts.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := link(e, uint64(len(m.entries))+1, m.head)
	if err != nil {
		return nil, err
	}
	m.entries = append(m.entries, stored)
	m.head = stored.Seal
	return stored.Clone(), nil
}

func (m *MemoryLedger) Entries(ctx context.Context) ([]*contracts.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.AuditEntry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Len returns the number of stored entries.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryLedger) Close() error { return nil }
