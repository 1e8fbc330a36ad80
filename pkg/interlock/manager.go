// Package interlock gates vetoed and contained decisions behind human
// approval.
//
// Check maps a decision record to the operator-facing state. Engage opens a
// hold for any record that is not OPEN; the hold is released only when its
// quorum of distinct approvers is reached, and resolves to denied on an
// explicit deny or on timeout. Every resolution produces a content-hashed
// receipt.
package interlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
	"github.com/Trindade2023/trindade-protocol/pkg/policy"
)

const (
	LockedMessage = "SAFETY INTERLOCK ENGAGED. MULTI-FACTOR AUTHENTICATION REQUIRED."
	HeldMessage   = "DECISION VETOED. HUMAN APPROVAL REQUIRED."
	OpenMessage   = "Proceed with standard protocols"

	// LockedProtocol is reported with every LOCKED status.
	LockedProtocol = "SURVIVAL_PROTOCOL_ACTIVE"
)

var (
	ErrHoldNotFound      = errors.New("interlock: hold not found")
	ErrHoldNotPending    = errors.New("interlock: hold is not pending")
	ErrDuplicateApprover = errors.New("interlock: approver already recorded")
)

type HoldStatus string

const (
	HoldPending  HoldStatus = "PENDING"
	HoldApproved HoldStatus = "APPROVED"
	HoldDenied   HoldStatus = "DENIED"
	HoldTimedOut HoldStatus = "TIMED_OUT"
)

// Hold is one pending human decision.
type Hold struct {
	HoldID        string                   `json:"hold_id"`
	TransactionID string                   `json:"transaction_id"`
	LogicHash     string                   `json:"logic_hash"`
	State         contracts.InterlockState `json:"state"`
	Quorum        int                      `json:"quorum"`
	ApprovedBy    []string                 `json:"approved_by,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	ExpiresAt     time.Time                `json:"expires_at"`
	Status        HoldStatus               `json:"status"`
}

// Receipt is the immutable record of how a hold resolved.
type Receipt struct {
	ReceiptID     string     `json:"receipt_id"`
	HoldID        string     `json:"hold_id"`
	TransactionID string     `json:"transaction_id"`
	Outcome       HoldStatus `json:"outcome"`
	ApprovedBy    []string   `json:"approved_by,omitempty"`
	DeniedBy      string     `json:"denied_by,omitempty"`
	DenyReason    string     `json:"deny_reason,omitempty"`
	ResolvedAt    time.Time  `json:"resolved_at"`
	DurationMs    int64      `json:"duration_ms"`
	ContentHash   string     `json:"content_hash"`
}

// Manager tracks holds.
type Manager struct {
	mu     sync.Mutex
	holds  map[string]*Hold
	policy policy.InterlockPolicy
	clock  func() time.Time
	logger *slog.Logger
}

func NewManager(p policy.InterlockPolicy) *Manager {
	return &Manager{
		holds:  make(map[string]*Hold),
		policy: p,
		clock:  time.Now,
		logger: slog.Default().With("component", "interlock"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Check returns the operator-facing state for a record.
func Check(rec *contracts.DecisionRecord) contracts.InterlockStatus {
	switch {
	case rec.ContainmentActive:
		return contracts.InterlockStatus{
			State:    contracts.InterlockLocked,
			Message:  LockedMessage,
			Protocol: LockedProtocol,
		}
	case rec.RequiresHumanApproval:
		return contracts.InterlockStatus{State: contracts.InterlockHeld, Message: HeldMessage}
	default:
		return contracts.InterlockStatus{State: contracts.InterlockOpen, Message: OpenMessage}
	}
}

// Engage checks rec and, unless it is OPEN, opens a hold for it.
func (m *Manager) Engage(ctx context.Context, rec *contracts.DecisionRecord) (contracts.InterlockStatus, error) {
	if err := ctx.Err(); err != nil {
		return contracts.InterlockStatus{}, err
	}
	status := Check(rec)
	if status.State == contracts.InterlockOpen {
		return status, nil
	}

	quorum := m.policy.Quorum(status.State == contracts.InterlockLocked)
	now := m.clock()
	hold := &Hold{
		HoldID:        uuid.NewString(),
		TransactionID: rec.TransactionID,
		LogicHash:     rec.LogicHash,
		State:         status.State,
		Quorum:        quorum,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.policy.HoldTimeout),
		Status:        HoldPending,
	}

	m.mu.Lock()
	m.holds[hold.HoldID] = hold
	m.mu.Unlock()

	m.logger.Warn("interlock engaged",
		"transaction_id", rec.TransactionID,
		"state", status.State,
		"hold_id", hold.HoldID,
		"quorum", quorum,
	)
	status.HoldID = hold.HoldID
	return status, nil
}

// Approve records an approval. It returns a receipt once the quorum is
// reached and nil while the hold is still pending.
func (m *Manager) Approve(ctx context.Context, holdID, approverID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, err := m.pending(holdID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if now.After(hold.ExpiresAt) {
		hold.Status = HoldTimedOut
		return m.receipt(hold, now, "", ""), nil
	}
	for _, a := range hold.ApprovedBy {
		if a == approverID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateApprover, approverID)
		}
	}
	hold.ApprovedBy = append(hold.ApprovedBy, approverID)
	if len(hold.ApprovedBy) < hold.Quorum {
		return nil, nil
	}
	hold.Status = HoldApproved
	return m.receipt(hold, now, "", ""), nil
}

// Deny resolves a pending hold as denied.
func (m *Manager) Deny(ctx context.Context, holdID, denierID, reason string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, err := m.pending(holdID)
	if err != nil {
		return nil, err
	}
	hold.Status = HoldDenied
	return m.receipt(hold, m.clock(), denierID, reason), nil
}

// CheckTimeouts resolves every expired pending hold.
func (m *Manager) CheckTimeouts(ctx context.Context) ([]*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var receipts []*Receipt
	for _, hold := range m.holds {
		if hold.Status == HoldPending && now.After(hold.ExpiresAt) {
			hold.Status = HoldTimedOut
			receipts = append(receipts, m.receipt(hold, now, "", ""))
		}
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].HoldID < receipts[j].HoldID })
	return receipts, nil
}

// Get returns a copy of a hold.
func (m *Manager) Get(holdID string) (Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok {
		return Hold{}, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	c := *hold
	c.ApprovedBy = append([]string(nil), hold.ApprovedBy...)
	return c, nil
}

func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, hold := range m.holds {
		if hold.Status == HoldPending {
			n++
		}
	}
	return n
}

func (m *Manager) pending(holdID string) (*Hold, error) {
	hold, ok := m.holds[holdID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	if hold.Status != HoldPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrHoldNotPending, holdID, hold.Status)
	}
	return hold, nil
}

func (m *Manager) receipt(hold *Hold, resolvedAt time.Time, deniedBy, reason string) *Receipt {
	r := &Receipt{
		ReceiptID:     uuid.NewString(),
		HoldID:        hold.HoldID,
		TransactionID: hold.TransactionID,
		Outcome:       hold.Status,
		ApprovedBy:    append([]string(nil), hold.ApprovedBy...),
		DeniedBy:      deniedBy,
		DenyReason:    reason,
		ResolvedAt:    resolvedAt,
		DurationMs:    resolvedAt.Sub(hold.CreatedAt).Milliseconds(),
	}

	hashable := struct {
		HoldID     string     `json:"hold_id"`
		LogicHash  string     `json:"logic_hash"`
		Outcome    HoldStatus `json:"outcome"`
		ApprovedBy []string   `json:"approved_by"`
		DeniedBy   string     `json:"denied_by"`
	}{hold.HoldID, hold.LogicHash, hold.Status, r.ApprovedBy, deniedBy}
	if h, err := canonicalize.CanonicalHash(hashable); err == nil {
		r.ContentHash = "sha256:" + h
	}

	m.logger.Info("interlock resolved",
		"transaction_id", hold.TransactionID,
		"hold_id", hold.HoldID,
		"outcome", hold.Status,
	)
	return r
}
