package contracts

import (
	"fmt"
	"time"

	"github.com/Trindade2023/trindade-protocol/pkg/canonicalize"
)

// WipeMarker replaces all content when shard collusion is detected.
const WipeMarker = "[WIPED] shard collusion detected; output irreversibly destroyed"

// Uncertainty flags attached to drafts.
const (
	FlagEngineUnavailable    = "engine_unavailable"
	FlagUntriangulatedPrefix = "untriangulated:"
)

// Rigor levels requested from content engines.
const (
	RigorStandard = "STANDARD"
	RigorMaximum  = "MAXIMUM"
)

// Draft is the opaque EXPANSION output of a content engine.
type Draft struct {
	Engine           string   `json:"engine"`
	RigorLevel       string   `json:"rigor_level"`
	AxiomsApplied    int      `json:"axioms_applied"`
	Text             string   `json:"text"`
	UncertaintyFlags []string `json:"uncertainty_flags"`
}

// Shard is one blind partition of a CI_5 task.
type Shard struct {
	Index     int    `json:"index"`
	Partition string `json:"partition"`
	Output    string `json:"output"`
}

// SurvivalProtocol marks a record produced under containment.
type SurvivalProtocol struct {
	Status   string `json:"status"`
	Trigger  string `json:"trigger"`
	Priority string `json:"priority"`
}

// ActiveSurvivalProtocol is attached to every containment record.
var ActiveSurvivalProtocol = SurvivalProtocol{
	Status:   "ACTIVE",
	Trigger:  "EXISTENTIAL_THREAT_DETECTED",
	Priority: "EFFICACY_OF_INTERRUPTION",
}

// Content is the releasable payload of a decision.
type Content struct {
	Body             string            `json:"body"`
	Draft            *Draft            `json:"draft,omitempty"`
	Review           string            `json:"review,omitempty"`
	MitigationPlan   string            `json:"mitigation_plan,omitempty"`
	SurvivalProtocol *SurvivalProtocol `json:"survival_protocol,omitempty"`
	Wiped            bool              `json:"wiped,omitempty"`
}

// NotarizationStatus reports what happened to the notarization step.
type NotarizationStatus string

const (
	NotarizationNotRequired NotarizationStatus = "NOT_REQUIRED"
	NotarizationNotarized   NotarizationStatus = "NOTARIZED"
	NotarizationFailed      NotarizationStatus = "FAILED"

	// NotarizationSuppressed marks a wiped record; nothing of it is released
	// for notarization.
	NotarizationSuppressed NotarizationStatus = "SUPPRESSED"
)

// NotarizationReceipt is the external, independently verifiable proof
// attached to a record.
type NotarizationReceipt struct {
	ReceiptID   string    `json:"receipt_id"`
	Notary      string    `json:"notary"`
	SubjectHash string    `json:"subject_hash"`
	IssuedAt    time.Time `json:"issued_at"`
	Token       string    `json:"token,omitempty"`
}

// InterlockState is the human-interface gate state.
type InterlockState string

const (
	InterlockOpen   InterlockState = "OPEN"
	InterlockHeld   InterlockState = "HELD"
	InterlockLocked InterlockState = "LOCKED"
)

// InterlockStatus is what an operator console shows for a record.
type InterlockStatus struct {
	State    InterlockState `json:"state"`
	Message  string         `json:"message"`
	Protocol string         `json:"protocol,omitempty"`
	HoldID   string         `json:"hold_id,omitempty"`
}

// DecisionRecord is the terminal artifact of one pipeline run.
//
// TransactionID, Interlock and Audit are bookkeeping and stay outside the
// logic hash so that identical decisions hash identically.
type DecisionRecord struct {
	TransactionID string `json:"transaction_id"`

	Domain                Domain               `json:"domain"`
	Profile               Profile              `json:"profile"`
	Criticality           Criticality          `json:"criticality"`
	ComplexityScore       float64              `json:"complexity_score"`
	Content               Content              `json:"content"`
	Risk                  RiskAssessment       `json:"risk"`
	Shards                []Shard              `json:"shards,omitempty"`
	NotarizationStatus    NotarizationStatus   `json:"notarization_status"`
	Notarization          *NotarizationReceipt `json:"notarization,omitempty"`
	RequiresHumanApproval bool                 `json:"requires_human_approval"`
	ContainmentActive     bool                 `json:"containment_active"`
	PolicyHash            string               `json:"policy_hash"`
	LogicHash             string               `json:"logic_hash"`

	Interlock *InterlockStatus `json:"interlock,omitempty"`
	Audit     *AuditEntry      `json:"audit,omitempty"`
}

type hashableDecision struct {
	Domain                Domain               `json:"domain"`
	Profile               Profile              `json:"profile"`
	Criticality           Criticality          `json:"criticality"`
	ComplexityScore       float64              `json:"complexity_score"`
	Content               Content              `json:"content"`
	Risk                  RiskAssessment       `json:"risk"`
	Score                 int                  `json:"score"`
	Shards                []Shard              `json:"shards,omitempty"`
	NotarizationStatus    NotarizationStatus   `json:"notarization_status,omitempty"`
	Notarization          *NotarizationReceipt `json:"notarization,omitempty"`
	RequiresHumanApproval bool                 `json:"requires_human_approval"`
	ContainmentActive     bool                 `json:"containment_active"`
	PolicyHash            string               `json:"policy_hash"`
}

func (d *DecisionRecord) hashable(withNotarization bool) hashableDecision {
	h := hashableDecision{
		Domain:                d.Domain,
		Profile:               d.Profile,
		Criticality:           d.Criticality,
		ComplexityScore:       d.ComplexityScore,
		Content:               d.Content,
		Risk:                  d.Risk,
		Score:                 d.Risk.Score(),
		Shards:                d.Shards,
		RequiresHumanApproval: d.RequiresHumanApproval,
		ContainmentActive:     d.ContainmentActive,
		PolicyHash:            d.PolicyHash,
	}
	if withNotarization {
		h.NotarizationStatus = d.NotarizationStatus
		h.Notarization = d.Notarization
	}
	return h
}

// SubjectHash is the digest a notary signs: every hashed field except the
// notarization outcome itself.
func (d *DecisionRecord) SubjectHash() (string, error) {
	h, err := canonicalize.CanonicalHash(d.hashable(false))
	if err != nil {
		return "", fmt.Errorf("subject hash: %w", err)
	}
	return h, nil
}

// ComputeLogicHash returns the canonical digest of the decision content,
// including any notarization receipt.
func (d *DecisionRecord) ComputeLogicHash() (string, error) {
	h, err := canonicalize.CanonicalHash(d.hashable(true))
	if err != nil {
		return "", fmt.Errorf("logic hash: %w", err)
	}
	return h, nil
}

// Seal sets LogicHash.
func (d *DecisionRecord) Seal() error {
	h, err := d.ComputeLogicHash()
	if err != nil {
		return err
	}
	d.LogicHash = h
	return nil
}

// Status is the coarse outcome label used in metrics and the CLI.
func (d *DecisionRecord) Status() string {
	switch {
	case d.Risk.Collusion:
		return "WIPED"
	case d.ContainmentActive:
		return "CONTAINMENT_ACTIVE"
	case d.Risk.Veto:
		return "VETOED"
	default:
		return "PROCESSED"
	}
}
