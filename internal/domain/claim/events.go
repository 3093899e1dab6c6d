package claim

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types recorded in the claim audit log.
const (
	EventClaimCreated       = "claim_created"
	EventLineUpdated        = "line_updated"
	EventLineDeleted        = "line_deleted"
	EventEligibilityChecked = "eligibility_checked"
	EventEDIGenerated       = "edi_generated"
	EventClaimSubmitted     = "claim_submitted"
	EventClaimRejected      = "claim_rejected"
)

// ClaimEvent is one append-only audit record. Seq is assigned by the
// database; ordering within a claim is (CreatedAt, Seq).
type ClaimEvent struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Seq       int64           `db:"seq" json:"seq"`
	ClaimID   uuid.UUID       `db:"claim_id" json:"claim_id"`
	EventType string          `db:"event_type" json:"event_type"`
	EventData json.RawMessage `db:"event_data" json:"event_data"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// CreatedPayload records the claim as it was born.
type CreatedPayload struct {
	ClaimNumber string          `json:"claim_number"`
	PlanID      uuid.UUID       `json:"insurance_plan_id"`
	TotalCharge decimal.Decimal `json:"total_charge"`
	LineCount   int             `json:"line_count"`
}

// LineChangePayload records a line mutation. Before is nil for creations,
// After is nil for deletions.
type LineChangePayload struct {
	LineID uuid.UUID  `json:"line_id"`
	Before *ClaimLine `json:"before,omitempty"`
	After  *ClaimLine `json:"after,omitempty"`
}

// EligibilityPayload records the verdict that was attached to the claim.
type EligibilityPayload struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Source   string `json:"source"`
}

// EDIPayload records a successful 837P generation.
type EDIPayload struct {
	ControlNumber uint32 `json:"control_number"`
	SegmentCount  int    `json:"segment_count"`
}

// StatusPayload records a lifecycle transition.
type StatusPayload struct {
	From   Status `json:"from"`
	To     Status `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// NewEvent builds an event with a marshaled payload, ready to append.
func NewEvent(claimID uuid.UUID, eventType string, payload interface{}) (*ClaimEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &ClaimEvent{
		ID:        uuid.New(),
		ClaimID:   claimID,
		EventType: eventType,
		EventData: data,
	}, nil
}
