package claim

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the claim lifecycle state. Transitions are draft →
// eligibility_checked → submitted → accepted|rejected; rejected and accepted
// are terminal.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusEligibilityChecked Status = "eligibility_checked"
	StatusSubmitted          Status = "submitted"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusDraft:              {StatusEligibilityChecked, StatusRejected},
	StatusEligibilityChecked: {StatusEligibilityChecked, StatusSubmitted, StatusRejected},
	StatusSubmitted:          {StatusAccepted, StatusRejected},
	StatusAccepted:           {},
	StatusRejected:           {},
}

// CanTransition reports whether the move from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Mutable reports whether claim lines may still be edited in this state.
func (s Status) Mutable() bool {
	return s == StatusDraft || s == StatusEligibilityChecked
}

// Claim maps to the claims table and aggregates its lines.
type Claim struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	PlanID         uuid.UUID       `db:"insurance_plan_id" json:"insurance_plan_id"`
	ClaimNumber    string          `db:"claim_number" json:"claim_number"`
	TotalCharge    decimal.Decimal `db:"total_charge" json:"total_charge"`
	Status         Status          `db:"status" json:"status"`
	PlaceOfService string          `db:"place_of_service" json:"place_of_service"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Lines []*ClaimLine `json:"lines,omitempty"`
}

// ClaimLine maps to the claim_lines table.
type ClaimLine struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ClaimID        uuid.UUID       `db:"claim_id" json:"claim_id"`
	ProcedureCode  string          `db:"procedure_code" json:"procedure_code"`
	Charge         decimal.Decimal `db:"charge" json:"charge"`
	Units          int             `db:"units" json:"units"`
	ServiceDate    time.Time       `db:"service_date" json:"service_date"`
	DiagnosisCodes []string        `db:"diagnosis_codes" json:"diagnosis_codes"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// LineInput carries the caller-supplied fields of one service line.
type LineInput struct {
	ProcedureCode  string          `json:"procedure_code"`
	Charge         decimal.Decimal `json:"charge"`
	Units          int             `json:"units"`
	ServiceDate    time.Time       `json:"service_date"`
	DiagnosisCodes []string        `json:"diagnosis_codes"`
}

// LineValidationError names the first failing line and field. Line is
// 1-based.
type LineValidationError struct {
	Line   int
	Field  string
	Reason string
}

func (e *LineValidationError) Error() string {
	return fmt.Sprintf("claim: line %d field %s: %s", e.Line, e.Field, e.Reason)
}

// validateLine checks one line. pos is 1-based and only used for error
// reporting. The service date is compared at day granularity.
func validateLine(pos int, in LineInput, now time.Time) error {
	if in.ProcedureCode == "" {
		return &LineValidationError{Line: pos, Field: "procedure_code", Reason: "required"}
	}
	if in.Charge.IsNegative() {
		return &LineValidationError{Line: pos, Field: "charge", Reason: "must not be negative"}
	}
	if in.Units <= 0 {
		return &LineValidationError{Line: pos, Field: "units", Reason: "must be positive"}
	}
	if in.ServiceDate.IsZero() {
		return &LineValidationError{Line: pos, Field: "service_date", Reason: "required"}
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if in.ServiceDate.UTC().Truncate(24 * time.Hour).After(today) {
		return &LineValidationError{Line: pos, Field: "service_date", Reason: "must not be in the future"}
	}
	if len(in.DiagnosisCodes) == 0 {
		return &LineValidationError{Line: pos, Field: "diagnosis_codes", Reason: "at least one required"}
	}
	if len(in.DiagnosisCodes) > 12 {
		return &LineValidationError{Line: pos, Field: "diagnosis_codes", Reason: "at most twelve allowed"}
	}
	for _, code := range in.DiagnosisCodes {
		if code == "" {
			return &LineValidationError{Line: pos, Field: "diagnosis_codes", Reason: "empty code"}
		}
	}
	return nil
}

// lineTotal is the line's contribution to the claim total.
func lineTotal(charge decimal.Decimal, units int) decimal.Decimal {
	return charge.Mul(decimal.NewFromInt(int64(units)))
}
