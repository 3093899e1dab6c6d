package plan

import (
	"time"

	"github.com/google/uuid"
)

// InsurancePlan maps to the insurance_plans table. A user may hold several
// plans but at most one active primary.
type InsurancePlan struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	MemberID      string     `db:"member_id" json:"member_id"`
	GroupNumber   string     `db:"group_number" json:"group_number"`
	PayerName     string     `db:"payer_name" json:"payer_name"`
	PayerID       string     `db:"payer_id" json:"payer_id"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	IsPrimary     bool       `db:"is_primary" json:"is_primary"`
	EffectiveFrom time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// CoversDate reports whether the plan's effective range includes the given
// day. EffectiveTo nil means open-ended.
func (p *InsurancePlan) CoversDate(day time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	if d.Before(p.EffectiveFrom.Truncate(24 * time.Hour)) {
		return false
	}
	if p.EffectiveTo != nil && d.After(p.EffectiveTo.Truncate(24*time.Hour)) {
		return false
	}
	return true
}
