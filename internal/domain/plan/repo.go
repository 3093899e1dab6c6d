package plan

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no plan matches, including plans that exist
// but belong to another user.
var ErrNotFound = errors.New("plan: not found")

type PlanRepository interface {
	Create(ctx context.Context, p *InsurancePlan) error
	GetForUser(ctx context.Context, userID, planID uuid.UUID) (*InsurancePlan, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*InsurancePlan, error)
	Update(ctx context.Context, p *InsurancePlan) error
	Deactivate(ctx context.Context, userID, planID uuid.UUID) error
}
