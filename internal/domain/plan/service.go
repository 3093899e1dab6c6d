package plan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medclaims/medclaims/internal/platform/cache"
)

type Service struct {
	repo   PlanRepository
	cache  cache.Store
	logger zerolog.Logger
}

func NewService(repo PlanRepository, cacheStore cache.Store, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cacheStore, logger: logger}
}

func (s *Service) validate(p *InsurancePlan) error {
	if p.MemberID == "" {
		return fmt.Errorf("member_id is required")
	}
	if p.PayerName == "" {
		return fmt.Errorf("payer_name is required")
	}
	if p.EffectiveFrom.IsZero() {
		return fmt.Errorf("effective_from is required")
	}
	if p.EffectiveTo != nil && p.EffectiveTo.Before(p.EffectiveFrom) {
		return fmt.Errorf("effective_to precedes effective_from")
	}
	return nil
}

// checkPrimary rejects a second active primary for the user. The partial
// unique index enforces this in the database as well; checking here turns a
// constraint violation into a clean validation error.
func (s *Service) checkPrimary(ctx context.Context, p *InsurancePlan) error {
	if !p.IsPrimary || !p.IsActive {
		return nil
	}
	existing, err := s.repo.ListByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != p.ID && other.IsPrimary && other.IsActive {
			return fmt.Errorf("user already has an active primary plan (%s)", other.ID)
		}
	}
	return nil
}

func (s *Service) CreatePlan(ctx context.Context, p *InsurancePlan) error {
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.checkPrimary(ctx, p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPlan(ctx context.Context, userID, planID uuid.UUID) (*InsurancePlan, error) {
	return s.repo.GetForUser(ctx, userID, planID)
}

func (s *Service) ListPlans(ctx context.Context, userID uuid.UUID) ([]*InsurancePlan, error) {
	return s.repo.ListByUser(ctx, userID)
}

// UpdatePlan invalidates all cached eligibility verdicts for the plan before
// the write is committed. If invalidation fails the update is refused, so a
// stale eligible verdict can never outlive a coverage change.
func (s *Service) UpdatePlan(ctx context.Context, p *InsurancePlan) error {
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.checkPrimary(ctx, p); err != nil {
		return err
	}
	if err := s.cache.DeletePrefix(ctx, cache.EligibilityPlanPrefix(p.ID)); err != nil {
		return fmt.Errorf("invalidating eligibility cache: %w", err)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("plan_id", p.ID.String()).Msg("plan updated, eligibility cache invalidated")
	return nil
}

// DeactivatePlan follows the same invalidate-then-write order as UpdatePlan.
func (s *Service) DeactivatePlan(ctx context.Context, userID, planID uuid.UUID) error {
	if err := s.cache.DeletePrefix(ctx, cache.EligibilityPlanPrefix(planID)); err != nil {
		return fmt.Errorf("invalidating eligibility cache: %w", err)
	}
	if err := s.repo.Deactivate(ctx, userID, planID); err != nil {
		return err
	}
	s.logger.Info().Str("plan_id", planID.String()).Msg("plan deactivated, eligibility cache invalidated")
	return nil
}
