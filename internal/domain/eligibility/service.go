// Package eligibility answers whether an insurance plan covers a service
// date. Verdicts are cached per plan and day; the data store is the source
// of truth and the cache is only ever an optimization.
package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medclaims/medclaims/internal/domain/claim"
	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/platform/cache"
	"github.com/medclaims/medclaims/internal/platform/metrics"
)

// ErrEligibilityFault signals that no authoritative answer was available:
// the store failed and no cached verdict existed. Callers may retry; the
// service never substitutes an optimistic verdict.
var ErrEligibilityFault = errors.New("eligibility: verification unavailable")

// Verdict is the answer to one eligibility question. Source is "cache" or
// "store".
type Verdict struct {
	Eligible  bool      `json:"eligible"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Source    string    `json:"source"`
}

// PlanGetter is the slice of the plan repository the service reads from.
type PlanGetter interface {
	GetForUser(ctx context.Context, userID, planID uuid.UUID) (*plan.InsurancePlan, error)
}

// EventRecorder appends an audit event to a claim.
type EventRecorder interface {
	RecordEvent(ctx context.Context, userID, claimID uuid.UUID, eventType string, payload interface{}) error
}

type Service struct {
	plans    PlanGetter
	cache    cache.Store
	recorder EventRecorder
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(plans PlanGetter, cacheStore cache.Store, recorder EventRecorder, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		plans:    plans,
		cache:    cacheStore,
		recorder: recorder,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Check answers the eligibility question for one plan and service date.
// Cache first; on miss or cache failure the store decides. A store failure
// without a cached verdict is ErrEligibilityFault, never an eligible verdict.
func (s *Service) Check(ctx context.Context, userID, planID uuid.UUID, asOf time.Time) (*Verdict, error) {
	key := cache.EligibilityPlanKey(planID, asOf)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var v Verdict
		if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
			v.Source = "cache"
			metrics.ObserveEligibilityCheck("cache", v.Eligible)
			return &v, nil
		}
		// Corrupt entry: treat as a miss and overwrite below.
		s.logger.Warn().Str("key", key).Msg("discarding undecodable cached verdict")
	case errors.Is(err, cache.ErrMiss):
		// fall through to the store
	default:
		metrics.ObserveEligibilityCacheError()
		s.logger.Warn().Err(err).Str("key", key).Msg("eligibility cache read failed")
	}

	p, err := s.plans.GetForUser(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEligibilityFault, err)
	}

	v := s.decide(p, asOf)

	if data, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			metrics.ObserveEligibilityCacheError()
			s.logger.Warn().Err(err).Str("key", key).Msg("eligibility cache write failed")
		}
	}

	metrics.ObserveEligibilityCheck("store", v.Eligible)
	return v, nil
}

// decide applies the coverage rule: the plan must be active and its
// effective range must include the service date. The plan was explicitly
// selected by the caller, so a non-primary plan can still be eligible.
func (s *Service) decide(p *plan.InsurancePlan, asOf time.Time) *Verdict {
	v := &Verdict{CheckedAt: s.now().UTC(), Source: "store"}
	switch {
	case !p.IsActive:
		v.Reason = "plan inactive"
	case !p.CoversDate(asOf):
		v.Reason = "outside effective range"
	default:
		v.Eligible = true
	}
	return v
}

// CheckForClaim runs Check and appends an eligibility_checked event to the
// claim's audit trail.
func (s *Service) CheckForClaim(ctx context.Context, userID, claimID, planID uuid.UUID, asOf time.Time) (*Verdict, error) {
	v, err := s.Check(ctx, userID, planID, asOf)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		payload := claim.EligibilityPayload{Eligible: v.Eligible, Reason: v.Reason, Source: v.Source}
		if err := s.recorder.RecordEvent(ctx, userID, claimID, claim.EventEligibilityChecked, payload); err != nil {
			return nil, err
		}
	}
	return v, nil
}
