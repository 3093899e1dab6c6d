package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medclaims/medclaims/internal/domain/plan"
)

// TxRunner executes fn atomically. Production wires db.RunInTx; tests use a
// pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PlanGetter is the slice of the plan repository the claim service needs.
type PlanGetter interface {
	GetForUser(ctx context.Context, userID, planID uuid.UUID) (*plan.InsurancePlan, error)
}

type Service struct {
	repo   ClaimRepository
	plans  PlanGetter
	inTx   TxRunner
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo ClaimRepository, plans PlanGetter, inTx TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, plans: plans, inTx: inTx, logger: logger, now: time.Now}
}

// CreateClaim validates the lines, checks plan ownership, and persists the
// claim, its lines, and the claim_created event in one transaction. The
// claim number is a ULID so numbers sort by creation time.
func (s *Service) CreateClaim(ctx context.Context, userID, planID uuid.UUID, lines []LineInput) (*Claim, error) {
	if len(lines) == 0 {
		return nil, &LineValidationError{Line: 0, Field: "lines", Reason: "at least one required"}
	}
	now := s.now()
	for i, in := range lines {
		if err := validateLine(i+1, in, now); err != nil {
			return nil, err
		}
	}

	p, err := s.plans.GetForUser(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		// Inactive plans are treated the same as missing ones.
		return nil, fmt.Errorf("%w: insurance plan %s is inactive", plan.ErrNotFound, planID)
	}

	c := &Claim{
		ID:             uuid.New(),
		UserID:         userID,
		PlanID:         planID,
		ClaimNumber:    ulid.Make().String(),
		Status:         StatusDraft,
		PlaceOfService: "11",
	}
	total := decimal.Zero
	for _, in := range lines {
		total = total.Add(lineTotal(in.Charge, in.Units))
		c.Lines = append(c.Lines, &ClaimLine{
			ID:             uuid.New(),
			ClaimID:        c.ID,
			ProcedureCode:  in.ProcedureCode,
			Charge:         in.Charge,
			Units:          in.Units,
			ServiceDate:    in.ServiceDate,
			DiagnosisCodes: in.DiagnosisCodes,
		})
	}
	c.TotalCharge = total

	evt, err := NewEvent(c.ID, EventClaimCreated, CreatedPayload{
		ClaimNumber: c.ClaimNumber,
		PlanID:      planID,
		TotalCharge: total,
		LineCount:   len(c.Lines),
	})
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, evt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("claim_id", c.ID.String()).
		Str("claim_number", c.ClaimNumber).
		Str("total_charge", total.StringFixed(2)).
		Msg("claim created")
	return c, nil
}

func (s *Service) GetClaim(ctx context.Context, userID, claimID uuid.UUID) (*Claim, error) {
	return s.repo.GetForUser(ctx, userID, claimID)
}

// UpdateLine replaces a line's fields and appends the line_updated event in
// the same transaction. The claim row lock serializes concurrent mutations.
func (s *Service) UpdateLine(ctx context.Context, userID, claimID, lineID uuid.UUID, in LineInput) (*ClaimLine, error) {
	if err := validateLine(1, in, s.now()); err != nil {
		return nil, err
	}

	var updated *ClaimLine
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.LockForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrNotFound
		}
		if !c.Status.Mutable() {
			return ErrClaimLocked
		}

		var target *ClaimLine
		for _, l := range c.Lines {
			if l.ID == lineID {
				target = l
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		before := *target

		target.ProcedureCode = in.ProcedureCode
		target.Charge = in.Charge
		target.Units = in.Units
		target.ServiceDate = in.ServiceDate
		target.DiagnosisCodes = in.DiagnosisCodes
		if err := s.repo.UpdateLine(ctx, target); err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range c.Lines {
			total = total.Add(lineTotal(l.Charge, l.Units))
		}
		if err := s.repo.UpdateTotal(ctx, c.ID, total); err != nil {
			return err
		}

		after := *target
		evt, err := NewEvent(c.ID, EventLineUpdated, LineChangePayload{
			LineID: lineID, Before: &before, After: &after,
		})
		if err != nil {
			return err
		}
		if err := s.repo.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteLine removes a line and appends the line_deleted event atomically.
// The last line of a claim cannot be deleted.
func (s *Service) DeleteLine(ctx context.Context, userID, claimID, lineID uuid.UUID) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.LockForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrNotFound
		}
		if !c.Status.Mutable() {
			return ErrClaimLocked
		}

		var target *ClaimLine
		for _, l := range c.Lines {
			if l.ID == lineID {
				target = l
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		if len(c.Lines) == 1 {
			return &LineValidationError{Line: 1, Field: "lines", Reason: "claim must retain at least one line"}
		}
		before := *target

		if err := s.repo.DeleteLine(ctx, lineID); err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range c.Lines {
			if l.ID == lineID {
				continue
			}
			total = total.Add(lineTotal(l.Charge, l.Units))
		}
		if err := s.repo.UpdateTotal(ctx, c.ID, total); err != nil {
			return err
		}

		evt, err := NewEvent(c.ID, EventLineDeleted, LineChangePayload{LineID: lineID, Before: &before})
		if err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, evt)
	})
}

// Transition moves the claim to a new status and appends the given event in
// one transaction. Illegal transitions are refused.
func (s *Service) Transition(ctx context.Context, userID, claimID uuid.UUID, to Status, eventType string, payload interface{}) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.LockForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrNotFound
		}
		if !c.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, c.Status, to)
		}
		if err := s.repo.UpdateStatus(ctx, claimID, to); err != nil {
			return err
		}
		evt, err := NewEvent(claimID, eventType, payload)
		if err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, evt)
	})
}

// RecordEvent appends an event without changing claim state, used for
// observations such as eligibility checks and EDI generations.
func (s *Service) RecordEvent(ctx context.Context, userID, claimID uuid.UUID, eventType string, payload interface{}) error {
	c, err := s.repo.GetForUser(ctx, userID, claimID)
	if err != nil {
		return err
	}
	evt, err := NewEvent(c.ID, eventType, payload)
	if err != nil {
		return err
	}
	return s.repo.AppendEvent(ctx, evt)
}

// ListEvents returns the claim's audit trail in causal order.
func (s *Service) ListEvents(ctx context.Context, userID, claimID uuid.UUID) ([]*ClaimEvent, error) {
	if _, err := s.repo.GetForUser(ctx, userID, claimID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, claimID)
}
