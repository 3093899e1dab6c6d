// Package pipeline orchestrates the claim lifecycle: eligibility gates
// submission, and accepted claims are rendered as 837P interchanges.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medclaims/medclaims/internal/domain/claim"
	"github.com/medclaims/medclaims/internal/domain/eligibility"
	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/domain/user"
	"github.com/medclaims/medclaims/internal/platform/metrics"
	"github.com/medclaims/medclaims/internal/platform/x12"
)

// ClaimService is the slice of the claim service the orchestrator drives.
type ClaimService interface {
	GetClaim(ctx context.Context, userID, claimID uuid.UUID) (*claim.Claim, error)
	Transition(ctx context.Context, userID, claimID uuid.UUID, to claim.Status, eventType string, payload interface{}) error
	RecordEvent(ctx context.Context, userID, claimID uuid.UUID, eventType string, payload interface{}) error
}

// EligibilityChecker answers coverage questions.
type EligibilityChecker interface {
	Check(ctx context.Context, userID, planID uuid.UUID, asOf time.Time) (*eligibility.Verdict, error)
}

// PlanGetter loads the plan backing a claim.
type PlanGetter interface {
	GetForUser(ctx context.Context, userID, planID uuid.UUID) (*plan.InsurancePlan, error)
}

// UserGetter loads the subscriber record.
type UserGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// TradingPartners carries the interchange parties configured per deployment.
type TradingPartners struct {
	Submitter       x12.Party
	Receiver        x12.Party
	BillingProvider x12.Party
}

type Service struct {
	claims   ClaimService
	elig     EligibilityChecker
	plans    PlanGetter
	users    UserGetter
	gen      *x12.Generator
	delims   x12.Delimiters
	partners TradingPartners
	ctr      atomic.Uint32
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService builds the orchestrator. seed primes the interchange control
// number counter; the first generated interchange uses seed+1.
func NewService(claims ClaimService, elig EligibilityChecker, plans PlanGetter, users UserGetter,
	delims x12.Delimiters, partners TradingPartners, seed uint32, logger zerolog.Logger) (*Service, error) {
	gen, err := x12.NewGenerator(delims)
	if err != nil {
		return nil, err
	}
	s := &Service{
		claims:   claims,
		elig:     elig,
		plans:    plans,
		users:    users,
		gen:      gen,
		delims:   delims,
		partners: partners,
		logger:   logger,
		now:      time.Now,
	}
	s.ctr.Store(seed)
	return s, nil
}

// ErrClaimNotSubmitted is returned when EDI generation is requested for a
// claim that has not passed through submission.
var ErrClaimNotSubmitted = errors.New("pipeline: claim has not been submitted")

// SubmitResult reports the outcome of a submission attempt.
type SubmitResult struct {
	Status  claim.Status        `json:"status"`
	Verdict *eligibility.Verdict `json:"verdict"`
}

// Submit runs the eligibility gate and moves the claim to submitted or
// rejected. An eligibility fault leaves the claim untouched.
func (s *Service) Submit(ctx context.Context, userID, claimID uuid.UUID) (*SubmitResult, error) {
	c, err := s.claims.GetClaim(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.elig.Check(ctx, userID, c.PlanID, s.now())
	if err != nil {
		return nil, err
	}

	eligPayload := claim.EligibilityPayload{
		Eligible: verdict.Eligible, Reason: verdict.Reason, Source: verdict.Source,
	}

	if !verdict.Eligible {
		if err := s.claims.RecordEvent(ctx, userID, claimID, claim.EventEligibilityChecked, eligPayload); err != nil {
			return nil, err
		}
		err = s.claims.Transition(ctx, userID, claimID, claim.StatusRejected,
			claim.EventClaimRejected, claim.StatusPayload{From: c.Status, To: claim.StatusRejected, Reason: verdict.Reason})
		if err != nil {
			return nil, err
		}
		metrics.ObserveClaimSubmission("rejected")
		s.logger.Info().Str("claim_id", claimID.String()).Str("reason", verdict.Reason).Msg("claim rejected")
		return &SubmitResult{Status: claim.StatusRejected, Verdict: verdict}, nil
	}

	err = s.claims.Transition(ctx, userID, claimID, claim.StatusEligibilityChecked,
		claim.EventEligibilityChecked, eligPayload)
	if err != nil {
		return nil, err
	}
	err = s.claims.Transition(ctx, userID, claimID, claim.StatusSubmitted,
		claim.EventClaimSubmitted, claim.StatusPayload{From: claim.StatusEligibilityChecked, To: claim.StatusSubmitted})
	if err != nil {
		return nil, err
	}

	metrics.ObserveClaimSubmission("submitted")
	s.logger.Info().Str("claim_id", claimID.String()).Msg("claim submitted")
	return &SubmitResult{Status: claim.StatusSubmitted, Verdict: verdict}, nil
}

// GenerateEDI renders the claim as an 837P interchange. Only submitted or
// accepted claims may be rendered. Generator errors surface to the caller
// and never mutate claim state; a success is recorded in the audit log.
func (s *Service) GenerateEDI(ctx context.Context, userID, claimID uuid.UUID) (string, error) {
	c, err := s.claims.GetClaim(ctx, userID, claimID)
	if err != nil {
		return "", err
	}
	if c.Status != claim.StatusSubmitted && c.Status != claim.StatusAccepted {
		return "", fmt.Errorf("%w: status is %s", ErrClaimNotSubmitted, c.Status)
	}
	p, err := s.plans.GetForUser(ctx, userID, c.PlanID)
	if err != nil {
		return "", err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	doc := s.buildDocument(c, p, u)
	doc.ControlNumber = s.ctr.Add(1)
	doc.Timestamp = s.now().UTC()

	out, err := s.gen.Generate(doc)
	if err != nil {
		metrics.ObserveEDIGeneration("error")
		return "", err
	}

	segments := strings.Count(out, string(s.delims.Segment))
	payload := claim.EDIPayload{ControlNumber: doc.ControlNumber, SegmentCount: segments}
	if err := s.claims.RecordEvent(ctx, userID, claimID, claim.EventEDIGenerated, payload); err != nil {
		return "", err
	}

	metrics.ObserveEDIGeneration("ok")
	s.logger.Info().
		Str("claim_id", claimID.String()).
		Uint32("control_number", doc.ControlNumber).
		Int("segments", segments).
		Msg("837P generated")
	return out, nil
}

func (s *Service) buildDocument(c *claim.Claim, p *plan.InsurancePlan, u *user.User) x12.Document {
	first, last := splitName(u.Name)
	doc := x12.Document{
		Submitter:       s.partners.Submitter,
		Receiver:        s.partners.Receiver,
		BillingProvider: s.partners.BillingProvider,
		Payer:           x12.Party{Name: p.PayerName, ID: p.PayerID},
		Subscriber: x12.Subscriber{
			LastName:    last,
			FirstName:   first,
			MemberID:    p.MemberID,
			GroupNumber: p.GroupNumber,
		},
		Claim: x12.Claim{
			ClaimNumber:    c.ClaimNumber,
			TotalCharge:    c.TotalCharge,
			PlaceOfService: c.PlaceOfService,
			FrequencyCode:  "1",
		},
	}
	for _, l := range c.Lines {
		doc.Lines = append(doc.Lines, x12.ServiceLine{
			ProcedureCode:  l.ProcedureCode,
			Charge:         l.Charge,
			Units:          l.Units,
			ServiceDate:    l.ServiceDate,
			DiagnosisCodes: l.DiagnosisCodes,
		})
	}
	return doc
}

// splitName maps a display name onto first/last. The last token is the
// family name.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}
