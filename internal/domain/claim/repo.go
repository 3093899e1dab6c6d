package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no claim matches, including claims owned by
// another user.
var ErrNotFound = errors.New("claim: not found")

// ErrClaimLocked is returned when a mutation is attempted on a claim whose
// status no longer permits edits.
var ErrClaimLocked = errors.New("claim: locked for modification")

// ErrIllegalTransition is returned when a status change is not permitted
// from the claim's current status.
var ErrIllegalTransition = errors.New("claim: illegal status transition")

// ClaimRepository persists claims, lines, and the append-only event log.
// Events can only be appended and listed.
type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetForUser(ctx context.Context, userID, claimID uuid.UUID) (*Claim, error)
	// LockForUpdate loads the claim and its lines while holding a row lock,
	// serializing concurrent mutations of the same claim. Must run inside a
	// transaction.
	LockForUpdate(ctx context.Context, claimID uuid.UUID) (*Claim, error)
	UpdateStatus(ctx context.Context, claimID uuid.UUID, status Status) error
	UpdateTotal(ctx context.Context, claimID uuid.UUID, total decimal.Decimal) error
	UpdateLine(ctx context.Context, line *ClaimLine) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	AppendEvent(ctx context.Context, e *ClaimEvent) error
	ListEvents(ctx context.Context, claimID uuid.UUID) ([]*ClaimEvent, error)
}
