package pipeline

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medclaims/medclaims/internal/domain/claim"
	"github.com/medclaims/medclaims/internal/domain/eligibility"
	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/domain/user"
	"github.com/medclaims/medclaims/internal/platform/auth"
	"github.com/medclaims/medclaims/internal/platform/x12"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("billing")
	api.POST("/claims/:id/submit", h.Submit, role)
	api.POST("/claims/:id/edi", h.GenerateEDI, role)
}

// Submit runs POST /claims/:id/submit. The response carries the resulting
// status and the eligibility verdict that decided it.
func (h *Handler) Submit(c echo.Context) error {
	userID, claimID, err := parseIDs(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Submit(c.Request().Context(), userID, claimID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// GenerateEDI runs POST /claims/:id/edi and returns the raw interchange as
// plain text.
func (h *Handler) GenerateEDI(c echo.Context) error {
	userID, claimID, err := parseIDs(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GenerateEDI(c.Request().Context(), userID, claimID)
	if err != nil {
		return mapError(err)
	}
	return c.Blob(http.StatusOK, "application/edi-x12", []byte(out))
}

func parseIDs(c echo.Context) (userID, claimID uuid.UUID, err error) {
	userID, err = uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	claimID, err = uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return userID, claimID, nil
}

func mapError(err error) error {
	var recErr *x12.ReconciliationError
	var missingErr *x12.MissingRequiredFieldError
	var charErr *x12.InvalidCharacterError
	switch {
	case errors.As(err, &recErr), errors.As(err, &missingErr), errors.As(err, &charErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, eligibility.ErrEligibilityFault):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "eligibility verification unavailable, retry later")
	case errors.Is(err, claim.ErrNotFound), errors.Is(err, plan.ErrNotFound), errors.Is(err, user.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, claim.ErrIllegalTransition), errors.Is(err, claim.ErrClaimLocked),
		errors.Is(err, ErrClaimNotSubmitted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
