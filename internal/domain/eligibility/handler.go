package eligibility

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("billing")
	api.GET("/eligibility/:planId", h.Check, role)
}

// Check answers GET /eligibility/:planId?as_of=2025-03-14&claim_id=...
// as_of defaults to today; claim_id attaches the verdict to a claim's audit
// trail.
func (h *Handler) Check(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	planID, err := uuid.Parse(c.Param("planId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	asOf := time.Now()
	if raw := c.QueryParam("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		}
	}

	var verdict *Verdict
	if raw := c.QueryParam("claim_id"); raw != "" {
		claimID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
		}
		verdict, err = h.svc.CheckForClaim(c.Request().Context(), userID, claimID, planID, asOf)
		if err != nil {
			return mapError(err)
		}
	} else {
		verdict, err = h.svc.Check(c.Request().Context(), userID, planID, asOf)
		if err != nil {
			return mapError(err)
		}
	}
	return c.JSON(http.StatusOK, verdict)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, plan.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	case errors.Is(err, ErrEligibilityFault):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "eligibility verification unavailable, retry later")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
