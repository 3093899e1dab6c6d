package claim

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/platform/auth"
	"github.com/medclaims/medclaims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("billing")

	g := api.Group("", role)
	g.POST("/claims", h.CreateClaim)
	g.GET("/claims/:id", h.GetClaim)
	g.PUT("/claims/:id/lines/:lineId", h.UpdateLine)
	g.DELETE("/claims/:id/lines/:lineId", h.DeleteLine)
	g.GET("/claims/:id/events", h.ListEvents)
}

type createClaimRequest struct {
	PlanID uuid.UUID   `json:"insurance_plan_id"`
	Lines  []LineInput `json:"lines"`
}

func callerID(c echo.Context) (uuid.UUID, error) {
	return uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
}

// httpError maps domain errors onto status codes: validation 400, missing
// 404, locked 409. Anything else is a server-side fault.
func httpError(err error) error {
	var vErr *LineValidationError
	switch {
	case errors.As(err, &vErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, plan.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrClaimLocked), errors.Is(err, ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateClaim(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	var req createClaimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	claim, err := h.svc.CreateClaim(c.Request().Context(), userID, req.PlanID, req.Lines)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, claim)
}

func (h *Handler) GetClaim(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	claim, err := h.svc.GetClaim(c.Request().Context(), userID, claimID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) UpdateLine(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lineID, err := uuid.Parse(c.Param("lineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}
	var in LineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	line, err := h.svc.UpdateLine(c.Request().Context(), userID, claimID, lineID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, line)
}

func (h *Handler) DeleteLine(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lineID, err := uuid.Parse(c.Param("lineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}
	if err := h.svc.DeleteLine(c.Request().Context(), userID, claimID, lineID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEvents(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.ListEvents(c.Request().Context(), userID, claimID)
	if err != nil {
		return httpError(err)
	}

	p := pagination.FromContext(c)
	total := len(events)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events[start:end], total, p.Limit, p.Offset))
}
