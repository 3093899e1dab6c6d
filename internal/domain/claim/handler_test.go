package claim

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medclaims/medclaims/internal/domain/plan"
)

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"line validation", &LineValidationError{Line: 1, Field: "charge", Reason: "must be positive"}, http.StatusBadRequest},
		{"claim not found", ErrNotFound, http.StatusNotFound},
		{"plan not found", plan.ErrNotFound, http.StatusNotFound},
		{"inactive plan wraps not found", fmt.Errorf("%w: insurance plan %s is inactive", plan.ErrNotFound, uuid.Nil), http.StatusNotFound},
		{"claim locked", ErrClaimLocked, http.StatusConflict},
		{"illegal transition", fmt.Errorf("%w: draft to accepted", ErrIllegalTransition), http.StatusConflict},
		{"unknown failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr, ok := httpError(tt.err).(*echo.HTTPError)
			if !ok {
				t.Fatalf("httpError(%v) did not return *echo.HTTPError", tt.err)
			}
			if httpErr.Code != tt.code {
				t.Errorf("httpError(%v) = %d, want %d", tt.err, httpErr.Code, tt.code)
			}
		})
	}
}
