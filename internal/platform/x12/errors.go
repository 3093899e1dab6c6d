package x12

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReconciliationError reports a claim whose total charge does not equal the
// sum of its service line charges. Generation is refused until the data is
// corrected; retrying with the same input cannot succeed.
type ReconciliationError struct {
	ClaimNumber string
	Expected    decimal.Decimal // sum of line charge * units
	Actual      decimal.Decimal // claim total charge
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("x12: claim %s total charge %s does not match line sum %s",
		e.ClaimNumber, e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}

// MissingRequiredFieldError reports a field the 837P transaction cannot be
// built without. Line is 1-based; 0 means a claim-level field.
type MissingRequiredFieldError struct {
	Field string
	Line  int
}

func (e *MissingRequiredFieldError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("x12: missing required field %s on service line %d", e.Field, e.Line)
	}
	return fmt.Sprintf("x12: missing required field %s", e.Field)
}

// InvalidCharacterError reports a free-text value containing the element
// separator or segment terminator. X12 base syntax has no escape mechanism
// for its delimiters, so such values are rejected rather than mangled.
type InvalidCharacterError struct {
	Field string
	Value string
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("x12: field %s contains a delimiter character: %q", e.Field, e.Value)
}
