package x12

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delimiters configures the element separator and segment terminator of a
// generated transaction. Trading partners differ here, so neither character
// is hardcoded.
type Delimiters struct {
	Element byte
	Segment byte
}

// DefaultDelimiters returns the conventional "*" element separator and "~"
// segment terminator.
func DefaultDelimiters() Delimiters {
	return Delimiters{Element: '*', Segment: '~'}
}

// Validate rejects delimiter pairs that cannot produce an unambiguous
// transaction.
func (d Delimiters) Validate() error {
	for _, c := range []byte{d.Element, d.Segment} {
		if c <= ' ' || c > '~' {
			return &InvalidCharacterError{Field: "delimiters", Value: string(c)}
		}
		if (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return &InvalidCharacterError{Field: "delimiters", Value: string(c)}
		}
	}
	if d.Element == d.Segment {
		return &InvalidCharacterError{Field: "delimiters", Value: string(d.Element)}
	}
	return nil
}

// Party identifies a trading partner in the interchange and submitter loops.
type Party struct {
	Name string
	ID   string
}

// Subscriber carries the patient demographics and plan membership that
// populate the subscriber loop.
type Subscriber struct {
	LastName    string
	FirstName   string
	MemberID    string
	GroupNumber string
	BirthDate   time.Time // zero value omits the DMG segment
	Gender      string    // "M", "F", or "" for unknown
}

// Claim carries the claim-level elements of the CLM loop.
type Claim struct {
	ClaimNumber    string
	TotalCharge    decimal.Decimal
	PlaceOfService string // two-digit POS code, e.g. "11" office
	FrequencyCode  string // claim frequency, "1" original
}

// ServiceLine carries one LX/SV1/DTP loop.
type ServiceLine struct {
	ProcedureCode  string
	Charge         decimal.Decimal
	Units          int
	ServiceDate    time.Time
	DiagnosisCodes []string // ordered ICD-10, first is primary
}

// Document is the full input of one 837P generation call. ControlNumber and
// Timestamp are supplied by the caller so that output is byte-for-byte
// reproducible for the same input.
type Document struct {
	Submitter       Party
	Receiver        Party
	BillingProvider Party // ID is the NPI
	Payer           Party
	Subscriber      Subscriber
	Claim           Claim
	Lines           []ServiceLine
	ControlNumber   uint32
	Timestamp       time.Time
}
