// Package x12 generates ANSI X12 837P (professional) healthcare claim
// transactions. The generator is a pure encoder: it performs no I/O, reads
// no clocks, and derives every byte of output from the Document it is given.
package x12

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	versionISA = "00501"
	versionGS  = "005010X222A1"

	// componentSep joins sub-elements inside composite elements (HI
	// qualifiers, SV1 procedure composite). Fixed per the base syntax;
	// ISA16 advertises it to the receiving party.
	componentSep = ":"
)

// Generator encodes 837P documents using a fixed delimiter profile.
type Generator struct {
	delims Delimiters
}

// NewGenerator creates a Generator for the given delimiter profile.
func NewGenerator(d Delimiters) (*Generator, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Generator{delims: d}, nil
}

// Generate encodes one claim into a complete interchange (ISA..IEA). It
// fails without producing output when the claim does not reconcile, a
// required field is absent, or a free-text field contains a delimiter.
func (g *Generator) Generate(doc Document) (string, error) {
	if err := g.validate(doc); err != nil {
		return "", err
	}

	diagnoses, err := collectDiagnoses(doc.Lines)
	if err != nil {
		return "", err
	}

	ts := doc.Timestamp.UTC()
	ctl := fmt.Sprintf("%09d", doc.ControlNumber)

	var segments [][]string
	segments = append(segments, g.buildISA(doc, ts, ctl))
	segments = append(segments, []string{"GS", "HC", doc.Submitter.ID, doc.Receiver.ID,
		ts.Format("20060102"), ts.Format("1504"), ctl, "X", versionGS})

	// Transaction set: segments from ST through SE inclusive; the SE count
	// is computed from what was actually emitted.
	var tx [][]string
	tx = append(tx, []string{"ST", "837", ctl, versionGS})
	tx = append(tx, []string{"BHT", "0019", "00", doc.Claim.ClaimNumber,
		ts.Format("20060102"), ts.Format("1504"), "CH"})
	tx = append(tx, []string{"NM1", "41", "2", doc.Submitter.Name, "", "", "", "", "46", doc.Submitter.ID})
	tx = append(tx, []string{"NM1", "40", "2", doc.Receiver.Name, "", "", "", "", "46", doc.Receiver.ID})

	// Billing provider loop.
	tx = append(tx, []string{"HL", "1", "", "20", "1"})
	tx = append(tx, []string{"NM1", "85", "2", doc.BillingProvider.Name, "", "", "", "", "XX", doc.BillingProvider.ID})

	// Subscriber loop.
	tx = append(tx, []string{"HL", "2", "1", "22", "0"})
	tx = append(tx, []string{"SBR", "P", "18", doc.Subscriber.GroupNumber, "", "", "", "", "", "CI"})
	tx = append(tx, []string{"NM1", "IL", "1", doc.Subscriber.LastName, doc.Subscriber.FirstName,
		"", "", "", "MI", doc.Subscriber.MemberID})
	if !doc.Subscriber.BirthDate.IsZero() {
		tx = append(tx, []string{"DMG", "D8", doc.Subscriber.BirthDate.Format("20060102"), doc.Subscriber.Gender})
	}
	tx = append(tx, []string{"NM1", "PR", "2", doc.Payer.Name, "", "", "", "", "PI", doc.Payer.ID})

	// Claim loop.
	pos := doc.Claim.PlaceOfService
	if pos == "" {
		pos = "11"
	}
	freq := doc.Claim.FrequencyCode
	if freq == "" {
		freq = "1"
	}
	tx = append(tx, []string{"CLM", doc.Claim.ClaimNumber, doc.Claim.TotalCharge.StringFixed(2),
		"", "", pos + componentSep + "B" + componentSep + freq, "Y", "A", "Y", "Y"})
	tx = append(tx, buildHI(diagnoses))

	for i, line := range doc.Lines {
		tx = append(tx, []string{"LX", strconv.Itoa(i + 1)})
		tx = append(tx, []string{"SV1",
			"HC" + componentSep + line.ProcedureCode,
			line.Charge.StringFixed(2),
			"UN", strconv.Itoa(line.Units), "", "",
			diagnosisPointers(line.DiagnosisCodes, diagnoses)})
		tx = append(tx, []string{"DTP", "472", "D8", line.ServiceDate.Format("20060102")})
	}

	tx = append(tx, []string{"SE", strconv.Itoa(len(tx) + 1), ctl})
	segments = append(segments, tx...)

	segments = append(segments, []string{"GE", "1", ctl})
	segments = append(segments, []string{"IEA", "1", ctl})

	return g.encode(segments), nil
}

// encode joins elements with the element separator and terminates each
// segment. Trailing empty elements are trimmed, matching common payer
// expectations.
func (g *Generator) encode(segments [][]string) string {
	sep := string(g.delims.Element)
	term := string(g.delims.Segment)

	var b strings.Builder
	for _, seg := range segments {
		end := len(seg)
		for end > 1 && seg[end-1] == "" {
			end--
		}
		b.WriteString(strings.Join(seg[:end], sep))
		b.WriteString(term)
	}
	return b.String()
}

func (g *Generator) buildISA(doc Document, ts time.Time, ctl string) []string {
	return []string{"ISA",
		"00", strings.Repeat(" ", 10),
		"00", strings.Repeat(" ", 10),
		"ZZ", padRight(doc.Submitter.ID, 15),
		"ZZ", padRight(doc.Receiver.ID, 15),
		ts.Format("060102"), ts.Format("1504"),
		"^", versionISA, ctl, "0", "P", componentSep}
}

// buildHI emits the claim-level diagnosis segment. The first code carries
// the ABK (principal, ICD-10) qualifier; the rest carry ABF.
func buildHI(diagnoses []string) []string {
	seg := []string{"HI"}
	for i, code := range diagnoses {
		qualifier := "ABF"
		if i == 0 {
			qualifier = "ABK"
		}
		seg = append(seg, qualifier+componentSep+code)
	}
	return seg
}

// collectDiagnoses builds the claim-level ordered diagnosis list as the
// first-appearance union of all line codes. The 837P HI segment holds at
// most twelve codes.
func collectDiagnoses(lines []ServiceLine) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, line := range lines {
		for _, code := range line.DiagnosisCodes {
			if seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, code)
		}
	}
	if len(out) > 12 {
		return nil, fmt.Errorf("x12: claim carries %d distinct diagnosis codes, maximum is 12", len(out))
	}
	return out, nil
}

// diagnosisPointers maps a line's codes to their 1-based positions in the
// claim-level HI list. SV1 allows at most four pointers.
func diagnosisPointers(codes, diagnoses []string) string {
	var ptrs []string
	for _, code := range codes {
		for i, d := range diagnoses {
			if d == code {
				ptrs = append(ptrs, strconv.Itoa(i+1))
				break
			}
		}
		if len(ptrs) == 4 {
			break
		}
	}
	return strings.Join(ptrs, componentSep)
}

func (g *Generator) validate(doc Document) error {
	if doc.Claim.ClaimNumber == "" {
		return &MissingRequiredFieldError{Field: "claim_number"}
	}
	if doc.Subscriber.MemberID == "" {
		return &MissingRequiredFieldError{Field: "member_id"}
	}
	if len(doc.Lines) == 0 {
		return &MissingRequiredFieldError{Field: "service_lines"}
	}

	expected := decimal.Zero
	for i, line := range doc.Lines {
		if line.ProcedureCode == "" {
			return &MissingRequiredFieldError{Field: "procedure_code", Line: i + 1}
		}
		if len(line.DiagnosisCodes) == 0 {
			return &MissingRequiredFieldError{Field: "diagnosis_codes", Line: i + 1}
		}
		expected = expected.Add(line.Charge.Mul(decimal.NewFromInt(int64(line.Units))))
	}

	// Exact at two fraction digits; no float tolerance.
	if !expected.Round(2).Equal(doc.Claim.TotalCharge.Round(2)) {
		return &ReconciliationError{
			ClaimNumber: doc.Claim.ClaimNumber,
			Expected:    expected,
			Actual:      doc.Claim.TotalCharge,
		}
	}

	fields := []struct {
		name  string
		value string
	}{
		{"submitter_name", doc.Submitter.Name},
		{"submitter_id", doc.Submitter.ID},
		{"receiver_name", doc.Receiver.Name},
		{"receiver_id", doc.Receiver.ID},
		{"billing_provider_name", doc.BillingProvider.Name},
		{"billing_provider_id", doc.BillingProvider.ID},
		{"payer_name", doc.Payer.Name},
		{"payer_id", doc.Payer.ID},
		{"subscriber_last_name", doc.Subscriber.LastName},
		{"subscriber_first_name", doc.Subscriber.FirstName},
		{"member_id", doc.Subscriber.MemberID},
		{"group_number", doc.Subscriber.GroupNumber},
		{"claim_number", doc.Claim.ClaimNumber},
	}
	for _, f := range fields {
		if err := g.checkText(f.name, f.value); err != nil {
			return err
		}
	}
	for i, line := range doc.Lines {
		if err := g.checkText(fmt.Sprintf("line %d procedure_code", i+1), line.ProcedureCode); err != nil {
			return err
		}
		for _, code := range line.DiagnosisCodes {
			if err := g.checkText(fmt.Sprintf("line %d diagnosis_code", i+1), code); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkText rejects values containing either delimiter: the base syntax has
// no escape sequence, so silently passing them through would shift every
// following element.
func (g *Generator) checkText(field, value string) error {
	if strings.IndexByte(value, g.delims.Element) >= 0 || strings.IndexByte(value, g.delims.Segment) >= 0 {
		return &InvalidCharacterError{Field: field, Value: value}
	}
	return nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
