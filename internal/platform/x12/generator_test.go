package x12

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testDocument() Document {
	return Document{
		Submitter:       Party{Name: "RIVERBEND MEDICAL GROUP", ID: "SUB001"},
		Receiver:        Party{Name: "CLEARINGHOUSE", ID: "RCV001"},
		BillingProvider: Party{Name: "RIVERBEND MEDICAL GROUP", ID: "1234567893"},
		Payer:           Party{Name: "ACME HEALTH", ID: "60054"},
		Subscriber: Subscriber{
			LastName:    "DOE",
			FirstName:   "JANE",
			MemberID:    "W883449464",
			GroupNumber: "GRP-4431",
		},
		Claim: Claim{
			ClaimNumber:    "CLM100001",
			TotalCharge:    decimal.RequireFromString("375.75"),
			PlaceOfService: "11",
			FrequencyCode:  "1",
		},
		Lines: []ServiceLine{
			{
				ProcedureCode:  "99213",
				Charge:         decimal.RequireFromString("250.50"),
				Units:          1,
				ServiceDate:    time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
				DiagnosisCodes: []string{"E11.9", "I10"},
			},
			{
				ProcedureCode:  "85025",
				Charge:         decimal.RequireFromString("125.25"),
				Units:          1,
				ServiceDate:    time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
				DiagnosisCodes: []string{"E11.9"},
			},
		},
		ControlNumber: 42,
		Timestamp:     time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC),
	}
}

func mustGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultDelimiters())
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

// splitSegments drops the trailing empty slice entry after the final
// terminator.
func splitSegments(t *testing.T, out string, term byte) []string {
	t.Helper()
	if !strings.HasSuffix(out, string(term)) {
		t.Fatalf("output does not end with segment terminator %q", term)
	}
	segs := strings.Split(strings.TrimSuffix(out, string(term)), string(term))
	return segs
}

func TestGenerate_ClaimChargeAndSegmentCount(t *testing.T) {
	g := mustGenerator(t)

	out, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	segs := splitSegments(t, out, '~')

	var clm, se string
	stIdx, seIdx := -1, -1
	for i, s := range segs {
		switch {
		case strings.HasPrefix(s, "CLM*"):
			clm = s
		case strings.HasPrefix(s, "SE*"):
			se = s
			seIdx = i
		case strings.HasPrefix(s, "ST*"):
			stIdx = i
		}
	}
	if clm == "" || se == "" || stIdx < 0 {
		t.Fatalf("missing CLM/ST/SE in output:\n%s", out)
	}

	if got := strings.Split(clm, "*")[2]; got != "375.75" {
		t.Errorf("CLM charge element = %q, want 375.75", got)
	}

	declared, err := strconv.Atoi(strings.Split(se, "*")[1])
	if err != nil {
		t.Fatalf("SE count element: %v", err)
	}
	actual := seIdx - stIdx + 1
	if declared != actual {
		t.Errorf("SE declares %d segments, transaction set has %d", declared, actual)
	}
}

func TestGenerate_ReconciliationMismatch(t *testing.T) {
	g := mustGenerator(t)

	doc := testDocument()
	doc.Claim.TotalCharge = decimal.RequireFromString("500.00")

	out, err := g.Generate(doc)
	var recErr *ReconciliationError
	if !errors.As(err, &recErr) {
		t.Fatalf("got err %v, want ReconciliationError", err)
	}
	if out != "" {
		t.Errorf("mismatched claim produced output: %q", out)
	}
	if !recErr.Expected.Equal(decimal.RequireFromString("375.75")) {
		t.Errorf("expected sum = %s, want 375.75", recErr.Expected)
	}
}

func TestGenerate_UnitsMultiplyIntoReconciliation(t *testing.T) {
	g := mustGenerator(t)

	doc := testDocument()
	doc.Lines = []ServiceLine{{
		ProcedureCode:  "J3420",
		Charge:         decimal.RequireFromString("12.25"),
		Units:          3,
		ServiceDate:    time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		DiagnosisCodes: []string{"D51.9"},
	}}
	doc.Claim.TotalCharge = decimal.RequireFromString("36.75")

	if _, err := g.Generate(doc); err != nil {
		t.Fatalf("Generate with units=3: %v", err)
	}
}

func TestGenerate_MissingRequiredFields(t *testing.T) {
	g := mustGenerator(t)

	tests := []struct {
		name   string
		mutate func(*Document)
		field  string
		line   int
	}{
		{"no member id", func(d *Document) { d.Subscriber.MemberID = "" }, "member_id", 0},
		{"no claim number", func(d *Document) { d.Claim.ClaimNumber = "" }, "claim_number", 0},
		{"no procedure code", func(d *Document) { d.Lines[1].ProcedureCode = "" }, "procedure_code", 2},
		{"no diagnoses", func(d *Document) { d.Lines[0].DiagnosisCodes = nil }, "diagnosis_codes", 1},
		{"no lines", func(d *Document) { d.Lines = nil }, "service_lines", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := testDocument()
			tc.mutate(&doc)
			_, err := g.Generate(doc)
			var mErr *MissingRequiredFieldError
			if !errors.As(err, &mErr) {
				t.Fatalf("got err %v, want MissingRequiredFieldError", err)
			}
			if mErr.Field != tc.field || mErr.Line != tc.line {
				t.Errorf("got field=%s line=%d, want field=%s line=%d",
					mErr.Field, mErr.Line, tc.field, tc.line)
			}
		})
	}
}

func TestGenerate_RejectsDelimiterInFreeText(t *testing.T) {
	g := mustGenerator(t)

	doc := testDocument()
	doc.Payer.Name = "ACME*HEALTH"

	_, err := g.Generate(doc)
	var cErr *InvalidCharacterError
	if !errors.As(err, &cErr) {
		t.Fatalf("got err %v, want InvalidCharacterError", err)
	}
	if cErr.Field != "payer_name" {
		t.Errorf("field = %q, want payer_name", cErr.Field)
	}

	doc = testDocument()
	doc.Subscriber.LastName = "O~BRIEN"
	if _, err := g.Generate(doc); !errors.As(err, &cErr) {
		t.Fatalf("segment terminator in name: got %v, want InvalidCharacterError", err)
	}
}

func TestGenerate_Reproducible(t *testing.T) {
	g := mustGenerator(t)

	a, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a != b {
		t.Error("same document and control number produced different output")
	}
}

func TestGenerate_ControlNumbersMatchAcrossEnvelopes(t *testing.T) {
	g := mustGenerator(t)

	out, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	segs := splitSegments(t, out, '~')
	const ctl = "000000042"

	isa := strings.Split(segs[0], "*")
	if isa[13] != ctl {
		t.Errorf("ISA13 = %q, want %s", isa[13], ctl)
	}
	var st, se, iea string
	for _, s := range segs {
		switch {
		case strings.HasPrefix(s, "ST*"):
			st = s
		case strings.HasPrefix(s, "SE*"):
			se = s
		case strings.HasPrefix(s, "IEA*"):
			iea = s
		}
	}
	if got := strings.Split(st, "*")[2]; got != ctl {
		t.Errorf("ST02 = %q, want %s", got, ctl)
	}
	if got := strings.Split(se, "*")[2]; got != ctl {
		t.Errorf("SE02 = %q, want %s", got, ctl)
	}
	if got := strings.Split(iea, "*")[2]; got != ctl {
		t.Errorf("IEA02 = %q, want %s", got, ctl)
	}
}

func TestGenerate_DiagnosisQualifiers(t *testing.T) {
	g := mustGenerator(t)

	out, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var hi string
	for _, s := range splitSegments(t, out, '~') {
		if strings.HasPrefix(s, "HI*") {
			hi = s
		}
	}
	if hi == "" {
		t.Fatal("no HI segment emitted")
	}
	elems := strings.Split(hi, "*")
	if elems[1] != "ABK:E11.9" {
		t.Errorf("primary diagnosis = %q, want ABK:E11.9", elems[1])
	}
	if elems[2] != "ABF:I10" {
		t.Errorf("secondary diagnosis = %q, want ABF:I10", elems[2])
	}
}

func TestGenerate_CustomDelimiters(t *testing.T) {
	g, err := NewGenerator(Delimiters{Element: '|', Segment: '\''})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	out, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(out, "ISA|") {
		t.Errorf("output does not use custom element separator: %q", out[:20])
	}
	if !strings.HasSuffix(out, "'") {
		t.Error("output does not use custom segment terminator")
	}
	// A value legal under default delimiters is rejected when it collides
	// with the custom profile.
	doc := testDocument()
	doc.Payer.Name = "ACME|HEALTH"
	var cErr *InvalidCharacterError
	if _, err := g.Generate(doc); !errors.As(err, &cErr) {
		t.Errorf("got %v, want InvalidCharacterError", err)
	}
}

func TestNewGenerator_RejectsBadDelimiters(t *testing.T) {
	tests := []Delimiters{
		{Element: '*', Segment: '*'}, // identical
		{Element: 'A', Segment: '~'}, // alphanumeric
		{Element: '*', Segment: '\n'}, // control character
	}
	for _, d := range tests {
		if _, err := NewGenerator(d); err == nil {
			t.Errorf("NewGenerator(%+v) accepted invalid delimiters", d)
		}
	}
}

func TestGenerate_ServiceLineLoops(t *testing.T) {
	g := mustGenerator(t)

	out, err := g.Generate(testDocument())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	segs := splitSegments(t, out, '~')

	var sv1s, dtps []string
	for _, s := range segs {
		if strings.HasPrefix(s, "SV1*") {
			sv1s = append(sv1s, s)
		}
		if strings.HasPrefix(s, "DTP*") {
			dtps = append(dtps, s)
		}
	}
	if len(sv1s) != 2 || len(dtps) != 2 {
		t.Fatalf("got %d SV1 and %d DTP segments, want 2 and 2", len(sv1s), len(dtps))
	}
	// The first line carries two diagnosis codes, so its pointer element is
	// the composite 1:2 against the claim-level HI list.
	if want := "SV1*HC:99213*250.50*UN*1***1:2"; sv1s[0] != want {
		t.Errorf("first SV1 = %q, want %q", sv1s[0], want)
	}
	if want := "SV1*HC:85025*125.25*UN*1***1"; sv1s[1] != want {
		t.Errorf("second SV1 = %q, want %q", sv1s[1], want)
	}
	if want := "DTP*472*D8*20250314"; dtps[0] != want {
		t.Errorf("first DTP = %q, want %q", dtps[0], want)
	}
}
