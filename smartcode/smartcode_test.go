package smartcode

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		code  string
		valid bool
	}{
		{"HERA.SALON.SALE.TXN.RETAIL.v1", true},
		{"HERA.FURNITURE.PRODUCT.CHAIR.CORE.v2", true},
		{"HERA.HEALTHCARE.PATIENT.VISIT.SCHEDULED.FOLLOW_UP.v10", true},
		{"HERA.RETAIL.POS.SALE.HEADER.CASH.PAYMENT.LINE.v1", true},

		// too few middle segments
		{"HERA.AB.X.v1", false},
		{"HERA.SALON.SALE.v1", false},
		// lowercase segment
		{"HERA.SALON.sale.txn.retail.v1", false},
		// industry too short / too long
		{"HERA.AB.SALE.TXN.RETAIL.v1", false},
		{"HERA.ABCDEFGHIJKLMNOP.SALE.TXN.RETAIL.v1", false},
		// single-char middle segment
		{"HERA.SALON.SALE.T.RETAIL.v1", false},
		// wrong prefix
		{"HEAR.SALON.SALE.TXN.RETAIL.v1", false},
		// uppercase version marker
		{"HERA.SALON.SALE.TXN.RETAIL.V1", false},
		// missing version
		{"HERA.SALON.SALE.TXN.RETAIL", false},
		// version must be integer
		{"HERA.SALON.SALE.TXN.RETAIL.v1a", false},
		// too many middle segments (9)
		{"HERA.SALON.S1.S2.S3.S4.S5.S6.S7.S8.S9.v1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Validate(tc.code); got != tc.valid {
			t.Errorf("Validate(%q) = %v, want %v", tc.code, got, tc.valid)
		}
	}
}

func TestParseComponents(t *testing.T) {
	sc, err := Parse("HERA.SALON.SALE.TXN.RETAIL.v1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if sc.Industry != "SALON" {
		t.Errorf("Industry = %q, want SALON", sc.Industry)
	}
	if len(sc.Segments) != 3 || sc.Segments[0] != "SALE" || sc.Segments[2] != "RETAIL" {
		t.Errorf("Segments = %v, want [SALE TXN RETAIL]", sc.Segments)
	}
	if sc.Version != 1 {
		t.Errorf("Version = %d, want 1", sc.Version)
	}
	if sc.String() != "HERA.SALON.SALE.TXN.RETAIL.v1" {
		t.Errorf("String() = %q", sc.String())
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse("HERA.AB.X.v1"); err != ErrInvalidSmartCode {
		t.Fatalf("Parse(invalid) error = %v, want ErrInvalidSmartCode", err)
	}
}
