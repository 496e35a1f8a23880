package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testFieldSmartCode = "HERA.SALON.CRM.CUSTOMER.FIELD.v1"

func TestDynamicFieldNumberCoercion(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string", "452.34", "452.34"},
		{"float", 452.34, "452.34"},
		{"int", 10, "10"},
		{"decimal", decimal.NewFromInt(7), "7"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := NewDynamicField{Value: c.value, Type: FieldTypeNumber, SmartCode: testFieldSmartCode}
			row, err := f.toRow("org-1", "ent-1", "lifetime_value", 5)
			if err != nil {
				t.Fatalf("toRow: %v", err)
			}
			if row.FieldValueNumber == nil {
				t.Fatal("number column not populated")
			}
			if row.FieldValueNumber.String() != c.want {
				t.Fatalf("got %s, want %s", row.FieldValueNumber.String(), c.want)
			}
			got, ok := row.Value().(decimal.Decimal)
			if !ok || got.String() != c.want {
				t.Fatalf("Value() = %v, want %s", row.Value(), c.want)
			}
		})
	}

	f := NewDynamicField{Value: "not-a-number", Type: FieldTypeNumber, SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "lifetime_value", 5); err == nil {
		t.Fatal("expected coercion failure for non-numeric value")
	}
}

func TestDynamicFieldDateParsing(t *testing.T) {
	f := NewDynamicField{Value: "2026-03-15", Type: FieldTypeDate, SmartCode: testFieldSmartCode}
	row, err := f.toRow("org-1", "ent-1", "next_visit", 5)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if row.FieldValueDate == nil || !row.FieldValueDate.Equal(want) {
		t.Fatalf("got %v, want %v", row.FieldValueDate, want)
	}

	f = NewDynamicField{Value: "2026-03-15T10:30:00Z", Type: FieldTypeDate, SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "next_visit", 5); err != nil {
		t.Fatalf("RFC3339 value rejected: %v", err)
	}

	f = NewDynamicField{Value: "15/03/2026", Type: FieldTypeDate, SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "next_visit", 5); err == nil {
		t.Fatal("expected failure for unsupported date format")
	}
}

func TestDynamicFieldTypeDefaultsToText(t *testing.T) {
	f := NewDynamicField{Value: 42, SmartCode: testFieldSmartCode}
	row, err := f.toRow("org-1", "ent-1", "note", 5)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if row.FieldType != FieldTypeText {
		t.Fatalf("got field type %s, want %s", row.FieldType, FieldTypeText)
	}
	if row.FieldValueText == nil || *row.FieldValueText != "42" {
		t.Fatalf("text column = %v, want \"42\"", row.FieldValueText)
	}
}

func TestDynamicFieldRejections(t *testing.T) {
	f := NewDynamicField{Value: "x", Type: "blob", SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "f", 5); err == nil {
		t.Fatal("expected rejection for unknown field type")
	}

	f = NewDynamicField{Value: "x", Type: FieldTypeText, SmartCode: "hera.lowercase.v1"}
	_, err := f.toRow("org-1", "ent-1", "f", 5)
	var apiErr *ApiError
	if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeInvalidSmartCode {
		t.Fatalf("expected INVALID_SMART_CODE, got %v", err)
	}

	f = NewDynamicField{Value: "x", Type: FieldTypeText, SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "", 5); err == nil {
		t.Fatal("expected rejection for empty field name")
	}

	f = NewDynamicField{Value: []int{1, 2}, Type: FieldTypeJson, SmartCode: testFieldSmartCode}
	if _, err := f.toRow("org-1", "ent-1", "prefs", 5); err == nil {
		t.Fatal("expected rejection for non-object json value")
	}
}
