package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertBalanceError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected BALANCE error, got nil")
	}
	var apiErr *ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ApiError, got %T: %v", err, err)
	}
	if apiErr.Code != ErrCodeBalance {
		t.Fatalf("expected code %s, got %s", ErrCodeBalance, apiErr.Code)
	}
}

func TestCheckTransactionBalanceHeaderTotal(t *testing.T) {
	lines := []*NewTransactionLine{
		{LineType: LineTypeItem, LineAmount: dec("60")},
		{LineType: LineTypeTax, LineAmount: dec("40")},
	}
	if err := checkTransactionBalance("expense", dec("100"), lines); err != nil {
		t.Fatalf("balanced transaction rejected: %v", err)
	}
	if err := checkTransactionBalance("expense", dec("100.005"), lines); err != nil {
		t.Fatalf("within-tolerance mismatch rejected: %v", err)
	}
	assertBalanceError(t, checkTransactionBalance("expense", dec("110"), lines))
}

func TestCheckTransactionBalanceSaleWithoutPayment(t *testing.T) {
	lines := []*NewTransactionLine{
		{LineType: LineTypeService, LineAmount: dec("100")},
	}
	if err := checkTransactionBalance("sale", dec("100"), lines); err != nil {
		t.Fatalf("balanced sale rejected: %v", err)
	}

	short := []*NewTransactionLine{
		{LineType: LineTypeService, LineAmount: dec("90")},
	}
	assertBalanceError(t, checkTransactionBalance("sale", dec("100"), short))
}

func TestCheckTransactionBalancePOSPayments(t *testing.T) {
	lines := []*NewTransactionLine{
		{LineType: LineTypeService, LineAmount: dec("90")},
		{LineType: LineTypeTax, LineAmount: dec("10")},
		{LineType: LineTypePayment, LineAmount: dec("-100")},
	}
	if err := checkTransactionBalance("sale", dec("100"), lines); err != nil {
		t.Fatalf("tendered sale rejected: %v", err)
	}

	under := []*NewTransactionLine{
		{LineType: LineTypeService, LineAmount: dec("100")},
		{LineType: LineTypePayment, LineAmount: dec("-80")},
	}
	assertBalanceError(t, checkTransactionBalance("sale", dec("100"), under))
}

func TestCheckTransactionBalanceLedger(t *testing.T) {
	balanced := []*NewTransactionLine{
		{LineType: LineTypeGL, LineAmount: dec("500"), LineData: JSONMap{"side": "DR"}},
		{LineType: LineTypeGL, LineAmount: dec("300"), LineData: JSONMap{"side": "CR"}},
		{LineType: LineTypeGL, LineAmount: dec("200"), LineData: JSONMap{"side": "CR"}},
	}
	if err := checkTransactionBalance("journal", dec("500"), balanced); err != nil {
		t.Fatalf("balanced journal rejected: %v", err)
	}

	unbalanced := []*NewTransactionLine{
		{LineType: LineTypeGL, LineAmount: dec("500"), LineData: JSONMap{"side": "DR"}},
		{LineType: LineTypeGL, LineAmount: dec("450"), LineData: JSONMap{"side": "CR"}},
	}
	assertBalanceError(t, checkTransactionBalance("journal", dec("500"), unbalanced))

	missingSide := []*NewTransactionLine{
		{LineType: LineTypeGL, LineAmount: dec("500")},
		{LineType: LineTypeGL, LineAmount: dec("500"), LineData: JSONMap{"side": "CR"}},
	}
	assertBalanceError(t, checkTransactionBalance("journal", dec("500"), missingSide))
}

func TestBalanceRuleSelection(t *testing.T) {
	cases := []struct {
		txnType string
		want    balanceRule
	}{
		{"journal", balanceRuleLedger},
		{"JOURNAL_ENTRY", balanceRuleLedger},
		{"sale", balanceRulePOS},
		{"POS_SALE", balanceRulePOS},
		{"expense", balanceRuleHeaderTotal},
		{"appointment", balanceRuleHeaderTotal},
	}
	for _, c := range cases {
		if got := balanceRuleFor(c.txnType); got != c.want {
			t.Errorf("balanceRuleFor(%q) = %d, want %d", c.txnType, got, c.want)
		}
	}
}
