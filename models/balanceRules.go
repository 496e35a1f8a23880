package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Balance rules are checked before any transaction row is committed. All
// comparisons run on decimals with a fixed tolerance of 0.01 currency units.

var balanceTolerance = decimal.NewFromFloat(0.01)

type balanceRule int

const (
	// header total must equal the sum of line amounts
	balanceRuleHeaderTotal balanceRule = iota
	// debit line total must equal credit line total, sides read from line_data.side
	balanceRuleLedger
	// non-payment line magnitude must equal payment line magnitude
	balanceRulePOS
)

func balanceRuleFor(transactionType string) balanceRule {
	switch strings.ToUpper(transactionType) {
	case "JOURNAL", "JOURNAL_ENTRY", "GL_ENTRY", "LEDGER":
		return balanceRuleLedger
	case "SALE", "POS_SALE", "POS_ORDER":
		return balanceRulePOS
	default:
		return balanceRuleHeaderTotal
	}
}

func lineSide(line *NewTransactionLine) string {
	if line.LineData == nil {
		return ""
	}
	side, _ := line.LineData["side"].(string)
	return strings.ToUpper(side)
}

// checkTransactionBalance applies the type-specific balance rule to a header
// total and its lines. A nil return means the transaction reconciles.
func checkTransactionBalance(transactionType string, totalAmount decimal.Decimal, lines []*NewTransactionLine) error {
	switch balanceRuleFor(transactionType) {
	case balanceRuleLedger:
		debit := decimal.Zero
		credit := decimal.Zero
		for _, line := range lines {
			switch lineSide(line) {
			case "DR", "DEBIT":
				debit = debit.Add(line.LineAmount)
			case "CR", "CREDIT":
				credit = credit.Add(line.LineAmount)
			default:
				return NewApiError(ErrCodeBalance, "ledger line missing line_data.side")
			}
		}
		if debit.Sub(credit).Abs().GreaterThan(balanceTolerance) {
			return NewApiError(ErrCodeBalance,
				"ledger out of balance: debit "+debit.String()+" vs credit "+credit.String())
		}
	case balanceRulePOS:
		charges := decimal.Zero
		payments := decimal.Zero
		hasPayment := false
		for _, line := range lines {
			if line.LineType == LineTypePayment {
				hasPayment = true
				payments = payments.Add(line.LineAmount.Abs())
			} else {
				charges = charges.Add(line.LineAmount.Abs())
			}
		}
		if hasPayment {
			if charges.Sub(payments).Abs().GreaterThan(balanceTolerance) {
				return NewApiError(ErrCodeBalance,
					"sale out of balance: charges "+charges.String()+" vs payments "+payments.String())
			}
			return nil
		}
		// no tender lines yet, reconcile charges against the header total
		if charges.Sub(totalAmount.Abs()).Abs().GreaterThan(balanceTolerance) {
			return NewApiError(ErrCodeBalance,
				"header total "+totalAmount.String()+" does not match line total "+charges.String())
		}
	default:
		sum := decimal.Zero
		for _, line := range lines {
			sum = sum.Add(line.LineAmount)
		}
		if sum.Sub(totalAmount).Abs().GreaterThan(balanceTolerance) {
			return NewApiError(ErrCodeBalance,
				"header total "+totalAmount.String()+" does not match line total "+sum.String())
		}
	}
	return nil
}
