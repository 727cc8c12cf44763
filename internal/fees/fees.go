// Package fees computes convenience fees, commissions, delay charges and
// credit-limit recommendations. Every function is pure and rounds half-up
// to two decimal places, so identical inputs always produce identical
// outputs and orchestrator retries stay idempotent.
package fees

import (
	"github.com/credana/lending-service/internal/config"
	"github.com/shopspring/decimal"
)

// BillQuote is the price of processing one bill payment.
type BillQuote struct {
	ConvenienceFee decimal.Decimal `json:"convenience_fee"`
	Commission     decimal.Decimal `json:"commission"`
}

// BillFee prices a bill payment from the per-category table. Unknown
// categories fall back to the default rule. Commission is capped regardless
// of category.
func BillFee(t config.FeeTables, category string, amount decimal.Decimal) BillQuote {
	rule, ok := t.BillRules[category]
	if !ok {
		rule = t.DefaultBillRule
	}
	commission := amount.Mul(rule.CommissionRate).Round(2)
	if commission.GreaterThan(t.CommissionCap) {
		commission = t.CommissionCap
	}
	return BillQuote{
		ConvenienceFee: rule.FlatFee.Round(2),
		Commission:     commission,
	}
}

// DelayQuote is the cost of pushing an installment's due date.
type DelayQuote struct {
	Fee           decimal.Decimal `json:"fee"`
	ExtraInterest decimal.Decimal `json:"extra_interest"`
	Total         decimal.Decimal `json:"total"`
	// Waived is set for flex members so callers can present "FREE" rather
	// than a zero amount.
	Waived bool `json:"waived"`
}

// DelayCharge quotes a delay of delayDays (1 or 2) for an installment.
// The fee is tiered by installment size; extra interest accrues at the
// daily rate per delayed day. Flex members have both components waived.
func DelayCharge(t config.FeeTables, installment decimal.Decimal, delayDays int, hasMembership bool) DelayQuote {
	if hasMembership {
		return DelayQuote{
			Fee:           decimal.Zero,
			ExtraInterest: decimal.Zero,
			Total:         decimal.Zero,
			Waived:        true,
		}
	}
	fee := delayFeeTier(t.DelayTiers, installment)
	extra := installment.
		Mul(t.DelayDailyRate).
		Mul(decimal.NewFromInt(int64(delayDays))).
		Round(2)
	return DelayQuote{
		Fee:           fee,
		ExtraInterest: extra,
		Total:         fee.Add(extra),
	}
}

func delayFeeTier(tiers []config.DelayTier, installment decimal.Decimal) decimal.Decimal {
	for _, tier := range tiers {
		if tier.UpTo.IsZero() || installment.LessThanOrEqual(tier.UpTo) {
			return tier.Fee.Round(2)
		}
	}
	return decimal.Zero
}

// CreditLimitTier recommends a credit ceiling from the step table: more
// completed loans and a higher average ticket size raise the ceiling, up
// to the configured cap. The last tier whose thresholds are met wins.
func CreditLimitTier(t config.FeeTables, completedLoans int, averageAmount decimal.Decimal) decimal.Decimal {
	limit := decimal.Zero
	for _, tier := range t.CreditTiers {
		if completedLoans >= tier.MinLoans && averageAmount.GreaterThanOrEqual(tier.MinAverage) {
			limit = tier.Limit
		}
	}
	if limit.GreaterThan(t.CreditLimitCap) {
		limit = t.CreditLimitCap
	}
	return limit.Round(2)
}
