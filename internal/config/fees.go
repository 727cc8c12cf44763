package config

import "github.com/shopspring/decimal"

// BillFeeRule prices one bill category: a flat convenience fee plus a
// commission percentage of the bill amount.
type BillFeeRule struct {
	FlatFee        decimal.Decimal
	CommissionRate decimal.Decimal
}

// DelayTier maps an installment-size band to its delay fee. A zero UpTo
// marks the open-ended top band.
type DelayTier struct {
	UpTo decimal.Decimal
	Fee  decimal.Decimal
}

// CreditTier maps a repayment track record to a recommended credit ceiling.
// Tiers are matched in order; the last tier whose thresholds are met wins.
type CreditTier struct {
	MinLoans   int
	MinAverage decimal.Decimal
	Limit      decimal.Decimal
}

// FeeTables is the injected read-only fee configuration consumed by the
// calculator. Deployments and tests swap tables instead of patching
// module-level constants.
type FeeTables struct {
	BillRules       map[string]BillFeeRule
	DefaultBillRule BillFeeRule
	CommissionCap   decimal.Decimal

	DelayTiers     []DelayTier
	DelayDailyRate decimal.Decimal

	CreditTiers    []CreditTier
	CreditLimitCap decimal.Decimal
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultFeeTables returns the standard fee configuration.
func DefaultFeeTables() FeeTables {
	return FeeTables{
		BillRules: map[string]BillFeeRule{
			"mobile":      {FlatFee: dec("2"), CommissionRate: dec("0.01")},
			"dth":         {FlatFee: dec("3"), CommissionRate: dec("0.01")},
			"electricity": {FlatFee: dec("5"), CommissionRate: dec("0.005")},
			"water":       {FlatFee: dec("5"), CommissionRate: dec("0.005")},
			"gas":         {FlatFee: dec("4"), CommissionRate: dec("0.0075")},
			"broadband":   {FlatFee: dec("10"), CommissionRate: dec("0.005")},
		},
		DefaultBillRule: BillFeeRule{FlatFee: dec("5"), CommissionRate: dec("0.005")},
		CommissionCap:   dec("100"),

		DelayTiers: []DelayTier{
			{UpTo: dec("5000"), Fee: dec("15")},
			{UpTo: dec("25000"), Fee: dec("30")},
			{Fee: dec("50")},
		},
		DelayDailyRate: dec("0.002"),

		CreditTiers: []CreditTier{
			{MinLoans: 0, Limit: dec("25000")},
			{MinLoans: 1, Limit: dec("50000")},
			{MinLoans: 3, Limit: dec("100000")},
			{MinLoans: 3, MinAverage: dec("20000"), Limit: dec("150000")},
			{MinLoans: 6, Limit: dec("200000")},
			{MinLoans: 6, MinAverage: dec("50000"), Limit: dec("300000")},
		},
		CreditLimitCap: dec("500000"),
	}
}
