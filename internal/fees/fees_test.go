package fees

import (
	"testing"

	"github.com/credana/lending-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBillFeeKnownCategory(t *testing.T) {
	tables := config.DefaultFeeTables()

	quote := BillFee(tables, "mobile", dec("1000"))
	assert.True(t, quote.ConvenienceFee.Equal(dec("2")), "fee = %s", quote.ConvenienceFee)
	assert.True(t, quote.Commission.Equal(dec("10")), "commission = %s", quote.Commission)

	quote = BillFee(tables, "electricity", dec("2000"))
	assert.True(t, quote.ConvenienceFee.Equal(dec("5")))
	assert.True(t, quote.Commission.Equal(dec("10")))
}

func TestBillFeeUnknownCategoryFallsBack(t *testing.T) {
	tables := config.DefaultFeeTables()

	quote := BillFee(tables, "landline", dec("1000"))
	assert.True(t, quote.ConvenienceFee.Equal(tables.DefaultBillRule.FlatFee))
	assert.True(t, quote.Commission.Equal(dec("5")))
}

func TestBillFeeCommissionCap(t *testing.T) {
	tables := config.DefaultFeeTables()

	// 1% of 50000 is 500, well past the cap.
	quote := BillFee(tables, "mobile", dec("50000"))
	assert.True(t, quote.Commission.Equal(tables.CommissionCap), "commission = %s", quote.Commission)
}

func TestDelayCharge(t *testing.T) {
	tables := config.DefaultFeeTables()

	// 10000 installment, 2 days: 30 tier fee + 10000*0.002*2 interest.
	quote := DelayCharge(tables, dec("10000"), 2, false)
	assert.True(t, quote.Fee.Equal(dec("30")), "fee = %s", quote.Fee)
	assert.True(t, quote.ExtraInterest.Equal(dec("40")), "extra = %s", quote.ExtraInterest)
	assert.True(t, quote.Total.Equal(dec("70")), "total = %s", quote.Total)
	assert.False(t, quote.Waived)
}

func TestDelayChargeTierBoundaries(t *testing.T) {
	tables := config.DefaultFeeTables()

	cases := []struct {
		installment string
		fee         string
	}{
		{"1000", "15"},
		{"5000", "15"},
		{"5000.01", "30"},
		{"25000", "30"},
		{"25000.01", "50"},
		{"999999", "50"},
	}
	for _, tc := range cases {
		quote := DelayCharge(tables, dec(tc.installment), 1, false)
		assert.True(t, quote.Fee.Equal(dec(tc.fee)), "installment %s: fee = %s, want %s", tc.installment, quote.Fee, tc.fee)
	}
}

func TestDelayChargeWaivedForMembers(t *testing.T) {
	tables := config.DefaultFeeTables()

	quote := DelayCharge(tables, dec("10000"), 2, true)
	assert.True(t, quote.Waived)
	assert.True(t, quote.Fee.IsZero())
	assert.True(t, quote.ExtraInterest.IsZero())
	assert.True(t, quote.Total.IsZero())
}

func TestDelayChargeDeterministic(t *testing.T) {
	tables := config.DefaultFeeTables()

	first := DelayCharge(tables, dec("12345.67"), 2, false)
	second := DelayCharge(tables, dec("12345.67"), 2, false)
	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, first.Fee.Equal(second.Fee))
	assert.True(t, first.ExtraInterest.Equal(second.ExtraInterest))
}

func TestCreditLimitTier(t *testing.T) {
	tables := config.DefaultFeeTables()

	cases := []struct {
		loans   int
		average string
		limit   string
	}{
		{0, "0", "25000"},
		{1, "5000", "50000"},
		{3, "10000", "100000"},
		{3, "20000", "150000"},
		{6, "30000", "200000"},
		{6, "50000", "300000"},
		{10, "100000", "300000"},
	}
	for _, tc := range cases {
		limit := CreditLimitTier(tables, tc.loans, dec(tc.average))
		assert.True(t, limit.Equal(dec(tc.limit)), "%d loans avg %s: limit = %s, want %s", tc.loans, tc.average, limit, tc.limit)
	}
}

func TestCreditLimitTierCap(t *testing.T) {
	tables := config.DefaultFeeTables()
	tables.CreditTiers = append(tables.CreditTiers, config.CreditTier{MinLoans: 10, Limit: dec("900000")})

	limit := CreditLimitTier(tables, 12, dec("100000"))
	assert.True(t, limit.Equal(tables.CreditLimitCap), "limit = %s", limit)
}
