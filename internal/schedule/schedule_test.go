package schedule

import (
	"testing"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGenerate(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	rows, emi, err := Generate(dec("100000"), dec("12"), 12, start)
	require.NoError(t, err)
	require.Len(t, rows, 12)
	assert.True(t, emi.IsPositive())

	for i, row := range rows {
		assert.Equal(t, i+1, row.MonthIndex)
		assert.Equal(t, start.AddDate(0, i+1, 0), row.DueDate)
		assert.True(t, row.Amount.Equal(emi))
		assert.True(t, row.Principal.Add(row.Interest).Equal(emi))
		assert.Equal(t, models.RowPending, row.Status)
		assert.True(t, row.CanDelay)
	}

	// Interest declines as the balance amortizes.
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].Interest.LessThan(rows[i-1].Interest),
			"interest should decrease, month %d", rows[i].MonthIndex)
	}

	// Residual on the final row stays within rounding noise.
	final := rows[len(rows)-1].Balance
	assert.True(t, final.Abs().LessThan(dec("1")), "final balance = %s", final)
}

func TestGenerateZeroRate(t *testing.T) {
	rows, emi, err := Generate(dec("1200"), decimal.Zero, 12, time.Now())
	require.NoError(t, err)
	assert.True(t, emi.Equal(dec("100")))
	for _, row := range rows {
		assert.True(t, row.Interest.IsZero())
	}
	assert.True(t, rows[len(rows)-1].Balance.IsZero())
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	_, _, err := Generate(dec("1000"), dec("12"), 0, time.Now())
	assert.Error(t, err)
	_, _, err = Generate(decimal.Zero, dec("12"), 12, time.Now())
	assert.Error(t, err)
	_, _, err = Generate(dec("1000"), dec("-1"), 12, time.Now())
	assert.Error(t, err)
}

func TestTotalInterestMatchesFullRepayment(t *testing.T) {
	principal := dec("100000")
	_, emi, err := Generate(principal, dec("18"), 24, time.Now())
	require.NoError(t, err)

	total := TotalInterest(emi, principal, 24)
	assert.True(t, total.IsPositive())

	// Paying the EMI for the full tenure settles principal plus interest
	// exactly, with no residual cent.
	paid := emi.Mul(dec("24"))
	assert.True(t, paid.Equal(principal.Add(total)))
}

func TestAllocate(t *testing.T) {
	mkRows := func() []models.ScheduleRow {
		return []models.ScheduleRow{
			{MonthIndex: 1, Amount: dec("100")},
			{MonthIndex: 2, Amount: dec("100")},
			{MonthIndex: 3, Amount: dec("100")},
		}
	}

	rows := mkRows()
	Allocate(rows, dec("150"))
	assert.Equal(t, models.RowPaid, rows[0].Status)
	assert.Equal(t, models.RowPartial, rows[1].Status)
	assert.Equal(t, models.RowPending, rows[2].Status)

	rows = mkRows()
	Allocate(rows, decimal.Zero)
	for _, row := range rows {
		assert.Equal(t, models.RowPending, row.Status)
	}

	rows = mkRows()
	Allocate(rows, dec("300"))
	for _, row := range rows {
		assert.Equal(t, models.RowPaid, row.Status)
	}

	// Exactly one installment: first row paid, second untouched.
	rows = mkRows()
	Allocate(rows, dec("100"))
	assert.Equal(t, models.RowPaid, rows[0].Status)
	assert.Equal(t, models.RowPending, rows[1].Status)
}
