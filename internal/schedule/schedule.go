// Package schedule generates and allocates loan amortization schedules.
package schedule

import (
	"fmt"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
)

var (
	one            = decimal.NewFromInt(1)
	monthsPerYear  = decimal.NewFromInt(12)
	percentDivisor = decimal.NewFromInt(100)
)

// Generate produces a standard amortization schedule. The EMI comes from
// the annuity formula at annualRate/12/100 per month; each row's interest
// is the remaining balance times the monthly rate, the principal component
// is the EMI minus interest, and due dates fall monthly after startDate.
// The returned EMI is rounded to two decimal places, so the final row may
// carry a residual balance within a cent.
func Generate(principal, annualRate decimal.Decimal, tenureMonths int, startDate time.Time) ([]models.ScheduleRow, decimal.Decimal, error) {
	if tenureMonths <= 0 {
		return nil, decimal.Zero, fmt.Errorf("tenure must be positive, got %d", tenureMonths)
	}
	if !principal.IsPositive() {
		return nil, decimal.Zero, fmt.Errorf("principal must be positive, got %s", principal)
	}
	if annualRate.IsNegative() {
		return nil, decimal.Zero, fmt.Errorf("annual rate must not be negative, got %s", annualRate)
	}

	n := decimal.NewFromInt(int64(tenureMonths))
	monthlyRate := annualRate.Div(monthsPerYear).Div(percentDivisor)

	var emi decimal.Decimal
	if monthlyRate.IsZero() {
		emi = principal.Div(n).Round(2)
	} else {
		pow := one.Add(monthlyRate).Pow(n)
		emi = principal.Mul(monthlyRate).Mul(pow).Div(pow.Sub(one)).Round(2)
	}

	rows := make([]models.ScheduleRow, 0, tenureMonths)
	balance := principal
	for m := 1; m <= tenureMonths; m++ {
		interest := balance.Mul(monthlyRate).Round(2)
		principalComp := emi.Sub(interest)
		balance = balance.Sub(principalComp)
		rows = append(rows, models.ScheduleRow{
			MonthIndex: m,
			DueDate:    startDate.AddDate(0, m, 0),
			Amount:     emi,
			Principal:  principalComp,
			Interest:   interest,
			Balance:    balance,
			Status:     models.RowPending,
			DelayCount: 0,
			CanDelay:   true,
		})
	}
	return rows, emi, nil
}

// TotalInterest is the interest implied by paying the EMI for the full
// tenure. Keeping this consistent with EMI x tenure makes the repaid check
// exact when every installment is paid in full.
func TotalInterest(emi, principal decimal.Decimal, tenureMonths int) decimal.Decimal {
	return emi.Mul(decimal.NewFromInt(int64(tenureMonths))).Sub(principal)
}

// Allocate derives per-row statuses by walking rows in order and spending
// the cumulative paid total until exhausted. A row is paid only when the
// running total covers its full amount.
func Allocate(rows []models.ScheduleRow, totalPaid decimal.Decimal) {
	remaining := totalPaid
	for i := range rows {
		switch {
		case remaining.GreaterThanOrEqual(rows[i].Amount):
			rows[i].Status = models.RowPaid
			remaining = remaining.Sub(rows[i].Amount)
		case remaining.IsPositive():
			rows[i].Status = models.RowPartial
			remaining = decimal.Zero
		default:
			rows[i].Status = models.RowPending
		}
	}
}
