package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RowStatus tracks how much of an installment has been covered.
type RowStatus string

const (
	RowPending RowStatus = "pending"
	RowPartial RowStatus = "partial"
	RowPaid    RowStatus = "paid"
)

// MaxDelays is the lifetime cap on due-date pushes per installment.
const MaxDelays = 3

// ScheduleRow is one installment of a loan's amortization schedule.
type ScheduleRow struct {
	ID         int64           `json:"id"`
	LoanID     int64           `json:"loan_id"`
	MonthIndex int             `json:"month_index"` // 1-based
	DueDate    time.Time       `json:"due_date"`
	Amount     decimal.Decimal `json:"amount"`
	Principal  decimal.Decimal `json:"principal"`
	Interest   decimal.Decimal `json:"interest"`
	Balance    decimal.Decimal `json:"balance"` // remaining after this installment
	Status     RowStatus       `json:"status"`
	DelayCount int             `json:"delay_count"`
	CanDelay   bool            `json:"can_delay"`
}
