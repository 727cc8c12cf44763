package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus values form a monotonic lifecycle:
// pending -> approved -> disbursed -> repaid, or pending -> rejected.
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanDisbursed LoanStatus = "disbursed"
	LoanRepaid    LoanStatus = "repaid"
)

// Loan represents a consumer loan and its amortization schedule.
type Loan struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Principal     decimal.Decimal `json:"principal"`
	AnnualRate    decimal.Decimal `json:"annual_rate"` // percent, e.g. 14.5
	TenureMonths  int             `json:"tenure_months"`
	EMIAmount     decimal.Decimal `json:"emi_amount"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        LoanStatus      `json:"status"`
	DisbursedAt   *time.Time      `json:"disbursed_at,omitempty"`
	Schedule      []ScheduleRow   `json:"schedule,omitempty"` // ordered by month index
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TotalDue is the full repayable amount including interest and any delay
// charges folded into the schedule.
func (l *Loan) TotalDue() decimal.Decimal {
	return l.Principal.Add(l.TotalInterest)
}
