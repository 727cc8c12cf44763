package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DelayStatus of a delay request. Requests are auto-approved; the pending
// and rejected states exist for storage compatibility with manual review.
type DelayStatus string

const (
	DelayPending  DelayStatus = "pending"
	DelayApproved DelayStatus = "approved"
	DelayRejected DelayStatus = "rejected"
)

// DelayRequest records a due-date push for one installment together with
// the charge applied for it.
type DelayRequest struct {
	ID            int64           `json:"id"`
	LoanID        int64           `json:"loan_id"`
	MonthIndex    int             `json:"month_index"`
	OldDueDate    time.Time       `json:"old_due_date"`
	NewDueDate    time.Time       `json:"new_due_date"`
	Fee           decimal.Decimal `json:"fee"`
	ExtraInterest decimal.Decimal `json:"extra_interest"`
	TotalCharge   decimal.Decimal `json:"total_charge"`
	Waived        bool            `json:"waived"`
	Status        DelayStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}
