package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes the two account variants owned by a user.
type AccountKind string

const (
	AccountCash   AccountKind = "cash"
	AccountCredit AccountKind = "credit"
)

// Account represents either a spendable cash balance or a revolving credit
// line, keyed by (user, kind). The credit fields are zero for cash accounts.
type Account struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Kind              AccountKind     `json:"kind"`
	Balance           decimal.Decimal `json:"balance"`
	TotalLimit        decimal.Decimal `json:"total_limit"`
	UsedLimit         decimal.Decimal `json:"used_limit"`
	ProcessingFeeRate decimal.Decimal `json:"processing_fee_rate"`
	DailyInterestRate decimal.Decimal `json:"daily_interest_rate"`
	LastAccruedAt     *time.Time      `json:"last_accrued_at,omitempty"` // prevents duplicate daily accrual
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AvailableCredit returns the headroom left on a credit account.
func (a *Account) AvailableCredit() decimal.Decimal {
	return a.TotalLimit.Sub(a.UsedLimit)
}
