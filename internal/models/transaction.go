package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TxnCredit      TransactionKind = "credit"
	TxnDebit       TransactionKind = "debit"
	TxnTransferOut TransactionKind = "transfer_out"
	TxnTransferIn  TransactionKind = "transfer_in"
	TxnPurchase    TransactionKind = "purchase" // credit-line spend
	TxnPayment     TransactionKind = "payment"  // credit-line repayment
	TxnInterest    TransactionKind = "interest" // daily credit-line interest
)

// LedgerTransaction is an immutable record of a balance-affecting event.
// Every account mutation writes exactly one of these in the same unit of
// work, so the owning account's balance is always reconstructible as the
// signed sum of its transactions.
type LedgerTransaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	Kind           TransactionKind `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	CounterpartyID *int64          `json:"counterparty_id,omitempty"`
	Reference      string          `json:"reference"`
	Description    string          `json:"description"`
	Status         string          `json:"status"` // always "completed" once written
	CreatedAt      time.Time       `json:"created_at"`
}

// Signed returns the transaction's effect on the owning account's running
// figure: balance for cash accounts, used limit for credit accounts. A
// purchase moves the used limit by amount plus fee; the fee on a debit is
// already folded into the amount and recorded separately for reporting.
func (t *LedgerTransaction) Signed() decimal.Decimal {
	switch t.Kind {
	case TxnCredit, TxnTransferIn:
		return t.Amount
	case TxnDebit, TxnTransferOut:
		return t.Amount.Neg()
	case TxnPurchase:
		return t.Amount.Add(t.Fee)
	case TxnInterest:
		return t.Amount
	case TxnPayment:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
