package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTarget identifies what a payment intent settles.
type PaymentTarget string

const (
	TargetBill         PaymentTarget = "bill"
	TargetEMI          PaymentTarget = "emi"
	TargetDisbursement PaymentTarget = "disbursement"
)

// PaymentStatus values; success and failed are terminal.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentIntent drives a bill payment, EMI payment or loan disbursement
// from creation to a terminal state. Reference is globally unique and acts
// as the idempotency key: a repeated confirmation with the same reference
// must not apply effects twice.
type PaymentIntent struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	Target        PaymentTarget     `json:"target"`
	Amount        decimal.Decimal   `json:"amount"`
	Fee           decimal.Decimal   `json:"fee"`
	Reference     string            `json:"reference"`
	ExternalTxnID string            `json:"external_txn_id,omitempty"`
	Status        PaymentStatus     `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	AccountID     *int64            `json:"account_id,omitempty"`
	LoanID        *int64            `json:"loan_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Finalized reports whether the intent has reached a terminal state.
func (p *PaymentIntent) Finalized() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentFailed
}
