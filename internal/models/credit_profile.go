package models

import "github.com/shopspring/decimal"

// CreditProfile summarizes a user's repayment track record and the credit
// ceiling recommended from it.
type CreditProfile struct {
	CompletedLoans    int             `json:"completed_loans"`
	AverageLoanAmount decimal.Decimal `json:"average_loan_amount"`
	RecommendedLimit  decimal.Decimal `json:"recommended_limit"`
}
