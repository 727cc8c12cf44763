package handler

import (
	"net/http"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
)

type applyLoanRequest struct {
	Principal    decimal.Decimal `json:"principal"`
	AnnualRate   decimal.Decimal `json:"annual_rate"`
	TenureMonths int             `json:"tenure_months"`
}

// ApplyForLoan creates a pending loan application for the caller.
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req applyLoanRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	loan, err := h.svc.ApplyForLoan(r.Context(), userID, req.Principal, req.AnnualRate, req.TenureMonths)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ownedLoan loads the loan and enforces that the caller owns it.
func (h *Handler) ownedLoan(w http.ResponseWriter, r *http.Request) (*models.Loan, bool) {
	userID, ok := h.owner(w, r)
	if !ok {
		return nil, false
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return nil, false
	}
	loan, err := h.svc.Loan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if loan.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return loan, true
}

// GetLoan returns a loan with its repayment schedule.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// ListLoans returns the caller's loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	loans, err := h.svc.LoansForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loans})
}

// ApproveLoan moves a pending loan to approved and generates its schedule.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	loan, err := h.svc.ApproveLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// RejectLoan moves a pending loan to rejected.
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	loan, err := h.svc.RejectLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

type delayRequest struct {
	MonthIndex int `json:"month_index"`
	DelayDays  int `json:"delay_days"`
}

// RequestDelay pushes an installment's due date forward for a fee.
func (h *Handler) RequestDelay(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	var req delayRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	out, err := h.svc.RequestDelay(r.Context(), loan.ID, req.MonthIndex, req.DelayDays)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// DelayHistory lists a loan's delay requests, newest first.
func (h *Handler) DelayHistory(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	delays, err := h.svc.DelayHistory(r.Context(), loan.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"delays": delays})
}

// CreditProfile summarizes the caller's completed-loan history and the
// recommended credit ceiling derived from it.
func (h *Handler) CreditProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	profile, err := h.svc.CreditProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
