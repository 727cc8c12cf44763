package handler

import (
	"net/http"
	"strconv"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	Kind models.AccountKind `json:"kind"`
}

// CreateAccount returns the caller's account of the requested kind,
// creating it on first access.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Kind != models.AccountCash && req.Kind != models.AccountCredit {
		http.Error(w, "kind must be cash or credit", http.StatusBadRequest)
		return
	}
	acc, err := h.svc.GetOrCreateAccount(r.Context(), userID, req.Kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// ownedAccount loads the account and enforces that the caller owns it.
func (h *Handler) ownedAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	userID, ok := h.owner(w, r)
	if !ok {
		return nil, false
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return nil, false
	}
	acc, err := h.svc.AccountSnapshot(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if acc.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return acc, true
}

// GetAccount returns an account snapshot.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GetTransactions pages through an account's ledger, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txns, err := h.svc.History(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

type amountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

// Deposit credits a cash account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.svc.Credit(r.Context(), acc.ID, req.Amount, req.Description, req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Withdraw debits a cash account.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.svc.Debit(r.Context(), acc.ID, req.Amount, req.Description, req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

type transferRequest struct {
	ToUserID    int64           `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Transfer moves money from the caller's cash account to another user.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reference, err := h.svc.Transfer(r.Context(), acc.ID, req.ToUserID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reference": reference})
}

// Purchase spends against the caller's credit line.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.svc.UseCredit(r.Context(), acc.ID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// RepayCredit pays down the caller's credit line.
func (h *Handler) RepayCredit(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.svc.ApplyCreditPayment(r.Context(), acc.ID, req.Amount, req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}
