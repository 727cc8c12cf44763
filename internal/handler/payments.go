package handler

import (
	"net/http"

	"github.com/credana/lending-service/internal/models"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type createPaymentRequest struct {
	Target    models.PaymentTarget `json:"target"`
	Amount    decimal.Decimal      `json:"amount"`
	AccountID *int64               `json:"account_id"`
	LoanID    *int64               `json:"loan_id"`
	Metadata  map[string]string    `json:"metadata"`
}

// CreatePayment opens a payment intent and returns the instructions to
// hand to the payment network.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	intent, instructions, err := h.svc.CreatePayment(r.Context(), userID, req.Target, req.Amount, req.AccountID, req.LoanID, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"intent":       intent,
		"instructions": instructions,
	})
}

type confirmPaymentRequest struct {
	Success       bool   `json:"success"`
	ExternalTxnID string `json:"external_txn_id"`
	Reason        string `json:"reason"`
}

// ConfirmPayment finalizes a payment intent with the network's outcome.
// Retries with the same outcome are idempotent.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	var req confirmPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	intent, err := h.svc.Confirm(r.Context(), reference, req.Success, req.ExternalTxnID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type completeDisbursementRequest struct {
	ExternalTxnID string `json:"external_txn_id"`
	UTR           string `json:"utr"`
}

// CompleteDisbursement finalizes a disbursement with the bank's UTR.
func (h *Handler) CompleteDisbursement(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	var req completeDisbursementRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	intent, err := h.svc.CompleteDisbursement(r.Context(), reference, req.ExternalTxnID, req.UTR)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// PaymentStatus returns a payment intent by its reference.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	intent, err := h.svc.PaymentStatus(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if intent.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type subscribeRequest struct {
	Months int `json:"months"`
}

// SubscribeFlex starts a flex membership for the caller.
func (h *Handler) SubscribeFlex(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := h.svc.SubscribeFlex(r.Context(), userID, req.Months)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// MembershipStatus reports whether the caller's membership is currently valid.
func (h *Handler) MembershipStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	active, err := h.svc.MembershipActive(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// CancelMembership cancels the caller's active membership.
func (h *Handler) CancelMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.svc.CancelMembership(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
