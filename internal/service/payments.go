package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/credana/lending-service/internal/fees"
	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/credana/lending-service/internal/utils"
	"github.com/shopspring/decimal"
)

// PaymentInstructions is the externally-facing data a caller needs to
// present or redirect to a payment network. The core never contacts the
// network itself.
type PaymentInstructions struct {
	Reference     string          `json:"reference"`
	PayableAmount decimal.Decimal `json:"payable_amount"`
	Payee         string          `json:"payee"`
	Signature     string          `json:"signature"`
}

func referencePrefix(target models.PaymentTarget) string {
	switch target {
	case models.TargetBill:
		return "BIL"
	case models.TargetEMI:
		return "EMI"
	case models.TargetDisbursement:
		return "DSB"
	}
	return "PAY"
}

// CreatePayment opens a payment intent in pending status and returns the
// instructions to hand to the payment network. The generated reference is
// the idempotency key for the whole lifecycle.
func (s *Service) CreatePayment(ctx context.Context, userID int64, target models.PaymentTarget,
	amount decimal.Decimal, accountID, loanID *int64, metadata map[string]string) (*models.PaymentIntent, *PaymentInstructions, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	fee := decimal.Zero
	switch target {
	case models.TargetBill:
		if accountID == nil {
			return nil, nil, fmt.Errorf("bill payment requires a paying account")
		}
		quote := fees.BillFee(s.cfg.Fees, metadata["category"], amount)
		fee = quote.ConvenienceFee
		metadata["commission"] = quote.Commission.StringFixed(2)
	case models.TargetEMI:
		if accountID == nil || loanID == nil {
			return nil, nil, fmt.Errorf("EMI payment requires a paying account and a loan")
		}
	case models.TargetDisbursement:
		if loanID == nil {
			return nil, nil, fmt.Errorf("disbursement requires a loan")
		}
	default:
		return nil, nil, fmt.Errorf("unknown payment target %q", target)
	}

	intent := &models.PaymentIntent{
		UserID:    userID,
		Target:    target,
		Amount:    amount,
		Fee:       fee,
		Reference: utils.NewReference(referencePrefix(target)),
		Status:    models.PaymentPending,
		AccountID: accountID,
		LoanID:    loanID,
		Metadata:  metadata,
	}
	if err := s.store.InTx(ctx, func(st store.Store) error {
		return st.CreateIntent(ctx, intent)
	}); err != nil {
		return nil, nil, err
	}
	s.log.Infof("Payment intent %s created: %s %s for user %d", intent.Reference, target, amount.StringFixed(2), userID)
	s.notifyPayment(ctx, intent)

	payable := amount.Add(fee)
	instructions := &PaymentInstructions{
		Reference:     intent.Reference,
		PayableAmount: payable,
		Payee:         s.cfg.CollectionVPA,
		Signature:     utils.SignPayload(s.cfg.HMACSecret, intent.Reference, payable.StringFixed(2)),
	}
	return intent, instructions, nil
}

// Confirm finalizes a payment intent with the outcome asserted by the
// external network. Confirming an intent already finalized with the same
// outcome returns the stored result without reapplying effects; a
// conflicting outcome fails with AlreadyFinalized. On success the
// target-kind effects are applied in the same unit of work that flips the
// status, so a crash cannot leave effects without a terminal intent.
func (s *Service) Confirm(ctx context.Context, reference string, success bool, externalTxnID, reason string) (*models.PaymentIntent, error) {
	return s.confirm(ctx, reference, success, externalTxnID, reason, nil)
}

func (s *Service) confirm(ctx context.Context, reference string, success bool, externalTxnID, reason string, metaPatch map[string]string) (*models.PaymentIntent, error) {
	var out *models.PaymentIntent
	applied := false
	err := s.store.InTx(ctx, func(st store.Store) error {
		intent, err := st.IntentByReference(ctx, reference, true)
		if err != nil {
			return err
		}
		if intent.Finalized() {
			requested := models.PaymentFailed
			if success {
				requested = models.PaymentSuccess
			}
			if intent.Status == requested {
				out = intent
				return nil
			}
			return fmt.Errorf("intent %s is already %s: %w", reference, intent.Status, store.ErrAlreadyFinalized)
		}

		if !success {
			intent.Status = models.PaymentFailed
			intent.FailureReason = reason
		} else {
			if err := s.applyPaymentEffects(ctx, st, intent); err != nil {
				return err
			}
			intent.Status = models.PaymentSuccess
		}
		intent.ExternalTxnID = externalTxnID
		for k, v := range metaPatch {
			if intent.Metadata == nil {
				intent.Metadata = map[string]string{}
			}
			intent.Metadata[k] = v
		}
		if err := st.UpdateIntent(ctx, intent); err != nil {
			return err
		}
		out = intent
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.log.Infof("Payment %s finalized as %s", reference, out.Status)
		s.notifyPayment(ctx, out)
	}
	return out, nil
}

// applyPaymentEffects performs the success-path balance and schedule
// mutations for the intent's target kind.
func (s *Service) applyPaymentEffects(ctx context.Context, st store.Store, intent *models.PaymentIntent) error {
	switch intent.Target {
	case models.TargetBill:
		acc, err := st.AccountByID(ctx, *intent.AccountID, true)
		if err != nil {
			return err
		}
		total := intent.Amount.Add(intent.Fee)
		_, err = appendCashTxn(ctx, st, acc, total.Neg(), models.TxnDebit, intent.Fee,
			"bill payment "+intent.Metadata["category"], intent.Reference, nil)
		return err

	case models.TargetEMI:
		acc, err := st.AccountByID(ctx, *intent.AccountID, true)
		if err != nil {
			return err
		}
		if _, err := appendCashTxn(ctx, st, acc, intent.Amount.Neg(), models.TxnDebit, intent.Fee,
			"EMI payment", intent.Reference, nil); err != nil {
			return err
		}
		_, err = s.applyLoanPayment(ctx, st, *intent.LoanID, intent.Amount)
		return err

	case models.TargetDisbursement:
		loan, err := st.LoanByID(ctx, *intent.LoanID, true)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanApproved && loan.Status != models.LoanDisbursed {
			return fmt.Errorf("loan %d is %s, cannot disburse", loan.ID, loan.Status)
		}
		if loan.DisbursedAt != nil {
			return fmt.Errorf("loan %d was already disbursed at %s", loan.ID, loan.DisbursedAt.Format("2006-01-02"))
		}

		acc, err := st.AccountByOwner(ctx, loan.UserID, models.AccountCash, false)
		if errors.Is(err, store.ErrAccountNotFound) {
			acc = s.newAccount(loan.UserID, models.AccountCash)
			if err := st.CreateAccount(ctx, acc); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		acc, err = st.AccountByID(ctx, acc.ID, true)
		if err != nil {
			return err
		}
		if _, err := appendCashTxn(ctx, st, acc, intent.Amount, models.TxnCredit, decimal.Zero,
			"loan disbursement", intent.Reference, nil); err != nil {
			return err
		}

		now := s.now()
		loan.Status = models.LoanDisbursed
		loan.DisbursedAt = &now
		return st.UpdateLoan(ctx, loan)
	}
	return fmt.Errorf("unknown payment target %q", intent.Target)
}

// CompleteDisbursement is the admin-driven, stricter confirmation variant
// for disbursements: the bank confirmation reference must match the UTR
// format contract before the intent finalizes.
func (s *Service) CompleteDisbursement(ctx context.Context, reference, externalTxnID, utr string) (*models.PaymentIntent, error) {
	if !utils.ValidUTR(utr) {
		return nil, fmt.Errorf("utr %q: %w", utr, store.ErrInvalidReferenceFormat)
	}
	return s.confirm(ctx, reference, true, externalTxnID, "", map[string]string{"utr": utr})
}

// PaymentStatus looks up a payment intent by its reference.
func (s *Service) PaymentStatus(ctx context.Context, reference string) (*models.PaymentIntent, error) {
	return s.store.IntentByReference(ctx, reference, false)
}
