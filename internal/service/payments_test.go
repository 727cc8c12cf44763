package service

import (
	"context"
	"errors"
	"testing"

	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/credana/lending-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundedCashAccount(t *testing.T, svc *Service, userID int64, amount string) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := svc.GetOrCreateAccount(ctx, userID, models.AccountCash)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acc.ID, dec(amount), "top up", "")
	require.NoError(t, err)
	acc, err = svc.AccountSnapshot(ctx, acc.ID)
	require.NoError(t, err)
	return acc
}

func TestBillPaymentLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "1000")

	intent, instructions, err := svc.CreatePayment(ctx, user.ID, models.TargetBill,
		dec("500"), &acc.ID, nil, map[string]string{"category": "mobile"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, intent.Status)
	assert.True(t, intent.Fee.Equal(dec("2")), "fee = %s", intent.Fee)
	assert.Equal(t, "5.00", intent.Metadata["commission"])

	assert.Equal(t, intent.Reference, instructions.Reference)
	assert.True(t, instructions.PayableAmount.Equal(dec("502")))
	assert.Equal(t, "credana@upi", instructions.Payee)
	assert.True(t, utils.VerifyPayload("test-hmac-secret", instructions.Signature,
		instructions.Reference, instructions.PayableAmount.StringFixed(2)))

	confirmed, err := svc.Confirm(ctx, intent.Reference, true, "UPI123456", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, confirmed.Status)
	assert.Equal(t, "UPI123456", confirmed.ExternalTxnID)

	acc, err = svc.AccountSnapshot(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("498")), "balance = %s", acc.Balance)
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "1000")

	intent, _, err := svc.CreatePayment(ctx, user.ID, models.TargetBill,
		dec("500"), &acc.ID, nil, map[string]string{"category": "mobile"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, intent.Reference, true, "UPI123456", "")
	require.NoError(t, err)

	// Retrying with the same outcome returns the stored result and does
	// not debit again.
	again, err := svc.Confirm(ctx, intent.Reference, true, "UPI123456", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, again.Status)

	acc, err = svc.AccountSnapshot(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("498")), "second confirm must not double-debit, balance = %s", acc.Balance)

	// A conflicting outcome is rejected.
	_, err = svc.Confirm(ctx, intent.Reference, false, "", "bank reversal")
	assert.True(t, errors.Is(err, store.ErrAlreadyFinalized))
}

func TestConfirmFailureLeavesBalanceUntouched(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "1000")

	intent, _, err := svc.CreatePayment(ctx, user.ID, models.TargetBill,
		dec("500"), &acc.ID, nil, map[string]string{"category": "dth"})
	require.NoError(t, err)

	failed, err := svc.Confirm(ctx, intent.Reference, false, "", "declined by bank")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.Status)
	assert.Equal(t, "declined by bank", failed.FailureReason)

	acc, err = svc.AccountSnapshot(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("1000")))
}

func TestConfirmInsufficientFundsKeepsIntentPending(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "100")

	intent, _, err := svc.CreatePayment(ctx, user.ID, models.TargetBill,
		dec("500"), &acc.ID, nil, map[string]string{"category": "mobile"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, intent.Reference, true, "UPI123456", "")
	assert.True(t, errors.Is(err, store.ErrInsufficientFunds))

	// The whole unit of work rolled back: intent still pending, retryable.
	stored, err := svc.PaymentStatus(ctx, intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestConfirmUnknownReference(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Confirm(context.Background(), "PAY-DOESNOTEXIST", true, "", "")
	assert.True(t, errors.Is(err, store.ErrIntentNotFound))
}

func TestEMIPaymentConfirm(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "20000")
	loan := approvedLoan(t, svc, user.ID)

	intent, _, err := svc.CreatePayment(ctx, user.ID, models.TargetEMI,
		dec("10000"), &acc.ID, &loan.ID, nil)
	require.NoError(t, err)
	assert.True(t, intent.Fee.IsZero())

	_, err = svc.Confirm(ctx, intent.Reference, true, "UPI777", "")
	require.NoError(t, err)

	acc, err = svc.AccountSnapshot(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("10000")))

	loan, err = svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.PaidAmount.Equal(dec("10000")))
	assert.Equal(t, models.RowPaid, loan.Schedule[0].Status)
}

func TestDisbursementFlow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	intent, _, err := svc.CreatePayment(ctx, user.ID, models.TargetDisbursement,
		loan.Principal, nil, &loan.ID, nil)
	require.NoError(t, err)

	// A malformed bank reference is rejected before anything happens.
	_, err = svc.CompleteDisbursement(ctx, intent.Reference, "TXN1", "bad utr!")
	assert.True(t, errors.Is(err, store.ErrInvalidReferenceFormat))
	stored, err := svc.PaymentStatus(ctx, intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)

	done, err := svc.CompleteDisbursement(ctx, intent.Reference, "TXN1", "UTR20260301ABCD")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, done.Status)
	assert.Equal(t, "UTR20260301ABCD", done.Metadata["utr"])

	// The borrower's wallet was created and funded, the loan stamped.
	acc, err := st.AccountByOwner(ctx, user.ID, models.AccountCash, false)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(loan.Principal))

	loan, err = svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanDisbursed, loan.Status)
	require.NotNil(t, loan.DisbursedAt)

	// A second disbursement attempt against the same loan fails.
	second, _, err := svc.CreatePayment(ctx, user.ID, models.TargetDisbursement,
		loan.Principal, nil, &loan.ID, nil)
	require.NoError(t, err)
	_, err = svc.CompleteDisbursement(ctx, second.Reference, "TXN2", "UTR20260301ABCE")
	assert.Error(t, err)
}

func TestCreatePaymentValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	acc := fundedCashAccount(t, svc, user.ID, "1000")

	_, _, err := svc.CreatePayment(ctx, user.ID, models.TargetBill, dec("0"), &acc.ID, nil, nil)
	assert.Error(t, err)

	_, _, err = svc.CreatePayment(ctx, user.ID, models.TargetBill, dec("100"), nil, nil, nil)
	assert.Error(t, err)

	_, _, err = svc.CreatePayment(ctx, user.ID, models.TargetEMI, dec("100"), &acc.ID, nil, nil)
	assert.Error(t, err)

	_, _, err = svc.CreatePayment(ctx, user.ID, models.TargetDisbursement, dec("100"), nil, nil, nil)
	assert.Error(t, err)

	_, _, err = svc.CreatePayment(ctx, user.ID, "refund", dec("100"), &acc.ID, nil, nil)
	assert.Error(t, err)
}
