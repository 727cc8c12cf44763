package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvedLoan applies and approves a zero-rate loan so installment
// amounts come out round: 120000 over 12 months is exactly 10000 a month.
func approvedLoan(t *testing.T, svc *Service, userID int64) *models.Loan {
	t.Helper()
	ctx := context.Background()
	loan, err := svc.ApplyForLoan(ctx, userID, dec("120000"), dec("0"), 12)
	require.NoError(t, err)
	loan, err = svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	return loan
}

func TestLoanLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	loan, err := svc.ApplyForLoan(ctx, user.ID, dec("100000"), dec("12"), 12)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, loan.Status)

	loan, err = svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, loan.Status)
	require.Len(t, loan.Schedule, 12)
	assert.True(t, loan.EMIAmount.IsPositive())
	assert.True(t, loan.TotalInterest.IsPositive())
	assert.True(t, loan.TotalDue().Equal(loan.EMIAmount.Mul(dec("12"))))

	// Paying the EMI for the full tenure lands exactly on repaid.
	for i := 0; i < 12; i++ {
		loan, err = svc.RecordLoanPayment(ctx, loan.ID, loan.EMIAmount)
		require.NoError(t, err)
	}
	assert.Equal(t, models.LoanRepaid, loan.Status)
	assert.True(t, loan.PaidAmount.Equal(loan.TotalDue()))
	for _, row := range loan.Schedule {
		assert.Equal(t, models.RowPaid, row.Status)
	}
}

func TestFirstPaymentMarksDisbursed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	loan, err := svc.RecordLoanPayment(ctx, loan.ID, dec("10000"))
	require.NoError(t, err)
	assert.Equal(t, models.LoanDisbursed, loan.Status)
	assert.Equal(t, models.RowPaid, loan.Schedule[0].Status)
	assert.Equal(t, models.RowPending, loan.Schedule[1].Status)
}

func TestPartialPaymentAllocation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	loan, err := svc.RecordLoanPayment(ctx, loan.ID, dec("15000"))
	require.NoError(t, err)
	assert.Equal(t, models.RowPaid, loan.Schedule[0].Status)
	assert.Equal(t, models.RowPartial, loan.Schedule[1].Status)
	assert.Equal(t, models.RowPending, loan.Schedule[2].Status)
}

func TestPaymentCannotExceedTotalDue(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	_, err := svc.RecordLoanPayment(ctx, loan.ID, dec("120000.01"))
	require.Error(t, err)

	// The rejected payment left nothing behind.
	loan, err = svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.PaidAmount.IsZero())
	assert.Equal(t, models.LoanApproved, loan.Status)
}

func TestApproveRequiresPending(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	_, err := svc.ApproveLoan(ctx, loan.ID)
	assert.Error(t, err)

	_, err = svc.RejectLoan(ctx, loan.ID)
	assert.Error(t, err)
}

func TestPaymentsRejectedOnPendingLoan(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	loan, err := svc.ApplyForLoan(ctx, user.ID, dec("120000"), dec("0"), 12)
	require.NoError(t, err)

	_, err = svc.RecordLoanPayment(ctx, loan.ID, dec("10000"))
	assert.Error(t, err)
}

func TestRequestDelayCharges(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)
	originalDue := loan.Schedule[0].DueDate

	// 10000 installment, 2 days, no membership: 30 fee + 40 extra interest.
	req, err := svc.RequestDelay(ctx, loan.ID, 1, 2)
	require.NoError(t, err)
	assert.False(t, req.Waived)
	assert.True(t, req.Fee.Equal(dec("30")), "fee = %s", req.Fee)
	assert.True(t, req.ExtraInterest.Equal(dec("40")), "extra = %s", req.ExtraInterest)
	assert.True(t, req.TotalCharge.Equal(dec("70")))
	assert.Equal(t, originalDue, req.OldDueDate)
	assert.Equal(t, originalDue.AddDate(0, 0, 2), req.NewDueDate)

	// The charge is folded into the installment and the repayable total.
	loan, err = svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.Schedule[0].Amount.Equal(dec("10070")))
	assert.True(t, loan.TotalDue().Equal(dec("120070")))
	assert.Equal(t, 1, loan.Schedule[0].DelayCount)

	history, err := svc.DelayHistory(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DelayApproved, history[0].Status)
}

func TestRequestDelayLimit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	for i := 0; i < models.MaxDelays; i++ {
		_, err := svc.RequestDelay(ctx, loan.ID, 1, 1)
		require.NoError(t, err, "delay %d", i+1)
	}
	loan, err := svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxDelays, loan.Schedule[0].DelayCount)
	assert.False(t, loan.Schedule[0].CanDelay)

	_, err = svc.RequestDelay(ctx, loan.ID, 1, 1)
	assert.True(t, errors.Is(err, store.ErrDelayLimitExceeded))
}

func TestRequestDelayValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	_, err := svc.RequestDelay(ctx, loan.ID, 1, 0)
	assert.Error(t, err)
	_, err = svc.RequestDelay(ctx, loan.ID, 1, 3)
	assert.Error(t, err)
	_, err = svc.RequestDelay(ctx, loan.ID, 99, 1)
	assert.Error(t, err)
}

func TestRequestDelayOnSettledRow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	_, err := svc.RecordLoanPayment(ctx, loan.ID, dec("10000"))
	require.NoError(t, err)

	_, err = svc.RequestDelay(ctx, loan.ID, 1, 1)
	assert.True(t, errors.Is(err, store.ErrRowAlreadySettled))
}

func TestRequestDelayWaivedForFlexMembers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")
	loan := approvedLoan(t, svc, user.ID)

	_, err := svc.SubscribeFlex(ctx, user.ID, 3)
	require.NoError(t, err)

	req, err := svc.RequestDelay(ctx, loan.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, req.Waived)
	assert.True(t, req.TotalCharge.IsZero())

	// The due date still moves but the installment amount is untouched.
	loan, err = svc.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.Schedule[0].Amount.Equal(dec("10000")))
	assert.True(t, loan.TotalDue().Equal(dec("120000")))
}

type reminderCapture struct {
	penalties map[string]decimal.Decimal
	overdue   map[string]bool
}

func (r *reminderCapture) PaymentStatusChanged(string, string, *models.PaymentIntent) error {
	return nil
}

func (r *reminderCapture) SendPaymentReminder(to, _ string, _ time.Time, _, penalty decimal.Decimal, isOverdue bool) error {
	r.penalties[to] = penalty
	r.overdue[to] = isOverdue
	return nil
}

func TestOverdueReminderPenaltyWaivedForFlexMembers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice@example.com")
	bob := createUser(t, st, "bob@example.com")

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for _, id := range []int64{alice.ID, bob.ID} {
		loan := approvedLoan(t, svc, id)
		_, err := svc.RecordLoanPayment(ctx, loan.ID, dec("100"))
		require.NoError(t, err)
	}
	_, err := svc.SubscribeFlex(ctx, bob.ID, 3)
	require.NoError(t, err)

	// Five days past the first due date both loans are overdue, but only
	// the non-member's reminder quotes the late charge.
	now = now.AddDate(0, 1, 5)
	rec := &reminderCapture{
		penalties: make(map[string]decimal.Decimal),
		overdue:   make(map[string]bool),
	}
	svc.notifier = rec

	assert.Equal(t, 2, svc.SendDueReminders(ctx, 3*24*time.Hour))

	require.Contains(t, rec.penalties, "alice@example.com")
	require.Contains(t, rec.penalties, "bob@example.com")
	assert.True(t, rec.overdue["alice@example.com"])
	assert.True(t, rec.overdue["bob@example.com"])
	// 10000 installment one day late: 30 tier fee + 20 extra interest.
	assert.True(t, rec.penalties["alice@example.com"].Equal(dec("50")),
		"penalty = %s", rec.penalties["alice@example.com"])
	assert.True(t, rec.penalties["bob@example.com"].IsZero(),
		"penalty = %s", rec.penalties["bob@example.com"])
}

func TestCreditProfile(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := createUser(t, st, "alice@example.com")

	profile, err := svc.CreditProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, profile.CompletedLoans)
	assert.True(t, profile.RecommendedLimit.Equal(dec("25000")))

	loan := approvedLoan(t, svc, user.ID)
	for i := 0; i < 12; i++ {
		_, err = svc.RecordLoanPayment(ctx, loan.ID, dec("10000"))
		require.NoError(t, err)
	}

	profile, err = svc.CreditProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CompletedLoans)
	assert.True(t, profile.AverageLoanAmount.Equal(dec("120000")))
	assert.True(t, profile.RecommendedLimit.Equal(dec("50000")))
}
