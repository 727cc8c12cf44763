package service

import (
	"context"
	"fmt"
	"time"

	"github.com/credana/lending-service/internal/fees"
	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/schedule"
	"github.com/credana/lending-service/internal/store"
	"github.com/shopspring/decimal"
)

// ApplyForLoan creates a loan application in pending status. When no
// annual rate is supplied the benchmark feed prices the loan, falling back
// to the configured default if the feed is unreachable.
func (s *Service) ApplyForLoan(ctx context.Context, userID int64, principal, annualRate decimal.Decimal, tenureMonths int) (*models.Loan, error) {
	if !principal.IsPositive() {
		return nil, fmt.Errorf("principal must be positive, got %s", principal)
	}
	if tenureMonths <= 0 {
		return nil, fmt.Errorf("tenure must be positive, got %d", tenureMonths)
	}
	if annualRate.IsZero() {
		annualRate = s.cfg.DefaultAnnualRate
		if s.rates != nil {
			rate, err := s.rates.BaseRate()
			if err != nil {
				s.log.Warnf("Rate feed unavailable, using default rate %s: %v", annualRate, err)
			} else {
				annualRate = rate
			}
		}
	}
	loan := &models.Loan{
		UserID:        userID,
		Principal:     principal,
		AnnualRate:    annualRate,
		TenureMonths:  tenureMonths,
		EMIAmount:     decimal.Zero,
		TotalInterest: decimal.Zero,
		PaidAmount:    decimal.Zero,
		Status:        models.LoanPending,
	}
	if err := s.store.InTx(ctx, func(st store.Store) error {
		return st.CreateLoan(ctx, loan)
	}); err != nil {
		return nil, err
	}
	s.log.Infof("Loan application %d created for user %d: %s over %d months at %s%%",
		loan.ID, userID, principal.StringFixed(2), tenureMonths, annualRate.StringFixed(2))
	return loan, nil
}

// ApproveLoan moves a pending loan to approved and generates its
// amortization schedule starting from the approval date.
func (s *Service) ApproveLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	var out *models.Loan
	err := s.store.InTx(ctx, func(st store.Store) error {
		loan, err := st.LoanByID(ctx, loanID, true)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return fmt.Errorf("loan %d is %s, only pending loans can be approved", loanID, loan.Status)
		}
		rows, emi, err := schedule.Generate(loan.Principal, loan.AnnualRate, loan.TenureMonths, s.now())
		if err != nil {
			return err
		}
		if err := st.ReplaceSchedule(ctx, loanID, rows); err != nil {
			return err
		}
		loan.Schedule = rows
		loan.EMIAmount = emi
		loan.TotalInterest = schedule.TotalInterest(emi, loan.Principal, loan.TenureMonths)
		loan.Status = models.LoanApproved
		if err := st.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d approved, EMI %s for %d months", loanID, out.EMIAmount.StringFixed(2), out.TenureMonths)
	return out, nil
}

// RejectLoan moves a pending loan to rejected.
func (s *Service) RejectLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	var out *models.Loan
	err := s.store.InTx(ctx, func(st store.Store) error {
		loan, err := st.LoanByID(ctx, loanID, true)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return fmt.Errorf("loan %d is %s, only pending loans can be rejected", loanID, loan.Status)
		}
		loan.Status = models.LoanRejected
		if err := st.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d rejected", loanID)
	return out, nil
}

// Loan returns a loan with its full repayment schedule.
func (s *Service) Loan(ctx context.Context, loanID int64) (*models.Loan, error) {
	return s.store.LoanByID(ctx, loanID, false)
}

// LoansForUser lists a user's loans with schedules.
func (s *Service) LoansForUser(ctx context.Context, userID int64) ([]models.Loan, error) {
	return s.store.LoansByUser(ctx, userID)
}

// CreditProfile summarizes the user's completed-loan history and the
// recommended credit ceiling derived from it.
func (s *Service) CreditProfile(ctx context.Context, userID int64) (*models.CreditProfile, error) {
	count, avg, err := s.store.CompletedLoanStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.CreditProfile{
		CompletedLoans:    count,
		AverageLoanAmount: avg.Round(2),
		RecommendedLimit:  fees.CreditLimitTier(s.cfg.Fees, count, avg),
	}, nil
}

// applyLoanPayment adds amount to the loan's cumulative paid total,
// re-derives row statuses, and recomputes the loan status. The explicit
// disbursement flow is the authoritative disbursed trigger; the
// payment-driven transition below only fires when no disbursement has been
// stamped, and never stamps one itself. Must run inside the caller's unit
// of work with the loan row locked.
func (s *Service) applyLoanPayment(ctx context.Context, st store.Store, loanID int64, amount decimal.Decimal) (*models.Loan, error) {
	loan, err := st.LoanByID(ctx, loanID, true)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanApproved && loan.Status != models.LoanDisbursed {
		return nil, fmt.Errorf("loan %d is %s, payments apply to approved or disbursed loans", loanID, loan.Status)
	}
	loan.PaidAmount = loan.PaidAmount.Add(amount)
	if loan.PaidAmount.GreaterThan(loan.TotalDue()) {
		return nil, fmt.Errorf("payment of %s would exceed loan %d total due %s",
			amount.StringFixed(2), loanID, loan.TotalDue().StringFixed(2))
	}
	schedule.Allocate(loan.Schedule, loan.PaidAmount)
	switch {
	case loan.PaidAmount.GreaterThanOrEqual(loan.TotalDue()):
		loan.Status = models.LoanRepaid
	case loan.Status == models.LoanApproved && amount.IsPositive() && loan.DisbursedAt == nil:
		loan.Status = models.LoanDisbursed
	}
	if err := st.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// RecordLoanPayment applies a repayment outside the orchestrated EMI flow,
// e.g. a manual collection posted by support.
func (s *Service) RecordLoanPayment(ctx context.Context, loanID int64, amount decimal.Decimal) (*models.Loan, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	var out *models.Loan
	err := s.store.InTx(ctx, func(st store.Store) error {
		loan, err := s.applyLoanPayment(ctx, st, loanID, amount)
		if err != nil {
			return err
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d payment %s recorded, status %s", loanID, amount.StringFixed(2), out.Status)
	return out, nil
}

// RequestDelay pushes an installment's due date forward by delayDays,
// charging the tiered delay fee plus extra interest unless the user holds
// an active flex membership. The row bump and the approved request are
// written in the same unit of work.
func (s *Service) RequestDelay(ctx context.Context, loanID int64, monthIndex, delayDays int) (*models.DelayRequest, error) {
	if delayDays < 1 || delayDays > 2 {
		return nil, fmt.Errorf("delay must be 1 or 2 days, got %d", delayDays)
	}
	var out *models.DelayRequest
	err := s.store.InTx(ctx, func(st store.Store) error {
		loan, err := st.LoanByID(ctx, loanID, true)
		if err != nil {
			return err
		}
		var row *models.ScheduleRow
		for i := range loan.Schedule {
			if loan.Schedule[i].MonthIndex == monthIndex {
				row = &loan.Schedule[i]
				break
			}
		}
		if row == nil {
			return fmt.Errorf("loan %d has no installment %d", loanID, monthIndex)
		}
		if row.DelayCount >= models.MaxDelays {
			return fmt.Errorf("installment %d: %w", monthIndex, store.ErrDelayLimitExceeded)
		}
		if row.Status == models.RowPaid {
			return fmt.Errorf("installment %d: %w", monthIndex, store.ErrRowAlreadySettled)
		}

		hasMembership, err := s.membershipActive(ctx, st, loan.UserID)
		if err != nil {
			return err
		}
		quote := fees.DelayCharge(s.cfg.Fees, row.Amount, delayDays, hasMembership)

		oldDue := row.DueDate
		row.DueDate = oldDue.AddDate(0, 0, delayDays)
		row.DelayCount++
		row.CanDelay = row.DelayCount < models.MaxDelays
		if !quote.Waived {
			// The charge is folded into the installment so the repayable
			// total stays the sum of row amounts.
			row.Amount = row.Amount.Add(quote.Total)
			loan.TotalInterest = loan.TotalInterest.Add(quote.Total)
		}
		if err := st.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		out = &models.DelayRequest{
			LoanID:        loanID,
			MonthIndex:    monthIndex,
			OldDueDate:    oldDue,
			NewDueDate:    row.DueDate,
			Fee:           quote.Fee,
			ExtraInterest: quote.ExtraInterest,
			TotalCharge:   quote.Total,
			Waived:        quote.Waived,
			Status:        models.DelayApproved,
		}
		return st.CreateDelayRequest(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d installment %d delayed %d day(s), charge %s", loanID, monthIndex, delayDays, out.TotalCharge.StringFixed(2))
	return out, nil
}

// DelayHistory lists a loan's delay requests, newest first.
func (s *Service) DelayHistory(ctx context.Context, loanID int64) ([]models.DelayRequest, error) {
	return s.store.DelayRequestsByLoan(ctx, loanID)
}

// SendDueReminders emails holders of disbursed loans whose next unpaid
// installment falls due within the window, or is already overdue.
func (s *Service) SendDueReminders(ctx context.Context, window time.Duration) int {
	if s.notifier == nil {
		return 0
	}
	loans, err := s.store.LoansByStatus(ctx, models.LoanDisbursed)
	if err != nil {
		s.log.Errorf("Failed to list disbursed loans for reminders: %v", err)
		return 0
	}
	now := s.now()
	sent := 0
	for i := range loans {
		loan := &loans[i]
		row := nextUnpaidRow(loan)
		if row == nil {
			continue
		}
		overdue := row.DueDate.Before(now)
		if !overdue && row.DueDate.After(now.Add(window)) {
			continue
		}
		user, err := s.store.UserByID(ctx, loan.UserID)
		if err != nil {
			s.log.Warnf("Failed to resolve user %d for reminder: %v", loan.UserID, err)
			continue
		}
		penalty := decimal.Zero
		if overdue {
			member, err := s.membershipActive(ctx, s.store, loan.UserID)
			if err != nil {
				s.log.Warnf("Failed to check membership for loan %d reminder: %v", loan.ID, err)
				continue
			}
			penalty = fees.DelayCharge(s.cfg.Fees, row.Amount, 1, member).Total
		}
		if err := s.notifier.SendPaymentReminder(user.Email, user.Username, row.DueDate, row.Amount, penalty, overdue); err != nil {
			s.log.Warnf("Failed to send reminder for loan %d: %v", loan.ID, err)
			continue
		}
		sent++
	}
	return sent
}

func nextUnpaidRow(loan *models.Loan) *models.ScheduleRow {
	for i := range loan.Schedule {
		if loan.Schedule[i].Status != models.RowPaid {
			return &loan.Schedule[i]
		}
	}
	return nil
}
