package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/credana/lending-service/internal/store"
	"github.com/credana/lending-service/internal/utils"
	"github.com/shopspring/decimal"
)

// GetOrCreateAccount returns the user's account of the given kind, creating
// it with defaults on first access. Account creation is kept out of the
// balance mutators so those stay free of hidden side effects.
func (s *Service) GetOrCreateAccount(ctx context.Context, userID int64, kind models.AccountKind) (*models.Account, error) {
	var out *models.Account
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByOwner(ctx, userID, kind, false)
		if err == nil {
			out = acc
			return nil
		}
		if !errors.Is(err, store.ErrAccountNotFound) {
			return err
		}
		acc = s.newAccount(userID, kind)
		if err := st.CreateAccount(ctx, acc); err != nil {
			return err
		}
		s.log.Infof("Created %s account %d for user %d", kind, acc.ID, userID)
		out = acc
		return nil
	})
	return out, err
}

func (s *Service) newAccount(userID int64, kind models.AccountKind) *models.Account {
	acc := &models.Account{
		UserID:  userID,
		Kind:    kind,
		Balance: decimal.Zero,
	}
	if kind == models.AccountCredit {
		acc.TotalLimit = s.cfg.DefaultCreditLimit
		acc.ProcessingFeeRate = s.cfg.ProcessingFeeRate
		acc.DailyInterestRate = s.cfg.DailyInterestRate
	}
	return acc
}

// appendCashTxn mutates a locked cash account by delta and appends the
// paired ledger entry. The caller must hold the account's row lock.
// Credit lines are rejected here: their ledger tracks the used limit via
// purchase/payment/interest entries, and mixing in balance entries would
// break the signed-sum reconciliation.
func appendCashTxn(ctx context.Context, st store.Store, acc *models.Account, delta decimal.Decimal,
	kind models.TransactionKind, fee decimal.Decimal, description, reference string, counterparty *int64) (*models.LedgerTransaction, error) {
	if acc.Kind != models.AccountCash {
		return nil, fmt.Errorf("account %d is not a cash account", acc.ID)
	}
	if delta.IsNegative() && acc.Balance.LessThan(delta.Neg()) {
		return nil, fmt.Errorf("account %d: %w", acc.ID, store.ErrInsufficientFunds)
	}
	acc.Balance = acc.Balance.Add(delta)
	if err := st.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	txn := &models.LedgerTransaction{
		AccountID:      acc.ID,
		Kind:           kind,
		Amount:         delta.Abs(),
		Fee:            fee,
		BalanceAfter:   acc.Balance,
		CounterpartyID: counterparty,
		Reference:      reference,
		Description:    description,
		Status:         "completed",
	}
	if err := st.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Credit increases a cash account's balance.
func (s *Service) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, description, reference string) (*models.LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	var txn *models.LedgerTransaction
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		txn, err = appendCashTxn(ctx, st, acc, amount, models.TxnCredit, decimal.Zero, description, reference, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Account %d credited %s (%s)", accountID, amount.StringFixed(2), reference)
	return txn, nil
}

// Debit decreases a cash account's balance, failing with InsufficientFunds
// when the balance cannot cover the amount.
func (s *Service) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, description, reference string) (*models.LedgerTransaction, error) {
	return s.debitWithFee(ctx, accountID, amount, decimal.Zero, description, reference)
}

// debitWithFee debits total including fee, recording the fee component
// separately for reporting.
func (s *Service) debitWithFee(ctx context.Context, accountID int64, total, fee decimal.Decimal, description, reference string) (*models.LedgerTransaction, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("debit amount must be positive, got %s", total)
	}
	var txn *models.LedgerTransaction
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		txn, err = appendCashTxn(ctx, st, acc, total.Neg(), models.TxnDebit, fee, description, reference, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Account %d debited %s (%s)", accountID, total.StringFixed(2), reference)
	return txn, nil
}

// Transfer moves amount from a cash account to the destination user's cash
// account inside one atomic unit, creating the destination with zero
// balance if it does not exist. Both resulting ledger entries share one
// reference. Locks are taken in ascending account-id order regardless of
// direction so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, fromAccountID, toUserID int64, amount decimal.Decimal, description string) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("transfer amount must be positive, got %s", amount)
	}
	reference := utils.NewReference("TRF")
	err := s.store.InTx(ctx, func(st store.Store) error {
		to, err := st.AccountByOwner(ctx, toUserID, models.AccountCash, false)
		if errors.Is(err, store.ErrAccountNotFound) {
			to = s.newAccount(toUserID, models.AccountCash)
			if err := st.CreateAccount(ctx, to); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if to.ID == fromAccountID {
			return fmt.Errorf("cannot transfer to the same account %d", fromAccountID)
		}

		// Fixed global lock order: ascending account id.
		firstID, secondID := fromAccountID, to.ID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}
		locked := make(map[int64]*models.Account, 2)
		for _, id := range []int64{firstID, secondID} {
			acc, err := st.AccountByID(ctx, id, true)
			if err != nil {
				return err
			}
			locked[id] = acc
		}
		from, to := locked[fromAccountID], locked[to.ID]

		if _, err := appendCashTxn(ctx, st, from, amount.Neg(), models.TxnTransferOut, decimal.Zero, description, reference, &to.ID); err != nil {
			return err
		}
		_, err = appendCashTxn(ctx, st, to, amount, models.TxnTransferIn, decimal.Zero, description, reference, &from.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.log.Infof("Transferred %s from account %d to user %d (%s)", amount.StringFixed(2), fromAccountID, toUserID, reference)
	return reference, nil
}

// UseCredit spends against a credit line. The processing fee is charged up
// front; the purchase is rejected when amount plus fee exceeds the
// remaining headroom.
func (s *Service) UseCredit(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (*models.LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("purchase amount must be positive, got %s", amount)
	}
	var txn *models.LedgerTransaction
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		if acc.Kind != models.AccountCredit {
			return fmt.Errorf("account %d is not a credit account", accountID)
		}
		fee := amount.Mul(acc.ProcessingFeeRate).Round(2)
		if amount.Add(fee).GreaterThan(acc.AvailableCredit()) {
			return fmt.Errorf("account %d: %w", accountID, store.ErrCreditLimitExceeded)
		}
		acc.UsedLimit = acc.UsedLimit.Add(amount).Add(fee)
		if err := st.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		txn = &models.LedgerTransaction{
			AccountID:    acc.ID,
			Kind:         models.TxnPurchase,
			Amount:       amount,
			Fee:          fee,
			BalanceAfter: acc.UsedLimit,
			Reference:    utils.NewReference("CRD"),
			Description:  description,
			Status:       "completed",
		}
		return st.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Account %d credit purchase %s (fee %s)", accountID, amount.StringFixed(2), txn.Fee.StringFixed(2))
	return txn, nil
}

// ApplyCreditPayment repays a credit line, flooring the used limit at zero.
func (s *Service) ApplyCreditPayment(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) (*models.LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	var txn *models.LedgerTransaction
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		if acc.Kind != models.AccountCredit {
			return fmt.Errorf("account %d is not a credit account", accountID)
		}
		applied := amount
		if applied.GreaterThan(acc.UsedLimit) {
			applied = acc.UsedLimit
		}
		acc.UsedLimit = acc.UsedLimit.Sub(applied)
		if err := st.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		txn = &models.LedgerTransaction{
			AccountID:    acc.ID,
			Kind:         models.TxnPayment,
			Amount:       applied,
			BalanceAfter: acc.UsedLimit,
			Reference:    reference,
			Description:  "credit line payment",
			Status:       "completed",
		}
		return st.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Account %d credit payment %s", accountID, txn.Amount.StringFixed(2))
	return txn, nil
}

// AccrueInterest applies one day of interest to a credit line's used limit.
// It is a no-op when nothing is outstanding or when interest was already
// accrued today, so repeated invocations within a day are safe.
func (s *Service) AccrueInterest(ctx context.Context, accountID int64) (*models.LedgerTransaction, error) {
	var txn *models.LedgerTransaction
	err := s.store.InTx(ctx, func(st store.Store) error {
		acc, err := st.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		if acc.Kind != models.AccountCredit || acc.UsedLimit.IsZero() {
			return nil
		}
		now := s.now()
		if acc.LastAccruedAt != nil && sameDay(*acc.LastAccruedAt, now) {
			return nil
		}
		interest := acc.UsedLimit.Mul(acc.DailyInterestRate).Round(2)
		acc.UsedLimit = acc.UsedLimit.Add(interest)
		acc.LastAccruedAt = &now
		if err := st.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		txn = &models.LedgerTransaction{
			AccountID:    acc.ID,
			Kind:         models.TxnInterest,
			Amount:       interest,
			BalanceAfter: acc.UsedLimit,
			Reference:    utils.NewReference("INT"),
			Description:  "daily interest",
			Status:       "completed",
		}
		return st.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// AccrueAllInterest runs the daily interest sweep over every credit line
// with outstanding usage. Per-account failures are logged and skipped.
func (s *Service) AccrueAllInterest(ctx context.Context) int {
	ids, err := s.store.CreditAccountIDs(ctx)
	if err != nil {
		s.log.Errorf("Failed to list credit accounts for accrual: %v", err)
		return 0
	}
	accrued := 0
	for _, id := range ids {
		txn, err := s.AccrueInterest(ctx, id)
		if err != nil {
			s.log.Errorf("Failed to accrue interest on account %d: %v", id, err)
			continue
		}
		if txn != nil {
			accrued++
		}
	}
	s.log.Infof("Interest accrued on %d of %d credit accounts", accrued, len(ids))
	return accrued
}

// AccountSnapshot returns the current balance/limit view of an account.
func (s *Service) AccountSnapshot(ctx context.Context, accountID int64) (*models.Account, error) {
	return s.store.AccountByID(ctx, accountID, false)
}

// History pages through an account's ledger, newest first.
func (s *Service) History(ctx context.Context, accountID int64, limit, offset int) ([]models.LedgerTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.TransactionsByAccount(ctx, accountID, limit, offset)
}
