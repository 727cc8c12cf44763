package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
)

// Memstore is an in-memory Store used by package tests in place of
// Postgres. InTx snapshots the whole state and restores it when fn fails,
// giving the same all-or-nothing semantics as a database transaction.
// Direct calls take the mutex per operation; the Store handed to an InTx
// callback reuses the lock already held, so units of work serialize the
// way row locks serialize writers in production. Nested InTx calls join
// the enclosing unit.
type Memstore struct {
	mu    sync.Mutex
	state memstate
}

// memTx is the view passed to InTx callbacks. It delegates to the
// memstore's unguarded internals without re-locking.
type memTx struct {
	s *Memstore
}

type memstate struct {
	seq         int64
	users       map[int64]models.User
	accounts    map[int64]models.Account
	txns        []models.LedgerTransaction
	loans       map[int64]models.Loan
	intents     map[string]models.PaymentIntent
	memberships map[int64]models.FlexMembership
	delays      []models.DelayRequest
}

// NewMemstore initializes an empty in-memory store.
func NewMemstore() *Memstore {
	return &Memstore{state: memstate{
		users:       make(map[int64]models.User),
		accounts:    make(map[int64]models.Account),
		loans:       make(map[int64]models.Loan),
		intents:     make(map[string]models.PaymentIntent),
		memberships: make(map[int64]models.FlexMembership),
	}}
}

func (s *memstate) nextID() int64 {
	s.seq++
	return s.seq
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyLoan(l models.Loan) models.Loan {
	l.DisbursedAt = copyTime(l.DisbursedAt)
	l.Schedule = append([]models.ScheduleRow(nil), l.Schedule...)
	return l
}

func copyAccount(a models.Account) models.Account {
	a.LastAccruedAt = copyTime(a.LastAccruedAt)
	return a
}

func copyIntent(p models.PaymentIntent) models.PaymentIntent {
	p.AccountID = copyInt64(p.AccountID)
	p.LoanID = copyInt64(p.LoanID)
	meta := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		meta[k] = v
	}
	p.Metadata = meta
	return p
}

func (s *memstate) clone() memstate {
	c := memstate{
		seq:         s.seq,
		users:       make(map[int64]models.User, len(s.users)),
		accounts:    make(map[int64]models.Account, len(s.accounts)),
		txns:        append([]models.LedgerTransaction(nil), s.txns...),
		loans:       make(map[int64]models.Loan, len(s.loans)),
		intents:     make(map[string]models.PaymentIntent, len(s.intents)),
		memberships: make(map[int64]models.FlexMembership, len(s.memberships)),
		delays:      append([]models.DelayRequest(nil), s.delays...),
	}
	for id, u := range s.users {
		c.users[id] = u
	}
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for id, l := range s.loans {
		c.loans[id] = copyLoan(l)
	}
	for ref, p := range s.intents {
		c.intents[ref] = copyIntent(p)
	}
	for id, m := range s.memberships {
		c.memberships[id] = m
	}
	return c
}

// InTx serializes units of work and rolls the state back when fn fails.
func (s *Memstore) InTx(_ context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(memTx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// InTx on the transactional view joins the unit already in progress.
func (tx memTx) InTx(_ context.Context, fn func(Store) error) error {
	return fn(tx)
}

// Unguarded internals. Callers hold s.mu: either a direct-call wrapper
// below, or InTx on behalf of its callback.

func (s *Memstore) createUser(user *models.User) error {
	user.ID = s.state.nextID()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.state.users[user.ID] = *user
	return nil
}

func (s *Memstore) userByID(id int64) (*models.User, error) {
	u, ok := s.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *Memstore) userByEmail(email string) (*models.User, error) {
	for _, u := range s.state.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *Memstore) createAccount(account *models.Account) error {
	account.ID = s.state.nextID()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	s.state.accounts[account.ID] = copyAccount(*account)
	return nil
}

func (s *Memstore) accountByID(id int64) (*models.Account, error) {
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a = copyAccount(a)
	return &a, nil
}

func (s *Memstore) accountByOwner(userID int64, kind models.AccountKind) (*models.Account, error) {
	for _, a := range s.state.accounts {
		if a.UserID == userID && a.Kind == kind {
			acc := copyAccount(a)
			return &acc, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *Memstore) updateAccount(account *models.Account) error {
	if _, ok := s.state.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	account.UpdatedAt = time.Now()
	s.state.accounts[account.ID] = copyAccount(*account)
	return nil
}

func (s *Memstore) creditAccountIDs() ([]int64, error) {
	var ids []int64
	for id, a := range s.state.accounts {
		if a.Kind == models.AccountCredit && a.UsedLimit.IsPositive() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Memstore) insertTransaction(txn *models.LedgerTransaction) error {
	txn.ID = s.state.nextID()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	s.state.txns = append(s.state.txns, *txn)
	return nil
}

func (s *Memstore) transactionsByAccount(accountID int64, limit, offset int) ([]models.LedgerTransaction, error) {
	var all []models.LedgerTransaction
	for i := len(s.state.txns) - 1; i >= 0; i-- {
		if s.state.txns[i].AccountID == accountID {
			all = append(all, s.state.txns[i])
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Memstore) createLoan(loan *models.Loan) error {
	loan.ID = s.state.nextID()
	now := time.Now()
	loan.CreatedAt = now
	loan.UpdatedAt = now
	s.state.loans[loan.ID] = copyLoan(*loan)
	return nil
}

func (s *Memstore) loanByID(id int64) (*models.Loan, error) {
	l, ok := s.state.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	l = copyLoan(l)
	return &l, nil
}

func (s *Memstore) loansByStatus(status models.LoanStatus) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range s.state.loans {
		if l.Status == status {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (s *Memstore) loansByUser(userID int64) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range s.state.loans {
		if l.UserID == userID {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (s *Memstore) updateLoan(loan *models.Loan) error {
	if _, ok := s.state.loans[loan.ID]; !ok {
		return ErrLoanNotFound
	}
	loan.UpdatedAt = time.Now()
	s.state.loans[loan.ID] = copyLoan(*loan)
	return nil
}

func (s *Memstore) replaceSchedule(loanID int64, rows []models.ScheduleRow) error {
	l, ok := s.state.loans[loanID]
	if !ok {
		return ErrLoanNotFound
	}
	for i := range rows {
		rows[i].ID = s.state.nextID()
		rows[i].LoanID = loanID
	}
	l.Schedule = append([]models.ScheduleRow(nil), rows...)
	s.state.loans[loanID] = l
	return nil
}

func (s *Memstore) updateScheduleRow(row *models.ScheduleRow) error {
	l, ok := s.state.loans[row.LoanID]
	if !ok {
		return ErrLoanNotFound
	}
	for i := range l.Schedule {
		if l.Schedule[i].ID == row.ID {
			l.Schedule[i] = *row
			s.state.loans[row.LoanID] = l
			return nil
		}
	}
	return ErrLoanNotFound
}

func (s *Memstore) completedLoanStats(userID int64) (int, decimal.Decimal, error) {
	count := 0
	total := decimal.Zero
	for _, l := range s.state.loans {
		if l.UserID == userID && l.Status == models.LoanRepaid {
			count++
			total = total.Add(l.Principal)
		}
	}
	if count == 0 {
		return 0, decimal.Zero, nil
	}
	return count, total.Div(decimal.NewFromInt(int64(count))), nil
}

func (s *Memstore) createIntent(intent *models.PaymentIntent) error {
	if _, exists := s.state.intents[intent.Reference]; exists {
		return transient(errors.New("duplicate reference"))
	}
	intent.ID = s.state.nextID()
	now := time.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	s.state.intents[intent.Reference] = copyIntent(*intent)
	return nil
}

func (s *Memstore) intentByReference(reference string) (*models.PaymentIntent, error) {
	p, ok := s.state.intents[reference]
	if !ok {
		return nil, ErrIntentNotFound
	}
	p = copyIntent(p)
	return &p, nil
}

func (s *Memstore) updateIntent(intent *models.PaymentIntent) error {
	if _, ok := s.state.intents[intent.Reference]; !ok {
		return ErrIntentNotFound
	}
	intent.UpdatedAt = time.Now()
	s.state.intents[intent.Reference] = copyIntent(*intent)
	return nil
}

// createMembership mirrors the partial unique index on active rows: a
// second active membership for the same user is rejected.
func (s *Memstore) createMembership(m *models.FlexMembership) error {
	if m.Status == models.MembershipActive {
		for _, existing := range s.state.memberships {
			if existing.UserID == m.UserID && existing.Status == models.MembershipActive {
				return fmt.Errorf("user %d: %w", m.UserID, ErrAlreadySubscribed)
			}
		}
	}
	m.ID = s.state.nextID()
	m.CreatedAt = time.Now()
	s.state.memberships[m.ID] = *m
	return nil
}

func (s *Memstore) activeMembership(userID int64) (*models.FlexMembership, error) {
	for _, m := range s.state.memberships {
		if m.UserID == userID && m.Status == models.MembershipActive {
			mm := m
			return &mm, nil
		}
	}
	return nil, nil
}

func (s *Memstore) membershipsPastWindow(now time.Time) ([]models.FlexMembership, error) {
	var out []models.FlexMembership
	for _, m := range s.state.memberships {
		if m.Status == models.MembershipActive && !m.ExpiresAt.After(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Memstore) updateMembership(m *models.FlexMembership) error {
	if _, ok := s.state.memberships[m.ID]; !ok {
		return ErrUserNotFound
	}
	s.state.memberships[m.ID] = *m
	return nil
}

func (s *Memstore) createDelayRequest(req *models.DelayRequest) error {
	req.ID = s.state.nextID()
	req.CreatedAt = time.Now()
	s.state.delays = append(s.state.delays, *req)
	return nil
}

func (s *Memstore) delayRequestsByLoan(loanID int64) ([]models.DelayRequest, error) {
	var out []models.DelayRequest
	for i := len(s.state.delays) - 1; i >= 0; i-- {
		if s.state.delays[i].LoanID == loanID {
			out = append(out, s.state.delays[i])
		}
	}
	return out, nil
}

// Direct-call wrappers: each takes the mutex for its single operation.

func (s *Memstore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUser(user)
}

func (s *Memstore) UserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByID(id)
}

func (s *Memstore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByEmail(email)
}

func (s *Memstore) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccount(account)
}

func (s *Memstore) AccountByID(_ context.Context, id int64, _ bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountByID(id)
}

func (s *Memstore) AccountByOwner(_ context.Context, userID int64, kind models.AccountKind, _ bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountByOwner(userID, kind)
}

func (s *Memstore) UpdateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAccount(account)
}

func (s *Memstore) CreditAccountIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditAccountIDs()
}

func (s *Memstore) InsertTransaction(_ context.Context, txn *models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransaction(txn)
}

func (s *Memstore) TransactionsByAccount(_ context.Context, accountID int64, limit, offset int) ([]models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactionsByAccount(accountID, limit, offset)
}

func (s *Memstore) CreateLoan(_ context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLoan(loan)
}

func (s *Memstore) LoanByID(_ context.Context, id int64, _ bool) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loanByID(id)
}

func (s *Memstore) LoansByStatus(_ context.Context, status models.LoanStatus) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loansByStatus(status)
}

func (s *Memstore) LoansByUser(_ context.Context, userID int64) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loansByUser(userID)
}

func (s *Memstore) UpdateLoan(_ context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLoan(loan)
}

func (s *Memstore) ReplaceSchedule(_ context.Context, loanID int64, rows []models.ScheduleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceSchedule(loanID, rows)
}

func (s *Memstore) UpdateScheduleRow(_ context.Context, row *models.ScheduleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateScheduleRow(row)
}

func (s *Memstore) CompletedLoanStats(_ context.Context, userID int64) (int, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedLoanStats(userID)
}

func (s *Memstore) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createIntent(intent)
}

func (s *Memstore) IntentByReference(_ context.Context, reference string, _ bool) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentByReference(reference)
}

func (s *Memstore) UpdateIntent(_ context.Context, intent *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateIntent(intent)
}

func (s *Memstore) CreateMembership(_ context.Context, m *models.FlexMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMembership(m)
}

func (s *Memstore) ActiveMembership(_ context.Context, userID int64) (*models.FlexMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeMembership(userID)
}

func (s *Memstore) MembershipsPastWindow(_ context.Context, now time.Time) ([]models.FlexMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membershipsPastWindow(now)
}

func (s *Memstore) UpdateMembership(_ context.Context, m *models.FlexMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembership(m)
}

func (s *Memstore) CreateDelayRequest(_ context.Context, req *models.DelayRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDelayRequest(req)
}

func (s *Memstore) DelayRequestsByLoan(_ context.Context, loanID int64) ([]models.DelayRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayRequestsByLoan(loanID)
}

// Transactional view: same operations, lock already held by InTx.

func (tx memTx) CreateUser(ctx context.Context, user *models.User) error {
	return tx.s.createUser(user)
}

func (tx memTx) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return tx.s.userByID(id)
}

func (tx memTx) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return tx.s.userByEmail(email)
}

func (tx memTx) CreateAccount(ctx context.Context, account *models.Account) error {
	return tx.s.createAccount(account)
}

func (tx memTx) AccountByID(ctx context.Context, id int64, _ bool) (*models.Account, error) {
	return tx.s.accountByID(id)
}

func (tx memTx) AccountByOwner(ctx context.Context, userID int64, kind models.AccountKind, _ bool) (*models.Account, error) {
	return tx.s.accountByOwner(userID, kind)
}

func (tx memTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	return tx.s.updateAccount(account)
}

func (tx memTx) CreditAccountIDs(ctx context.Context) ([]int64, error) {
	return tx.s.creditAccountIDs()
}

func (tx memTx) InsertTransaction(ctx context.Context, txn *models.LedgerTransaction) error {
	return tx.s.insertTransaction(txn)
}

func (tx memTx) TransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]models.LedgerTransaction, error) {
	return tx.s.transactionsByAccount(accountID, limit, offset)
}

func (tx memTx) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return tx.s.createLoan(loan)
}

func (tx memTx) LoanByID(ctx context.Context, id int64, _ bool) (*models.Loan, error) {
	return tx.s.loanByID(id)
}

func (tx memTx) LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	return tx.s.loansByStatus(status)
}

func (tx memTx) LoansByUser(ctx context.Context, userID int64) ([]models.Loan, error) {
	return tx.s.loansByUser(userID)
}

func (tx memTx) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	return tx.s.updateLoan(loan)
}

func (tx memTx) ReplaceSchedule(ctx context.Context, loanID int64, rows []models.ScheduleRow) error {
	return tx.s.replaceSchedule(loanID, rows)
}

func (tx memTx) UpdateScheduleRow(ctx context.Context, row *models.ScheduleRow) error {
	return tx.s.updateScheduleRow(row)
}

func (tx memTx) CompletedLoanStats(ctx context.Context, userID int64) (int, decimal.Decimal, error) {
	return tx.s.completedLoanStats(userID)
}

func (tx memTx) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return tx.s.createIntent(intent)
}

func (tx memTx) IntentByReference(ctx context.Context, reference string, _ bool) (*models.PaymentIntent, error) {
	return tx.s.intentByReference(reference)
}

func (tx memTx) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return tx.s.updateIntent(intent)
}

func (tx memTx) CreateMembership(ctx context.Context, m *models.FlexMembership) error {
	return tx.s.createMembership(m)
}

func (tx memTx) ActiveMembership(ctx context.Context, userID int64) (*models.FlexMembership, error) {
	return tx.s.activeMembership(userID)
}

func (tx memTx) MembershipsPastWindow(ctx context.Context, now time.Time) ([]models.FlexMembership, error) {
	return tx.s.membershipsPastWindow(now)
}

func (tx memTx) UpdateMembership(ctx context.Context, m *models.FlexMembership) error {
	return tx.s.updateMembership(m)
}

func (tx memTx) CreateDelayRequest(ctx context.Context, req *models.DelayRequest) error {
	return tx.s.createDelayRequest(req)
}

func (tx memTx) DelayRequestsByLoan(ctx context.Context, loanID int64) ([]models.DelayRequest, error) {
	return tx.s.delayRequestsByLoan(loanID)
}
