package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres implements Store on top of PostgreSQL. Row locks are taken with
// SELECT ... FOR UPDATE inside InTx, so operations on the same account or
// installment serialize while unrelated rows never block each other.
type Postgres struct {
	db *sql.DB
	q  querier
}

// NewPostgres initializes a Postgres-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// transient marks a raw database error as retryable.
func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// InitSchema creates the lending schema and tables if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	const schema = `
	CREATE SCHEMA IF NOT EXISTS lending;
	CREATE TABLE IF NOT EXISTS lending.users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS lending.accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES lending.users(id),
		kind TEXT NOT NULL,
		balance NUMERIC(14,2) NOT NULL DEFAULT 0,
		total_limit NUMERIC(14,2) NOT NULL DEFAULT 0,
		used_limit NUMERIC(14,2) NOT NULL DEFAULT 0,
		processing_fee_rate NUMERIC(8,6) NOT NULL DEFAULT 0,
		daily_interest_rate NUMERIC(8,6) NOT NULL DEFAULT 0,
		last_accrued_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, kind)
	);
	CREATE TABLE IF NOT EXISTS lending.transactions (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES lending.accounts(id),
		kind TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		fee NUMERIC(14,2) NOT NULL DEFAULT 0,
		balance_after NUMERIC(14,2) NOT NULL,
		counterparty_id BIGINT,
		reference TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'completed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS lending.loans (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES lending.users(id),
		principal NUMERIC(14,2) NOT NULL,
		annual_rate NUMERIC(8,4) NOT NULL,
		tenure_months INT NOT NULL,
		emi_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		total_interest NUMERIC(14,2) NOT NULL DEFAULT 0,
		paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		disbursed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS lending.schedule_rows (
		id BIGSERIAL PRIMARY KEY,
		loan_id BIGINT NOT NULL REFERENCES lending.loans(id),
		month_index INT NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		principal NUMERIC(14,2) NOT NULL,
		interest NUMERIC(14,2) NOT NULL,
		balance NUMERIC(14,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		delay_count INT NOT NULL DEFAULT 0,
		can_delay BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (loan_id, month_index)
	);
	CREATE TABLE IF NOT EXISTS lending.payment_intents (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES lending.users(id),
		target TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		fee NUMERIC(14,2) NOT NULL DEFAULT 0,
		reference TEXT NOT NULL UNIQUE,
		external_txn_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		failure_reason TEXT NOT NULL DEFAULT '',
		account_id BIGINT,
		loan_id BIGINT,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS lending.memberships (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES lending.users(id),
		starts_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS memberships_one_active
		ON lending.memberships (user_id) WHERE status = 'active';
	CREATE TABLE IF NOT EXISTS lending.delay_requests (
		id BIGSERIAL PRIMARY KEY,
		loan_id BIGINT NOT NULL REFERENCES lending.loans(id),
		month_index INT NOT NULL,
		old_due_date TIMESTAMPTZ NOT NULL,
		new_due_date TIMESTAMPTZ NOT NULL,
		fee NUMERIC(14,2) NOT NULL,
		extra_interest NUMERIC(14,2) NOT NULL,
		total_charge NUMERIC(14,2) NOT NULL,
		waived BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", transient(err))
	}
	return nil
}

// InTx runs fn inside a database transaction. A nested call joins the
// transaction already in progress.
func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := p.q.(*sql.Tx); ok {
		return fn(p)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", transient(err))
	}
	s := &Postgres{db: p.db, q: tx}
	if err := fn(s); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", transient(err))
	}
	return nil
}

// CreateUser creates a new user.
func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO lending.users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := p.q.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", transient(err))
	}
	return nil
}

func (p *Postgres) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", transient(err))
	}
	return user, nil
}

// UserByID retrieves a user by id.
func (p *Postgres) UserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM lending.users WHERE id = $1`
	return p.scanUser(p.q.QueryRowContext(ctx, query, id))
}

// UserByEmail retrieves a user by email.
func (p *Postgres) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM lending.users WHERE email = $1`
	return p.scanUser(p.q.QueryRowContext(ctx, query, email))
}

const accountColumns = `id, user_id, kind, balance, total_limit, used_limit,
	processing_fee_rate, daily_interest_rate, last_accrued_at, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.UserID, &a.Kind, &a.Balance, &a.TotalLimit, &a.UsedLimit,
		&a.ProcessingFeeRate, &a.DailyInterestRate, &a.LastAccruedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", transient(err))
	}
	return a, nil
}

// CreateAccount creates a new account.
func (p *Postgres) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO lending.accounts (user_id, kind, balance, total_limit, used_limit,
			processing_fee_rate, daily_interest_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := p.q.QueryRowContext(ctx, query, account.UserID, account.Kind, account.Balance,
		account.TotalLimit, account.UsedLimit, account.ProcessingFeeRate, account.DailyInterestRate).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", transient(err))
	}
	return nil
}

// AccountByID retrieves an account, optionally locking its row.
func (p *Postgres) AccountByID(ctx context.Context, id int64, lock bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM lending.accounts WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}
	return scanAccount(p.q.QueryRowContext(ctx, query, id))
}

// AccountByOwner retrieves a user's account of the given kind.
func (p *Postgres) AccountByOwner(ctx context.Context, userID int64, kind models.AccountKind, lock bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM lending.accounts WHERE user_id = $1 AND kind = $2`
	if lock {
		query += " FOR UPDATE"
	}
	return scanAccount(p.q.QueryRowContext(ctx, query, userID, kind))
}

// UpdateAccount persists an account's balance fields.
func (p *Postgres) UpdateAccount(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE lending.accounts
		SET balance = $2, total_limit = $3, used_limit = $4, last_accrued_at = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := p.q.ExecContext(ctx, query, account.ID, account.Balance,
		account.TotalLimit, account.UsedLimit, account.LastAccruedAt); err != nil {
		return fmt.Errorf("failed to update account: %w", transient(err))
	}
	return nil
}

// CreditAccountIDs lists credit accounts with outstanding usage.
func (p *Postgres) CreditAccountIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM lending.accounts WHERE kind = $1 AND used_limit > 0 ORDER BY id`
	rows, err := p.q.QueryContext(ctx, query, models.AccountCredit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit accounts: %w", transient(err))
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", transient(err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertTransaction appends an immutable ledger entry.
func (p *Postgres) InsertTransaction(ctx context.Context, txn *models.LedgerTransaction) error {
	query := `
		INSERT INTO lending.transactions (account_id, kind, amount, fee, balance_after,
			counterparty_id, reference, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := p.q.QueryRowContext(ctx, query, txn.AccountID, txn.Kind, txn.Amount, txn.Fee,
		txn.BalanceAfter, txn.CounterpartyID, txn.Reference, txn.Description, txn.Status).
		Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", transient(err))
	}
	return nil
}

// TransactionsByAccount pages through an account's ledger, newest first.
func (p *Postgres) TransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]models.LedgerTransaction, error) {
	query := `
		SELECT id, account_id, kind, amount, fee, balance_after, counterparty_id,
			reference, description, status, created_at
		FROM lending.transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`
	rows, err := p.q.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", transient(err))
	}
	defer rows.Close()
	var txns []models.LedgerTransaction
	for rows.Next() {
		var t models.LedgerTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Fee, &t.BalanceAfter,
			&t.CounterpartyID, &t.Reference, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", transient(err))
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// CreateLoan creates a new loan.
func (p *Postgres) CreateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO lending.loans (user_id, principal, annual_rate, tenure_months,
			emi_amount, total_interest, paid_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := p.q.QueryRowContext(ctx, query, loan.UserID, loan.Principal, loan.AnnualRate,
		loan.TenureMonths, loan.EMIAmount, loan.TotalInterest, loan.PaidAmount, loan.Status).
		Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", transient(err))
	}
	return nil
}

// LoanByID retrieves a loan with its schedule, optionally locking the loan row.
func (p *Postgres) LoanByID(ctx context.Context, id int64, lock bool) (*models.Loan, error) {
	query := `
		SELECT id, user_id, principal, annual_rate, tenure_months, emi_amount,
			total_interest, paid_amount, status, disbursed_at, created_at, updated_at
		FROM lending.loans WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}
	loan := &models.Loan{}
	err := p.q.QueryRowContext(ctx, query, id).Scan(&loan.ID, &loan.UserID, &loan.Principal,
		&loan.AnnualRate, &loan.TenureMonths, &loan.EMIAmount, &loan.TotalInterest,
		&loan.PaidAmount, &loan.Status, &loan.DisbursedAt, &loan.CreatedAt, &loan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", transient(err))
	}

	rowsQuery := `
		SELECT id, loan_id, month_index, due_date, amount, principal, interest,
			balance, status, delay_count, can_delay
		FROM lending.schedule_rows WHERE loan_id = $1 ORDER BY month_index`
	rows, err := p.q.QueryContext(ctx, rowsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", transient(err))
	}
	defer rows.Close()
	for rows.Next() {
		var r models.ScheduleRow
		if err := rows.Scan(&r.ID, &r.LoanID, &r.MonthIndex, &r.DueDate, &r.Amount,
			&r.Principal, &r.Interest, &r.Balance, &r.Status, &r.DelayCount, &r.CanDelay); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", transient(err))
		}
		loan.Schedule = append(loan.Schedule, r)
	}
	return loan, rows.Err()
}

func (p *Postgres) listLoans(ctx context.Context, query string, arg any) ([]models.Loan, error) {
	rows, err := p.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", transient(err))
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan loan id: %w", transient(err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	loans := make([]models.Loan, 0, len(ids))
	for _, id := range ids {
		loan, err := p.LoanByID(ctx, id, false)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	return loans, nil
}

// LoansByStatus lists loans (with schedules) in the given status.
func (p *Postgres) LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	return p.listLoans(ctx, `SELECT id FROM lending.loans WHERE status = $1 ORDER BY id`, status)
}

// LoansByUser lists a user's loans with schedules.
func (p *Postgres) LoansByUser(ctx context.Context, userID int64) ([]models.Loan, error) {
	return p.listLoans(ctx, `SELECT id FROM lending.loans WHERE user_id = $1 ORDER BY id`, userID)
}

// UpdateLoan persists a loan's mutable fields and schedule row statuses.
func (p *Postgres) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		UPDATE lending.loans
		SET emi_amount = $2, total_interest = $3, paid_amount = $4, status = $5,
			disbursed_at = $6, annual_rate = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := p.q.ExecContext(ctx, query, loan.ID, loan.EMIAmount, loan.TotalInterest,
		loan.PaidAmount, loan.Status, loan.DisbursedAt, loan.AnnualRate); err != nil {
		return fmt.Errorf("failed to update loan: %w", transient(err))
	}
	for i := range loan.Schedule {
		if err := p.UpdateScheduleRow(ctx, &loan.Schedule[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSchedule swaps a loan's schedule for freshly generated rows.
func (p *Postgres) ReplaceSchedule(ctx context.Context, loanID int64, rows []models.ScheduleRow) error {
	if _, err := p.q.ExecContext(ctx, `DELETE FROM lending.schedule_rows WHERE loan_id = $1`, loanID); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", transient(err))
	}
	query := `
		INSERT INTO lending.schedule_rows (loan_id, month_index, due_date, amount,
			principal, interest, balance, status, delay_count, can_delay)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	for i := range rows {
		r := &rows[i]
		r.LoanID = loanID
		err := p.q.QueryRowContext(ctx, query, loanID, r.MonthIndex, r.DueDate, r.Amount,
			r.Principal, r.Interest, r.Balance, r.Status, r.DelayCount, r.CanDelay).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("failed to insert schedule row: %w", transient(err))
		}
	}
	return nil
}

// UpdateScheduleRow persists one installment's mutable fields.
func (p *Postgres) UpdateScheduleRow(ctx context.Context, row *models.ScheduleRow) error {
	query := `
		UPDATE lending.schedule_rows
		SET due_date = $2, amount = $3, status = $4, delay_count = $5, can_delay = $6
		WHERE id = $1`
	if _, err := p.q.ExecContext(ctx, query, row.ID, row.DueDate, row.Amount,
		row.Status, row.DelayCount, row.CanDelay); err != nil {
		return fmt.Errorf("failed to update schedule row: %w", transient(err))
	}
	return nil
}

// CompletedLoanStats returns the count and average principal of repaid loans.
func (p *Postgres) CompletedLoanStats(ctx context.Context, userID int64) (int, decimal.Decimal, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(principal), 0)
		FROM lending.loans WHERE user_id = $1 AND status = $2`
	var count int
	var avg decimal.Decimal
	err := p.q.QueryRowContext(ctx, query, userID, models.LoanRepaid).Scan(&count, &avg)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to load loan stats: %w", transient(err))
	}
	return count, avg, nil
}

// CreateIntent persists a new payment intent.
func (p *Postgres) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	meta, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode intent metadata: %w", err)
	}
	query := `
		INSERT INTO lending.payment_intents (user_id, target, amount, fee, reference,
			external_txn_id, status, failure_reason, account_id, loan_id, metadata,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err = p.q.QueryRowContext(ctx, query, intent.UserID, intent.Target, intent.Amount,
		intent.Fee, intent.Reference, intent.ExternalTxnID, intent.Status, intent.FailureReason,
		intent.AccountID, intent.LoanID, meta).
		Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", transient(err))
	}
	return nil
}

// IntentByReference looks up a payment intent by its idempotency key.
func (p *Postgres) IntentByReference(ctx context.Context, reference string, lock bool) (*models.PaymentIntent, error) {
	query := `
		SELECT id, user_id, target, amount, fee, reference, external_txn_id, status,
			failure_reason, account_id, loan_id, metadata, created_at, updated_at
		FROM lending.payment_intents WHERE reference = $1`
	if lock {
		query += " FOR UPDATE"
	}
	intent := &models.PaymentIntent{}
	var meta []byte
	err := p.q.QueryRowContext(ctx, query, reference).Scan(&intent.ID, &intent.UserID,
		&intent.Target, &intent.Amount, &intent.Fee, &intent.Reference, &intent.ExternalTxnID,
		&intent.Status, &intent.FailureReason, &intent.AccountID, &intent.LoanID, &meta,
		&intent.CreatedAt, &intent.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment intent: %w", transient(err))
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &intent.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode intent metadata: %w", err)
		}
	}
	return intent, nil
}

// UpdateIntent persists an intent's status fields.
func (p *Postgres) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	meta, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode intent metadata: %w", err)
	}
	query := `
		UPDATE lending.payment_intents
		SET status = $2, external_txn_id = $3, failure_reason = $4, metadata = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := p.q.ExecContext(ctx, query, intent.ID, intent.Status,
		intent.ExternalTxnID, intent.FailureReason, meta); err != nil {
		return fmt.Errorf("failed to update payment intent: %w", transient(err))
	}
	return nil
}

// CreateMembership persists a new flex membership. A partial unique index
// allows at most one active row per user, so concurrent subscribes cannot
// both commit; the loser surfaces ErrAlreadySubscribed.
func (p *Postgres) CreateMembership(ctx context.Context, m *models.FlexMembership) error {
	query := `
		INSERT INTO lending.memberships (user_id, starts_at, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := p.q.QueryRowContext(ctx, query, m.UserID, m.StartsAt, m.ExpiresAt, m.Status).
		Scan(&m.ID, &m.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("user %d: %w", m.UserID, ErrAlreadySubscribed)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", transient(err))
	}
	return nil
}

// ActiveMembership returns the user's active membership, or nil if none.
func (p *Postgres) ActiveMembership(ctx context.Context, userID int64) (*models.FlexMembership, error) {
	query := `
		SELECT id, user_id, starts_at, expires_at, status, created_at
		FROM lending.memberships WHERE user_id = $1 AND status = $2`
	m := &models.FlexMembership{}
	err := p.q.QueryRowContext(ctx, query, userID, models.MembershipActive).
		Scan(&m.ID, &m.UserID, &m.StartsAt, &m.ExpiresAt, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", transient(err))
	}
	return m, nil
}

// MembershipsPastWindow lists active memberships whose window has ended.
func (p *Postgres) MembershipsPastWindow(ctx context.Context, now time.Time) ([]models.FlexMembership, error) {
	query := `
		SELECT id, user_id, starts_at, expires_at, status, created_at
		FROM lending.memberships WHERE status = $1 AND expires_at <= $2`
	rows, err := p.q.QueryContext(ctx, query, models.MembershipActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired memberships: %w", transient(err))
	}
	defer rows.Close()
	var out []models.FlexMembership
	for rows.Next() {
		var m models.FlexMembership
		if err := rows.Scan(&m.ID, &m.UserID, &m.StartsAt, &m.ExpiresAt, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", transient(err))
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMembership persists a membership's status.
func (p *Postgres) UpdateMembership(ctx context.Context, m *models.FlexMembership) error {
	query := `UPDATE lending.memberships SET status = $2, expires_at = $3 WHERE id = $1`
	if _, err := p.q.ExecContext(ctx, query, m.ID, m.Status, m.ExpiresAt); err != nil {
		return fmt.Errorf("failed to update membership: %w", transient(err))
	}
	return nil
}

// CreateDelayRequest persists a delay request.
func (p *Postgres) CreateDelayRequest(ctx context.Context, req *models.DelayRequest) error {
	query := `
		INSERT INTO lending.delay_requests (loan_id, month_index, old_due_date,
			new_due_date, fee, extra_interest, total_charge, waived, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := p.q.QueryRowContext(ctx, query, req.LoanID, req.MonthIndex, req.OldDueDate,
		req.NewDueDate, req.Fee, req.ExtraInterest, req.TotalCharge, req.Waived, req.Status).
		Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create delay request: %w", transient(err))
	}
	return nil
}

// DelayRequestsByLoan lists a loan's delay requests, newest first.
func (p *Postgres) DelayRequestsByLoan(ctx context.Context, loanID int64) ([]models.DelayRequest, error) {
	query := `
		SELECT id, loan_id, month_index, old_due_date, new_due_date, fee,
			extra_interest, total_charge, waived, status, created_at
		FROM lending.delay_requests WHERE loan_id = $1 ORDER BY id DESC`
	rows, err := p.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delay requests: %w", transient(err))
	}
	defer rows.Close()
	var out []models.DelayRequest
	for rows.Next() {
		var r models.DelayRequest
		if err := rows.Scan(&r.ID, &r.LoanID, &r.MonthIndex, &r.OldDueDate, &r.NewDueDate,
			&r.Fee, &r.ExtraInterest, &r.TotalCharge, &r.Waived, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delay request: %w", transient(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
