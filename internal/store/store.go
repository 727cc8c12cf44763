package store

import (
	"context"
	"time"

	"github.com/credana/lending-service/internal/models"
	"github.com/shopspring/decimal"
)

// Store defines the persistence operations for the lending core. The
// Postgres implementation backs production; an in-memory implementation
// backs package tests.
//
// Methods taking a lock flag acquire an exclusive row lock for the rest of
// the enclosing unit of work, so concurrent operations on the same row
// serialize while unrelated rows never block each other.
type Store interface {
	// InTx runs fn inside one atomic unit of work. Every mutation fn makes
	// is committed together or not at all. Nested calls join the enclosing
	// unit.
	InTx(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateAccount(ctx context.Context, account *models.Account) error
	AccountByID(ctx context.Context, id int64, lock bool) (*models.Account, error)
	AccountByOwner(ctx context.Context, userID int64, kind models.AccountKind, lock bool) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	// CreditAccountIDs lists accounts with a non-zero used limit, for the
	// daily interest sweep.
	CreditAccountIDs(ctx context.Context) ([]int64, error)

	InsertTransaction(ctx context.Context, txn *models.LedgerTransaction) error
	// TransactionsByAccount pages through an account's ledger, newest first.
	TransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]models.LedgerTransaction, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	// LoanByID loads a loan together with its ordered schedule.
	LoanByID(ctx context.Context, id int64, lock bool) (*models.Loan, error)
	// LoansByStatus lists loans (with schedules) in the given status.
	LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error)
	LoansByUser(ctx context.Context, userID int64) ([]models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	ReplaceSchedule(ctx context.Context, loanID int64, rows []models.ScheduleRow) error
	UpdateScheduleRow(ctx context.Context, row *models.ScheduleRow) error
	// CompletedLoanStats returns the count and average principal of the
	// user's repaid loans.
	CompletedLoanStats(ctx context.Context, userID int64) (int, decimal.Decimal, error)

	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	IntentByReference(ctx context.Context, reference string, lock bool) (*models.PaymentIntent, error)
	UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error

	CreateMembership(ctx context.Context, m *models.FlexMembership) error
	// ActiveMembership returns the user's membership with status active, or
	// (nil, nil) when there is none.
	ActiveMembership(ctx context.Context, userID int64) (*models.FlexMembership, error)
	// MembershipsPastWindow lists active memberships whose validity window
	// ended before now, for the expiry sweep.
	MembershipsPastWindow(ctx context.Context, now time.Time) ([]models.FlexMembership, error)
	UpdateMembership(ctx context.Context, m *models.FlexMembership) error

	CreateDelayRequest(ctx context.Context, req *models.DelayRequest) error
	DelayRequestsByLoan(ctx context.Context, loanID int64) ([]models.DelayRequest, error)
}
