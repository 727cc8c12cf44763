package store

import "errors"

// Sentinel errors for every failure kind the ledger core can report.
// Business-rule violations are detected before any mutation and surface
// without partial effects; only ErrStoreUnavailable is safe to retry with
// the same inputs.
var (
	// ErrAccountNotFound is returned when an operation references an account
	// that does not exist. Callers create accounts explicitly via
	// GetOrCreateAccount before mutating them.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds is returned when a cash account's balance cannot
	// cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCreditLimitExceeded is returned when a purchase plus its processing
	// fee would not fit in the credit line's remaining headroom.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrDelayLimitExceeded is returned when an installment has already been
	// delayed the maximum number of times.
	ErrDelayLimitExceeded = errors.New("delay limit exceeded")

	// ErrRowAlreadySettled is returned when a delay targets a fully paid
	// installment.
	ErrRowAlreadySettled = errors.New("installment already settled")

	// ErrAlreadyFinalized is returned when a confirmation targets a payment
	// intent that already reached a different terminal state.
	ErrAlreadyFinalized = errors.New("payment already finalized")

	// ErrAlreadySubscribed is returned when a user with an active flex
	// membership tries to subscribe again.
	ErrAlreadySubscribed = errors.New("membership already active")

	// ErrInvalidReferenceFormat is returned when an external confirmation
	// reference does not match the expected format contract.
	ErrInvalidReferenceFormat = errors.New("invalid reference format")

	// ErrStoreUnavailable wraps transient storage failures (lock timeout,
	// connectivity). Retryable with the same reference.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrUserNotFound   = errors.New("user not found")
	ErrLoanNotFound   = errors.New("loan not found")
	ErrIntentNotFound = errors.New("payment intent not found")
)
