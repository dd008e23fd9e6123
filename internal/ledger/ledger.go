package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates an unknown account or user reference.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount indicates a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when a withdrawal would drive the account
	// balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided idempotency key already
	// produced a transaction for this account and kind; the prior transaction
	// is returned alongside it.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrConflict indicates an idempotency key reused with a mismatched
	// transaction. Defensive; unreachable when callers respect the
	// lookup-before-apply ordering.
	ErrConflict = errors.New("idempotency key conflict")

	// ErrStorageUnavailable wraps backing store failures. The ledger never
	// retries on its own.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Kind enumerates the directions a transaction can take.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	return k == KindDeposit || k == KindWithdraw
}

// Account is a balance-bearing ledger account. Balance is held in minor
// units and always equals the sum of the account's transaction amounts.
type Account struct {
	ID          string
	OwnerUserID string
	Balance     int64
	CreatedAt   time.Time
}

// Transaction is one immutable ledger entry. IDs are assigned monotonically
// per ledger and double as the ordering key.
type Transaction struct {
	ID             int64
	AccountID      string
	SignedAmount   int64
	Kind           Kind
	CreatedAt      time.Time
	IdempotencyKey string
}

// checkSignedAmount enforces sign/kind agreement: deposits post positive
// amounts, withdrawals negative. Both kinds go through the same atomic
// apply; the sign is never taken from the caller directly.
func checkSignedAmount(signedAmount int64, kind Kind) error {
	switch kind {
	case KindDeposit:
		if signedAmount <= 0 {
			return ErrInvalidAmount
		}
	case KindWithdraw:
		if signedAmount >= 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidAmount
	}
	return nil
}

// Store is the contract implemented by ledger backends. Apply is the sole
// mutation entry point: it re-reads the balance, checks the new balance is
// non-negative, writes it and appends the transaction as one indivisible
// step. Two Apply calls on the same account never observe a stale balance;
// calls on different accounts do not block each other.
type Store interface {
	CreateAccount(ctx context.Context, ownerUserID string) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	Balance(ctx context.Context, id string) (int64, error)
	Transactions(ctx context.Context, accountID string) ([]Transaction, error)
	Apply(ctx context.Context, accountID string, signedAmount int64, kind Kind, idempotencyKey string) (Transaction, error)
}
