package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minibank/minibank/internal/idempotency"
	"github.com/minibank/minibank/internal/ledger"
	"github.com/minibank/minibank/internal/notification"
)

// Service is the transaction processor: it turns an external deposit or
// withdrawal request into a validated ledger mutation, consulting the
// idempotency guard on either side of the apply.
type Service struct {
	store    ledger.Store
	guard    idempotency.Guard
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a transaction processor.
func NewService(store ledger.Store, guard idempotency.Guard, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, guard: guard, notifier: notifier, logger: logger}
}

// ProcessInput captures one mutation request. Amount is in minor units and
// must be positive; the sign of the ledger posting is derived from Kind,
// never taken from the caller.
type ProcessInput struct {
	AccountID      string
	Amount         int64
	Kind           ledger.Kind
	IdempotencyKey string
}

// Process validates and applies a single mutation. A request retried with
// the same idempotency key returns the original transaction without
// re-applying. Once the store has committed, the effect is final; a guard
// registration failure after commit is logged, not surfaced, since the
// store's own key probe still covers later retries.
func (s *Service) Process(ctx context.Context, in ProcessInput) (ledger.Transaction, error) {
	if in.Amount <= 0 {
		return ledger.Transaction{}, fmt.Errorf("amount %d: %w", in.Amount, ledger.ErrInvalidAmount)
	}
	if !in.Kind.Valid() {
		return ledger.Transaction{}, fmt.Errorf("kind %q: %w", in.Kind, ledger.ErrInvalidAmount)
	}

	if in.IdempotencyKey != "" && s.guard != nil {
		prior, found, err := s.guard.Lookup(ctx, in.AccountID, in.Kind, in.IdempotencyKey)
		if err != nil {
			return ledger.Transaction{}, err
		}
		if found {
			return prior, nil
		}
	}

	signed := in.Amount
	if in.Kind == ledger.KindWithdraw {
		signed = -in.Amount
	}

	tx, err := s.store.Apply(ctx, in.AccountID, signed, in.Kind, in.IdempotencyKey)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		// The store found a prior transaction for this key; answer with it.
		return tx, nil
	}
	if err != nil {
		return ledger.Transaction{}, err
	}

	if in.IdempotencyKey != "" && s.guard != nil {
		if err := s.guard.Register(ctx, in.AccountID, in.Kind, in.IdempotencyKey, tx); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				return ledger.Transaction{}, err
			}
			if s.logger != nil {
				s.logger.Warn("idempotency register failed after commit",
					slog.String("account_id", in.AccountID),
					slog.String("key", in.IdempotencyKey),
					slog.Any("error", err))
			}
		}
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransactionCommitted,
			Destination: in.AccountID,
			Body:        fmt.Sprintf("%s of %d applied to account %s", in.Kind, in.Amount, in.AccountID),
		})
	}

	return tx, nil
}

// Deposit credits the account.
func (s *Service) Deposit(ctx context.Context, accountID string, amount int64, idempotencyKey string) (ledger.Transaction, error) {
	return s.Process(ctx, ProcessInput{AccountID: accountID, Amount: amount, Kind: ledger.KindDeposit, IdempotencyKey: idempotencyKey})
}

// Withdraw debits the account, rejecting overdraw.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount int64, idempotencyKey string) (ledger.Transaction, error) {
	return s.Process(ctx, ProcessInput{AccountID: accountID, Amount: amount, Kind: ledger.KindWithdraw, IdempotencyKey: idempotencyKey})
}

// Balance reads the current account balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	return s.store.Balance(ctx, accountID)
}

// History returns the account's committed transactions in ledger order.
func (s *Service) History(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return s.store.Transactions(ctx, accountID)
}
