package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/minibank/minibank/internal/identity"
	"github.com/minibank/minibank/internal/ledger"
)

// ErrNotOwner indicates the caller does not own the account it is acting on.
var ErrNotOwner = errors.New("not owner of account")

// Service provisions accounts on top of the ledger store and enforces
// ownership. All balance mutation goes through the ledger; this layer never
// touches balances directly.
type Service struct {
	store ledger.Store
	users identity.Repository
}

// NewService builds an account service.
func NewService(store ledger.Store, users identity.Repository) *Service {
	return &Service{store: store, users: users}
}

// Create opens a zero-balance account for the given user.
func (s *Service) Create(ctx context.Context, ownerUserID string) (ledger.Account, error) {
	if _, err := s.users.FindByID(ctx, ownerUserID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ledger.Account{}, fmt.Errorf("owner %q: %w", ownerUserID, ledger.ErrNotFound)
		}
		return ledger.Account{}, err
	}
	return s.store.CreateAccount(ctx, ownerUserID)
}

// Get fetches account metadata.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// Authorize verifies that userID owns the account.
func (s *Service) Authorize(ctx context.Context, accountID, userID string) error {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.OwnerUserID != userID {
		return ErrNotOwner
	}
	return nil
}
