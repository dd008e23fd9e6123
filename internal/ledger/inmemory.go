package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type memoryAccount struct {
	mu sync.Mutex // serializes all mutations for this account

	owner     string
	createdAt time.Time
	balance   int64
	txs       []Transaction
	byKey     map[string]int // "<kind>:<idempotency key>" -> index into txs
}

type inMemoryStore struct {
	mu       sync.RWMutex // guards the accounts map only
	accounts map[string]*memoryAccount
	lastTxID atomic.Int64
}

// NewInMemory creates a concurrency-safe in-memory ledger store. Each
// account carries its own mutex so mutations on different accounts proceed
// in parallel.
func NewInMemory() Store {
	return &inMemoryStore{accounts: make(map[string]*memoryAccount)}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, ownerUserID string) (Account, error) {
	acct := &memoryAccount{
		owner:     ownerUserID,
		createdAt: time.Now().UTC(),
		byKey:     make(map[string]int),
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.accounts[id] = acct
	s.mu.Unlock()

	return Account{ID: id, OwnerUserID: ownerUserID, Balance: 0, CreatedAt: acct.createdAt}, nil
}

func (s *inMemoryStore) account(id string) (*memoryAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	return acct, ok
}

func (s *inMemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	acct, ok := s.account(id)
	if !ok {
		return Account{}, ErrNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return Account{ID: id, OwnerUserID: acct.owner, Balance: acct.balance, CreatedAt: acct.createdAt}, nil
}

func (s *inMemoryStore) Balance(_ context.Context, id string) (int64, error) {
	acct, ok := s.account(id)
	if !ok {
		return 0, ErrNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, accountID string) ([]Transaction, error) {
	acct, ok := s.account(accountID)
	if !ok {
		return nil, ErrNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]Transaction, len(acct.txs))
	copy(out, acct.txs)
	return out, nil
}

func (s *inMemoryStore) Apply(_ context.Context, accountID string, signedAmount int64, kind Kind, idempotencyKey string) (Transaction, error) {
	if err := checkSignedAmount(signedAmount, kind); err != nil {
		return Transaction{}, err
	}

	acct, ok := s.account(accountID)
	if !ok {
		return Transaction{}, ErrNotFound
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if idempotencyKey != "" {
		if idx, exists := acct.byKey[string(kind)+":"+idempotencyKey]; exists {
			return acct.txs[idx], ErrDuplicateTransaction
		}
	}

	newBalance := acct.balance + signedAmount
	if newBalance < 0 {
		return Transaction{}, ErrInsufficientFunds
	}

	tx := Transaction{
		ID:             s.lastTxID.Add(1),
		AccountID:      accountID,
		SignedAmount:   signedAmount,
		Kind:           kind,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}

	acct.balance = newBalance
	acct.txs = append(acct.txs, tx)
	if idempotencyKey != "" {
		acct.byKey[string(kind)+":"+idempotencyKey] = len(acct.txs) - 1
	}

	return tx, nil
}
