package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// PostgresStore persists accounts and their append-only transaction log in
// PostgreSQL. Per-account serialization comes from locking the account row
// for the duration of the apply transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateAccount inserts a zero-balance account owned by the given user.
func (s *PostgresStore) CreateAccount(ctx context.Context, ownerUserID string) (Account, error) {
	owner, err := uuid.Parse(ownerUserID)
	if err != nil {
		return Account{}, fmt.Errorf("owner %q: %w", ownerUserID, ErrNotFound)
	}

	id := uuid.New()
	createdAt := time.Now().UTC()
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (id, owner_user_id, balance, created_at)
        VALUES ($1, $2, 0, $3)`, id, owner, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return Account{}, fmt.Errorf("owner %q: %w", ownerUserID, ErrNotFound)
		}
		return Account{}, storageErr("create account", err)
	}

	return Account{ID: id.String(), OwnerUserID: ownerUserID, Balance: 0, CreatedAt: createdAt}, nil
}

// GetAccount fetches a single account row.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, fmt.Errorf("account %q: %w", id, ErrNotFound)
	}

	row := s.db.QueryRow(ctx, `SELECT owner_user_id, balance, created_at FROM accounts WHERE id = $1`, accountID)
	var (
		owner     uuid.UUID
		acct      Account
		createdAt time.Time
	)
	if err := row.Scan(&owner, &acct.Balance, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account %q: %w", id, ErrNotFound)
		}
		return Account{}, storageErr("get account", err)
	}
	acct.ID = id
	acct.OwnerUserID = owner.String()
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

// Balance returns the stored balance for the account.
func (s *PostgresStore) Balance(ctx context.Context, id string) (int64, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transactions returns the account's entries in commit order.
func (s *PostgresStore) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}

	// Distinguish "no transactions yet" from "no such account".
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT id, signed_amount, kind, created_at, idempotency_key
        FROM transactions WHERE account_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx        Transaction
			kind      string
			key       *string
			createdAt time.Time
		)
		if err := rows.Scan(&tx.ID, &tx.SignedAmount, &kind, &createdAt, &key); err != nil {
			return nil, storageErr("scan transaction", err)
		}
		tx.AccountID = accountID
		tx.Kind = Kind(kind)
		tx.CreatedAt = createdAt.UTC()
		if key != nil {
			tx.IdempotencyKey = *key
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transactions", err)
	}
	return out, nil
}

// Apply locks the account row, checks the idempotency key, rejects overdraw
// and writes the new balance plus the transaction record in one database
// transaction.
func (s *PostgresStore) Apply(ctx context.Context, accountID string, signedAmount int64, kind Kind, idempotencyKey string) (Transaction, error) {
	if err := checkSignedAmount(signedAmount, kind); err != nil {
		return Transaction{}, err
	}
	id, err := uuid.Parse(accountID)
	if err != nil {
		return Transaction{}, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}

	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, storageErr("begin", err)
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	var balance int64
	if err := dbtx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
		}
		return Transaction{}, storageErr("lock account", err)
	}

	if idempotencyKey != "" {
		prior, found, err := priorTransaction(ctx, dbtx, id, kind, idempotencyKey)
		if err != nil {
			return Transaction{}, err
		}
		if found {
			prior.AccountID = accountID
			return prior, ErrDuplicateTransaction
		}
	}

	newBalance := balance + signedAmount
	if newBalance < 0 {
		return Transaction{}, ErrInsufficientFunds
	}

	if _, err := dbtx.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, newBalance, id); err != nil {
		return Transaction{}, storageErr("update balance", err)
	}

	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}
	createdAt := time.Now().UTC()

	tx := Transaction{
		AccountID:      accountID,
		SignedAmount:   signedAmount,
		Kind:           kind,
		CreatedAt:      createdAt,
		IdempotencyKey: idempotencyKey,
	}
	err = dbtx.QueryRow(ctx, `INSERT INTO transactions (account_id, signed_amount, kind, created_at, idempotency_key)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`, id, signedAmount, string(kind), createdAt, key).Scan(&tx.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Transaction{}, ErrConflict
		}
		return Transaction{}, storageErr("insert transaction", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return Transaction{}, storageErr("commit", err)
	}

	return tx, nil
}

func priorTransaction(ctx context.Context, dbtx pgx.Tx, accountID uuid.UUID, kind Kind, key string) (Transaction, bool, error) {
	row := dbtx.QueryRow(ctx, `SELECT id, signed_amount, created_at FROM transactions
        WHERE account_id = $1 AND kind = $2 AND idempotency_key = $3`, accountID, string(kind), key)

	var (
		tx        Transaction
		createdAt time.Time
	)
	if err := row.Scan(&tx.ID, &tx.SignedAmount, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, storageErr("probe idempotency key", err)
	}
	tx.Kind = kind
	tx.CreatedAt = createdAt.UTC()
	tx.IdempotencyKey = key
	return tx, true, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorageUnavailable, err))
}
