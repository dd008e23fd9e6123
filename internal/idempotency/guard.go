// Package idempotency maps idempotency keys to the transactions they
// produced so retried mutation requests are answered with the original
// result instead of applying twice. Keys are scoped per account and kind.
package idempotency

import (
	"context"
	"fmt"

	"github.com/minibank/minibank/internal/ledger"
)

// Guard is consulted by the transaction processor before and after applying
// a mutation. Register reports ledger.ErrConflict when the key is already
// bound to a different transaction; that should be unreachable when the
// lookup-then-apply ordering is respected.
type Guard interface {
	Lookup(ctx context.Context, accountID string, kind ledger.Kind, key string) (ledger.Transaction, bool, error)
	Register(ctx context.Context, accountID string, kind ledger.Kind, key string, tx ledger.Transaction) error
}

func scopedKey(accountID string, kind ledger.Kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", accountID, kind, key)
}
