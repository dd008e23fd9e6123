package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minibank/minibank/internal/ledger"
)

const redisPrefix = "idempotency:v1:"

// RedisGuard stores key-to-transaction bindings in Redis with a bounded
// retention window. Retries arriving after an entry expires are still
// deduplicated by the ledger store's own idempotency probe; the guard is the
// fast path.
type RedisGuard struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisGuard builds a Redis-backed guard. Entries expire after ttl; a
// non-positive ttl keeps them indefinitely.
func NewRedisGuard(cache *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisGuard{cache: cache, ttl: ttl}
}

func (g *RedisGuard) Lookup(ctx context.Context, accountID string, kind ledger.Kind, key string) (ledger.Transaction, bool, error) {
	payload, err := g.cache.Get(ctx, redisPrefix+scopedKey(accountID, kind, key)).Result()
	if errors.Is(err, redis.Nil) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, fmt.Errorf("idempotency lookup: %w", errors.Join(ledger.ErrStorageUnavailable, err))
	}

	var tx ledger.Transaction
	if err := json.Unmarshal([]byte(payload), &tx); err != nil {
		return ledger.Transaction{}, false, fmt.Errorf("decode stored transaction: %w", err)
	}
	return tx, true, nil
}

func (g *RedisGuard) Register(ctx context.Context, accountID string, kind ledger.Kind, key string, tx ledger.Transaction) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	cacheKey := redisPrefix + scopedKey(accountID, kind, key)
	set, err := g.cache.SetNX(ctx, cacheKey, payload, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("idempotency register: %w", errors.Join(ledger.ErrStorageUnavailable, err))
	}
	if set {
		return nil
	}

	existing, found, err := g.Lookup(ctx, accountID, kind, key)
	if err != nil {
		return err
	}
	if found && existing.ID != tx.ID {
		return fmt.Errorf("key %q bound to transaction %d, not %d: %w", key, existing.ID, tx.ID, ledger.ErrConflict)
	}
	return nil
}
