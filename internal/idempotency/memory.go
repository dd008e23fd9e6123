package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minibank/minibank/internal/ledger"
)

type memoryEntry struct {
	tx        ledger.Transaction
	expiresAt time.Time
}

type memoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

// NewMemory builds an in-process guard used in tests and when no Redis is
// configured. A non-positive ttl keeps entries indefinitely.
func NewMemory(ttl time.Duration) Guard {
	return &memoryGuard{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (g *memoryGuard) Lookup(_ context.Context, accountID string, kind ledger.Kind, key string) (ledger.Transaction, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[scopedKey(accountID, kind, key)]
	if !ok {
		return ledger.Transaction{}, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(g.entries, scopedKey(accountID, kind, key))
		return ledger.Transaction{}, false, nil
	}
	return entry.tx, true, nil
}

func (g *memoryGuard) Register(_ context.Context, accountID string, kind ledger.Kind, key string, tx ledger.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := scopedKey(accountID, kind, key)
	if existing, ok := g.entries[k]; ok {
		if entryLive(existing) && existing.tx.ID != tx.ID {
			return fmt.Errorf("key %q bound to transaction %d, not %d: %w", key, existing.tx.ID, tx.ID, ledger.ErrConflict)
		}
	}

	entry := memoryEntry{tx: tx}
	if g.ttl > 0 {
		entry.expiresAt = time.Now().Add(g.ttl)
	}
	g.entries[k] = entry
	return nil
}

func entryLive(e memoryEntry) bool {
	return e.expiresAt.IsZero() || time.Now().Before(e.expiresAt)
}
