package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_DepositRecordsTransaction(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, err := s.CreateAccount(ctx, "user-1")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if acct.Balance != 0 {
		t.Fatalf("new account balance = %d, want 0", acct.Balance)
	}

	tx, err := s.Apply(ctx, acct.ID, 10_000, KindDeposit, "")
	if err != nil {
		t.Fatalf("apply deposit: %v", err)
	}
	if tx.SignedAmount != 10_000 || tx.Kind != KindDeposit {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	balance, err := s.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10_000 {
		t.Fatalf("balance = %d, want 10000", balance)
	}

	txs, err := s.Transactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestInMemoryStore_RejectsOverdraw(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")
	if _, err := s.Apply(ctx, acct.ID, 10_000, KindDeposit, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := s.Apply(ctx, acct.ID, -15_000, KindWithdraw, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := s.Balance(ctx, acct.ID)
	if balance != 10_000 {
		t.Fatalf("balance changed on rejected withdrawal: %d", balance)
	}
}

func TestInMemoryStore_ExactDrain(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")
	s.Apply(ctx, acct.ID, 10_000, KindDeposit, "")

	if _, err := s.Apply(ctx, acct.ID, -10_000, KindWithdraw, ""); err != nil {
		t.Fatalf("withdraw full balance: %v", err)
	}
	balance, _ := s.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}

	if _, err := s.Apply(ctx, acct.ID, -1, KindWithdraw, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds on empty account, got %v", err)
	}
}

func TestInMemoryStore_DuplicateIdempotencyKey(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")

	first, err := s.Apply(ctx, acct.ID, 5_000, KindDeposit, "k1")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	second, err := s.Apply(ctx, acct.ID, 5_000, KindDeposit, "k1")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned transaction %d, want original %d", second.ID, first.ID)
	}

	balance, _ := s.Balance(ctx, acct.ID)
	if balance != 5_000 {
		t.Fatalf("balance = %d, want 5000 (applied once)", balance)
	}

	// Same key under the other kind is a different logical request.
	if _, err := s.Apply(ctx, acct.ID, -1_000, KindWithdraw, "k1"); err != nil {
		t.Fatalf("same key different kind: %v", err)
	}
}

func TestInMemoryStore_RejectsSignKindMismatch(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")

	if _, err := s.Apply(ctx, acct.ID, -100, KindDeposit, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative deposit: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := s.Apply(ctx, acct.ID, 100, KindWithdraw, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("positive withdrawal: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := s.Apply(ctx, acct.ID, 0, KindDeposit, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
}

func TestInMemoryStore_UnknownAccount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.Balance(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Apply(ctx, "missing", 100, KindDeposit, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_ConcurrentWithdrawals(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")
	if _, err := s.Apply(ctx, acct.ID, 10_000, KindDeposit, ""); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	// 10 workers racing to withdraw 30.00 from 100.00: exactly 3 may win.
	const workers = 10
	const amount = int64(3_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Apply(ctx, acct.ID, -amount, KindWithdraw, fmt.Sprintf("w-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("withdrawal %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 || rejected != 7 {
		t.Fatalf("got %d successes and %d rejections, want 3 and 7", succeeded, rejected)
	}

	balance, _ := s.Balance(ctx, acct.ID)
	if balance != 1_000 {
		t.Fatalf("final balance = %d, want 1000", balance)
	}

	assertBalanceMatchesHistory(t, s, acct.ID)
}

func TestInMemoryStore_ConcurrentMixedOperations(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	a, _ := s.CreateAccount(ctx, "user-1")
	b, _ := s.CreateAccount(ctx, "user-2")

	const rounds = 50
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Apply(ctx, a.ID, 100, KindDeposit, "")
		}()
		go func() {
			defer wg.Done()
			s.Apply(ctx, b.ID, 200, KindDeposit, "")
		}()
	}
	wg.Wait()

	balA, _ := s.Balance(ctx, a.ID)
	balB, _ := s.Balance(ctx, b.ID)
	if balA != rounds*100 {
		t.Fatalf("account a balance = %d, want %d", balA, rounds*100)
	}
	if balB != rounds*200 {
		t.Fatalf("account b balance = %d, want %d", balB, rounds*200)
	}

	assertBalanceMatchesHistory(t, s, a.ID)
	assertBalanceMatchesHistory(t, s, b.ID)
}

func TestInMemoryStore_TransactionIDsMonotonic(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acct, _ := s.CreateAccount(ctx, "user-1")
	for i := 0; i < 5; i++ {
		if _, err := s.Apply(ctx, acct.ID, 100, KindDeposit, ""); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	txs, _ := s.Transactions(ctx, acct.ID)
	for i := 1; i < len(txs); i++ {
		if txs[i].ID <= txs[i-1].ID {
			t.Fatalf("transaction ids not increasing: %d then %d", txs[i-1].ID, txs[i].ID)
		}
	}
}

func assertBalanceMatchesHistory(t *testing.T, s Store, accountID string) {
	t.Helper()
	ctx := context.Background()

	balance, err := s.Balance(ctx, accountID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance < 0 {
		t.Fatalf("balance went negative: %d", balance)
	}

	txs, err := s.Transactions(ctx, accountID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.SignedAmount
	}
	if sum != balance {
		t.Fatalf("balance %d != transaction sum %d", balance, sum)
	}
}
