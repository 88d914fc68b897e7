package services

import (
	"context"
	"sync"

	"github.com/wondr/rembg/internal/apperrors"
)

// MemoryLedger keeps balances in process memory. Used for local development
// and tests; balances do not survive a restart.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryLedger(seed map[string]int64) *MemoryLedger {
	balances := make(map[string]int64, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &MemoryLedger{balances: balances}
}

func (l *MemoryLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.New(apperrors.LedgerUnreachable, "ledger call cancelled", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[identity]
	if !ok {
		return 0, apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	return balance, nil
}

func (l *MemoryLedger) SetBalance(ctx context.Context, identity string, value int64) error {
	if err := ctx.Err(); err != nil {
		return apperrors.New(apperrors.LedgerUnreachable, "ledger call cancelled", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[identity]; !ok {
		return apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	l.balances[identity] = value
	return nil
}

func (l *MemoryLedger) CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.New(apperrors.LedgerUnreachable, "ledger call cancelled", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.balances[identity]
	if !ok {
		return false, apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	if current != expected {
		return false, nil
	}
	l.balances[identity] = next
	return true, nil
}

// Put creates or replaces an account balance
func (l *MemoryLedger) Put(identity string, value int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[identity] = value
}
