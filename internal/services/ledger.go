package services

import (
	"context"
)

// LedgerClient reads and writes per-identity credit balances held by an
// external ledger. Implementations return *apperrors.Error values with codes
// LEDGER_UNREACHABLE or ACCOUNT_NOT_FOUND.
type LedgerClient interface {
	// GetBalance reads the current balance.
	GetBalance(ctx context.Context, identity string) (int64, error)

	// SetBalance unconditionally overwrites the balance.
	SetBalance(ctx context.Context, identity string, value int64) error

	// CompareAndSetBalance writes next only if the stored balance still equals
	// expected. It returns false with a nil error when the guard did not match.
	CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error)
}
