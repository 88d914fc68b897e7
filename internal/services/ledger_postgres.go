package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wondr/rembg/internal/apperrors"
)

const creditAccountsSchema = `
	CREATE TABLE IF NOT EXISTS credit_accounts (
		identity   TEXT PRIMARY KEY,
		credits    BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
		version    INT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// PostgresLedger stores balances in the credit_accounts table. Every write
// bumps version, and the compare-and-set variant only succeeds when the row
// still carries the balance the caller read.
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

// EnsureSchema creates credit_accounts if it does not exist yet
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, creditAccountsSchema); err != nil {
		return apperrors.New(apperrors.LedgerUnreachable, "failed to create credit_accounts", err)
	}
	return nil
}

func (l *PostgresLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	var credits int64
	err := l.db.QueryRowContext(ctx, `
		SELECT credits
		FROM credit_accounts
		WHERE identity = $1`, identity).Scan(&credits)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	if err != nil {
		return 0, apperrors.New(apperrors.LedgerUnreachable, "failed to fetch credits", err)
	}
	return credits, nil
}

func (l *PostgresLedger) SetBalance(ctx context.Context, identity string, value int64) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE credit_accounts
		SET credits = $1, version = version + 1, updated_at = $2
		WHERE identity = $3`,
		value, l.now(), identity)
	if err != nil {
		return apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}
	if rowsAffected == 0 {
		return apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	return nil
}

func (l *PostgresLedger) CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		UPDATE credit_accounts
		SET credits = $1, version = version + 1, updated_at = $2
		WHERE identity = $3 AND credits = $4`,
		next, l.now(), identity, expected)
	if err != nil {
		return false, apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}
	return rowsAffected == 1, nil
}
