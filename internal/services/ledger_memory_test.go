package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondr/rembg/internal/apperrors"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(map[string]int64{"a@example.com": 3})

	t.Run("get", func(t *testing.T) {
		balance, err := ledger.GetBalance(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(3), balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := ledger.GetBalance(ctx, "nobody@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.AccountNotFound))

		err = ledger.SetBalance(ctx, "nobody@example.com", 1)
		assert.True(t, apperrors.HasCode(err, apperrors.AccountNotFound))
	})

	t.Run("compare and set", func(t *testing.T) {
		swapped, err := ledger.CompareAndSetBalance(ctx, "a@example.com", 2, 1)
		require.NoError(t, err)
		assert.False(t, swapped)

		swapped, err = ledger.CompareAndSetBalance(ctx, "a@example.com", 3, 2)
		require.NoError(t, err)
		assert.True(t, swapped)

		balance, _ := ledger.GetBalance(ctx, "a@example.com")
		assert.Equal(t, int64(2), balance)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ledger.GetBalance(cctx, "a@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.LedgerUnreachable))
	})
}
