package services

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondr/rembg/internal/apperrors"
)

func TestRedisLedger_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		ledger := NewRedisLedger(rdb)
		mock.ExpectGet("credits:user@example.com").SetVal("5")

		balance, err := ledger.GetBalance(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		ledger := NewRedisLedger(rdb)
		mock.ExpectGet("credits:ghost@example.com").RedisNil()

		_, err := ledger.GetBalance(ctx, "ghost@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.AccountNotFound))
	})

	t.Run("connection error", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		ledger := NewRedisLedger(rdb)
		mock.ExpectGet("credits:user@example.com").SetErr(errors.New("dial tcp: refused"))

		_, err := ledger.GetBalance(ctx, "user@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.LedgerUnreachable))
	})
}

func TestRedisLedger_SetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		ledger := NewRedisLedger(rdb)
		mock.ExpectSetXX("credits:user@example.com", int64(4), 0).SetVal(true)

		assert.NoError(t, ledger.SetBalance(ctx, "user@example.com", 4))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key is not created", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		ledger := NewRedisLedger(rdb)
		mock.ExpectSetXX("credits:ghost@example.com", int64(4), 0).SetVal(false)

		err := ledger.SetBalance(ctx, "ghost@example.com", 4)
		assert.True(t, apperrors.HasCode(err, apperrors.AccountNotFound))
	})
}

func TestRedisLedger_CompareAndSetBalance(t *testing.T) {
	ctx := context.Background()
	keys := []string{"credits:user@example.com"}

	tests := []struct {
		name        string
		scriptValue int64
		wantSwapped bool
		wantCode    apperrors.Code
	}{
		{"swapped", 1, true, ""},
		{"guard mismatch", 0, false, ""},
		{"missing account", -1, false, apperrors.AccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb, mock := redismock.NewClientMock()
			ledger := NewRedisLedger(rdb)
			mock.ExpectEval(compareAndSetScript, keys, int64(3), int64(2)).SetVal(tt.scriptValue)

			swapped, err := ledger.CompareAndSetBalance(ctx, "user@example.com", 3, 2)
			assert.Equal(t, tt.wantSwapped, swapped)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.HasCode(err, tt.wantCode))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisLedger_CompareAndSetGuardIsNumeric(t *testing.T) {
	// GetBalance parses "05" as 5, so the script guard must agree with it
	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet("credits:user@example.com").SetVal("05")

	balance, err := NewRedisLedger(rdb).GetBalance(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
	assert.Contains(t, compareAndSetScript, "tonumber(current) ~= tonumber(ARGV[1])")
}
