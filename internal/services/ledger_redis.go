package services

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/wondr/rembg/internal/apperrors"
)

const creditsKeyPrefix = "credits:"

// 1 swapped, 0 guard mismatch, -1 no such key
var compareAndSetScript = `
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
if tonumber(current) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1`

// RedisLedger keeps one integer string per identity under credits:{identity}.
type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func creditsKey(identity string) string {
	return creditsKeyPrefix + identity
}

func (l *RedisLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	balance, err := l.rdb.Get(ctx, creditsKey(identity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	if err != nil {
		return 0, apperrors.New(apperrors.LedgerUnreachable, "failed to fetch credits", err)
	}
	return balance, nil
}

func (l *RedisLedger) SetBalance(ctx context.Context, identity string, value int64) error {
	ok, err := l.rdb.SetXX(ctx, creditsKey(identity), value, 0).Result()
	if err != nil {
		return apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}
	if !ok {
		return apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	}
	return nil
}

func (l *RedisLedger) CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error) {
	res, err := l.rdb.Eval(ctx, compareAndSetScript, []string{creditsKey(identity)}, expected, next).Int64()
	if err != nil {
		return false, apperrors.New(apperrors.LedgerUnreachable, "failed to update credits", err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, apperrors.Newf(apperrors.AccountNotFound, "no credit account for %s", identity)
	default:
		return false, nil
	}
}
