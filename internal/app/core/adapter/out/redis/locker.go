package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// ErrLockLost 釋放時鎖已過期或被其他持有者取得
var ErrLockLost = errors.New("lock not owned by this token")

// releaseScript 只刪除自己持有的鎖 (check-and-delete)
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker 以 Redis SET NX PX 實作的分散式鎖，多個實例同時跑利息批次時使用
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker
//
// 參數:
//
//	client: Redis client
//	prefix: key 前綴，例如 "bank:lock:"
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLockHeld)
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", key, ErrLockLost)
		}
		return nil
	}, nil
}

var _ usecase.Locker = (*Locker)(nil)
