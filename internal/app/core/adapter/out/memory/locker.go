package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// Locker 單一程序內的 key 鎖，過期的鎖視為已釋放
type Locker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewLocker() *Locker {
	return &Locker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// TryLock 取得 key 的鎖，已被持有且未過期時回傳 domain.ErrLockHeld。
// 回傳的 unlock 只會釋放自己持有的那一次 (過期後被別人取得時不會誤刪)。
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLockHeld)
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.leases[key]; ok && cur.token == token {
			delete(l.leases, key)
		}
		return nil
	}, nil
}

var _ usecase.Locker = (*Locker)(nil)
