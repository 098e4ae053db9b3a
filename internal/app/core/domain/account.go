package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 帳戶。由外部註冊流程建立，核心只會更新快取欄位 (Cached*)。
type Account struct {
	ID              string `json:"id"`
	OwnerIdentity   string `json:"ownerIdentity"`
	DisplayName     string `json:"displayName"`
	Email           string `json:"email"`
	IsAdministrator bool   `json:"isAdministrator"`
	// 餘額快取，可能過期，交易紀錄才是唯一真相
	CachedBalance          decimal.Decimal `json:"cachedBalance"`
	CachedBalanceUpdatedAt time.Time       `json:"cachedBalanceUpdatedAt"`
	CachedTransactionCount int64           `json:"cachedTransactionCount"`
	CreatedAt              time.Time       `json:"createdAt"`
}

// CacheFresh 快取是否在有效視窗內
func (a *Account) CacheFresh(now time.Time, window time.Duration) bool {
	if a.CachedBalanceUpdatedAt.IsZero() {
		return false
	}
	return now.Sub(a.CachedBalanceUpdatedAt) < window
}

// Clone 回傳值拷貝，避免呼叫端改到 store 內部資料
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}
