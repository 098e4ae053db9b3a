package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Store 是持久層的介面 (文件式儲存：每個 collection 的 create/read/query + 原子批次寫入)
type Store interface {
	// CreateAccount 建立帳戶 (外部註冊流程與測試使用)
	CreateAccount(ctx context.Context, account *domain.Account) error
	// GetAccount 找不到時回傳 domain.ErrNotFound
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// UpdateBalanceCache 只有在帳戶目前的交易筆數仍等於 txCount 時才寫入，回傳是否寫入
	UpdateBalanceCache(ctx context.Context, accountID string, balance decimal.Decimal, txCount int64, at time.Time) (bool, error)

	// ListTransactions 依時間由舊到新排序
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)

	GetWithdrawalTask(ctx context.Context, taskID string) (*domain.WithdrawalTask, error)
	// ListWithdrawalTasks 依建立時間由新到舊排序
	ListWithdrawalTasks(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalTask, error)

	// GetSystemConfig 尚未設定時回傳 domain.ErrNotFound
	GetSystemConfig(ctx context.Context) (*domain.SystemConfig, error)
	SaveSystemConfig(ctx context.Context, cfg *domain.SystemConfig) error

	AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error
	// QueryAudit 依時間由新到舊排序，最多 limit 筆
	QueryAudit(ctx context.Context, filter domain.AuditFilter, limit int) ([]*domain.AuditLogEntry, error)

	// Commit 原子寫入一個 Batch：全部成功或全部不生效
	Commit(ctx context.Context, batch *Batch) error
}

// Batch 一個原子寫入單位
//
// 規則:
//
//	Transactions: 新增交易；store 在同一單位內依交易類型更新各帳戶的餘額快取與交易筆數
//	NewTasks: 新增提款任務
//	TaskUpdate: 條件式更新，資料庫中的狀態必須等於 ExpectedStatus
//
// 任一交易的 IdempotencyKey 已存在時整批回傳 domain.ErrDuplicate。
type Batch struct {
	Transactions []*domain.Transaction
	NewTasks     []*domain.WithdrawalTask
	TaskUpdate   *TaskUpdate
}

// TaskUpdate 條件式任務更新
type TaskUpdate struct {
	Task           *domain.WithdrawalTask
	ExpectedStatus domain.WithdrawalStatus
}

// Empty 是否沒有任何寫入
func (b *Batch) Empty() bool {
	return len(b.Transactions) == 0 && len(b.NewTasks) == 0 && b.TaskUpdate == nil
}

// Locker 以 key 為單位的互斥鎖 (例如 accountId + yearMonth)
type Locker interface {
	// TryLock 取得鎖，已被持有時回傳 domain.ErrLockHeld
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Notifier 提款審核結果通知 (best-effort)
type Notifier interface {
	NotifyWithdrawalDecision(ctx context.Context, n *domain.WithdrawalNotification) error
}

// Option 共用的服務選項
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger 設定 logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock 設定時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyWithdrawalDecision(context.Context, *domain.WithdrawalNotification) error {
	return nil
}

// nopLocker 單一實例部署時使用，重複計息仍由 store 的冪等鍵擋下
type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
