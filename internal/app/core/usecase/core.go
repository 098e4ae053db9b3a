package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// CoreConfig 核心參數
type CoreConfig struct {
	StalenessWindow  time.Duration
	ArchiveRetention time.Duration
	// AuditTimeout 單筆稽核寫入的等待上限，零值使用 DefaultAuditWriteTimeout
	AuditTimeout time.Duration
	Interest     InterestJobConfig
}

// CoreUseCase 是核心業務邏輯層，inbound adapter (gRPC、排程) 只透過它呼叫
type CoreUseCase struct {
	ledger     *Ledger
	audit      *AuditTrail
	interest   *InterestJob
	withdrawal *WithdrawalWorkflow
	statements *StatementService
}

// NewCoreUseCase 以同一個 store 組出所有服務
//
// 參數:
//
//	store: 持久層
//	locker: 利息批次的 per-key 鎖
//	notifier: 提款通知，nil 時不通知
//	cfg: 核心參數
func NewCoreUseCase(store Store, locker Locker, notifier Notifier, cfg CoreConfig, opts ...Option) *CoreUseCase {
	audit := NewAuditTrail(store, opts...)
	audit.SetWriteTimeout(cfg.AuditTimeout)
	ledger := NewLedger(store, cfg.StalenessWindow, opts...)
	ledger.audit = audit
	house := NewHouseResolver(store)
	return &CoreUseCase{
		ledger:     ledger,
		audit:      audit,
		interest:   NewInterestJob(store, ledger, audit, locker, cfg.Interest, opts...),
		withdrawal: NewWithdrawalWorkflow(store, ledger, house, audit, notifier, cfg.ArchiveRetention, opts...),
		statements: NewStatementService(store, ledger, audit, opts...),
	}
}

// Ledger 直接存取餘額引擎
func (c *CoreUseCase) Ledger() *Ledger {
	return c.ledger
}

// GetBalance 擁有者或管理員查詢餘額
func (c *CoreUseCase) GetBalance(ctx context.Context, actor domain.Actor, accountID string) (decimal.Decimal, error) {
	if err := requireOwnerOrAdmin(actor, accountID); err != nil {
		return decimal.Zero, err
	}
	return c.ledger.GetBalance(ctx, accountID), nil
}

// GetHistory 擁有者或管理員查詢交易紀錄
func (c *CoreUseCase) GetHistory(ctx context.Context, actor domain.Actor, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	if err := requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return c.ledger.History(ctx, accountID, from, to)
}

// TriggerInterestAccrual 手動或排程觸發利息批次
func (c *CoreUseCase) TriggerInterestAccrual(ctx context.Context, actor domain.Actor) (*domain.JobResult, error) {
	return c.interest.Run(ctx, actor)
}

// TriggerStatementGeneration 產生對帳資料
func (c *CoreUseCase) TriggerStatementGeneration(ctx context.Context, actor domain.Actor, req domain.StatementRequest) ([]*domain.StatementResult, error) {
	return c.statements.Generate(ctx, actor, req)
}

func (c *CoreUseCase) CreateWithdrawalRequest(ctx context.Context, actor domain.Actor, accountID string, amount decimal.Decimal, description string) (*domain.WithdrawalTask, error) {
	return c.withdrawal.CreateRequest(ctx, actor, accountID, amount, description)
}

func (c *CoreUseCase) ApproveWithdrawal(ctx context.Context, actor domain.Actor, taskID string) (*ApprovalResult, error) {
	return c.withdrawal.Approve(ctx, actor, taskID)
}

func (c *CoreUseCase) RejectWithdrawal(ctx context.Context, actor domain.Actor, taskID, reason string) (*domain.WithdrawalTask, error) {
	return c.withdrawal.Reject(ctx, actor, taskID, reason)
}

func (c *CoreUseCase) CancelWithdrawal(ctx context.Context, actor domain.Actor, taskID string) (*domain.WithdrawalTask, error) {
	return c.withdrawal.Cancel(ctx, actor, taskID)
}

func (c *CoreUseCase) GetWithdrawal(ctx context.Context, actor domain.Actor, taskID string) (*domain.WithdrawalTask, error) {
	return c.withdrawal.Get(ctx, actor, taskID)
}

func (c *CoreUseCase) ListWithdrawals(ctx context.Context, actor domain.Actor, filter domain.WithdrawalFilter) ([]*domain.WithdrawalTask, error) {
	return c.withdrawal.List(ctx, actor, filter)
}

// ArchiveWithdrawals housekeeping，由排程呼叫
func (c *CoreUseCase) ArchiveWithdrawals(ctx context.Context) (int, error) {
	return c.withdrawal.ArchiveExpired(ctx)
}

// QueryAuditLog 管理員查詢稽核紀錄
func (c *CoreUseCase) QueryAuditLog(ctx context.Context, actor domain.Actor, filter domain.AuditFilter, limit int) ([]*domain.AuditLogEntry, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: audit log is restricted to administrators", domain.ErrPermission)
	}
	return c.audit.Query(ctx, filter, limit)
}

func requireOwnerOrAdmin(actor domain.Actor, accountID string) error {
	if actor.IsAdmin || (actor.AccountID != "" && actor.AccountID == accountID) {
		return nil
	}
	return fmt.Errorf("%w: account %s belongs to another owner", domain.ErrPermission, accountID)
}
