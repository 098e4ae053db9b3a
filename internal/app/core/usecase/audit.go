package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const (
	// DefaultAuditLimit 查詢未指定 limit 時的筆數
	DefaultAuditLimit = 100
	// MaxAuditLimit 查詢上限
	MaxAuditLimit = 1000
	// DefaultAuditWriteTimeout 單筆稽核寫入的等待上限，逾時只記 log
	DefaultAuditWriteTimeout = 250 * time.Millisecond
)

// AuditTrail 只增不改的稽核紀錄。寫入失敗只記 log，不會影響主要操作。
type AuditTrail struct {
	store   Store
	timeout time.Duration
	options
}

func NewAuditTrail(store Store, opts ...Option) *AuditTrail {
	return &AuditTrail{
		store:   store,
		timeout: DefaultAuditWriteTimeout,
		options: newOptions(opts),
	}
}

// SetWriteTimeout 調整單筆寫入的等待上限，<= 0 維持原值
func (a *AuditTrail) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		a.timeout = d
	}
}

// Record 新增一筆稽核紀錄 (best-effort)。
// 使用脫離呼叫端取消的 context，主要操作已完成時仍能寫入；
// 最多等待 write timeout，主要操作的延遲不會超過這個上限。
func (a *AuditTrail) Record(ctx context.Context, event domain.EventType, actor domain.Actor, details map[string]any, subjectAccountID string) {
	now := a.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		auditWriteFailures.Inc()
		a.logger.Error("audit id generation failed", zap.String("event_type", string(event)), zap.Error(err))
		return
	}
	entry := &domain.AuditLogEntry{
		ID:               id.String(),
		EventType:        event,
		ActorIdentity:    actor.Identity,
		ActorIsAdmin:     actor.IsAdmin,
		Timestamp:        now,
		SubjectAccountID: subjectAccountID,
		Details:          details,
		Client:           actor.Client,
	}
	if !event.Valid() {
		auditWriteFailures.Inc()
		a.logger.Error("audit event type rejected", zap.String("event_type", string(event)))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if err := a.store.AppendAudit(writeCtx, entry); err != nil {
		auditWriteFailures.Inc()
		a.logger.Warn("audit write failed",
			zap.String("event_type", string(event)),
			zap.String("actor", actor.Identity),
			zap.String("subject_account_id", subjectAccountID),
			zap.Error(err),
		)
	}
}

// Query 依條件查詢，由新到舊，limit <= 0 使用預設值並限制上限
func (a *AuditTrail) Query(ctx context.Context, filter domain.AuditFilter, limit int) ([]*domain.AuditLogEntry, error) {
	if filter.EventType != "" && !filter.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, filter.EventType)
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	entries, err := a.store.QueryAudit(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return entries, nil
}
