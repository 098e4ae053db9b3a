package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID                     string          `gorm:"primaryKey;type:varchar(64)"`
	OwnerIdentity          string          `gorm:"type:varchar(128);index"`
	DisplayName            string          `gorm:"type:varchar(255)"`
	Email                  string          `gorm:"type:varchar(255);index"`
	IsAdministrator        bool            `gorm:"index"`
	CachedBalance          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	CachedBalanceUpdatedAt *time.Time      `gorm:"type:datetime(6)"`
	CachedTransactionCount int64           `gorm:"not null;default:0"`
	CreatedAt              time.Time       `gorm:"type:datetime(6)"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
// idempotency_key 允許 NULL，MySQL 的 unique index 不會把多個 NULL 視為重複
type sqlTransaction struct {
	ID                  string          `gorm:"primaryKey;type:varchar(36)"`
	AccountID           string          `gorm:"type:varchar(64);not null;index:idx_tx_account_time,priority:1"`
	Type                string          `gorm:"type:varchar(32);not null"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Timestamp           time.Time       `gorm:"type:datetime(6);not null;index:idx_tx_account_time,priority:2"`
	Description         string          `gorm:"type:varchar(512)"`
	LinkedTransactionID *string         `gorm:"type:varchar(36);index"`
	JobID               *string         `gorm:"type:varchar(64);index"`
	CreatedBy           string          `gorm:"type:varchar(128)"`
	IdempotencyKey      *string         `gorm:"type:varchar(191);uniqueIndex"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// sqlWithdrawalTask 對應資料庫的 withdrawal_tasks 表
type sqlWithdrawalTask struct {
	ID                  string          `gorm:"primaryKey;type:varchar(36)"`
	AccountID           string          `gorm:"type:varchar(64);not null;index"`
	RequestedAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Description         string          `gorm:"type:varchar(512)"`
	Status              string          `gorm:"type:varchar(16);not null;index"`
	CreatedAt           time.Time       `gorm:"type:datetime(6);index"`
	DecidedAt           *time.Time      `gorm:"type:datetime(6)"`
	DecidedBy           string          `gorm:"type:varchar(128)"`
	LinkedTransactionID string          `gorm:"type:varchar(36)"`
	RejectionReason     string          `gorm:"type:varchar(1024)"`
	ArchivedAt          *time.Time      `gorm:"type:datetime(6)"`
}

func (*sqlWithdrawalTask) TableName() string {
	return "withdrawal_tasks"
}

// sqlAuditLog 對應資料庫的 audit_logs 表 (只增不改)
type sqlAuditLog struct {
	ID               string `gorm:"primaryKey;type:char(26)"`
	EventType        string `gorm:"type:varchar(64);not null;index"`
	ActorIdentity    string `gorm:"type:varchar(128);index"`
	ActorIsAdmin     bool
	Timestamp        time.Time      `gorm:"type:datetime(6);not null;index"`
	SubjectAccountID string         `gorm:"type:varchar(64);index"`
	Details          map[string]any `gorm:"serializer:json;type:json"`
	ClientIP         string         `gorm:"type:varchar(64)"`
	UserAgent        string         `gorm:"type:varchar(512)"`
	RequestID        string         `gorm:"type:varchar(64)"`
}

func (*sqlAuditLog) TableName() string {
	return "audit_logs"
}

// sqlSystemConfig 單列設定表，固定 id = 1
type sqlSystemConfig struct {
	ID                    uint            `gorm:"primaryKey"`
	InterestRatePercent   decimal.Decimal `gorm:"type:decimal(9,4);not null"`
	AllowNewRegistrations bool
	HouseAccountID        string    `gorm:"type:varchar(64)"`
	UpdatedAt             time.Time `gorm:"type:datetime(6)"`
}

func (*sqlSystemConfig) TableName() string {
	return "system_config"
}

const systemConfigRowID = 1

func allModels() []any {
	return []any{
		&sqlAccount{},
		&sqlTransaction{},
		&sqlWithdrawalTask{},
		&sqlAuditLog{},
		&sqlSystemConfig{},
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromAccount(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:                     a.ID,
		OwnerIdentity:          a.OwnerIdentity,
		DisplayName:            a.DisplayName,
		Email:                  a.Email,
		IsAdministrator:        a.IsAdministrator,
		CachedBalance:          a.CachedBalance,
		CachedBalanceUpdatedAt: utcPtr(a.CachedBalanceUpdatedAt),
		CachedTransactionCount: a.CachedTransactionCount,
		CreatedAt:              a.CreatedAt.UTC(),
	}
}

func (r *sqlAccount) toDomain() *domain.Account {
	a := &domain.Account{
		ID:                     r.ID,
		OwnerIdentity:          r.OwnerIdentity,
		DisplayName:            r.DisplayName,
		Email:                  r.Email,
		IsAdministrator:        r.IsAdministrator,
		CachedBalance:          r.CachedBalance,
		CachedTransactionCount: r.CachedTransactionCount,
		CreatedAt:              r.CreatedAt.UTC(),
	}
	if r.CachedBalanceUpdatedAt != nil {
		a.CachedBalanceUpdatedAt = r.CachedBalanceUpdatedAt.UTC()
	}
	return a
}

func fromTransaction(t *domain.Transaction) *sqlTransaction {
	return &sqlTransaction{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		Type:                string(t.Type),
		Amount:              t.Amount,
		Timestamp:           t.Timestamp.UTC(),
		Description:         t.Description,
		LinkedTransactionID: nullable(t.LinkedTransactionID),
		JobID:               nullable(t.JobID),
		CreatedBy:           t.CreatedBy,
		IdempotencyKey:      nullable(t.IdempotencyKey),
	}
}

// toDomain 在讀取邊界驗證類型，未知類型視為資料錯誤
func (r *sqlTransaction) toDomain() (*domain.Transaction, error) {
	typ, err := domain.ParseTransactionType(r.Type)
	if err != nil {
		return nil, err
	}
	return &domain.Transaction{
		ID:                  r.ID,
		AccountID:           r.AccountID,
		Type:                typ,
		Amount:              r.Amount,
		Timestamp:           r.Timestamp.UTC(),
		Description:         r.Description,
		LinkedTransactionID: deref(r.LinkedTransactionID),
		JobID:               deref(r.JobID),
		CreatedBy:           r.CreatedBy,
		IdempotencyKey:      deref(r.IdempotencyKey),
	}, nil
}

func fromTask(t *domain.WithdrawalTask) *sqlWithdrawalTask {
	r := &sqlWithdrawalTask{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		RequestedAmount:     t.RequestedAmount,
		Description:         t.Description,
		Status:              string(t.Status),
		CreatedAt:           t.CreatedAt.UTC(),
		DecidedBy:           t.DecidedBy,
		LinkedTransactionID: t.LinkedTransactionID,
		RejectionReason:     t.RejectionReason,
	}
	if t.DecidedAt != nil {
		r.DecidedAt = utcPtr(*t.DecidedAt)
	}
	if t.ArchivedAt != nil {
		r.ArchivedAt = utcPtr(*t.ArchivedAt)
	}
	return r
}

func (r *sqlWithdrawalTask) toDomain() (*domain.WithdrawalTask, error) {
	status, err := domain.ParseWithdrawalStatus(r.Status)
	if err != nil {
		return nil, err
	}
	t := &domain.WithdrawalTask{
		ID:                  r.ID,
		AccountID:           r.AccountID,
		RequestedAmount:     r.RequestedAmount,
		Description:         r.Description,
		Status:              status,
		CreatedAt:           r.CreatedAt.UTC(),
		DecidedBy:           r.DecidedBy,
		LinkedTransactionID: r.LinkedTransactionID,
		RejectionReason:     r.RejectionReason,
	}
	if r.DecidedAt != nil {
		d := r.DecidedAt.UTC()
		t.DecidedAt = &d
	}
	if r.ArchivedAt != nil {
		a := r.ArchivedAt.UTC()
		t.ArchivedAt = &a
	}
	return t, nil
}

func fromAudit(e *domain.AuditLogEntry) *sqlAuditLog {
	return &sqlAuditLog{
		ID:               e.ID,
		EventType:        string(e.EventType),
		ActorIdentity:    e.ActorIdentity,
		ActorIsAdmin:     e.ActorIsAdmin,
		Timestamp:        e.Timestamp.UTC(),
		SubjectAccountID: e.SubjectAccountID,
		Details:          e.Details,
		ClientIP:         e.Client.IP,
		UserAgent:        e.Client.UserAgent,
		RequestID:        e.Client.RequestID,
	}
}

func (r *sqlAuditLog) toDomain() *domain.AuditLogEntry {
	return &domain.AuditLogEntry{
		ID:               r.ID,
		EventType:        domain.EventType(r.EventType),
		ActorIdentity:    r.ActorIdentity,
		ActorIsAdmin:     r.ActorIsAdmin,
		Timestamp:        r.Timestamp.UTC(),
		SubjectAccountID: r.SubjectAccountID,
		Details:          r.Details,
		Client: domain.ClientContext{
			IP:        r.ClientIP,
			UserAgent: r.UserAgent,
			RequestID: r.RequestID,
		},
	}
}
