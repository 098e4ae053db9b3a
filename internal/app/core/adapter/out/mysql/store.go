package mysql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// Store 以 MySQL (GORM) 實作的持久層
type Store struct {
	client *mysql.Client
}

func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
	}
}

// Migrate 建立或更新資料表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.client.DB().WithContext(ctx)
}

// translate 把 GORM 錯誤轉成 domain 錯誤
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, domain.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	return translate(s.db(ctx).Create(fromAccount(account)).Error, "account "+account.ID)
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var row sqlAccount
	if err := s.db(ctx).Where("id = ?", accountID).First(&row).Error; err != nil {
		return nil, translate(err, "account "+accountID)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list accounts")
	}
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// UpdateBalanceCache 只有在 transactions 表中的筆數仍等於 txCount 時才寫入
func (s *Store) UpdateBalanceCache(ctx context.Context, accountID string, balance decimal.Decimal, txCount int64, at time.Time) (bool, error) {
	countSub := s.db(ctx).Model(&sqlTransaction{}).Select("COUNT(*)").Where("account_id = ?", accountID)
	res := s.db(ctx).Model(&sqlAccount{}).
		Where("id = ? AND (?) = ?", accountID, countSub, txCount).
		Updates(map[string]any{
			"cached_balance":            balance,
			"cached_transaction_count":  txCount,
			"cached_balance_updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, translate(res.Error, "update balance cache "+accountID)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	q := s.db(ctx).Model(&sqlTransaction{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp < ?", filter.To.UTC())
	}
	if filter.LinkedTransactionID != "" {
		q = q.Where("linked_transaction_id = ?", filter.LinkedTransactionID)
	}
	if filter.IdempotencyKey != "" {
		q = q.Where("idempotency_key = ?", filter.IdempotencyKey)
	}

	var rows []sqlTransaction
	if err := q.Order("timestamp ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list transactions")
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", rows[i].ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) GetWithdrawalTask(ctx context.Context, taskID string) (*domain.WithdrawalTask, error) {
	var row sqlWithdrawalTask
	if err := s.db(ctx).Where("id = ?", taskID).First(&row).Error; err != nil {
		return nil, translate(err, "withdrawal task "+taskID)
	}
	return row.toDomain()
}

func (s *Store) ListWithdrawalTasks(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalTask, error) {
	q := s.db(ctx).Model(&sqlWithdrawalTask{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	} else if !filter.IncludeArchived {
		q = q.Where("status <> ?", string(domain.WithdrawalStatusArchived))
	}
	if !filter.DecidedBefore.IsZero() {
		q = q.Where("decided_at IS NOT NULL AND decided_at < ?", filter.DecidedBefore.UTC())
	}

	var rows []sqlWithdrawalTask
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, translate(err, "list withdrawal tasks")
	}
	out := make([]*domain.WithdrawalTask, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("withdrawal task %s: %w", rows[i].ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) GetSystemConfig(ctx context.Context) (*domain.SystemConfig, error) {
	var row sqlSystemConfig
	if err := s.db(ctx).Where("id = ?", systemConfigRowID).First(&row).Error; err != nil {
		return nil, translate(err, "system config")
	}
	return &domain.SystemConfig{
		InterestRatePercent:   row.InterestRatePercent,
		AllowNewRegistrations: row.AllowNewRegistrations,
		HouseAccountID:        row.HouseAccountID,
		UpdatedAt:             row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) SaveSystemConfig(ctx context.Context, cfg *domain.SystemConfig) error {
	row := &sqlSystemConfig{
		ID:                    systemConfigRowID,
		InterestRatePercent:   cfg.InterestRatePercent,
		AllowNewRegistrations: cfg.AllowNewRegistrations,
		HouseAccountID:        cfg.HouseAccountID,
		UpdatedAt:             cfg.UpdatedAt.UTC(),
	}
	return translate(s.db(ctx).Save(row).Error, "save system config")
}

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	return translate(s.db(ctx).Create(fromAudit(entry)).Error, "audit "+entry.ID)
}

func (s *Store) QueryAudit(ctx context.Context, filter domain.AuditFilter, limit int) ([]*domain.AuditLogEntry, error) {
	q := s.db(ctx).Model(&sqlAuditLog{})
	if filter.EventType != "" {
		q = q.Where("event_type = ?", string(filter.EventType))
	}
	if filter.ActorID != "" {
		q = q.Where("actor_identity = ?", filter.ActorID)
	}
	if filter.SubjectAccountID != "" {
		q = q.Where("subject_account_id = ?", filter.SubjectAccountID)
	}
	if !filter.StartDate.IsZero() {
		q = q.Where("timestamp >= ?", filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		q = q.Where("timestamp < ?", filter.EndDate.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []sqlAuditLog
	if err := q.Order("timestamp DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, translate(err, "query audit")
	}
	out := make([]*domain.AuditLogEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// Commit 在單一資料庫交易中寫入整個 Batch
//
// 流程:
//
//  1. TaskUpdate: SELECT ... FOR UPDATE 鎖住任務並檢查目前狀態 (悲觀鎖)
//  2. 新增提款任務
//  3. 依帳戶累加餘額快取與交易筆數 (帳戶不存在時中止)
//  4. 寫入交易；idempotency_key 唯一索引衝突時整批回滾並回傳 domain.ErrDuplicate
func (s *Store) Commit(ctx context.Context, batch *usecase.Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}
	for _, tx := range batch.Transactions {
		if err := tx.Validate(); err != nil {
			return err
		}
	}

	return s.db(ctx).Transaction(func(db *gorm.DB) error {
		if u := batch.TaskUpdate; u != nil {
			var current sqlWithdrawalTask
			err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", u.Task.ID).
				First(&current).Error
			if err != nil {
				return translate(err, "withdrawal task "+u.Task.ID)
			}
			from := domain.WithdrawalStatus(current.Status)
			if from != u.ExpectedStatus || !from.CanTransitionTo(u.Task.Status) {
				return &domain.TransitionError{TaskID: u.Task.ID, From: from, To: u.Task.Status}
			}
		}

		for _, t := range batch.NewTasks {
			if err := db.Create(fromTask(t)).Error; err != nil {
				return translate(err, "withdrawal task "+t.ID)
			}
		}

		deltas := make(map[string]decimal.Decimal)
		counts := make(map[string]int64)
		for _, tx := range batch.Transactions {
			deltas[tx.AccountID] = deltas[tx.AccountID].Add(tx.SignedAmount())
			counts[tx.AccountID]++
		}
		accountIDs := make([]string, 0, len(deltas))
		for id := range deltas {
			accountIDs = append(accountIDs, id)
		}
		// 固定順序更新，避免兩個批次互相等待
		sort.Strings(accountIDs)
		for _, id := range accountIDs {
			res := db.Model(&sqlAccount{}).Where("id = ?", id).Updates(map[string]any{
				"cached_balance":           gorm.Expr("cached_balance + ?", deltas[id]),
				"cached_transaction_count": gorm.Expr("cached_transaction_count + ?", counts[id]),
			})
			if res.Error != nil {
				return translate(res.Error, "account "+id)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
			}
		}

		if len(batch.Transactions) > 0 {
			rows := make([]*sqlTransaction, 0, len(batch.Transactions))
			for _, tx := range batch.Transactions {
				rows = append(rows, fromTransaction(tx))
			}
			if err := db.Create(&rows).Error; err != nil {
				return translate(err, "insert transactions")
			}
		}

		if u := batch.TaskUpdate; u != nil {
			if err := db.Save(fromTask(u.Task)).Error; err != nil {
				return translate(err, "withdrawal task "+u.Task.ID)
			}
		}
		return nil
	})
}

var _ usecase.Store = (*Store)(nil)
