package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// walOp WAL 紀錄類型
type walOp string

const (
	opCreateAccount walOp = "create_account"
	opBalanceCache  walOp = "balance_cache"
	opCommit        walOp = "commit"
	opConfig        walOp = "config"
	opAudit         walOp = "audit"
)

// walRecord 每一個會改變狀態的操作都先寫入 WAL，重啟時依序重放
type walRecord struct {
	Op      walOp                 `json:"op"`
	Account *domain.Account       `json:"account,omitempty"`
	Cache   *cacheUpdate          `json:"cache,omitempty"`
	Batch   *usecase.Batch        `json:"batch,omitempty"`
	Config  *domain.SystemConfig  `json:"config,omitempty"`
	Audit   *domain.AuditLogEntry `json:"audit,omitempty"`
}

type cacheUpdate struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
	Count     int64           `json:"count"`
	At        time.Time       `json:"at"`
}

// Store 是使用 RWMutex 保護的記憶體文件儲存
//
// 結構:
//
//	accounts / tasks: 以 ID 為 key 的文件
//	transactions: 依寫入順序的交易紀錄，txByKey 為冪等鍵唯一索引
//	audit: 只增不改的稽核紀錄
//	wal: Write-Ahead Log，nil 時只存在記憶體
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	transactions []*domain.Transaction
	txByID       map[string]*domain.Transaction
	txByKey      map[string]*domain.Transaction
	txCount      map[string]int64
	tasks        map[string]*domain.WithdrawalTask
	audit        []*domain.AuditLogEntry
	config       *domain.SystemConfig
	wal          *wal.WAL
}

// NewStore 建立 Store 並從 WAL 恢復狀態
//
// 參數:
//
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		accounts: make(map[string]*domain.Account),
		txByID:   make(map[string]*domain.Transaction),
		txByKey:  make(map[string]*domain.Transaction),
		txCount:  make(map[string]int64),
		tasks:    make(map[string]*domain.WithdrawalTask),
		wal:      w,
	}
	if w != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, fmt.Errorf("recover from wal: %w", err)
		}
	}
	return s, nil
}

// recoverFromWAL 依序重放 WAL，只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	return s.wal.Replay(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		switch rec.Op {
		case opCreateAccount:
			s.applyCreateAccount(rec.Account)
		case opBalanceCache:
			s.applyCacheUpdate(rec.Cache)
		case opCommit:
			s.applyBatch(rec.Batch)
		case opConfig:
			s.config = rec.Config
		case opAudit:
			s.audit = append(s.audit, rec.Audit)
		default:
			return fmt.Errorf("unknown wal op %q", rec.Op)
		}
		return nil
	})
}

// journal 寫入 WAL (Critical Path)，必須在改變記憶體狀態之前呼叫
func (s *Store) journal(rec walRecord) error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Append(rec); err != nil {
		return fmt.Errorf("wal write: %w", err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("account %s: %w", account.ID, domain.ErrDuplicate)
	}
	cp := account.Clone()
	if err := s.journal(walRecord{Op: opCreateAccount, Account: cp}); err != nil {
		return err
	}
	s.applyCreateAccount(cp)
	return nil
}

func (s *Store) applyCreateAccount(account *domain.Account) {
	s.accounts[account.ID] = account
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return a.Clone(), nil
}

// ListAccounts 依 ID 排序，讓批次處理順序穩定
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateBalanceCache(ctx context.Context, accountID string, balance decimal.Decimal, txCount int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return false, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	if s.txCount[accountID] != txCount {
		return false, nil
	}
	upd := &cacheUpdate{AccountID: accountID, Balance: balance, Count: txCount, At: at}
	if err := s.journal(walRecord{Op: opBalanceCache, Cache: upd}); err != nil {
		return false, err
	}
	s.applyCacheUpdate(upd)
	return true, nil
}

func (s *Store) applyCacheUpdate(upd *cacheUpdate) {
	a, ok := s.accounts[upd.AccountID]
	if !ok {
		return
	}
	a.CachedBalance = upd.Balance
	a.CachedTransactionCount = upd.Count
	a.CachedBalanceUpdatedAt = upd.At
}

// ListTransactions 依時間由舊到新 (同時間依寫入順序)
func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if filter.Match(tx) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) GetWithdrawalTask(ctx context.Context, taskID string) (*domain.WithdrawalTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("withdrawal task %s: %w", taskID, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

// ListWithdrawalTasks 依建立時間由新到舊
func (s *Store) ListWithdrawalTasks(ctx context.Context, filter domain.WithdrawalFilter) ([]*domain.WithdrawalTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.WithdrawalTask
	for _, t := range s.tasks {
		if filter.Match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetSystemConfig(ctx context.Context) (*domain.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, fmt.Errorf("system config: %w", domain.ErrNotFound)
	}
	cp := *s.config
	return &cp, nil
}

func (s *Store) SaveSystemConfig(ctx context.Context, cfg *domain.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	if err := s.journal(walRecord{Op: opConfig, Config: &cp}); err != nil {
		return err
	}
	s.config = &cp
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if err := s.journal(walRecord{Op: opAudit, Audit: &cp}); err != nil {
		return err
	}
	s.audit = append(s.audit, &cp)
	return nil
}

// QueryAudit 由新到舊；同一時間以 ID (ULID) 排序
func (s *Store) QueryAudit(ctx context.Context, filter domain.AuditFilter, limit int) ([]*domain.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AuditLogEntry
	for _, e := range s.audit {
		if filter.Match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Commit 先在鎖內檢查所有限制，全部通過才寫 WAL 並套用，任何失敗都不會留下部分狀態
func (s *Store) Commit(ctx context.Context, batch *usecase.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBatch(batch); err != nil {
		return err
	}
	if err := s.journal(walRecord{Op: opCommit, Batch: batch}); err != nil {
		return err
	}
	s.applyBatch(batch)
	return nil
}

func (s *Store) checkBatch(batch *usecase.Batch) error {
	keys := make(map[string]struct{})
	ids := make(map[string]struct{})
	for _, tx := range batch.Transactions {
		if err := tx.Validate(); err != nil {
			return err
		}
		if _, ok := s.accounts[tx.AccountID]; !ok {
			return fmt.Errorf("account %s: %w", tx.AccountID, domain.ErrNotFound)
		}
		if _, ok := s.txByID[tx.ID]; ok {
			return fmt.Errorf("transaction %s: %w", tx.ID, domain.ErrDuplicate)
		}
		if _, ok := ids[tx.ID]; ok {
			return fmt.Errorf("transaction %s: %w", tx.ID, domain.ErrDuplicate)
		}
		ids[tx.ID] = struct{}{}
		if tx.IdempotencyKey == "" {
			continue
		}
		if _, ok := s.txByKey[tx.IdempotencyKey]; ok {
			return fmt.Errorf("%s: %w", tx.IdempotencyKey, domain.ErrDuplicate)
		}
		if _, ok := keys[tx.IdempotencyKey]; ok {
			return fmt.Errorf("%s: %w", tx.IdempotencyKey, domain.ErrDuplicate)
		}
		keys[tx.IdempotencyKey] = struct{}{}
	}
	for _, t := range batch.NewTasks {
		if !t.Status.Valid() {
			return fmt.Errorf("%w: unknown withdrawal status %q", domain.ErrValidation, t.Status)
		}
		if _, ok := s.tasks[t.ID]; ok {
			return fmt.Errorf("withdrawal task %s: %w", t.ID, domain.ErrDuplicate)
		}
	}
	if u := batch.TaskUpdate; u != nil {
		current, ok := s.tasks[u.Task.ID]
		if !ok {
			return fmt.Errorf("withdrawal task %s: %w", u.Task.ID, domain.ErrNotFound)
		}
		if current.Status != u.ExpectedStatus || !current.Status.CanTransitionTo(u.Task.Status) {
			return &domain.TransitionError{TaskID: u.Task.ID, From: current.Status, To: u.Task.Status}
		}
	}
	return nil
}

// applyBatch 套用已檢查過的 Batch (live 與 recover 共用)
func (s *Store) applyBatch(batch *usecase.Batch) {
	for _, tx := range batch.Transactions {
		cp := *tx
		s.transactions = append(s.transactions, &cp)
		s.txByID[cp.ID] = &cp
		if cp.IdempotencyKey != "" {
			s.txByKey[cp.IdempotencyKey] = &cp
		}
		s.txCount[cp.AccountID]++
		if a, ok := s.accounts[cp.AccountID]; ok {
			a.CachedBalance = a.CachedBalance.Add(cp.SignedAmount())
			a.CachedTransactionCount++
		}
	}
	for _, t := range batch.NewTasks {
		s.tasks[t.ID] = t.Clone()
	}
	if u := batch.TaskUpdate; u != nil {
		s.tasks[u.Task.ID] = u.Task.Clone()
	}
}

var _ usecase.Store = (*Store)(nil)
