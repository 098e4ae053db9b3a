package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// DefaultStalenessWindow 餘額快取的有效期
const DefaultStalenessWindow = 24 * time.Hour

// AppendRequest 新增交易的參數
type AppendRequest struct {
	AccountID           string
	Type                domain.TransactionType
	Amount              decimal.Decimal
	Description         string
	LinkedTransactionID string
	JobID               string
	CreatedBy           string
	IdempotencyKey      string
	// ID 預先指定的交易 ID (例如提款與鏡像互相指向時)，空字串則自動產生
	ID string
	// Timestamp 交易時間，零值取目前時間。利息以批次開始時間入帳，與冪等鍵同月。
	Timestamp time.Time
}

// Ledger 餘額引擎：交易紀錄是唯一真相，帳戶上的餘額只是快取
type Ledger struct {
	store  Store
	window time.Duration
	// audit 快取與交易紀錄不一致時記錄修正，nil 時不記錄
	audit *AuditTrail
	options
}

// NewLedger 建立 Ledger
//
// 參數:
//
//	store: 持久層
//	window: 快取有效期，<= 0 時使用 DefaultStalenessWindow
func NewLedger(store Store, window time.Duration, opts ...Option) *Ledger {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Ledger{
		store:   store,
		window:  window,
		options: newOptions(opts),
	}
}

// GetBalance 取得帳戶餘額。快取未過期時直接回傳，否則完整重算。
// 讀取失敗時回傳 0 並記錄錯誤，不會讓顯示流程失敗。
func (l *Ledger) GetBalance(ctx context.Context, accountID string) decimal.Decimal {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		l.logger.Error("get balance: load account", zap.String("account_id", accountID), zap.Error(err))
		return decimal.Zero
	}
	if account.CacheFresh(l.now(), l.window) {
		return account.CachedBalance
	}
	balance, err := l.RecomputeBalance(ctx, accountID)
	if err != nil {
		l.logger.Error("get balance: recompute", zap.String("account_id", accountID), zap.Error(err))
		return decimal.Zero
	}
	return balance
}

// RecomputeBalance 由交易紀錄完整重算餘額並回寫快取 (回寫失敗不影響結果)
func (l *Ledger) RecomputeBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		balanceRecomputes.WithLabelValues("error").Inc()
		return decimal.Zero, fmt.Errorf("load account: %w", err)
	}
	txs, err := l.store.ListTransactions(ctx, domain.TransactionFilter{AccountID: accountID})
	if err != nil {
		balanceRecomputes.WithLabelValues("error").Inc()
		return decimal.Zero, fmt.Errorf("list transactions: %w", err)
	}
	balance := domain.SumSigned(txs)
	balanceRecomputes.WithLabelValues("ok").Inc()

	// 重算期間若有新交易寫入，條件式更新會略過，避免用舊的總和蓋掉新的快取
	applied, err := l.store.UpdateBalanceCache(ctx, accountID, balance, int64(len(txs)), l.now())
	switch {
	case err != nil:
		l.logger.Warn("balance cache write failed", zap.String("account_id", accountID), zap.Error(err))
	case !applied:
		l.logger.Debug("balance cache write skipped, log moved during recompute", zap.String("account_id", accountID))
	case l.audit != nil && account.CachedTransactionCount == int64(len(txs)) && !account.CachedBalance.Equal(balance):
		l.logger.Warn("balance cache drift corrected",
			zap.String("account_id", accountID),
			zap.String("cached", domain.FormatMoney(account.CachedBalance)),
			zap.String("recomputed", domain.FormatMoney(balance)),
		)
		l.audit.Record(ctx, domain.EventBalanceRecomputed, domain.SystemActor("ledger"), map[string]any{
			"cachedBalance":     domain.FormatMoney(account.CachedBalance),
			"recomputedBalance": domain.FormatMoney(balance),
			"transactionCount":  len(txs),
		}, accountID)
	}
	return balance, nil
}

// History 回傳帳戶在 [from, to) 內的交易 (由舊到新)，零值代表不限制
func (l *Ledger) History(ctx context.Context, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	return l.store.ListTransactions(ctx, domain.TransactionFilter{AccountID: accountID, From: from, To: to})
}

// NewTransaction 驗證並組出交易，不寫入
func (l *Ledger) NewTransaction(req AppendRequest) (*domain.Transaction, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := req.Timestamp
	if at.IsZero() {
		at = l.now()
	}
	tx := &domain.Transaction{
		ID:                  id,
		AccountID:           req.AccountID,
		Type:                req.Type,
		Amount:              req.Amount,
		Timestamp:           at.UTC(),
		Description:         req.Description,
		LinkedTransactionID: req.LinkedTransactionID,
		JobID:               req.JobID,
		CreatedBy:           req.CreatedBy,
		IdempotencyKey:      req.IdempotencyKey,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// AppendTransaction 新增單筆交易，交易與餘額快取在同一個原子單位內寫入
func (l *Ledger) AppendTransaction(ctx context.Context, req AppendRequest) (*domain.Transaction, error) {
	tx, err := l.NewTransaction(req)
	if err != nil {
		return nil, err
	}
	if err := l.Post(ctx, &Batch{Transactions: []*domain.Transaction{tx}}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Post 寫入一個 Batch。所有交易都會先驗證，任何一筆不合法則不寫入。
func (l *Ledger) Post(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}
	for _, tx := range batch.Transactions {
		if err := tx.Validate(); err != nil {
			return err
		}
	}
	if err := l.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for _, tx := range batch.Transactions {
		l.logger.Info("transaction posted",
			zap.String("transaction_id", tx.ID),
			zap.String("account_id", tx.AccountID),
			zap.String("type", string(tx.Type)),
			zap.String("amount", domain.FormatMoney(tx.Amount)),
		)
	}
	return nil
}
