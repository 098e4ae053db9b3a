package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 交易類型 (封閉集合)
type TransactionType string

const (
	// 存款
	TransactionTypeDeposit TransactionType = "deposit"
	// 提款
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	// 利息
	TransactionTypeInterest TransactionType = "interest"
	// 服務費
	TransactionTypeServiceCharge TransactionType = "service_charge"
	// 銀行手續費
	TransactionTypeBankFee TransactionType = "bankfee"
)

// Valid 是否為已知類型
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeInterest,
		TransactionTypeServiceCharge, TransactionTypeBankFee:
		return true
	}
	return false
}

// IsCredit 入帳類型 (deposit, interest) 回傳 true
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeInterest
}

// ParseTransactionType 在儲存邊界驗證類型字串
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", validationf("unknown transaction type %q", s)
	}
	return t, nil
}

// Transaction 不可變的帳務紀錄。對餘額的正負號由 Type 決定，Amount 永遠為正。
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
	// LinkedTransactionID 提款與其鏡像存款互相指向
	LinkedTransactionID string `json:"linkedTransactionId,omitempty"`
	JobID               string `json:"jobId,omitempty"`
	CreatedBy           string `json:"createdBy"`
	// IdempotencyKey 在 store 層為唯一鍵，空字串代表不限制
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// Validate 金額必須 > 0 且類型合法
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return validationf("account id is required")
	}
	if !t.Type.Valid() {
		return validationf("unknown transaction type %q", t.Type)
	}
	if !t.Amount.IsPositive() {
		return validationf("amount must be positive, got %s", t.Amount.String())
	}
	return nil
}

// SignedAmount 依類型回傳對餘額的影響
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// SumSigned 計算交易列表的代數和
func SumSigned(txs []*Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.SignedAmount())
	}
	return sum
}

// TransactionFilter 交易查詢條件，零值欄位代表不過濾。From 含、To 不含。
type TransactionFilter struct {
	AccountID           string
	Type                TransactionType
	From                time.Time
	To                  time.Time
	LinkedTransactionID string
	IdempotencyKey      string
}

// Match 判斷交易是否符合條件
func (f TransactionFilter) Match(tx *Transaction) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && tx.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.Timestamp.Before(f.To) {
		return false
	}
	if f.LinkedTransactionID != "" && tx.LinkedTransactionID != f.LinkedTransactionID {
		return false
	}
	if f.IdempotencyKey != "" && tx.IdempotencyKey != f.IdempotencyKey {
		return false
	}
	return true
}

// YearMonth 以 UTC 計算的月份鍵，例如 "2026-10"
func YearMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthBounds 回傳 t 所在月份的 [起, 迄) (UTC)
func MonthBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// InterestKey 每帳戶每月唯一的利息冪等鍵
func InterestKey(accountID string, t time.Time) string {
	return fmt.Sprintf("interest:%s:%s", accountID, YearMonth(t))
}

// WithdrawalKey 每個提款任務唯一的提款交易冪等鍵
func WithdrawalKey(taskID string) string {
	return "withdrawal:" + taskID
}

// MirrorKey 每筆提款唯一的鏡像存款冪等鍵
func MirrorKey(withdrawalTxID string) string {
	return "mirror:" + withdrawalTxID
}
