package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementRequest 對帳單條件。Year/Month 為 0 時取上個月，AccountIdentifier 可為帳戶 ID 或 email。
type StatementRequest struct {
	Year              int    `json:"year,omitempty"`
	Month             int    `json:"month,omitempty"`
	AccountIdentifier string `json:"accountIdentifier,omitempty"`
}

// Statement 單一帳戶的對帳資料，實際排版由外部負責
type Statement struct {
	AccountID      string          `json:"accountId"`
	DisplayName    string          `json:"displayName"`
	Email          string          `json:"email"`
	Period         string          `json:"period"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	TotalCredits   decimal.Decimal `json:"totalCredits"`
	TotalDebits    decimal.Decimal `json:"totalDebits"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Transactions   []*Transaction  `json:"transactions"`
}

// StatementResult 單一帳戶的產生結果，失敗時 Error 非空
type StatementResult struct {
	AccountID string     `json:"accountId"`
	Statement *Statement `json:"statement,omitempty"`
	Error     string     `json:"error,omitempty"`
}
