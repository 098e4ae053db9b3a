package domain

import "time"

// WithdrawalNotification 提款審核結果通知內容，實際寄送由外部通知服務負責
type WithdrawalNotification struct {
	TaskID        string           `json:"taskId"`
	AccountID     string           `json:"accountId"`
	Email         string           `json:"email"`
	DisplayName   string           `json:"displayName"`
	Status        WithdrawalStatus `json:"status"`
	Amount        string           `json:"amount"`
	Reason        string           `json:"reason,omitempty"`
	DecidedBy     string           `json:"decidedBy"`
	DecidedAt     time.Time        `json:"decidedAt"`
	TransactionID string           `json:"transactionId,omitempty"`
}
