package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus 提款任務狀態 (封閉集合)
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
	WithdrawalStatusCancelled WithdrawalStatus = "cancelled"
	WithdrawalStatusArchived  WithdrawalStatus = "archived"
)

// withdrawalTransitions 合法的狀態轉換表，狀態只會單向前進
var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:   {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:  {WithdrawalStatusArchived},
	WithdrawalStatusRejected:  {WithdrawalStatusArchived},
	WithdrawalStatusCancelled: {WithdrawalStatusArchived},
}

// Valid 是否為已知狀態
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected,
		WithdrawalStatusCancelled, WithdrawalStatusArchived:
		return true
	}
	return false
}

// Decided approved / rejected / cancelled
func (s WithdrawalStatus) Decided() bool {
	return s == WithdrawalStatusApproved || s == WithdrawalStatusRejected || s == WithdrawalStatusCancelled
}

// CanTransitionTo 判斷 s -> next 是否合法
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseWithdrawalStatus 在儲存邊界驗證狀態字串
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	st := WithdrawalStatus(s)
	if !st.Valid() {
		return "", validationf("unknown withdrawal status %q", s)
	}
	return st, nil
}

// WithdrawalTask 提款申請
type WithdrawalTask struct {
	ID                  string           `json:"id"`
	AccountID           string           `json:"accountId"`
	RequestedAmount     decimal.Decimal  `json:"requestedAmount"`
	Description         string           `json:"description"`
	Status              WithdrawalStatus `json:"status"`
	CreatedAt           time.Time        `json:"createdAt"`
	DecidedAt           *time.Time       `json:"decidedAt,omitempty"`
	DecidedBy           string           `json:"decidedBy,omitempty"`
	LinkedTransactionID string           `json:"linkedTransactionId,omitempty"`
	RejectionReason     string           `json:"rejectionReason,omitempty"`
	ArchivedAt          *time.Time       `json:"archivedAt,omitempty"`
}

// Clone 深拷貝 (包含時間指標)
func (w *WithdrawalTask) Clone() *WithdrawalTask {
	cp := *w
	if w.DecidedAt != nil {
		t := *w.DecidedAt
		cp.DecidedAt = &t
	}
	if w.ArchivedAt != nil {
		t := *w.ArchivedAt
		cp.ArchivedAt = &t
	}
	return &cp
}

// Transition 回傳套用新狀態後的拷貝，不合法時回傳 ErrInvalidStateTransition 且原任務不變
func (w *WithdrawalTask) Transition(next WithdrawalStatus) (*WithdrawalTask, error) {
	if !w.Status.CanTransitionTo(next) {
		return nil, &TransitionError{TaskID: w.ID, From: w.Status, To: next}
	}
	cp := w.Clone()
	cp.Status = next
	return cp, nil
}

// TransitionError 描述被拒絕的狀態轉換
type TransitionError struct {
	TaskID string
	From   WithdrawalStatus
	To     WithdrawalStatus
}

func (e *TransitionError) Error() string {
	return "withdrawal " + e.TaskID + ": cannot move from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// WithdrawalFilter 提款任務查詢條件。Statuses 為空且 IncludeArchived=false 時只回傳非封存任務。
type WithdrawalFilter struct {
	AccountID       string
	Statuses        []WithdrawalStatus
	IncludeArchived bool
	DecidedBefore   time.Time
}

// Match 判斷任務是否符合條件
func (f WithdrawalFilter) Match(w *WithdrawalTask) bool {
	if f.AccountID != "" && w.AccountID != f.AccountID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if w.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if !f.IncludeArchived && w.Status == WithdrawalStatusArchived {
		return false
	}
	if !f.DecidedBefore.IsZero() {
		if w.DecidedAt == nil || !w.DecidedAt.Before(f.DecidedBefore) {
			return false
		}
	}
	return true
}
