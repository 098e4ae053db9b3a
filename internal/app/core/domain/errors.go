package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 系統設定錯誤 (利率非正數、House 帳戶不存在或不唯一)，在任何寫入前中止
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation 請求參數不合法 (金額非正數、類型不在封閉集合內)
	ErrValidation = errors.New("validation error")

	// ErrPermission 呼叫者無權執行此操作
	ErrPermission = errors.New("permission denied")

	// ErrInvalidStateTransition 提款任務狀態轉換不合法，任務內容保持不變
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound 找不到資料
	ErrNotFound = errors.New("not found")

	// ErrDuplicate 冪等鍵重複，整批寫入未生效
	ErrDuplicate = errors.New("duplicate idempotency key")

	// ErrLockHeld 鎖已被其他執行者持有
	ErrLockHeld = errors.New("lock held by another owner")

	// ErrIntegrity 既有帳本資料彼此矛盾 (例如提款與鏡像未互相指向)，需人工介入
	ErrIntegrity = errors.New("ledger integrity violation")
)

// AccountError 利息批次中單一帳戶的處理錯誤，累積在 JobResult.Errors，不會中斷批次
type AccountError struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

func (e AccountError) Error() string {
	return fmt.Sprintf("account %s: %s", e.AccountID, e.Message)
}

// validationf 包裝 ErrValidation 並附上說明
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
