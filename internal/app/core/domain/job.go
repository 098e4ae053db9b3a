package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemConfig 系統設定 (singleton)，由外部管理功能修改
type SystemConfig struct {
	InterestRatePercent   decimal.Decimal `json:"interestRatePercent"`
	AllowNewRegistrations bool            `json:"allowNewRegistrations"`
	// HouseAccountID 明確指定的 House 帳戶，空字串時退回「唯一管理員帳戶」
	HouseAccountID string    `json:"houseAccountId,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// JobResult 利息批次結果
type JobResult struct {
	JobID               string          `json:"jobId"`
	Period              string          `json:"period"`
	Rate                decimal.Decimal `json:"rate"`
	Processed           int             `json:"processed"`
	TotalPaid           decimal.Decimal `json:"totalPaid"`
	AlreadyPaid         int             `json:"alreadyPaid"`
	SkippedZeroBalance  int             `json:"skippedZeroBalance"`
	SkippedBelowMinimum int             `json:"skippedBelowMinimum"`
	Contended           int             `json:"contended"`
	Errors              []AccountError  `json:"errors"`
	StartedAt           time.Time       `json:"startedAt"`
	FinishedAt          time.Time       `json:"finishedAt"`
}

// Summary 轉成稽核紀錄 details
func (r *JobResult) Summary() map[string]any {
	errs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e.Error())
	}
	return map[string]any{
		"jobId":               r.JobID,
		"period":              r.Period,
		"rate":                r.Rate.String(),
		"processed":           r.Processed,
		"totalPaid":           FormatMoney(r.TotalPaid),
		"alreadyPaid":         r.AlreadyPaid,
		"skippedZeroBalance":  r.SkippedZeroBalance,
		"skippedBelowMinimum": r.SkippedBelowMinimum,
		"contended":           r.Contended,
		"errors":              errs,
		"durationMs":          r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
}
