package grpc

import (
	"time"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// 金額在線路上一律是固定兩位小數的字串，例如 "1020.00"

type GetBalanceRequest struct {
	AccountID string `json:"accountId"`
}

type GetBalanceResponse struct {
	AccountID string `json:"accountId"`
	Balance   string `json:"balance"`
}

type GetHistoryRequest struct {
	AccountID string    `json:"accountId"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

type GetHistoryResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

type CreateWithdrawalRequest struct {
	AccountID   string `json:"accountId"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// WithdrawalTaskRequest 只需要任務 ID 的呼叫 (Cancel、Approve)
type WithdrawalTaskRequest struct {
	TaskID string `json:"taskId"`
}

type RejectWithdrawalRequest struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

type WithdrawalResponse struct {
	Task *WithdrawalTask `json:"task"`
}

type ApproveWithdrawalResponse struct {
	Task       *WithdrawalTask `json:"task"`
	Withdrawal *Transaction    `json:"withdrawal"`
	Mirror     *Transaction    `json:"mirror"`
}

type ListWithdrawalsRequest struct {
	AccountID       string   `json:"accountId,omitempty"`
	Statuses        []string `json:"statuses,omitempty"`
	IncludeArchived bool     `json:"includeArchived,omitempty"`
}

type ListWithdrawalsResponse struct {
	Tasks []*WithdrawalTask `json:"tasks"`
}

type TriggerInterestAccrualRequest struct{}

type TriggerInterestAccrualResponse struct {
	JobID               string                `json:"jobId"`
	Period              string                `json:"period"`
	Rate                string                `json:"rate"`
	Processed           int                   `json:"processed"`
	TotalPaid           string                `json:"totalPaid"`
	AlreadyPaid         int                   `json:"alreadyPaid"`
	SkippedZeroBalance  int                   `json:"skippedZeroBalance"`
	SkippedBelowMinimum int                   `json:"skippedBelowMinimum"`
	Contended           int                   `json:"contended"`
	Errors              []domain.AccountError `json:"errors"`
	StartedAt           time.Time             `json:"startedAt"`
	FinishedAt          time.Time             `json:"finishedAt"`
}

type TriggerStatementGenerationRequest struct {
	Year              int    `json:"year,omitempty"`
	Month             int    `json:"month,omitempty"`
	AccountIdentifier string `json:"accountIdentifier,omitempty"`
}

type TriggerStatementGenerationResponse struct {
	Results []*StatementResult `json:"results"`
}

type QueryAuditLogRequest struct {
	EventType        string    `json:"eventType,omitempty"`
	ActorID          string    `json:"actorId,omitempty"`
	SubjectAccountID string    `json:"subjectAccountId,omitempty"`
	StartDate        time.Time `json:"startDate,omitempty"`
	EndDate          time.Time `json:"endDate,omitempty"`
	Limit            int       `json:"limit,omitempty"`
}

type QueryAuditLogResponse struct {
	Entries []*domain.AuditLogEntry `json:"entries"`
}

type Transaction struct {
	ID                  string    `json:"id"`
	AccountID           string    `json:"accountId"`
	Type                string    `json:"type"`
	Amount              string    `json:"amount"`
	Timestamp           time.Time `json:"timestamp"`
	Description         string    `json:"description"`
	LinkedTransactionID string    `json:"linkedTransactionId,omitempty"`
	JobID               string    `json:"jobId,omitempty"`
	CreatedBy           string    `json:"createdBy"`
}

type WithdrawalTask struct {
	ID                  string     `json:"id"`
	AccountID           string     `json:"accountId"`
	RequestedAmount     string     `json:"requestedAmount"`
	Description         string     `json:"description"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	DecidedAt           *time.Time `json:"decidedAt,omitempty"`
	DecidedBy           string     `json:"decidedBy,omitempty"`
	LinkedTransactionID string     `json:"linkedTransactionId,omitempty"`
	RejectionReason     string     `json:"rejectionReason,omitempty"`
	ArchivedAt          *time.Time `json:"archivedAt,omitempty"`
}

type Statement struct {
	AccountID      string         `json:"accountId"`
	DisplayName    string         `json:"displayName"`
	Email          string         `json:"email"`
	Period         string         `json:"period"`
	OpeningBalance string         `json:"openingBalance"`
	ClosingBalance string         `json:"closingBalance"`
	TotalCredits   string         `json:"totalCredits"`
	TotalDebits    string         `json:"totalDebits"`
	CurrentBalance string         `json:"currentBalance"`
	Transactions   []*Transaction `json:"transactions"`
}

type StatementResult struct {
	AccountID string     `json:"accountId"`
	Statement *Statement `json:"statement,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func toTransaction(tx *domain.Transaction) *Transaction {
	if tx == nil {
		return nil
	}
	return &Transaction{
		ID:                  tx.ID,
		AccountID:           tx.AccountID,
		Type:                string(tx.Type),
		Amount:              domain.FormatMoney(tx.Amount),
		Timestamp:           tx.Timestamp,
		Description:         tx.Description,
		LinkedTransactionID: tx.LinkedTransactionID,
		JobID:               tx.JobID,
		CreatedBy:           tx.CreatedBy,
	}
}

func toTransactions(txs []*domain.Transaction) []*Transaction {
	out := make([]*Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransaction(tx))
	}
	return out
}

func toWithdrawalTask(t *domain.WithdrawalTask) *WithdrawalTask {
	if t == nil {
		return nil
	}
	return &WithdrawalTask{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		RequestedAmount:     domain.FormatMoney(t.RequestedAmount),
		Description:         t.Description,
		Status:              string(t.Status),
		CreatedAt:           t.CreatedAt,
		DecidedAt:           t.DecidedAt,
		DecidedBy:           t.DecidedBy,
		LinkedTransactionID: t.LinkedTransactionID,
		RejectionReason:     t.RejectionReason,
		ArchivedAt:          t.ArchivedAt,
	}
}

func toApprovalResponse(r *usecase.ApprovalResult) *ApproveWithdrawalResponse {
	return &ApproveWithdrawalResponse{
		Task:       toWithdrawalTask(r.Task),
		Withdrawal: toTransaction(r.Withdrawal),
		Mirror:     toTransaction(r.Mirror),
	}
}

func toJobResponse(r *domain.JobResult) *TriggerInterestAccrualResponse {
	return &TriggerInterestAccrualResponse{
		JobID:               r.JobID,
		Period:              r.Period,
		Rate:                r.Rate.String(),
		Processed:           r.Processed,
		TotalPaid:           domain.FormatMoney(r.TotalPaid),
		AlreadyPaid:         r.AlreadyPaid,
		SkippedZeroBalance:  r.SkippedZeroBalance,
		SkippedBelowMinimum: r.SkippedBelowMinimum,
		Contended:           r.Contended,
		Errors:              r.Errors,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
	}
}

func toStatementResults(results []*domain.StatementResult) []*StatementResult {
	out := make([]*StatementResult, 0, len(results))
	for _, r := range results {
		res := &StatementResult{AccountID: r.AccountID, Error: r.Error}
		if st := r.Statement; st != nil {
			res.Statement = &Statement{
				AccountID:      st.AccountID,
				DisplayName:    st.DisplayName,
				Email:          st.Email,
				Period:         st.Period,
				OpeningBalance: domain.FormatMoney(st.OpeningBalance),
				ClosingBalance: domain.FormatMoney(st.ClosingBalance),
				TotalCredits:   domain.FormatMoney(st.TotalCredits),
				TotalDebits:    domain.FormatMoney(st.TotalDebits),
				CurrentBalance: domain.FormatMoney(st.CurrentBalance),
				Transactions:   toTransactions(st.Transactions),
			}
		}
		out = append(out, res)
	}
	return out
}
