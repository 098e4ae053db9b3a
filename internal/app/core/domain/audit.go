package domain

import "time"

// EventType 稽核事件類型 (封閉集合)
type EventType string

const (
	EventBalanceRecomputed    EventType = "balance_recomputed"
	EventInterestCredited     EventType = "interest_credited"
	EventInterestJobCompleted EventType = "interest_job_completed"
	EventWithdrawalRequested  EventType = "withdrawal_requested"
	EventWithdrawalApproved   EventType = "withdrawal_approved"
	EventWithdrawalRejected   EventType = "withdrawal_rejected"
	EventWithdrawalCancelled  EventType = "withdrawal_cancelled"
	EventWithdrawalArchived   EventType = "withdrawal_archived"
	EventStatementGenerated   EventType = "statement_generated"
)

// Valid 是否為已知事件
func (e EventType) Valid() bool {
	switch e {
	case EventBalanceRecomputed, EventInterestCredited, EventInterestJobCompleted,
		EventWithdrawalRequested, EventWithdrawalApproved, EventWithdrawalRejected, EventWithdrawalCancelled,
		EventWithdrawalArchived, EventStatementGenerated:
		return true
	}
	return false
}

// ClientContext 呼叫端資訊 (IP、User-Agent)，由 inbound adapter 填入
type ClientContext struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Actor 呼叫者身分，由外部認證服務提供
type Actor struct {
	Identity  string        `json:"identity"`
	AccountID string        `json:"accountId,omitempty"`
	IsAdmin   bool          `json:"isAdmin"`
	Client    ClientContext `json:"client"`
}

// SystemActor 排程觸發時使用的系統身分
func SystemActor(name string) Actor {
	return Actor{Identity: "system:" + name, IsAdmin: true}
}

// AuditLogEntry 不可變的稽核紀錄
type AuditLogEntry struct {
	ID               string         `json:"id"`
	EventType        EventType      `json:"eventType"`
	ActorIdentity    string         `json:"actorIdentity"`
	ActorIsAdmin     bool           `json:"actorIsAdmin"`
	Timestamp        time.Time      `json:"timestamp"`
	SubjectAccountID string         `json:"subjectAccountId,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	Client           ClientContext  `json:"client"`
}

// AuditFilter 稽核查詢條件
type AuditFilter struct {
	EventType        EventType
	ActorID          string
	SubjectAccountID string
	StartDate        time.Time
	EndDate          time.Time
}

// Match 判斷紀錄是否符合條件
func (f AuditFilter) Match(e *AuditLogEntry) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.ActorID != "" && e.ActorIdentity != f.ActorID {
		return false
	}
	if f.SubjectAccountID != "" && e.SubjectAccountID != f.SubjectAccountID {
		return false
	}
	if !f.StartDate.IsZero() && e.Timestamp.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && !e.Timestamp.Before(f.EndDate) {
		return false
	}
	return true
}
