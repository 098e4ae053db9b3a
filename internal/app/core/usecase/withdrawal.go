package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// DefaultArchiveRetention 已決定的任務保留多久後封存
const DefaultArchiveRetention = 90 * 24 * time.Hour

// ApprovalResult 核准結果：任務、提款交易、House 帳戶上的鏡像存款
type ApprovalResult struct {
	Task       *domain.WithdrawalTask `json:"task"`
	Withdrawal *domain.Transaction    `json:"withdrawal"`
	Mirror     *domain.Transaction    `json:"mirror"`
}

// WithdrawalWorkflow 提款申請狀態機
//
//	pending -> approved | rejected | cancelled -> archived
type WithdrawalWorkflow struct {
	store     Store
	ledger    *Ledger
	house     *HouseResolver
	audit     *AuditTrail
	notifier  Notifier
	retention time.Duration
	options
}

func NewWithdrawalWorkflow(store Store, ledger *Ledger, house *HouseResolver, audit *AuditTrail, notifier Notifier, retention time.Duration, opts ...Option) *WithdrawalWorkflow {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if retention <= 0 {
		retention = DefaultArchiveRetention
	}
	return &WithdrawalWorkflow{
		store:     store,
		ledger:    ledger,
		house:     house,
		audit:     audit,
		notifier:  notifier,
		retention: retention,
		options:   newOptions(opts),
	}
}

// CreateRequest 帳戶擁有者建立提款申請。申請時不檢查餘額，核准才是控制點。
func (w *WithdrawalWorkflow) CreateRequest(ctx context.Context, actor domain.Actor, accountID string, amount decimal.Decimal, description string) (*domain.WithdrawalTask, error) {
	if actor.AccountID == "" || actor.AccountID != accountID {
		return nil, fmt.Errorf("%w: only the account owner can request a withdrawal", domain.ErrPermission)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrValidation, amount.String())
	}
	if !amount.Equal(amount.Truncate(domain.MoneyScale)) {
		return nil, fmt.Errorf("%w: amount %s has more than %d decimal places", domain.ErrValidation, amount.String(), domain.MoneyScale)
	}
	if _, err := w.store.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}

	task := &domain.WithdrawalTask{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		RequestedAmount: amount,
		Description:     strings.TrimSpace(description),
		Status:          domain.WithdrawalStatusPending,
		CreatedAt:       w.now().UTC(),
	}
	if err := w.store.Commit(ctx, &Batch{NewTasks: []*domain.WithdrawalTask{task}}); err != nil {
		return nil, fmt.Errorf("create withdrawal task: %w", err)
	}

	w.audit.Record(ctx, domain.EventWithdrawalRequested, actor, map[string]any{
		"taskId":      task.ID,
		"amount":      domain.FormatMoney(amount),
		"description": task.Description,
	}, accountID)
	return task, nil
}

// Cancel 擁有者取消自己 pending 中的申請
func (w *WithdrawalWorkflow) Cancel(ctx context.Context, actor domain.Actor, taskID string) (*domain.WithdrawalTask, error) {
	task, err := w.store.GetWithdrawalTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load withdrawal task %s: %w", taskID, err)
	}
	if actor.AccountID == "" || task.AccountID != actor.AccountID {
		return nil, fmt.Errorf("%w: only the requesting account owner can cancel", domain.ErrPermission)
	}
	next, err := task.Transition(domain.WithdrawalStatusCancelled)
	if err != nil {
		return nil, err
	}
	decidedAt := w.now().UTC()
	next.DecidedAt = &decidedAt
	next.DecidedBy = actor.Identity

	if err := w.commitTaskUpdate(ctx, next, task.Status); err != nil {
		return nil, err
	}
	withdrawalDecisions.WithLabelValues(string(next.Status)).Inc()
	w.audit.Record(ctx, domain.EventWithdrawalCancelled, actor, map[string]any{
		"taskId": task.ID,
		"amount": domain.FormatMoney(task.RequestedAmount),
	}, task.AccountID)
	return next, nil
}

// Approve 管理員核准。提款交易、House 帳戶鏡像存款與任務狀態在同一個原子單位內寫入。
//
// 若先前的嘗試已留下提款交易 (非原子 store 中途失敗)，會沿用它並只補上缺少的鏡像，
// 每筆提款永遠只有一筆鏡像。
func (w *WithdrawalWorkflow) Approve(ctx context.Context, actor domain.Actor, taskID string) (*ApprovalResult, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: only administrators can approve withdrawals", domain.ErrPermission)
	}
	task, err := w.store.GetWithdrawalTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load withdrawal task %s: %w", taskID, err)
	}
	next, err := task.Transition(domain.WithdrawalStatusApproved)
	if err != nil {
		return nil, err
	}
	requester, err := w.store.GetAccount(ctx, task.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load requester account %s: %w", task.AccountID, err)
	}
	house, err := w.house.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	batch := &Batch{}
	withdrawal, err := w.findByKey(ctx, domain.WithdrawalKey(task.ID))
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		withdrawal, err = w.ledger.NewTransaction(AppendRequest{
			AccountID:           task.AccountID,
			Type:                domain.TransactionTypeWithdrawal,
			Amount:              task.RequestedAmount,
			Description:         withdrawalDescription(task),
			LinkedTransactionID: uuid.NewString(),
			CreatedBy:           actor.Identity,
			IdempotencyKey:      domain.WithdrawalKey(task.ID),
		})
		if err != nil {
			return nil, err
		}
		batch.Transactions = append(batch.Transactions, withdrawal)
	} else {
		if withdrawal.LinkedTransactionID == "" {
			return nil, fmt.Errorf("%w: withdrawal transaction %s for task %s has no linked mirror id",
				domain.ErrIntegrity, withdrawal.ID, task.ID)
		}
		w.logger.Warn("reusing withdrawal transaction from an earlier approval attempt",
			zap.String("task_id", task.ID), zap.String("transaction_id", withdrawal.ID))
	}

	mirror, err := w.findByKey(ctx, domain.MirrorKey(withdrawal.ID))
	if err != nil {
		return nil, err
	}
	if mirror != nil && (mirror.ID != withdrawal.LinkedTransactionID || mirror.LinkedTransactionID != withdrawal.ID) {
		return nil, fmt.Errorf("%w: mirror %s and withdrawal %s of task %s do not reference each other",
			domain.ErrIntegrity, mirror.ID, withdrawal.ID, task.ID)
	}
	if mirror == nil {
		mirror, err = w.ledger.NewTransaction(AppendRequest{
			ID:                  withdrawal.LinkedTransactionID,
			AccountID:           house.ID,
			Type:                domain.TransactionTypeDeposit,
			Amount:              withdrawal.Amount,
			Description:         mirrorDescription(requester, task, withdrawal),
			LinkedTransactionID: withdrawal.ID,
			CreatedBy:           actor.Identity,
			IdempotencyKey:      domain.MirrorKey(withdrawal.ID),
		})
		if err != nil {
			return nil, err
		}
		batch.Transactions = append(batch.Transactions, mirror)
	}

	decidedAt := w.now().UTC()
	next.DecidedAt = &decidedAt
	next.DecidedBy = actor.Identity
	next.LinkedTransactionID = withdrawal.ID
	batch.TaskUpdate = &TaskUpdate{Task: next, ExpectedStatus: task.Status}

	if err := w.ledger.Post(ctx, batch); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("%w: withdrawal %s was approved concurrently", domain.ErrInvalidStateTransition, task.ID)
		}
		return nil, err
	}
	withdrawalDecisions.WithLabelValues(string(next.Status)).Inc()

	w.notify(ctx, requester, next, withdrawal.ID)
	w.audit.Record(ctx, domain.EventWithdrawalApproved, actor, map[string]any{
		"taskId":                task.ID,
		"amount":                domain.FormatMoney(task.RequestedAmount),
		"withdrawalTransaction": withdrawal.ID,
		"mirrorTransaction":     mirror.ID,
		"houseAccountId":        house.ID,
	}, task.AccountID)

	return &ApprovalResult{Task: next, Withdrawal: withdrawal, Mirror: mirror}, nil
}

// Reject 管理員駁回，不產生任何交易
func (w *WithdrawalWorkflow) Reject(ctx context.Context, actor domain.Actor, taskID, reason string) (*domain.WithdrawalTask, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: only administrators can reject withdrawals", domain.ErrPermission)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", domain.ErrValidation)
	}
	task, err := w.store.GetWithdrawalTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load withdrawal task %s: %w", taskID, err)
	}
	next, err := task.Transition(domain.WithdrawalStatusRejected)
	if err != nil {
		return nil, err
	}
	decidedAt := w.now().UTC()
	next.DecidedAt = &decidedAt
	next.DecidedBy = actor.Identity
	next.RejectionReason = reason

	if err := w.commitTaskUpdate(ctx, next, task.Status); err != nil {
		return nil, err
	}
	withdrawalDecisions.WithLabelValues(string(next.Status)).Inc()

	if requester, err := w.store.GetAccount(ctx, task.AccountID); err != nil {
		w.logger.Warn("skip rejection notification, requester not loaded", zap.String("task_id", task.ID), zap.Error(err))
	} else {
		w.notify(ctx, requester, next, "")
	}
	w.audit.Record(ctx, domain.EventWithdrawalRejected, actor, map[string]any{
		"taskId": task.ID,
		"amount": domain.FormatMoney(task.RequestedAmount),
		"reason": reason,
	}, task.AccountID)
	return next, nil
}

// Archive 封存單一已決定且超過保留期限的任務 (系統 housekeeping)
func (w *WithdrawalWorkflow) Archive(ctx context.Context, taskID string) (*domain.WithdrawalTask, error) {
	task, err := w.store.GetWithdrawalTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load withdrawal task %s: %w", taskID, err)
	}
	return w.archive(ctx, task, w.now().UTC())
}

// ArchiveExpired 封存所有超過保留期限的已決定任務，回傳封存筆數。
// 單筆失敗 (例如同時被其他程序封存) 只記錄 log。
func (w *WithdrawalWorkflow) ArchiveExpired(ctx context.Context) (int, error) {
	now := w.now().UTC()
	tasks, err := w.store.ListWithdrawalTasks(ctx, domain.WithdrawalFilter{
		Statuses: []domain.WithdrawalStatus{
			domain.WithdrawalStatusApproved,
			domain.WithdrawalStatusRejected,
			domain.WithdrawalStatusCancelled,
		},
		DecidedBefore: now.Add(-w.retention),
	})
	if err != nil {
		return 0, fmt.Errorf("list archivable tasks: %w", err)
	}
	archived := 0
	for _, task := range tasks {
		if _, err := w.archive(ctx, task, now); err != nil {
			w.logger.Warn("archive withdrawal task", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		archived++
	}
	if archived > 0 {
		w.logger.Info("withdrawal tasks archived", zap.Int("count", archived))
	}
	return archived, nil
}

func (w *WithdrawalWorkflow) archive(ctx context.Context, task *domain.WithdrawalTask, now time.Time) (*domain.WithdrawalTask, error) {
	next, err := task.Transition(domain.WithdrawalStatusArchived)
	if err != nil {
		return nil, err
	}
	if task.DecidedAt == nil || now.Sub(*task.DecidedAt) < w.retention {
		return nil, fmt.Errorf("%w: withdrawal %s is still within the %s retention window",
			domain.ErrInvalidStateTransition, task.ID, w.retention)
	}
	next.ArchivedAt = &now
	if err := w.commitTaskUpdate(ctx, next, task.Status); err != nil {
		return nil, err
	}
	withdrawalDecisions.WithLabelValues(string(next.Status)).Inc()
	w.audit.Record(ctx, domain.EventWithdrawalArchived, domain.SystemActor("housekeeping"), map[string]any{
		"taskId":     task.ID,
		"fromStatus": string(task.Status),
	}, task.AccountID)
	return next, nil
}

// Get 擁有者或管理員可讀取任務
func (w *WithdrawalWorkflow) Get(ctx context.Context, actor domain.Actor, taskID string) (*domain.WithdrawalTask, error) {
	task, err := w.store.GetWithdrawalTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load withdrawal task %s: %w", taskID, err)
	}
	if !actor.IsAdmin && task.AccountID != actor.AccountID {
		return nil, fmt.Errorf("%w: task belongs to another account", domain.ErrPermission)
	}
	return task, nil
}

// List 非管理員只能看到自己的任務；預設排除已封存
func (w *WithdrawalWorkflow) List(ctx context.Context, actor domain.Actor, filter domain.WithdrawalFilter) ([]*domain.WithdrawalTask, error) {
	if !actor.IsAdmin {
		if actor.AccountID == "" || (filter.AccountID != "" && filter.AccountID != actor.AccountID) {
			return nil, fmt.Errorf("%w: can only list own withdrawals", domain.ErrPermission)
		}
		filter.AccountID = actor.AccountID
	}
	return w.store.ListWithdrawalTasks(ctx, filter)
}

func (w *WithdrawalWorkflow) commitTaskUpdate(ctx context.Context, next *domain.WithdrawalTask, expected domain.WithdrawalStatus) error {
	err := w.store.Commit(ctx, &Batch{TaskUpdate: &TaskUpdate{Task: next, ExpectedStatus: expected}})
	if err != nil {
		return fmt.Errorf("update withdrawal task %s: %w", next.ID, err)
	}
	return nil
}

func (w *WithdrawalWorkflow) findByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	txs, err := w.store.ListTransactions(ctx, domain.TransactionFilter{IdempotencyKey: key})
	if err != nil {
		return nil, fmt.Errorf("lookup transaction %s: %w", key, err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return txs[0], nil
}

func (w *WithdrawalWorkflow) notify(ctx context.Context, requester *domain.Account, task *domain.WithdrawalTask, txID string) {
	n := &domain.WithdrawalNotification{
		TaskID:        task.ID,
		AccountID:     task.AccountID,
		Email:         requester.Email,
		DisplayName:   requester.DisplayName,
		Status:        task.Status,
		Amount:        domain.FormatMoney(task.RequestedAmount),
		Reason:        task.RejectionReason,
		DecidedBy:     task.DecidedBy,
		TransactionID: txID,
	}
	if task.DecidedAt != nil {
		n.DecidedAt = *task.DecidedAt
	}
	if err := w.notifier.NotifyWithdrawalDecision(context.WithoutCancel(ctx), n); err != nil {
		w.logger.Warn("withdrawal notification failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func withdrawalDescription(task *domain.WithdrawalTask) string {
	if task.Description != "" {
		return task.Description
	}
	return "Approved withdrawal request " + task.ID
}

func mirrorDescription(requester *domain.Account, task *domain.WithdrawalTask, withdrawal *domain.Transaction) string {
	name := requester.DisplayName
	if name == "" {
		name = requester.ID
	}
	return fmt.Sprintf("Mirror of withdrawal %s by %s (request %s)", withdrawal.ID, name, task.ID)
}
