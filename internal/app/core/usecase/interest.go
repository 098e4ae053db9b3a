package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const (
	// DefaultInterestWorkers 同時處理的帳戶數
	DefaultInterestWorkers = 4
	// DefaultInterestLockTTL 單一帳戶鎖的存活時間
	DefaultInterestLockTTL = time.Minute
)

var hundred = decimal.NewFromInt(100)

type interestOutcome int

const (
	outcomeCredited interestOutcome = iota
	outcomeAlreadyPaid
	outcomeZeroBalance
	outcomeBelowMinimum
	outcomeContended
	outcomeFailed
)

func (o interestOutcome) String() string {
	switch o {
	case outcomeCredited:
		return "credited"
	case outcomeAlreadyPaid:
		return "already_paid"
	case outcomeZeroBalance:
		return "zero_balance"
	case outcomeBelowMinimum:
		return "below_minimum"
	case outcomeContended:
		return "contended"
	default:
		return "failed"
	}
}

// InterestJob 每月利息批次，可重複執行
//
// 冪等性有三層:
//
//  1. 以 (accountId, yearMonth) 為 key 的鎖
//  2. 寫入前查詢本月是否已有 interest 交易
//  3. store 層 IdempotencyKey 唯一限制
type InterestJob struct {
	store   Store
	ledger  *Ledger
	audit   *AuditTrail
	locker  Locker
	workers int
	lockTTL time.Duration
	options
}

// InterestJobConfig 批次參數
type InterestJobConfig struct {
	Workers int
	LockTTL time.Duration
}

func NewInterestJob(store Store, ledger *Ledger, audit *AuditTrail, locker Locker, cfg InterestJobConfig, opts ...Option) *InterestJob {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultInterestWorkers
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultInterestLockTTL
	}
	if locker == nil {
		locker = nopLocker{}
	}
	return &InterestJob{
		store:   store,
		ledger:  ledger,
		audit:   audit,
		locker:  locker,
		workers: cfg.Workers,
		lockTTL: cfg.LockTTL,
		options: newOptions(opts),
	}
}

// Run 對所有帳戶計息。
// 呼叫者必須是管理員且利率 > 0，否則在任何寫入前回傳錯誤。
// 單一帳戶失敗只會記錄在 Errors，批次一定跑完並寫入摘要稽核紀錄。
func (j *InterestJob) Run(ctx context.Context, actor domain.Actor) (*domain.JobResult, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: interest accrual requires an administrator", domain.ErrPermission)
	}
	cfg, err := j.store.GetSystemConfig(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: system config is not initialised", domain.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("load system config: %w", err)
	}
	rate := cfg.InterestRatePercent
	if !rate.IsPositive() {
		return nil, fmt.Errorf("%w: interest rate must be positive, got %s", domain.ErrConfiguration, rate.String())
	}
	accounts, err := j.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	started := j.now()
	result := &domain.JobResult{
		JobID:     uuid.NewString(),
		Period:    domain.YearMonth(started),
		Rate:      rate,
		TotalPaid: decimal.Zero,
		Errors:    []domain.AccountError{},
		StartedAt: started,
	}
	logger := j.logger.With(zap.String("job_id", result.JobID), zap.String("period", result.Period))
	logger.Info("interest accrual started", zap.Int("accounts", len(accounts)), zap.String("rate", rate.String()))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, account := range accounts {
		g.Go(func() error {
			outcome, paid, err := j.processAccount(ctx, actor, result, account)
			interestAccountOutcomes.WithLabelValues(outcome.String()).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCredited:
				result.Processed++
				result.TotalPaid = result.TotalPaid.Add(paid)
			case outcomeAlreadyPaid:
				result.AlreadyPaid++
			case outcomeZeroBalance:
				result.SkippedZeroBalance++
			case outcomeBelowMinimum:
				result.SkippedBelowMinimum++
			case outcomeContended:
				result.Contended++
			case outcomeFailed:
				result.Errors = append(result.Errors, domain.AccountError{AccountID: account.ID, Message: err.Error()})
				logger.Warn("interest accrual failed for account", zap.String("account_id", account.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = j.now()
	interestJobDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	j.audit.Record(ctx, domain.EventInterestJobCompleted, actor, result.Summary(), "")
	logger.Info("interest accrual finished",
		zap.Int("processed", result.Processed),
		zap.String("total_paid", domain.FormatMoney(result.TotalPaid)),
		zap.Int("already_paid", result.AlreadyPaid),
		zap.Int("skipped_zero_balance", result.SkippedZeroBalance),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// processAccount 處理單一帳戶；panic 也會被轉成錯誤，不會中斷批次
func (j *InterestJob) processAccount(ctx context.Context, actor domain.Actor, job *domain.JobResult, account *domain.Account) (outcome interestOutcome, paid decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, paid, err = outcomeFailed, decimal.Zero, fmt.Errorf("panic: %v", r)
		}
	}()

	key := domain.InterestKey(account.ID, job.StartedAt)
	unlock, err := j.locker.TryLock(ctx, key, j.lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return outcomeContended, decimal.Zero, nil
	}
	if err != nil {
		return outcomeFailed, decimal.Zero, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			j.logger.Warn("release interest lock", zap.String("key", key), zap.Error(uerr))
		}
	}()

	// (a) 本月是否已計息
	monthStart, monthEnd := domain.MonthBounds(job.StartedAt)
	existing, err := j.store.ListTransactions(ctx, domain.TransactionFilter{
		AccountID: account.ID,
		Type:      domain.TransactionTypeInterest,
		From:      monthStart,
		To:        monthEnd,
	})
	if err != nil {
		return outcomeFailed, decimal.Zero, fmt.Errorf("check existing interest: %w", err)
	}
	if len(existing) > 0 {
		return outcomeAlreadyPaid, decimal.Zero, nil
	}

	// (b) 重算餘額
	balance, err := j.ledger.RecomputeBalance(ctx, account.ID)
	if err != nil {
		return outcomeFailed, decimal.Zero, err
	}
	if !balance.IsPositive() {
		return outcomeZeroBalance, decimal.Zero, nil
	}

	// (c) 利息 = round(balance * rate / 100, 2)
	interest := domain.RoundMoney(balance.Mul(job.Rate).Div(hundred))
	if interest.LessThan(domain.MinimumCredit) {
		return outcomeBelowMinimum, decimal.Zero, nil
	}

	// (d) 入帳
	tx, err := j.ledger.AppendTransaction(ctx, AppendRequest{
		AccountID:      account.ID,
		Type:           domain.TransactionTypeInterest,
		Amount:         interest,
		Description:    fmt.Sprintf("Monthly interest %s at %s%%", job.Period, job.Rate.String()),
		JobID:          job.JobID,
		CreatedBy:      actor.Identity,
		IdempotencyKey: key,
		Timestamp:      job.StartedAt,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return outcomeAlreadyPaid, decimal.Zero, nil
	}
	if err != nil {
		return outcomeFailed, decimal.Zero, err
	}
	interestCreditedTotal.Inc()

	// (e) 稽核
	j.audit.Record(ctx, domain.EventInterestCredited, actor, map[string]any{
		"jobId":         job.JobID,
		"transactionId": tx.ID,
		"amount":        domain.FormatMoney(interest),
		"balance":       domain.FormatMoney(balance),
		"rate":          job.Rate.String(),
		"period":        job.Period,
	}, account.ID)
	return outcomeCredited, interest, nil
}
