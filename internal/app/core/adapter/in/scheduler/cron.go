package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const (
	// DefaultInterestSpec 每月 1 日 02:00 (UTC)
	DefaultInterestSpec = "0 2 1 * *"
	// DefaultArchiveSpec 每日 03:30 (UTC)
	DefaultArchiveSpec = "30 3 * * *"

	defaultJobTimeout = 30 * time.Minute
)

// Jobs 排程會呼叫的核心操作 (usecase.CoreUseCase 實作)
type Jobs interface {
	TriggerInterestAccrual(ctx context.Context, actor domain.Actor) (*domain.JobResult, error)
	ArchiveWithdrawals(ctx context.Context) (int, error)
}

// Config 排程設定，空字串代表停用該排程
type Config struct {
	InterestSpec string        `yaml:"interest_spec"`
	ArchiveSpec  string        `yaml:"archive_spec"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
}

// Scheduler 以系統身分定期觸發利息批次與封存
type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	timeout time.Duration
	logger  *zap.Logger
}

// New 建立排程並註冊工作；同一個工作上一輪還沒跑完時跳過這一輪
func New(jobs Jobs, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	cronLogger := &zapCronLogger{logger: logger.Named("cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:    jobs,
		timeout: timeout,
		logger:  logger,
	}
	if cfg.InterestSpec != "" {
		if _, err := s.cron.AddFunc(cfg.InterestSpec, func() { s.RunInterest(context.Background()) }); err != nil {
			return nil, fmt.Errorf("%w: interest schedule %q: %v", domain.ErrConfiguration, cfg.InterestSpec, err)
		}
	}
	if cfg.ArchiveSpec != "" {
		if _, err := s.cron.AddFunc(cfg.ArchiveSpec, func() { s.RunArchive(context.Background()) }); err != nil {
			return nil, fmt.Errorf("%w: archive schedule %q: %v", domain.ErrConfiguration, cfg.ArchiveSpec, err)
		}
	}
	return s, nil
}

// Start 非同步啟動
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止排程並等待執行中的工作結束 (或 ctx 逾時)
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries 已註冊的工作數
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunInterest 以 system:scheduler 身分執行利息批次
func (s *Scheduler) RunInterest(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.jobs.TriggerInterestAccrual(ctx, domain.SystemActor("scheduler"))
	if err != nil {
		s.logger.Error("scheduled interest accrual failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled interest accrual done",
		zap.String("job_id", result.JobID),
		zap.Int("processed", result.Processed),
		zap.Int("errors", len(result.Errors)),
	)
}

// RunArchive 封存超過保留期限的提款任務
func (s *Scheduler) RunArchive(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.jobs.ArchiveWithdrawals(ctx)
	if err != nil {
		s.logger.Error("scheduled archive failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled archive done", zap.Int("archived", n))
}

// zapCronLogger 實作 cron.Logger
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
