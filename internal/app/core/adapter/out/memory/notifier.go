package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Notifier 把提款通知寫進 log 並保留在記憶體 (notifier.driver = log)
type Notifier struct {
	mu     sync.Mutex
	sent   []domain.WithdrawalNotification
	logger *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) NotifyWithdrawalDecision(ctx context.Context, msg *domain.WithdrawalNotification) error {
	n.mu.Lock()
	n.sent = append(n.sent, *msg)
	n.mu.Unlock()

	n.logger.Info("withdrawal decision",
		zap.String("task_id", msg.TaskID),
		zap.String("account_id", msg.AccountID),
		zap.String("email", msg.Email),
		zap.String("status", string(msg.Status)),
		zap.String("amount", msg.Amount),
		zap.String("reason", msg.Reason),
	)
	return nil
}

// Sent 已送出的通知 (依送出順序)
func (n *Notifier) Sent() []domain.WithdrawalNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.WithdrawalNotification, len(n.sent))
	copy(out, n.sent)
	return out
}

var _ usecase.Notifier = (*Notifier)(nil)
