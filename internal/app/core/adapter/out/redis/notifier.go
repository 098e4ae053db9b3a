package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// DefaultWithdrawalChannel 提款審核結果的 pub/sub 頻道
const DefaultWithdrawalChannel = "bank.withdrawal_decisions"

// Notifier 把提款審核結果發佈到 Redis 頻道，由通知服務訂閱後寄送
type Notifier struct {
	client  redis.UniversalClient
	channel string
}

func NewNotifier(client redis.UniversalClient, channel string) *Notifier {
	if channel == "" {
		channel = DefaultWithdrawalChannel
	}
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) NotifyWithdrawalDecision(ctx context.Context, msg *domain.WithdrawalNotification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	return nil
}

var _ usecase.Notifier = (*Notifier)(nil)
