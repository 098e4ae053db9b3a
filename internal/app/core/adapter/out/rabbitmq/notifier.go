package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Config RabbitMQ 發佈設定
type Config struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	// RoutingKeyPrefix 實際 routing key 為 prefix + 狀態，例如 withdrawal.approved
	RoutingKeyPrefix string `yaml:"routing_key_prefix"`
}

// Notifier 把提款審核結果發佈到 topic exchange
type Notifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	mu      sync.Mutex
}

// NewNotifier 連線並宣告 exchange
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.RoutingKeyPrefix == "" {
		cfg.RoutingKeyPrefix = "withdrawal."
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &Notifier{conn: conn, channel: channel, cfg: cfg}, nil
}

// RoutingKey 依審核結果決定 routing key
func (n *Notifier) RoutingKey(status domain.WithdrawalStatus) string {
	return n.cfg.RoutingKeyPrefix + string(status)
}

func (n *Notifier) NotifyWithdrawalDecision(ctx context.Context, msg *domain.WithdrawalNotification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	// amqp.Channel 不支援多個 goroutine 同時發佈
	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.channel.PublishWithContext(ctx,
		n.cfg.Exchange,
		n.RoutingKey(msg.Status),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.TaskID + ":" + string(msg.Status),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.cfg.Exchange, err)
	}
	return nil
}

// Close 關閉 channel 與連線
func (n *Notifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}

var _ usecase.Notifier = (*Notifier)(nil)
