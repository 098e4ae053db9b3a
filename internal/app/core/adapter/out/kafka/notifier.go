package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Config Kafka 發佈設定
type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// messageWriter kafka.Writer 的子集合，測試時替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier 把提款審核結果寫到 Kafka topic，以 taskId 為 key 讓同一任務落在同一 partition
type Notifier struct {
	writer messageWriter
}

// NewNotifier 建立同步寫入的 Writer (需等 leader 確認)
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	return &Notifier{writer: writer}
}

func (n *Notifier) NotifyWithdrawalDecision(ctx context.Context, msg *domain.WithdrawalNotification) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.TaskID),
		Value: value,
		Time:  msg.DecidedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("withdrawal." + string(msg.Status))},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close flush 並關閉 writer
func (n *Notifier) Close() error {
	return n.writer.Close()
}

var _ usecase.Notifier = (*Notifier)(nil)
