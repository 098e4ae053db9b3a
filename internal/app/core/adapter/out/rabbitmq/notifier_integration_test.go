//go:build integration

package rabbitmq_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/rabbitmq"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func startRabbitMQContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-management",
			ExposedPorts: []string{"5672/tcp"},
			Env: map[string]string{
				"RABBITMQ_DEFAULT_USER": "guest",
				"RABBITMQ_DEFAULT_PASS": "guest",
			},
			WaitingFor: wait.ForLog("Server startup complete"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get rabbitmq host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatalf("failed to get rabbitmq port: %v", err)
	}
	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestNotifierPublishesDecision(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, url := startRabbitMQContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}()

	cfg := rabbitmq.Config{URL: url, Exchange: "bank.withdrawals"}
	notifier, err := rabbitmq.NewNotifier(cfg)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer notifier.Close()

	conn, err := amqp.Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("queue declare: %v", err)
	}
	if err := ch.QueueBind(q.Name, "withdrawal.*", cfg.Exchange, false, nil); err != nil {
		t.Fatalf("queue bind: %v", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	err = notifier.NotifyWithdrawalDecision(ctx, &domain.WithdrawalNotification{
		TaskID: "task-1", AccountID: "alice", Status: domain.WithdrawalStatusApproved, Amount: "50.00",
	})
	if err != nil {
		t.Fatalf("NotifyWithdrawalDecision: %v", err)
	}

	select {
	case d := <-msgs:
		if d.RoutingKey != "withdrawal.approved" {
			t.Errorf("routing key = %s", d.RoutingKey)
		}
		var got domain.WithdrawalNotification
		if err := json.Unmarshal(d.Body, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.TaskID != "task-1" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no message received")
	}
}
