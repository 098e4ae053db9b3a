//go:build integration

package mysql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	mysqlstore "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// startMySQLContainer 啟動 mysql:8 並回傳連線設定
func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, mysql.Config) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "ledger",
			"MYSQL_USER":          "ledger",
			"MYSQL_PASSWORD":      "ledger",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get mysql host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("failed to get mysql port: %v", err)
	}
	return container, mysql.Config{
		Host:           host,
		Port:           port.Int(),
		User:           "ledger",
		Password:       "ledger",
		DBName:         "ledger",
		ConnectRetries: 20,
		RetryInterval:  time.Second,
		LogLevel:       "silent",
	}
}

func TestMySQLStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, cfg := startMySQLContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	}()

	client, err := mysql.NewClient(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	store := mysqlstore.NewStore(client)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	for _, a := range []*domain.Account{
		{ID: "alice", Email: "alice@example.com", CreatedAt: now},
		{ID: "house", Email: "house@example.com", IsAdministrator: true, CreatedAt: now},
	} {
		if err := store.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount(%s): %v", a.ID, err)
		}
	}

	t.Run("commit updates cache in the same transaction", func(t *testing.T) {
		err := store.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{{
			ID: "00000000-0000-0000-0000-000000000001", AccountID: "alice",
			Type: domain.TransactionTypeDeposit, Amount: decimal.RequireFromString("1000.00"),
			Timestamp: now, CreatedBy: "seed",
		}}})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		a, err := store.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("GetAccount: %v", err)
		}
		if !a.CachedBalance.Equal(decimal.RequireFromString("1000")) || a.CachedTransactionCount != 1 {
			t.Errorf("cache = %s/%d, want 1000/1", a.CachedBalance, a.CachedTransactionCount)
		}
	})

	t.Run("duplicate idempotency key rolls back", func(t *testing.T) {
		interest := func(id string) *domain.Transaction {
			return &domain.Transaction{
				ID: id, AccountID: "alice", Type: domain.TransactionTypeInterest,
				Amount: decimal.RequireFromString("20.00"), Timestamp: now, CreatedBy: "system:interest",
				IdempotencyKey: domain.InterestKey("alice", now),
			}
		}
		if err := store.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{interest("00000000-0000-0000-0000-000000000002")}}); err != nil {
			t.Fatalf("first interest: %v", err)
		}
		err := store.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{interest("00000000-0000-0000-0000-000000000003")}})
		if !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		a, _ := store.GetAccount(ctx, "alice")
		if !a.CachedBalance.Equal(decimal.RequireFromString("1020")) {
			t.Errorf("cached balance = %s, want 1020", a.CachedBalance)
		}
	})

	t.Run("conditional task update", func(t *testing.T) {
		task := &domain.WithdrawalTask{
			ID: "task-1", AccountID: "alice", RequestedAmount: decimal.RequireFromString("50"),
			Status: domain.WithdrawalStatusPending, CreatedAt: now,
		}
		if err := store.Commit(ctx, &usecase.Batch{NewTasks: []*domain.WithdrawalTask{task}}); err != nil {
			t.Fatalf("create task: %v", err)
		}
		rejected, _ := task.Transition(domain.WithdrawalStatusRejected)
		rejected.RejectionReason = "insufficient documentation"
		if err := store.Commit(ctx, &usecase.Batch{TaskUpdate: &usecase.TaskUpdate{Task: rejected, ExpectedStatus: domain.WithdrawalStatusPending}}); err != nil {
			t.Fatalf("reject: %v", err)
		}
		cancelled, _ := task.Transition(domain.WithdrawalStatusCancelled)
		err := store.Commit(ctx, &usecase.Batch{TaskUpdate: &usecase.TaskUpdate{Task: cancelled, ExpectedStatus: domain.WithdrawalStatusPending}})
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
		}
		got, err := store.GetWithdrawalTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("GetWithdrawalTask: %v", err)
		}
		if got.Status != domain.WithdrawalStatusRejected || got.RejectionReason != "insufficient documentation" {
			t.Errorf("task = %+v", got)
		}
	})

	t.Run("balance cache write is conditional on count", func(t *testing.T) {
		ok, err := store.UpdateBalanceCache(ctx, "alice", decimal.RequireFromString("1020"), 1, now)
		if err != nil || ok {
			t.Fatalf("stale count: ok=%v err=%v", ok, err)
		}
		ok, err = store.UpdateBalanceCache(ctx, "alice", decimal.RequireFromString("1020"), 2, now)
		if err != nil || !ok {
			t.Fatalf("current count: ok=%v err=%v", ok, err)
		}
	})

	t.Run("audit details round trip as json", func(t *testing.T) {
		entry := &domain.AuditLogEntry{
			ID: "01J0000000000000000000000A", EventType: domain.EventInterestCredited,
			ActorIdentity: "system:interest", ActorIsAdmin: true, Timestamp: now,
			SubjectAccountID: "alice", Details: map[string]any{"amount": "20.00"},
		}
		if err := store.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
		got, err := store.QueryAudit(ctx, domain.AuditFilter{SubjectAccountID: "alice"}, 10)
		if err != nil {
			t.Fatalf("QueryAudit: %v", err)
		}
		if len(got) != 1 || got[0].Details["amount"] != "20.00" {
			t.Errorf("audit = %+v", got)
		}
	})
}
