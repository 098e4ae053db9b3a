package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

var t0 = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTx(id, account string, typ domain.TransactionType, amount, key string) *domain.Transaction {
	return &domain.Transaction{
		ID:             id,
		AccountID:      account,
		Type:           typ,
		Amount:         decimal.RequireFromString(amount),
		Timestamp:      t0,
		CreatedBy:      "test",
		IdempotencyKey: key,
	}
}

func mustStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, id := range []string{"acct-1", "acct-2"} {
		if err := s.CreateAccount(context.Background(), &domain.Account{ID: id, CreatedAt: t0}); err != nil {
			t.Fatalf("CreateAccount(%s): %v", id, err)
		}
	}
	return s
}

func TestCommitUpdatesCacheAndCount(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)

	err := s.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{
		newTx("t1", "acct-1", domain.TransactionTypeDeposit, "100.00", ""),
		newTx("t2", "acct-1", domain.TransactionTypeBankFee, "2.50", ""),
	}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	a, err := s.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !a.CachedBalance.Equal(decimal.RequireFromString("97.50")) {
		t.Errorf("cached balance = %s, want 97.50", a.CachedBalance)
	}
	if a.CachedTransactionCount != 2 {
		t.Errorf("cached count = %d, want 2", a.CachedTransactionCount)
	}
	if !a.CachedBalanceUpdatedAt.IsZero() {
		t.Errorf("batch commit must not refresh cache timestamp, got %v", a.CachedBalanceUpdatedAt)
	}
}

func TestCommitDuplicateKeyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)

	if err := s.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{
		newTx("t1", "acct-1", domain.TransactionTypeInterest, "20.00", "interest:acct-1:2026-03"),
	}}); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	err := s.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{
		newTx("t2", "acct-2", domain.TransactionTypeDeposit, "5.00", ""),
		newTx("t3", "acct-1", domain.TransactionTypeInterest, "20.00", "interest:acct-1:2026-03"),
	}})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	txs, _ := s.ListTransactions(ctx, domain.TransactionFilter{AccountID: "acct-2"})
	if len(txs) != 0 {
		t.Errorf("rejected batch left %d transactions on acct-2", len(txs))
	}
}

func TestCommitTaskUpdateRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)
	task := &domain.WithdrawalTask{
		ID:              "w1",
		AccountID:       "acct-1",
		RequestedAmount: decimal.RequireFromString("50"),
		Status:          domain.WithdrawalStatusPending,
		CreatedAt:       t0,
	}
	if err := s.Commit(ctx, &usecase.Batch{NewTasks: []*domain.WithdrawalTask{task}}); err != nil {
		t.Fatalf("Commit task: %v", err)
	}

	rejected, _ := task.Transition(domain.WithdrawalStatusRejected)
	if err := s.Commit(ctx, &usecase.Batch{TaskUpdate: &usecase.TaskUpdate{Task: rejected, ExpectedStatus: domain.WithdrawalStatusPending}}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	approved, _ := task.Transition(domain.WithdrawalStatusApproved)
	err := s.Commit(ctx, &usecase.Batch{
		Transactions: []*domain.Transaction{newTx("t1", "acct-1", domain.TransactionTypeWithdrawal, "50", "withdrawal:w1")},
		TaskUpdate:   &usecase.TaskUpdate{Task: approved, ExpectedStatus: domain.WithdrawalStatusPending},
	})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	got, _ := s.GetWithdrawalTask(ctx, "w1")
	if got.Status != domain.WithdrawalStatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	txs, _ := s.ListTransactions(ctx, domain.TransactionFilter{})
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestUpdateBalanceCacheConditional(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)
	_ = s.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{
		newTx("t1", "acct-1", domain.TransactionTypeDeposit, "10", ""),
	}})

	ok, err := s.UpdateBalanceCache(ctx, "acct-1", decimal.RequireFromString("10"), 0, t0)
	if err != nil || ok {
		t.Fatalf("stale count: ok=%v err=%v, want false,nil", ok, err)
	}
	ok, err = s.UpdateBalanceCache(ctx, "acct-1", decimal.RequireFromString("10"), 1, t0)
	if err != nil || !ok {
		t.Fatalf("current count: ok=%v err=%v, want true,nil", ok, err)
	}
	a, _ := s.GetAccount(ctx, "acct-1")
	if !a.CachedBalanceUpdatedAt.Equal(t0) {
		t.Errorf("updated at = %v, want %v", a.CachedBalanceUpdatedAt, t0)
	}

	if _, err := s.UpdateBalanceCache(ctx, "missing", decimal.Zero, 0, t0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryAuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)
	for i := 0; i < 5; i++ {
		_ = s.AppendAudit(ctx, &domain.AuditLogEntry{
			ID:        string(rune('a' + i)),
			EventType: domain.EventBalanceRecomputed,
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := s.QueryAudit(ctx, domain.AuditFilter{}, 3)
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"e", "d", "c"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestStoreRecoversFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.wal")

	w, err := wal.Open(path)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	s, err := NewStore(w)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_ = s.CreateAccount(ctx, &domain.Account{ID: "acct-1", CreatedAt: t0})
	_ = s.SaveSystemConfig(ctx, &domain.SystemConfig{InterestRatePercent: decimal.RequireFromString("2")})
	_ = s.Commit(ctx, &usecase.Batch{
		Transactions: []*domain.Transaction{newTx("t1", "acct-1", domain.TransactionTypeDeposit, "1000", "")},
		NewTasks: []*domain.WithdrawalTask{{
			ID: "w1", AccountID: "acct-1", RequestedAmount: decimal.RequireFromString("50"),
			Status: domain.WithdrawalStatusPending, CreatedAt: t0,
		}},
	})
	_, _ = s.UpdateBalanceCache(ctx, "acct-1", decimal.RequireFromString("1000"), 1, t0)
	_ = s.AppendAudit(ctx, &domain.AuditLogEntry{ID: "01A", EventType: domain.EventBalanceRecomputed, Timestamp: t0})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := wal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	recovered, err := NewStore(w2)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	a, err := recovered.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !a.CachedBalance.Equal(decimal.RequireFromString("1000")) || a.CachedTransactionCount != 1 {
		t.Errorf("cache = %s/%d, want 1000/1", a.CachedBalance, a.CachedTransactionCount)
	}
	if _, err := recovered.GetWithdrawalTask(ctx, "w1"); err != nil {
		t.Errorf("task not recovered: %v", err)
	}
	cfg, err := recovered.GetSystemConfig(ctx)
	if err != nil || !cfg.InterestRatePercent.Equal(decimal.RequireFromString("2")) {
		t.Errorf("config not recovered: %v %v", cfg, err)
	}
	entries, _ := recovered.QueryAudit(ctx, domain.AuditFilter{}, 10)
	if len(entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(entries))
	}
	// 冪等鍵索引也要恢復
	err = recovered.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{newTx("t1", "acct-1", domain.TransactionTypeDeposit, "1", "")}})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for replayed id, got %v", err)
	}
}

func TestListWithdrawalTasksExcludesArchived(t *testing.T) {
	ctx := context.Background()
	s := mustStore(t)
	archivedAt := t0
	_ = s.Commit(ctx, &usecase.Batch{NewTasks: []*domain.WithdrawalTask{
		{ID: "w1", AccountID: "acct-1", RequestedAmount: decimal.NewFromInt(1), Status: domain.WithdrawalStatusPending, CreatedAt: t0},
		{ID: "w2", AccountID: "acct-1", RequestedAmount: decimal.NewFromInt(1), Status: domain.WithdrawalStatusArchived, CreatedAt: t0.Add(time.Hour), ArchivedAt: &archivedAt},
		{ID: "w3", AccountID: "acct-2", RequestedAmount: decimal.NewFromInt(1), Status: domain.WithdrawalStatusPending, CreatedAt: t0.Add(2 * time.Hour)},
	}})

	active, _ := s.ListWithdrawalTasks(ctx, domain.WithdrawalFilter{})
	if len(active) != 2 || active[0].ID != "w3" || active[1].ID != "w1" {
		t.Errorf("active = %v, want [w3 w1]", ids(active))
	}
	all, _ := s.ListWithdrawalTasks(ctx, domain.WithdrawalFilter{AccountID: "acct-1", IncludeArchived: true})
	if len(all) != 2 {
		t.Errorf("acct-1 with archived = %v, want 2 tasks", ids(all))
	}
}

func ids(tasks []*domain.WithdrawalTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
