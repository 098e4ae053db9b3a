package usecase_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

func (f *fixture) request(t *testing.T, amount string) *domain.WithdrawalTask {
	t.Helper()
	task, err := f.core.CreateWithdrawalRequest(context.Background(), alice, "alice", money(amount), "rent")
	if err != nil {
		t.Fatalf("CreateWithdrawalRequest: %v", err)
	}
	return task
}

func TestApproveWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, "alice", "1000.00", now.AddDate(0, -1, 0))
	task := f.request(t, "50.00")

	res, err := f.core.ApproveWithdrawal(ctx, admin, task.ID)
	if err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	if res.Task.Status != domain.WithdrawalStatusApproved || res.Task.DecidedBy != "user:admin" || res.Task.DecidedAt == nil {
		t.Errorf("task = %+v", res.Task)
	}
	if res.Task.LinkedTransactionID != res.Withdrawal.ID {
		t.Errorf("task not linked to withdrawal transaction")
	}

	w, m := res.Withdrawal, res.Mirror
	if w.AccountID != "alice" || w.Type != domain.TransactionTypeWithdrawal {
		t.Errorf("withdrawal = %+v", w)
	}
	if m.AccountID != "house" || m.Type != domain.TransactionTypeDeposit {
		t.Errorf("mirror = %+v", m)
	}
	assertMoney(t, "withdrawal amount", w.Amount, "50.00")
	assertMoney(t, "mirror amount", m.Amount, "50.00")
	if w.LinkedTransactionID != m.ID || m.LinkedTransactionID != w.ID {
		t.Errorf("transactions are not mutually linked: %s<->%s / %s<->%s", w.ID, w.LinkedTransactionID, m.ID, m.LinkedTransactionID)
	}

	assertMoney(t, "alice balance", f.core.Ledger().GetBalance(ctx, "alice"), "950.00")
	assertMoney(t, "house balance", f.core.Ledger().GetBalance(ctx, "house"), "50.00")

	stored, _ := f.store.GetWithdrawalTask(ctx, task.ID)
	if stored.Status != domain.WithdrawalStatusApproved {
		t.Errorf("stored status = %s", stored.Status)
	}
	sent := f.notifier.Sent()
	if len(sent) != 1 || sent[0].Email != "alice@example.com" || sent[0].TransactionID != w.ID || sent[0].Amount != "50.00" {
		t.Errorf("notifications = %+v", sent)
	}
	if got := f.audit(t, domain.EventWithdrawalApproved); len(got) != 1 || got[0].Details["mirrorTransaction"] != m.ID {
		t.Errorf("approval audit = %+v", got)
	}
}

func TestApproveDoesNotCheckFunds(t *testing.T) {
	f := newFixture(t)
	task := f.request(t, "75.00")

	if _, err := f.core.ApproveWithdrawal(context.Background(), admin, task.ID); err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	assertMoney(t, "alice balance", f.core.Ledger().GetBalance(context.Background(), "alice"), "-75.00")
}

func TestRejectWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.request(t, "50.00")

	if _, err := f.core.RejectWithdrawal(ctx, admin, task.ID, "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty reason, got %v", err)
	}

	rejected, err := f.core.RejectWithdrawal(ctx, admin, task.ID, "insufficient documentation")
	if err != nil {
		t.Fatalf("RejectWithdrawal: %v", err)
	}
	if rejected.Status != domain.WithdrawalStatusRejected || rejected.RejectionReason != "insufficient documentation" {
		t.Errorf("task = %+v", rejected)
	}
	if txs := f.transactions(t, domain.TransactionFilter{}); len(txs) != 0 {
		t.Errorf("rejection created %d transactions", len(txs))
	}
	sent := f.notifier.Sent()
	if len(sent) != 1 || sent[0].Status != domain.WithdrawalStatusRejected || sent[0].Reason != "insufficient documentation" {
		t.Errorf("notifications = %+v", sent)
	}
}

func TestInvalidTransitionsLeaveTaskUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		decide func(f *fixture, taskID string) error
		then   func(f *fixture, taskID string) error
	}{
		{
			name: "approve twice",
			decide: func(f *fixture, id string) error {
				_, err := f.core.ApproveWithdrawal(context.Background(), admin, id)
				return err
			},
			then: func(f *fixture, id string) error {
				_, err := f.core.ApproveWithdrawal(context.Background(), admin, id)
				return err
			},
		},
		{
			name: "reject after approve",
			decide: func(f *fixture, id string) error {
				_, err := f.core.ApproveWithdrawal(context.Background(), admin, id)
				return err
			},
			then: func(f *fixture, id string) error {
				_, err := f.core.RejectWithdrawal(context.Background(), admin, id, "changed my mind")
				return err
			},
		},
		{
			name: "approve after reject",
			decide: func(f *fixture, id string) error {
				_, err := f.core.RejectWithdrawal(context.Background(), admin, id, "no")
				return err
			},
			then: func(f *fixture, id string) error {
				_, err := f.core.ApproveWithdrawal(context.Background(), admin, id)
				return err
			},
		},
		{
			name: "cancel after reject",
			decide: func(f *fixture, id string) error {
				_, err := f.core.RejectWithdrawal(context.Background(), admin, id, "no")
				return err
			},
			then: func(f *fixture, id string) error {
				_, err := f.core.CancelWithdrawal(context.Background(), alice, id)
				return err
			},
		},
		{
			name:   "archive while pending",
			decide: func(f *fixture, id string) error { return nil },
			then: func(f *fixture, id string) error {
				workflow := usecase.NewWithdrawalWorkflow(f.store, f.core.Ledger(), usecase.NewHouseResolver(f.store),
					usecase.NewAuditTrail(f.store), nil, 0, usecase.WithClock(f.clock.Now))
				_, err := workflow.Archive(context.Background(), id)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.request(t, "50.00")
			if err := tt.decide(f, task.ID); err != nil {
				t.Fatalf("decide: %v", err)
			}
			before, _ := f.store.GetWithdrawalTask(context.Background(), task.ID)
			txsBefore := len(f.transactions(t, domain.TransactionFilter{}))

			err := tt.then(f, task.ID)
			if !errors.Is(err, domain.ErrInvalidStateTransition) {
				t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
			}
			var te *domain.TransitionError
			if !errors.As(err, &te) || te.From != before.Status {
				t.Errorf("transition error = %v", err)
			}

			after, _ := f.store.GetWithdrawalTask(context.Background(), task.ID)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("task changed: %+v -> %+v", before, after)
			}
			if got := len(f.transactions(t, domain.TransactionFilter{})); got != txsBefore {
				t.Errorf("transactions changed: %d -> %d", txsBefore, got)
			}
		})
	}
}

func TestWithdrawalPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.request(t, "10.00")

	if _, err := f.core.CreateWithdrawalRequest(ctx, bob, "alice", money("1"), ""); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("create for another account: %v", err)
	}
	if _, err := f.core.ApproveWithdrawal(ctx, alice, task.ID); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("owner approve: %v", err)
	}
	if _, err := f.core.RejectWithdrawal(ctx, bob, task.ID, "x"); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("non-admin reject: %v", err)
	}
	if _, err := f.core.CancelWithdrawal(ctx, bob, task.ID); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("cancel by another user: %v", err)
	}
	if _, err := f.core.GetWithdrawal(ctx, bob, task.ID); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("get by another user: %v", err)
	}
	if _, err := f.core.ListWithdrawals(ctx, bob, domain.WithdrawalFilter{AccountID: "alice"}); !errors.Is(err, domain.ErrPermission) {
		t.Errorf("list another account: %v", err)
	}

	stored, _ := f.store.GetWithdrawalTask(ctx, task.ID)
	if stored.Status != domain.WithdrawalStatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
}

func TestCreateWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	for _, amount := range []string{"0", "-1", "10.005"} {
		_, err := f.core.CreateWithdrawalRequest(context.Background(), alice, "alice", money(amount), "")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("amount %s: expected ErrValidation, got %v", amount, err)
		}
	}
	tasks, _ := f.store.ListWithdrawalTasks(context.Background(), domain.WithdrawalFilter{IncludeArchived: true})
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestCancelWithdrawal(t *testing.T) {
	f := newFixture(t)
	task := f.request(t, "10.00")

	cancelled, err := f.core.CancelWithdrawal(context.Background(), alice, task.ID)
	if err != nil {
		t.Fatalf("CancelWithdrawal: %v", err)
	}
	if cancelled.Status != domain.WithdrawalStatusCancelled || cancelled.DecidedBy != "user:alice" {
		t.Errorf("task = %+v", cancelled)
	}
	if got := f.audit(t, domain.EventWithdrawalCancelled); len(got) != 1 {
		t.Errorf("cancel audit entries = %d", len(got))
	}
}

func TestApproveWithoutHouseAccountHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.request(t, "50.00")
	// 第二個管理員帳戶讓推導出的 House 帳戶不唯一
	if err := f.store.CreateAccount(ctx, &domain.Account{ID: "ops", IsAdministrator: true, CreatedAt: now}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := f.core.ApproveWithdrawal(ctx, admin, task.ID); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if txs := f.transactions(t, domain.TransactionFilter{}); len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
	stored, _ := f.store.GetWithdrawalTask(ctx, task.ID)
	if stored.Status != domain.WithdrawalStatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
	if got := f.audit(t, domain.EventWithdrawalApproved); len(got) != 0 {
		t.Errorf("unexpected approval audit: %+v", got)
	}
	if len(f.notifier.Sent()) != 0 {
		t.Error("unexpected notification")
	}
}

func TestApproveCompletesPartialEarlierAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.request(t, "50.00")

	// 先前的嘗試只寫入了提款交易
	orphan := &domain.Transaction{
		ID: "w-1", AccountID: "alice", Type: domain.TransactionTypeWithdrawal, Amount: money("50.00"),
		Timestamp: now, LinkedTransactionID: "m-1", CreatedBy: "user:admin", IdempotencyKey: domain.WithdrawalKey(task.ID),
	}
	if err := f.store.Commit(ctx, &usecase.Batch{Transactions: []*domain.Transaction{orphan}}); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	res, err := f.core.ApproveWithdrawal(ctx, admin, task.ID)
	if err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	if res.Withdrawal.ID != "w-1" || res.Mirror.ID != "m-1" || res.Mirror.LinkedTransactionID != "w-1" {
		t.Errorf("result = %+v / %+v", res.Withdrawal, res.Mirror)
	}
	if got := f.transactions(t, domain.TransactionFilter{AccountID: "alice"}); len(got) != 1 {
		t.Errorf("alice transactions = %d, want 1", len(got))
	}
	if got := f.transactions(t, domain.TransactionFilter{AccountID: "house"}); len(got) != 1 {
		t.Errorf("house transactions = %d, want 1", len(got))
	}
}

func TestApproveRefusesBrokenEarlierAttempt(t *testing.T) {
	tests := []struct {
		name string
		seed func(taskID string) []*domain.Transaction
	}{
		{
			name: "withdrawal without mirror id",
			seed: func(taskID string) []*domain.Transaction {
				return []*domain.Transaction{{
					ID: "w-1", AccountID: "alice", Type: domain.TransactionTypeWithdrawal, Amount: money("50.00"),
					Timestamp: now, CreatedBy: "user:admin", IdempotencyKey: domain.WithdrawalKey(taskID),
				}}
			},
		},
		{
			name: "mirror with another id",
			seed: func(taskID string) []*domain.Transaction {
				return []*domain.Transaction{
					{
						ID: "w-1", AccountID: "alice", Type: domain.TransactionTypeWithdrawal, Amount: money("50.00"),
						Timestamp: now, LinkedTransactionID: "m-1", CreatedBy: "user:admin", IdempotencyKey: domain.WithdrawalKey(taskID),
					},
					{
						ID: "m-2", AccountID: "house", Type: domain.TransactionTypeDeposit, Amount: money("50.00"),
						Timestamp: now, LinkedTransactionID: "w-1", CreatedBy: "user:admin", IdempotencyKey: domain.MirrorKey("w-1"),
					},
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			task := f.request(t, "50.00")
			seeded := tt.seed(task.ID)
			if err := f.store.Commit(ctx, &usecase.Batch{Transactions: seeded}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			_, err := f.core.ApproveWithdrawal(ctx, admin, task.ID)
			if !errors.Is(err, domain.ErrIntegrity) {
				t.Fatalf("expected ErrIntegrity, got %v", err)
			}
			if got := len(f.transactions(t, domain.TransactionFilter{})); got != len(seeded) {
				t.Errorf("transactions = %d, want %d", got, len(seeded))
			}
			after, _ := f.store.GetWithdrawalTask(ctx, task.ID)
			if after.Status != domain.WithdrawalStatusPending {
				t.Errorf("status = %s, want pending", after.Status)
			}
			if got := f.audit(t, domain.EventWithdrawalApproved); len(got) != 0 {
				t.Errorf("approval audit written: %d", len(got))
			}
		})
	}
}

func TestArchiveExpiredWithdrawals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approved := f.request(t, "10.00")
	rejected := f.request(t, "20.00")
	pending := f.request(t, "30.00")
	if _, err := f.core.ApproveWithdrawal(ctx, admin, approved.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.core.RejectWithdrawal(ctx, admin, rejected.ID, "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	n, err := f.core.ArchiveWithdrawals(ctx)
	if err != nil || n != 0 {
		t.Fatalf("archive inside retention: n=%d err=%v", n, err)
	}

	f.clock.t = now.Add(usecase.DefaultArchiveRetention + 1)
	n, err = f.core.ArchiveWithdrawals(ctx)
	if err != nil {
		t.Fatalf("ArchiveWithdrawals: %v", err)
	}
	if n != 2 {
		t.Errorf("archived = %d, want 2", n)
	}

	active, err := f.core.ListWithdrawals(ctx, alice, domain.WithdrawalFilter{})
	if err != nil {
		t.Fatalf("ListWithdrawals: %v", err)
	}
	if len(active) != 1 || active[0].ID != pending.ID {
		t.Errorf("active tasks = %+v", active)
	}
	all, _ := f.core.ListWithdrawals(ctx, admin, domain.WithdrawalFilter{IncludeArchived: true})
	if len(all) != 3 {
		t.Errorf("all tasks = %d, want 3", len(all))
	}
	if got := f.audit(t, domain.EventWithdrawalArchived); len(got) != 2 {
		t.Errorf("archive audit entries = %d, want 2", len(got))
	}
}
