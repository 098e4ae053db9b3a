package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

var (
	// now 固定在月中，避免跨月
	now   = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	admin = domain.Actor{Identity: "user:admin", AccountID: "house", IsAdmin: true}
	alice = domain.Actor{Identity: "user:alice", AccountID: "alice"}
	bob   = domain.Actor{Identity: "user:bob", AccountID: "bob"}
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// clock 可調整的測試時鐘
type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time {
	return c.t
}

type fixture struct {
	store    *memory.Store
	notifier *memory.Notifier
	clock    *clock
	core     *usecase.CoreUseCase
}

// newFixture alice、bob 一般帳戶 + house 管理員帳戶，利率 2%
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := memory.NewStore(nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, a := range []*domain.Account{
		{ID: "alice", OwnerIdentity: "user:alice", DisplayName: "Alice", Email: "alice@example.com", CreatedAt: now},
		{ID: "bob", OwnerIdentity: "user:bob", DisplayName: "Bob", Email: "bob@example.com", CreatedAt: now},
		{ID: "house", OwnerIdentity: "user:admin", DisplayName: "House", Email: "house@example.com", IsAdministrator: true, CreatedAt: now},
	} {
		if err := store.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
	setRate(t, store, "2")

	f := &fixture{store: store, notifier: memory.NewNotifier(nil), clock: &clock{t: now}}
	f.core = usecase.NewCoreUseCase(store, memory.NewLocker(), f.notifier, usecase.CoreConfig{}, usecase.WithClock(f.clock.Now))
	return f
}

func setRate(t *testing.T, store usecase.Store, rate string) {
	t.Helper()
	if err := store.SaveSystemConfig(context.Background(), &domain.SystemConfig{InterestRatePercent: money(rate), UpdatedAt: now}); err != nil {
		t.Fatalf("SaveSystemConfig: %v", err)
	}
}

// deposit 直接寫入一筆存款 (註冊或櫃台流程在核心之外)
func (f *fixture) deposit(t *testing.T, accountID, amount string, at time.Time) {
	t.Helper()
	tx := &domain.Transaction{
		ID: accountID + "-" + at.Format(time.RFC3339Nano) + "-" + amount, AccountID: accountID,
		Type: domain.TransactionTypeDeposit, Amount: money(amount), Timestamp: at, CreatedBy: "teller",
	}
	if err := f.store.Commit(context.Background(), &usecase.Batch{Transactions: []*domain.Transaction{tx}}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) transactions(t *testing.T, filter domain.TransactionFilter) []*domain.Transaction {
	t.Helper()
	txs, err := f.store.ListTransactions(context.Background(), filter)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return txs
}

func (f *fixture) audit(t *testing.T, event domain.EventType) []*domain.AuditLogEntry {
	t.Helper()
	entries, err := f.store.QueryAudit(context.Background(), domain.AuditFilter{EventType: event}, 0)
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	return entries
}

func assertMoney(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(money(want)) {
		t.Errorf("%s = %s, want %s", what, domain.FormatMoney(got), want)
	}
}
