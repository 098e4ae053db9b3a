package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// StatementService 提供對帳單所需的餘額與期間交易，排版與寄送不在這裡
type StatementService struct {
	store  Store
	ledger *Ledger
	audit  *AuditTrail
	options
}

func NewStatementService(store Store, ledger *Ledger, audit *AuditTrail, opts ...Option) *StatementService {
	return &StatementService{
		store:   store,
		ledger:  ledger,
		audit:   audit,
		options: newOptions(opts),
	}
}

// Generate 產生指定月份的對帳資料 (管理員)。
// 未指定年月時取上個月；單一帳戶失敗記錄在該帳戶的結果中。
func (s *StatementService) Generate(ctx context.Context, actor domain.Actor, req domain.StatementRequest) ([]*domain.StatementResult, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: statement generation requires an administrator", domain.ErrPermission)
	}
	start, end, err := s.period(req)
	if err != nil {
		return nil, err
	}
	accounts, err := s.targetAccounts(ctx, req.AccountIdentifier)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.StatementResult, 0, len(accounts))
	failed := 0
	for _, account := range accounts {
		st, err := s.build(ctx, account, start, end)
		if err != nil {
			failed++
			results = append(results, &domain.StatementResult{AccountID: account.ID, Error: err.Error()})
			continue
		}
		results = append(results, &domain.StatementResult{AccountID: account.ID, Statement: st})
	}

	s.audit.Record(ctx, domain.EventStatementGenerated, actor, map[string]any{
		"period":     domain.YearMonth(start),
		"accounts":   len(accounts),
		"failed":     failed,
		"identifier": req.AccountIdentifier,
	}, "")
	return results, nil
}

func (s *StatementService) period(req domain.StatementRequest) (time.Time, time.Time, error) {
	thisMonth, _ := domain.MonthBounds(s.now())
	if req.Month == 0 {
		// 只給年份時取該年最後一個已結束的月份
		switch {
		case req.Year == 0:
			return thisMonth.AddDate(0, -1, 0), thisMonth, nil
		case req.Year < thisMonth.Year():
			start := time.Date(req.Year, time.December, 1, 0, 0, 0, 0, time.UTC)
			return start, start.AddDate(0, 1, 0), nil
		case req.Year == thisMonth.Year() && thisMonth.Month() > time.January:
			return thisMonth.AddDate(0, -1, 0), thisMonth, nil
		}
		return time.Time{}, time.Time{}, fmt.Errorf("%w: year %d has no completed month yet", domain.ErrValidation, req.Year)
	}
	if req.Month < 1 || req.Month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: month must be between 1 and 12, got %d", domain.ErrValidation, req.Month)
	}
	year := req.Year
	if year == 0 {
		year = thisMonth.Year()
	}
	start := time.Date(year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// targetAccounts identifier 可為帳戶 ID 或 email，空字串代表全部帳戶
func (s *StatementService) targetAccounts(ctx context.Context, identifier string) ([]*domain.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return s.store.ListAccounts(ctx)
	}
	account, err := s.store.GetAccount(ctx, identifier)
	if err == nil {
		return []*domain.Account{account}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if strings.EqualFold(a.Email, identifier) {
			return []*domain.Account{a}, nil
		}
	}
	return nil, fmt.Errorf("account %q: %w", identifier, domain.ErrNotFound)
}

func (s *StatementService) build(ctx context.Context, account *domain.Account, start, end time.Time) (*domain.Statement, error) {
	txs, err := s.ledger.History(ctx, account.ID, time.Time{}, end)
	if err != nil {
		return nil, err
	}
	st := &domain.Statement{
		AccountID:      account.ID,
		DisplayName:    account.DisplayName,
		Email:          account.Email,
		Period:         domain.YearMonth(start),
		PeriodStart:    start,
		PeriodEnd:      end,
		OpeningBalance: decimal.Zero,
		TotalCredits:   decimal.Zero,
		TotalDebits:    decimal.Zero,
		Transactions:   []*domain.Transaction{},
	}
	for _, tx := range txs {
		if tx.Timestamp.Before(start) {
			st.OpeningBalance = st.OpeningBalance.Add(tx.SignedAmount())
			continue
		}
		st.Transactions = append(st.Transactions, tx)
		if tx.Type.IsCredit() {
			st.TotalCredits = st.TotalCredits.Add(tx.Amount)
		} else {
			st.TotalDebits = st.TotalDebits.Add(tx.Amount)
		}
	}
	st.ClosingBalance = st.OpeningBalance.Add(st.TotalCredits).Sub(st.TotalDebits)
	st.CurrentBalance = s.ledger.GetBalance(ctx, account.ID)
	return st, nil
}
