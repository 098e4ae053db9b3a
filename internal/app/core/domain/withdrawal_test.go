package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func TestWithdrawalTransitions(t *testing.T) {
	all := []domain.WithdrawalStatus{
		domain.WithdrawalStatusPending,
		domain.WithdrawalStatusApproved,
		domain.WithdrawalStatusRejected,
		domain.WithdrawalStatusCancelled,
		domain.WithdrawalStatusArchived,
	}
	allowed := map[domain.WithdrawalStatus]map[domain.WithdrawalStatus]bool{
		domain.WithdrawalStatusPending: {
			domain.WithdrawalStatusApproved:  true,
			domain.WithdrawalStatusRejected:  true,
			domain.WithdrawalStatusCancelled: true,
		},
		domain.WithdrawalStatusApproved:  {domain.WithdrawalStatusArchived: true},
		domain.WithdrawalStatusRejected:  {domain.WithdrawalStatusArchived: true},
		domain.WithdrawalStatusCancelled: {domain.WithdrawalStatusArchived: true},
	}
	for _, from := range all {
		for _, to := range all {
			task := &domain.WithdrawalTask{ID: "t1", Status: from}
			next, err := task.Transition(to)
			if allowed[from][to] {
				if err != nil || next.Status != to {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				if task.Status != from {
					t.Errorf("%s -> %s: original task mutated", from, to)
				}
				continue
			}
			if !errors.Is(err, domain.ErrInvalidStateTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidStateTransition, got %v", from, to, err)
			}
		}
	}
}

func TestWithdrawalTaskCloneIsDeep(t *testing.T) {
	decided := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	task := &domain.WithdrawalTask{ID: "t1", Status: domain.WithdrawalStatusApproved, DecidedAt: &decided}
	cp := task.Clone()
	*cp.DecidedAt = decided.Add(time.Hour)
	if !task.DecidedAt.Equal(decided) {
		t.Errorf("clone shares DecidedAt with original")
	}
}

func TestWithdrawalFilterMatch(t *testing.T) {
	decided := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	archived := &domain.WithdrawalTask{AccountID: "alice", Status: domain.WithdrawalStatusArchived, DecidedAt: &decided}
	pending := &domain.WithdrawalTask{AccountID: "alice", Status: domain.WithdrawalStatusPending}

	tests := []struct {
		name   string
		filter domain.WithdrawalFilter
		task   *domain.WithdrawalTask
		want   bool
	}{
		{name: "archived hidden by default", task: archived},
		{name: "archived included", filter: domain.WithdrawalFilter{IncludeArchived: true}, task: archived, want: true},
		{name: "explicit status", filter: domain.WithdrawalFilter{Statuses: []domain.WithdrawalStatus{domain.WithdrawalStatusArchived}}, task: archived, want: true},
		{name: "other account", filter: domain.WithdrawalFilter{AccountID: "bob"}, task: pending},
		{name: "undecided is never before", filter: domain.WithdrawalFilter{DecidedBefore: decided.Add(time.Hour)}, task: pending},
		{name: "decided before", filter: domain.WithdrawalFilter{IncludeArchived: true, DecidedBefore: decided.Add(time.Hour)}, task: archived, want: true},
	}
	for _, tt := range tests {
		if got := tt.filter.Match(tt.task); got != tt.want {
			t.Errorf("%s: Match = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseWithdrawalStatus(t *testing.T) {
	if st, err := domain.ParseWithdrawalStatus("cancelled"); err != nil || st != domain.WithdrawalStatusCancelled {
		t.Errorf("cancelled: %v %v", st, err)
	}
	if _, err := domain.ParseWithdrawalStatus("done"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown status: %v", err)
	}
}
