package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

type fakeJobs struct {
	interestActors []domain.Actor
	archiveCalls   int
	err            error
}

func (f *fakeJobs) TriggerInterestAccrual(_ context.Context, actor domain.Actor) (*domain.JobResult, error) {
	f.interestActors = append(f.interestActors, actor)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.JobResult{JobID: "job-1"}, nil
}

func (f *fakeJobs) ArchiveWithdrawals(context.Context) (int, error) {
	f.archiveCalls++
	return 3, f.err
}

func TestNewRegistersSchedules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		entries int
		wantErr bool
	}{
		{name: "defaults", cfg: Config{InterestSpec: DefaultInterestSpec, ArchiveSpec: DefaultArchiveSpec}, entries: 2},
		{name: "interest only", cfg: Config{InterestSpec: DefaultInterestSpec}, entries: 1},
		{name: "disabled", cfg: Config{}, entries: 0},
		{name: "bad cron expression", cfg: Config{InterestSpec: "every tuesday"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&fakeJobs{}, tt.cfg, nil)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrConfiguration) {
					t.Fatalf("expected ErrConfiguration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := s.Entries(); got != tt.entries {
				t.Errorf("entries = %d, want %d", got, tt.entries)
			}
		})
	}
}

func TestRunInterestUsesSystemActor(t *testing.T) {
	jobs := &fakeJobs{}
	s, err := New(jobs, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RunInterest(context.Background())
	s.RunArchive(context.Background())

	if len(jobs.interestActors) != 1 {
		t.Fatalf("interest calls = %d, want 1", len(jobs.interestActors))
	}
	actor := jobs.interestActors[0]
	if !actor.IsAdmin || actor.Identity != "system:scheduler" {
		t.Errorf("actor = %+v", actor)
	}
	if jobs.archiveCalls != 1 {
		t.Errorf("archive calls = %d, want 1", jobs.archiveCalls)
	}
}

func TestRunInterestSwallowsErrors(t *testing.T) {
	jobs := &fakeJobs{err: domain.ErrConfiguration}
	s, _ := New(jobs, Config{}, nil)
	s.RunInterest(context.Background())
	s.RunArchive(context.Background())
	if len(jobs.interestActors) != 1 || jobs.archiveCalls != 1 {
		t.Errorf("calls = %d/%d", len(jobs.interestActors), jobs.archiveCalls)
	}
}

func TestStop(t *testing.T) {
	s, _ := New(&fakeJobs{}, Config{ArchiveSpec: DefaultArchiveSpec}, nil)
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
