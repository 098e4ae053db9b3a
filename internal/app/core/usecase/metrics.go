package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	interestCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bank_ledger",
		Name:      "interest_credited_total",
		Help:      "Number of interest transactions created",
	})

	interestAccountOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bank_ledger",
		Name:      "interest_account_outcomes_total",
		Help:      "Per-account outcome of interest accrual runs",
	}, []string{"outcome"})

	interestJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bank_ledger",
		Name:      "interest_job_duration_seconds",
		Help:      "Duration of interest accrual runs",
		Buckets:   prometheus.DefBuckets,
	})

	withdrawalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bank_ledger",
		Name:      "withdrawal_decisions_total",
		Help:      "Withdrawal task transitions by target status",
	}, []string{"status"})

	auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bank_ledger",
		Name:      "audit_write_failures_total",
		Help:      "Audit entries that could not be persisted",
	})

	balanceRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bank_ledger",
		Name:      "balance_recomputes_total",
		Help:      "Full balance recomputations from the transaction log",
	}, []string{"result"})
)
