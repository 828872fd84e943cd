// Package metrics 账本与奖励分发的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sfrt",
	Subsystem: "ledger",
	Name:      "mutations_total",
	Help:      "Balance mutations by operation, transaction type and outcome.",
}, []string{"op", "type", "outcome"})

var LedgerConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sfrt",
	Subsystem: "ledger",
	Name:      "conflict_retries_total",
	Help:      "Atomic units replayed after an optimistic lock or serialization conflict.",
})

var StatsQueryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sfrt",
	Subsystem: "stats",
	Name:      "query_failures_total",
	Help:      "Statistics queries that failed and were replaced by a zero default.",
}, []string{"query"})

var RewardShares = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sfrt",
	Subsystem: "reward",
	Name:      "shares_total",
	Help:      "Reward shares by kind, role and status.",
}, []string{"kind", "role", "status"})

var RewardAmount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sfrt",
	Subsystem: "reward",
	Name:      "distributed_amount_total",
	Help:      "Sum of credited reward amounts by role.",
}, []string{"role"})
