package service

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "users_reconciled_total", Help: "Reconciled user records by outcome"},
		[]string{"outcome"},
	)
	scoreDeltas = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "score_deltas_applied_total", Help: "Score deltas applied to users"},
	)
	leaderboardCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "leaderboard_cache_requests_total", Help: "Leaderboard cache lookups"},
		[]string{"view", "result"},
	)
)

const (
	outcomeCreated = "created"
	outcomeMerged  = "merged"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

func init() { prometheus.MustRegister(reconcileTotal, scoreDeltas, leaderboardCache) }
