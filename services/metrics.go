package services

import "github.com/prometheus/client_golang/prometheus"

var (
	streakSnapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_snaps_total",
			Help: "Snap events processed by the streak engine, by outcome",
		},
		[]string{"outcome"},
	)
	streakEngineFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_engine_failures_total",
			Help: "Streak transactions that failed and were swallowed",
		},
	)
	streakWarningsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_warnings_sent_total",
			Help: "Streak records marked warned by the sweeper",
		},
	)
	streakExpiriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_expiries_total",
			Help: "Streak records reset by the expiry pass",
		},
	)
	sweepErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_sweep_errors_total",
			Help: "Per-record failures during sweeper passes",
		},
		[]string{"pass"},
	)
)

// InitStreakMetrics registers the streak counters. Call from main.go
// next to middleware.InitPrometheus.
func InitStreakMetrics() {
	prometheus.MustRegister(streakSnapsTotal)
	prometheus.MustRegister(streakEngineFailures)
	prometheus.MustRegister(streakWarningsSent)
	prometheus.MustRegister(streakExpiriesTotal)
	prometheus.MustRegister(sweepErrorsTotal)
}
