// Package metrics holds the Prometheus collectors shared across services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Ledger transactions by kind and resulting status.",
		},
		[]string{"kind", "status"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_settlement_duration_seconds",
			Help:    "Time from transaction creation to confirmation or failure.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 60, 300, 1800},
		},
		[]string{"kind", "status"},
	)

	balanceConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_balance_conflicts_total",
			Help: "Balance row conflicts seen by the store, by outcome.",
		},
		[]string{"outcome"},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_events_dropped_total",
			Help: "Events dropped because the dispatch queue was full.",
		},
	)

	eventSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_event_sink_errors_total",
			Help: "Event delivery failures by sink.",
		},
		[]string{"sink"},
	)

	ratesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_exchange_rates_recorded_total",
			Help: "Exchange rate snapshots recorded by source.",
		},
		[]string{"source"},
	)
)

// TransactionRecorded counts a transaction reaching status.
func TransactionRecorded(kind, status string) {
	transactionsTotal.WithLabelValues(kind, status).Inc()
}

// SettlementObserved records how long a transaction stayed pending.
func SettlementObserved(kind, status string, createdAt time.Time) {
	settlementDuration.WithLabelValues(kind, status).Observe(time.Since(createdAt).Seconds())
}

// BalanceRetry counts a retried balance row mutation.
func BalanceRetry() {
	balanceConflicts.WithLabelValues("retried").Inc()
}

// EventDropped counts an event that could not be queued.
func EventDropped() {
	eventsDropped.Inc()
}

// EventSinkFailed counts a failed delivery to sink.
func EventSinkFailed(sink string) {
	eventSinkErrors.WithLabelValues(sink).Inc()
}

// RateRecorded counts a stored rate snapshot.
func RateRecorded(source string) {
	ratesRecorded.WithLabelValues(source).Inc()
}
