package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityCreatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "event_service",
		Subsystem: "ledger",
		Name:      "last_activity_created_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity committed to Postgres.",
	})

	registrationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_service",
		Subsystem: "ledger",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome (admitted, already_registered, capacity_exceeded, not_found, error).",
	}, []string{"outcome"})

	checkInCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_service",
		Subsystem: "ledger",
		Name:      "checkins_total",
		Help:      "Check-in attempts by outcome (admitted, already_checked_in, not_registered, error).",
	}, []string{"outcome"})

	ledgerTxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "event_service",
		Subsystem: "ledger",
		Name:      "transaction_duration_seconds",
		Help:      "Duration of ledger write transactions by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(activityCreatedGauge, registrationCounter, checkInCounter, ledgerTxDuration)
}

// RecordActivityCreated updates the creation watermark gauge.
func RecordActivityCreated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityCreatedGauge.Set(float64(ts.Unix()))
}

// RecordRegistration counts a registration attempt outcome.
func RecordRegistration(outcome string) {
	registrationCounter.WithLabelValues(outcome).Inc()
}

// RecordCheckIn counts a check-in attempt outcome.
func RecordCheckIn(outcome string) {
	checkInCounter.WithLabelValues(outcome).Inc()
}

// ObserveLedgerTx records the wall-clock duration of a ledger write.
func ObserveLedgerTx(operation string, d time.Duration) {
	ledgerTxDuration.WithLabelValues(operation).Observe(d.Seconds())
}
