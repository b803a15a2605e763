// Package metrics holds the Prometheus collectors shared by the query engine,
// the session orchestrator and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
)

var (
	pre              = "dbtracker_"
	durationsBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Measures groups every collector exported by the process.
var Measures = struct {
	QueryDuration      *prometheus.HistogramVec
	SyncRuns           *prometheus.CounterVec
	SyncedTransactions prometheus.Counter
	SyncedRecords      prometheus.Counter
	TrackedDatabases   prometheus.Gauge
}{
	QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    pre + "query_duration_seconds",
		Buckets: durationsBuckets,
		Help:    "Time spent executing templated statements, by template resource and outcome.",
	}, []string{"resource", "outcome"}),
	SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: pre + "sync_runs_total",
		Help: "Log synchronisation runs by outcome.",
	}, []string{"outcome"}),
	SyncedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "synced_transactions_total",
		Help: "Transaction groups written to log tables.",
	}),
	SyncedRecords: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "synced_records_total",
		Help: "Log records fetched from tracked databases during synchronisation.",
	}),
	TrackedDatabases: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: pre + "tracked_databases",
		Help: "Entries currently held by the session.",
	}),
}

func init() {
	prometheus.MustRegister(
		Measures.QueryDuration,
		Measures.SyncRuns,
		Measures.SyncedTransactions,
		Measures.SyncedRecords,
		Measures.TrackedDatabases,
	)
}

// ObserveQuery records how long a statement for resource took since start.
func ObserveQuery(resource string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	Measures.QueryDuration.WithLabelValues(resource, outcome).Observe(time.Since(start).Seconds())
}

// ObserveSync counts one synchronisation run.
func ObserveSync(outcome string, transactions, records int) {
	Measures.SyncRuns.WithLabelValues(outcome).Inc()
	Measures.SyncedTransactions.Add(float64(transactions))
	Measures.SyncedRecords.Add(float64(records))
}
