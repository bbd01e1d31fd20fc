// Package metrics holds the Prometheus collectors for ledger operations and
// the underlying store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operations counts ledger operations by name and outcome ("ok" or an error class).
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "finboard",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Ledger operations by operation and outcome",
}, []string{"operation", "outcome"})

var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "finboard",
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Ledger operation latency including store retries",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

// StoreConflicts counts transaction attempts rolled back for a retryable conflict.
var StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "finboard",
	Subsystem: "store",
	Name:      "conflicts_total",
	Help:      "Store transaction attempts aborted by a concurrent modification",
})

var CascadeReversals = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "finboard",
	Subsystem: "ledger",
	Name:      "fund_cascade_reversals_total",
	Help:      "Movements reversed while deleting funds",
})

var BotMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "finboard",
	Subsystem: "discord",
	Name:      "messages_total",
	Help:      "Discord messages handled by kind",
}, []string{"kind"})

// Observe records one finished operation.
func Observe(operation, outcome string, start time.Time) {
	Operations.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
