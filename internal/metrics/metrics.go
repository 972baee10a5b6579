// Package metrics defines the Prometheus collectors of the account service.
// Collectors register with the default registry on import; /metrics serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "account"

// StoreOperationsTotal counts store calls.
// Labels:
//   - op: repo method, e.g. "user_create", "role_associate"
//   - result: "ok", "not_found", "constraint", "conflict", "lazy_load" or "error"
var StoreOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total number of user store operations, by operation and result.",
	},
	[]string{"op", "result"},
)

// StoreOperationDuration measures store call latency.
var StoreOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of user store operations.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)

// ObserveStore records one finished store operation.
func ObserveStore(op, result string, start time.Time) {
	StoreOperationsTotal.WithLabelValues(op, result).Inc()
	StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
