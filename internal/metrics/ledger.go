package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "ledger_client",
		Name:      "operations_total",
		Help:      "Count of JSON-RPC operations against the ledger node.",
	}, []string{"operation", "status"})
	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auction_indexer",
		Subsystem: "ledger_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of JSON-RPC operations including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// LedgerClient tracks metrics for reads against the ledger node.
type LedgerClient struct{}

// NewLedgerClient constructs a metrics collector for ledger reads.
func NewLedgerClient() *LedgerClient {
	return &LedgerClient{}
}

// Observe records a single ledger call outcome and duration.
func (m *LedgerClient) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ledgerRequestsTotal.WithLabelValues(operation, status).Inc()
	ledgerRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
