package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "poll_cycles_total",
		Help:      "Count of poll cycles.",
	}, []string{"status"})

	syncPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Duration of a poll cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"status"})

	syncBackfillTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "backfill_runs_total",
		Help:      "Count of factory backfill runs.",
	}, []string{"status"})

	syncEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "events_total",
		Help:      "Count of decoded contract events by kind.",
	}, []string{"event"})

	syncCheckpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "checkpoint_block",
		Help:      "Last block whose factory logs were fully processed.",
	})

	syncAuctionsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "auctions_inserted_total",
		Help:      "Count of auctions inserted by source.",
	}, []string{"source"})

	syncStatusSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "sync_worker",
		Name:      "status_swept_total",
		Help:      "Count of expired auctions closed by the status sweep.",
	})
)

// SyncWorker tracks metrics for the sync pipeline.
type SyncWorker struct{}

// NewSyncWorker constructs a SyncWorker collector.
func NewSyncWorker() *SyncWorker {
	return &SyncWorker{}
}

// ObservePoll records the outcome of one poll cycle.
func (m *SyncWorker) ObservePoll(err error, started time.Time) {
	status := statusLabel(err)
	syncPollTotal.WithLabelValues(status).Inc()
	syncPollDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveBackfill records the outcome of one backfill run and how many auctions it added.
func (m *SyncWorker) ObserveBackfill(err error, inserted int) {
	syncBackfillTotal.WithLabelValues(statusLabel(err)).Inc()
	if inserted > 0 {
		syncAuctionsInserted.WithLabelValues("backfill").Add(float64(inserted))
	}
}

// ObserveEvents counts decoded events of one kind.
func (m *SyncWorker) ObserveEvents(event string, n int) {
	if n > 0 {
		syncEventsTotal.WithLabelValues(event).Add(float64(n))
	}
}

// ObserveAuctionCreated counts an auction inserted from a creation log.
func (m *SyncWorker) ObserveAuctionCreated() {
	syncAuctionsInserted.WithLabelValues("event").Inc()
}

// ObserveSweep counts auctions closed by the status sweep.
func (m *SyncWorker) ObserveSweep(n int) {
	if n > 0 {
		syncStatusSwept.Add(float64(n))
	}
}

// SetCheckpoint publishes the current checkpoint.
func (m *SyncWorker) SetCheckpoint(block uint64) {
	syncCheckpoint.Set(float64(block))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
