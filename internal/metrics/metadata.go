package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metadataLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction_indexer",
		Subsystem: "metadata_cache",
		Name:      "lookups_total",
		Help:      "Metadata lookups by kind and result (hit, fetched, placeholder, stale).",
	}, []string{"kind", "result"})

	metadataBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "auction_indexer",
		Subsystem: "metadata_cache",
		Name:      "breaker_open",
		Help:      "1 while the metadata HTTP circuit breaker is not closed.",
	}, []string{"breaker"})
)

// MetadataCache tracks metrics for the metadata cache.
type MetadataCache struct{}

// NewMetadataCache constructs a MetadataCache collector.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{}
}

// ObserveLookup counts one lookup outcome.
func (m *MetadataCache) ObserveLookup(kind, result string) {
	metadataLookupsTotal.WithLabelValues(kind, result).Inc()
}

// SetBreakerOpen publishes the breaker state.
func (m *MetadataCache) SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	metadataBreakerState.WithLabelValues(name).Set(v)
}
