package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the engine's prometheus instruments. A nil *Telemetry is
// valid and records nothing, so tests can pass nil.
type Telemetry struct {
	searches       *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	ingested       prometheus.Counter
}

// New registers the engine metrics on the default registerer.
func New() *Telemetry {
	return &Telemetry{
		searches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ruh_searches_total",
			Help: "Searches served, by kind (verse/chapter/category) and strategy (semantic/keyword).",
		}, []string{"kind", "strategy"}),
		fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ruh_search_fallbacks_total",
			Help: "Searches that degraded from the semantic path to keyword matching.",
		}, []string{"kind"}),
		searchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ruh_search_duration_seconds",
			Help:    "End-to-end search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ingested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ruh_ingested_passages_total",
			Help: "Passages embedded and added to the vector store.",
		}),
	}
}

func (t *Telemetry) ObserveSearch(kind, strategy string, d time.Duration) {
	if t == nil {
		return
	}
	t.searches.WithLabelValues(kind, strategy).Inc()
	t.searchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (t *Telemetry) CountFallback(kind string) {
	if t == nil {
		return
	}
	t.fallbacks.WithLabelValues(kind).Inc()
}

func (t *Telemetry) CountIngested(n int) {
	if t == nil {
		return
	}
	t.ingested.Add(float64(n))
}
