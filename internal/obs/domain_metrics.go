package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RecalcTotal counts recalculation requests by operation and outcome.
	RecalcTotal *prometheus.CounterVec
	// RecalcDuration records engine latency in milliseconds.
	RecalcDuration *prometheus.HistogramVec
	// RecalcRows records table sizes submitted for recalculation.
	RecalcRows prometheus.Histogram
	// RecalcIssues counts row-level degradations by kind.
	RecalcIssues *prometheus.CounterVec
	// ClassifiedItems counts classified rows by resulting category.
	ClassifiedItems *prometheus.CounterVec
	// ResultCacheTotal counts result cache lookups by outcome.
	ResultCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RecalcTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalc_requests_total",
			Help:      "Count of recalculation requests by operation and outcome.",
		}, []string{"op", "result"})
		RecalcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalc_duration_ms",
			Help:      "Latency of recalculation passes in milliseconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}, []string{"op"})
		RecalcRows = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalc_table_rows",
			Help:      "Number of line items per recalculation request.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		})
		RecalcIssues = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalc_issues_total",
			Help:      "Count of row-level degradations by kind.",
		}, []string{"kind"})
		ClassifiedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "excise_classified_items_total",
			Help:      "Count of classified line items by excise category.",
		}, []string{"category"})
		ResultCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalc_result_cache_total",
			Help:      "Count of result cache lookups by outcome.",
		}, []string{"result"})

		RecalcTotal = registerOrExisting(reg, RecalcTotal)
		RecalcDuration = registerOrExisting(reg, RecalcDuration)
		RecalcRows = registerOrExisting(reg, RecalcRows)
		RecalcIssues = registerOrExisting(reg, RecalcIssues)
		ClassifiedItems = registerOrExisting(reg, ClassifiedItems)
		ResultCacheTotal = registerOrExisting(reg, ResultCacheTotal)
	})
}

// ObserveRecalc records one recalculation request. It is a no-op until
// MustRegisterDomainMetrics has run.
func ObserveRecalc(op, result string, rows int, millis float64) {
	if RecalcTotal == nil {
		return
	}
	RecalcTotal.WithLabelValues(op, result).Inc()
	RecalcDuration.WithLabelValues(op).Observe(millis)
	RecalcRows.Observe(float64(rows))
}

// CountIssue increments the row-level issue counter.
func CountIssue(kind string) {
	if RecalcIssues == nil {
		return
	}
	RecalcIssues.WithLabelValues(kind).Inc()
}

// CountClassified increments the classified item counter.
func CountClassified(category string) {
	if ClassifiedItems == nil {
		return
	}
	ClassifiedItems.WithLabelValues(category).Inc()
}

// CountCache records a result cache hit or miss.
func CountCache(hit bool) {
	if ResultCacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	ResultCacheTotal.WithLabelValues(result).Inc()
}
