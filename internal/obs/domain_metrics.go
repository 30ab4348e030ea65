package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CompareTotal counts cart comparisons by outcome (found, empty, invalid, error).
	CompareTotal *prometheus.CounterVec
	// CompareStores records how many stores were comparable per request.
	CompareStores prometheus.Histogram
	// CompareSavingsPercent records the savings percentage of successful comparisons.
	CompareSavingsPercent prometheus.Histogram
	// PriceCacheTotal counts price catalog cache lookups by result (hit, miss, error).
	PriceCacheTotal *prometheus.CounterVec
	// CatalogRefreshTotal counts remote catalog refresh outcomes per city.
	CatalogRefreshTotal *prometheus.CounterVec
	// CatalogRejectedPrices counts remote price rows dropped during ingestion.
	CatalogRejectedPrices *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if namespace == "" {
			namespace = DefaultNamespace
		}
		CompareTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compare_total",
			Help:      "Count of cart comparisons by outcome.",
		}, []string{"outcome"}))
		CompareStores = registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compare_stores",
			Help:      "Number of comparable stores per cart comparison.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}))
		CompareSavingsPercent = registerOrReuse(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compare_savings_percent",
			Help:      "Savings of the best store against the worst, in percent.",
			Buckets:   []float64{0, 1, 2.5, 5, 10, 20, 35, 50, 75},
		}))
		PriceCacheTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_cache_total",
			Help:      "Price catalog cache lookups by result.",
		}, []string{"result"}))
		CatalogRefreshTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Remote catalog refresh outcomes.",
		}, []string{"city", "result"}))
		CatalogRejectedPrices = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_rejected_prices_total",
			Help:      "Remote price rows rejected during ingestion.",
		}, []string{"reason"}))
	})
}

// ObserveCompare records a comparison outcome. Safe to call before registration.
func ObserveCompare(outcome string, stores int, savingsPercent float64) {
	if CompareTotal != nil {
		CompareTotal.WithLabelValues(outcome).Inc()
	}
	if outcome != "found" && outcome != "empty" {
		return
	}
	if CompareStores != nil {
		CompareStores.Observe(float64(stores))
	}
	if outcome == "found" && CompareSavingsPercent != nil {
		CompareSavingsPercent.Observe(savingsPercent)
	}
}

// ObservePriceCache records a cache lookup result. Safe to call before registration.
func ObservePriceCache(result string) {
	if PriceCacheTotal != nil {
		PriceCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCatalogRefresh records a refresh outcome. Safe to call before registration.
func ObserveCatalogRefresh(city, result string) {
	if CatalogRefreshTotal != nil {
		CatalogRefreshTotal.WithLabelValues(city, result).Inc()
	}
}

// ObserveRejectedPrice records a dropped remote price row. Safe to call before registration.
func ObserveRejectedPrice(reason string) {
	if CatalogRejectedPrices != nil {
		CatalogRejectedPrices.WithLabelValues(reason).Inc()
	}
}
