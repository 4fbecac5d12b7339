package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingTotalsTotal counts order totals computations by outcome.
	PricingTotalsTotal *prometheus.CounterVec
	// FXFetchTotal counts exchange-rate provider fetches by outcome.
	FXFetchTotal *prometheus.CounterVec
	// FXCacheTotal counts exchange-rate cache lookups by hit or miss.
	FXCacheTotal *prometheus.CounterVec
	// CatalogSyncTotal counts catalog refresh runs by outcome.
	CatalogSyncTotal *prometheus.CounterVec
	// CatalogSyncItems records the item count of the last successful refresh.
	CatalogSyncItems prometheus.Gauge
	// CatalogSyncLatency records refresh duration in milliseconds.
	CatalogSyncLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingTotalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_totals_total",
			Help:      "Count of order totals computations by outcome.",
		}, []string{"supplier", "result"})
		FXFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_fetch_total",
			Help:      "Count of exchange-rate provider fetches by outcome.",
		}, []string{"result"})
		FXCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_cache_total",
			Help:      "Count of exchange-rate cache lookups.",
		}, []string{"result"})
		CatalogSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_sync_total",
			Help:      "Count of catalog refresh runs by outcome.",
		}, []string{"result"})
		CatalogSyncItems = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_sync_items",
			Help:      "Number of catalog items written by the last successful refresh.",
		})
		CatalogSyncLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_sync_duration_ms",
			Help:      "Catalog refresh duration in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		})

		mustRegisterCollector(reg, PricingTotalsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingTotalsTotal = v
			}
		})
		mustRegisterCollector(reg, FXFetchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FXFetchTotal = v
			}
		})
		mustRegisterCollector(reg, FXCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FXCacheTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogSyncTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogSyncTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogSyncItems, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				CatalogSyncItems = v
			}
		})
		mustRegisterCollector(reg, CatalogSyncLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CatalogSyncLatency = v
			}
		})
	})
}

// IncPricingTotals records a totals computation outcome.
func IncPricingTotals(supplier, result string) {
	if PricingTotalsTotal != nil {
		PricingTotalsTotal.WithLabelValues(supplier, result).Inc()
	}
}

// IncFXFetch records a rate provider fetch outcome.
func IncFXFetch(result string) {
	if FXFetchTotal != nil {
		FXFetchTotal.WithLabelValues(result).Inc()
	}
}

// IncFXCache records a rate cache lookup.
func IncFXCache(result string) {
	if FXCacheTotal != nil {
		FXCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCatalogSync records a refresh run.
func ObserveCatalogSync(result string, items int, durationMs float64) {
	if CatalogSyncTotal != nil {
		CatalogSyncTotal.WithLabelValues(result).Inc()
	}
	if result == "ok" && CatalogSyncItems != nil {
		CatalogSyncItems.Set(float64(items))
	}
	if CatalogSyncLatency != nil {
		CatalogSyncLatency.Observe(durationMs)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
