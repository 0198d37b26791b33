package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kasirinaja/ledger/internal/domain"
)

// Metrics holds the engine's collectors on a private registry. A nil *Metrics
// is valid and records nothing, which keeps unit tests free of globals.
type Metrics struct {
	registry            *prometheus.Registry
	excludedTx          *prometheus.GaugeVec
	estimatedCostLines  *prometheus.GaugeVec
	fallbackResolutions *prometheus.GaugeVec
	stockMovements      *prometheus.CounterVec
	versionConflicts    *prometheus.CounterVec
	shiftVariance       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		excludedTx: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kasirinaja",
			Subsystem: "validation",
			Name:      "excluded_transactions",
			Help:      "Sale transactions left out of the latest report of each kind, by reason.",
		}, []string{"report", "reason"}),
		estimatedCostLines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kasirinaja",
			Subsystem: "validation",
			Name:      "estimated_cost_lines",
			Help:      "Line items costed by the price-based estimate in the latest report of each kind.",
		}, []string{"report"}),
		fallbackResolutions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kasirinaja",
			Subsystem: "validation",
			Name:      "fallback_resolutions",
			Help:      "Display names resolved below the primary source in the latest report of each kind, by field.",
		}, []string{"report", "field"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasirinaja",
			Subsystem: "stock",
			Name:      "movements_total",
			Help:      "Stock movements recorded, by change type.",
		}, []string{"change_type"}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasirinaja",
			Subsystem: "store",
			Name:      "version_conflicts_total",
			Help:      "Optimistic commits retried after a collection version moved.",
		}, []string{"operation"}),
		shiftVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kasirinaja",
			Subsystem: "shift",
			Name:      "close_difference_rupiah",
			Help:      "Counted minus expected cash at shift close.",
			Buckets:   []float64{-100000, -50000, -10000, -1000, 0, 1000, 10000, 50000, 100000},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.excludedTx,
		m.estimatedCostLines,
		m.fallbackResolutions,
		m.stockMovements,
		m.versionConflicts,
		m.shiftVariance,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ReportQuality replaces the quality gauges of one report kind with q, so
// repeated queries over the same data leave the values unchanged.
func (m *Metrics) ReportQuality(report string, q domain.DataQuality) {
	if m == nil {
		return
	}
	m.excludedTx.DeletePartialMatch(prometheus.Labels{"report": report})
	for reason, n := range q.ExcludedByReason {
		m.excludedTx.WithLabelValues(report, reason).Set(float64(n))
	}
	m.estimatedCostLines.WithLabelValues(report).Set(float64(q.EstimatedCostLines))
	m.fallbackResolutions.WithLabelValues(report, "product_name").Set(float64(q.NameFallbacks))
	m.fallbackResolutions.WithLabelValues(report, "cashier_name").Set(float64(q.CashierFallbacks))
}

func (m *Metrics) StockMovement(changeType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(changeType).Inc()
}

func (m *Metrics) VersionConflict(operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) ShiftClosed(difference int64) {
	if m == nil {
		return
	}
	m.shiftVariance.Observe(float64(difference))
}
