// Package metrics holds the Prometheus collectors the engine updates as it
// runs, registered against the default registry and served by the
// dashboard's /metrics endpoint (promhttp.Handler reads the default
// registry, so no explicit wiring is needed beyond importing this package).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Mid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_mid_price",
		Help: "Current mid price",
	})

	Sigma = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_sigma",
		Help: "Current per-second volatility estimate",
	})

	Kappa = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_kappa",
		Help: "Current order-flow intensity estimate (1/USD)",
	})

	InventoryQ = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_inventory_q",
		Help: "Current signed inventory in base units",
	})

	EquityUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_equity_usd",
		Help: "Current account equity in USD",
	})

	ReconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_reconcile_actions_total",
			Help: "OrderManager actions taken, by side and action",
		},
		[]string{"side", "action"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_fills_total",
			Help: "Fills applied, by side",
		},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(Mid, Sigma, Kappa, InventoryQ, EquityUSD, ReconcileActions, Fills)
}
