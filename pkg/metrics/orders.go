package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks checkout outcomes.
type OrderMetrics struct {
	placed         prometheus.Counter
	stockConflicts prometheus.Counter
	cancelled      prometheus.Counter
}

// NewOrderMetrics registers the order counters on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders successfully placed.",
	})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_conflicts_total",
		Help: "Checkout attempts rejected because a line exceeded live stock.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders cancelled before delivery.",
	})
	reg.MustRegister(placed, stockConflicts, cancelled)
	return &OrderMetrics{placed: placed, stockConflicts: stockConflicts, cancelled: cancelled}
}

// IncPlaced increments the placed order counter.
func (m *OrderMetrics) IncPlaced() {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.Inc()
}

// IncStockConflict increments the stock conflict counter.
func (m *OrderMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncCancelled increments the cancelled order counter.
func (m *OrderMetrics) IncCancelled() {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.Inc()
}
