package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOrderMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncPlaced()
	m.IncPlaced()
	m.IncStockConflict()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := counterValue(t, mfs, "orders_placed_total"); got != 2 {
		t.Errorf("orders_placed_total = %f, want 2", got)
	}
	if got := counterValue(t, mfs, "checkout_stock_conflicts_total"); got != 1 {
		t.Errorf("checkout_stock_conflicts_total = %f, want 1", got)
	}
	if got := counterValue(t, mfs, "orders_cancelled_total"); got != 0 {
		t.Errorf("orders_cancelled_total = %f, want 0", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewOrderMetrics(nil)
	m.IncPlaced()
	m.IncStockConflict()
	m.IncCancelled()
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}
