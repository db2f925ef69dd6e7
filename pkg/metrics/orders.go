package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records order lifecycle activity. All methods are nil-safe so
// services can run without a registry wired in.
type OrderMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	refunds     prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders placed.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"to"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_refunds_total",
		Help: "Wallet refunds issued on cancellation.",
	})
	reg.MustRegister(created, transitions, refunds)
	return &OrderMetrics{
		created:     created,
		transitions: transitions,
		refunds:     refunds,
	}
}

// IncCreated counts a placed order.
func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncTransition counts a status transition to the named status.
func (m *OrderMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	if to == "" {
		to = "unknown"
	}
	m.transitions.WithLabelValues(to).Inc()
}

// IncRefund counts a wallet refund.
func (m *OrderMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}
