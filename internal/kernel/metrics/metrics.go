package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TransactionsCreated prometheus.Counter
	Transitions         *prometheus.CounterVec
	SettledValue        prometheus.Counter
	FeesRouted          prometheus.Counter
	RefundedValue       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TransactionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actp_kernel_transactions_created_total",
			Help: "Total number of transactions opened in the kernel",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "actp_kernel_transitions_total",
			Help: "Total state transitions applied, labelled by resulting state",
		}, []string{"state"}),
		SettledValue: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actp_kernel_settled_value_total",
			Help: "Total value released to providers at settlement",
		}),
		FeesRouted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actp_kernel_fees_routed_total",
			Help: "Total fee value routed to fee sinks",
		}),
		RefundedValue: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actp_kernel_refunded_value_total",
			Help: "Total value refunded to requesters on cancellation",
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.TransactionsCreated.Inc()
}

func (m *Metrics) IncrementTransition(state string) {
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) AddSettled(amount int64) {
	m.SettledValue.Add(float64(amount))
}

func (m *Metrics) AddFees(amount int64) {
	m.FeesRouted.Add(float64(amount))
}

func (m *Metrics) AddRefunded(amount int64) {
	m.RefundedValue.Add(float64(amount))
}
