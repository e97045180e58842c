// Package metrics exposes Prometheus collectors for allocation, ledger and
// transaction outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "promo_ledger"

// Outcome labels.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultNotFound = "not_found"
	ResultFailure  = "failure"
	ResultNoop     = "noop"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	couponApplications *prometheus.CounterVec
	couponValidations  *prometheus.CounterVec
	inventoryMutations *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec
	txDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		couponApplications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_applications_total",
			Help:      "Coupon application attempts by coupon type and result.",
		}, []string{"type", "result"}),
		couponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validations_total",
			Help:      "Non-destructive coupon checks by outcome.",
		}, []string{"valid"}),
		inventoryMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_mutations_total",
			Help:      "Inventory quantity changes by operation and result.",
		}, []string{"operation", "result"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_rollbacks_total",
			Help:      "Rollback-by-SKU attempts by result.",
		}, []string{"result"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Duration of transaction boundary executions.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation", "success"}),
	}

	reg.MustRegister(
		m.couponApplications,
		m.couponValidations,
		m.inventoryMutations,
		m.rollbacks,
		m.txDuration,
	)
	return m
}

func (m *Metrics) CouponApplied(couponType, result string) {
	if m == nil {
		return
	}
	m.couponApplications.WithLabelValues(couponType, result).Inc()
}

func (m *Metrics) CouponValidated(valid bool) {
	if m == nil {
		return
	}
	m.couponValidations.WithLabelValues(boolLabel(valid)).Inc()
}

func (m *Metrics) InventoryMutated(operation, result string) {
	if m == nil {
		return
	}
	m.inventoryMutations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RolledBack(result string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

// ObserveTx records how long a transaction took since start.
func (m *Metrics) ObserveTx(operation string, start time.Time, success bool) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation, boolLabel(success)).Observe(time.Since(start).Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
