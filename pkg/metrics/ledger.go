package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks stock movement activity and audit results.
type LedgerMetrics struct {
	movements  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	refunds    prometheus.Counter
	drift      *prometheus.GaugeVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_recorded",
		Help: "Stock movements appended to the journal, by movement type.",
	}, []string{"type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_rejected",
		Help: "Stock movements rejected before commit, by error code.",
	}, []string{"code"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunds_processed",
		Help: "Refund operations applied to sale transactions.",
	})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stock_audit_drift",
		Help: "Last observed drift between replayed and stored stock, by variant.",
	}, []string{"variant_id"})
	reg.MustRegister(movements, rejections, refunds, drift)
	return &LedgerMetrics{
		movements:  movements,
		rejections: rejections,
		refunds:    refunds,
		drift:      drift,
	}
}

// IncMovement increments the recorded counter for the movement type.
func (l *LedgerMetrics) IncMovement(movementType string) {
	if l == nil || l.movements == nil {
		return
	}
	l.movements.WithLabelValues(normalizeLabel(movementType)).Inc()
}

// IncRejection increments the rejection counter for the error code.
func (l *LedgerMetrics) IncRejection(code string) {
	if l == nil || l.rejections == nil {
		return
	}
	l.rejections.WithLabelValues(normalizeLabel(code)).Inc()
}

// IncRefund increments the processed refund counter.
func (l *LedgerMetrics) IncRefund() {
	if l == nil || l.refunds == nil {
		return
	}
	l.refunds.Inc()
}

// SetDrift records the latest audit drift for a variant.
func (l *LedgerMetrics) SetDrift(variantID string, drift int) {
	if l == nil || l.drift == nil {
		return
	}
	l.drift.WithLabelValues(normalizeLabel(variantID)).Set(float64(drift))
}
