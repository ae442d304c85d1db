package metrics

import "github.com/prometheus/client_golang/prometheus"

// SagaMetrics counts cart conversion outcomes and compensation activity.
type SagaMetrics struct {
	outcomes      *prometheus.CounterVec
	compensations *prometheus.CounterVec
	graphWrites   *prometheus.CounterVec
}

func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_conversions_total",
		Help: "Cart to order conversions by result code.",
	}, []string{"code"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_compensations_total",
		Help: "Stock reservations released by compensation.",
	}, []string{"result"})
	graphWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_graph_writes_total",
		Help: "Synchronous purchase edge writes after commit.",
	}, []string{"result"})
	reg.MustRegister(outcomes, compensations, graphWrites)
	return &SagaMetrics{outcomes: outcomes, compensations: compensations, graphWrites: graphWrites}
}

// Conversion records the final code of a conversion; "" means confirmed.
func (s *SagaMetrics) Conversion(code string) {
	if s == nil || s.outcomes == nil {
		return
	}
	if code == "" {
		code = "confirmed"
	}
	s.outcomes.WithLabelValues(code).Inc()
}

func (s *SagaMetrics) Compensation(ok bool) {
	if s == nil || s.compensations == nil {
		return
	}
	s.compensations.WithLabelValues(resultLabel(ok)).Inc()
}

func (s *SagaMetrics) GraphWrite(ok bool) {
	if s == nil || s.graphWrites == nil {
		return
	}
	s.graphWrites.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
