// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is passed to components explicitly so tests can use a private registry.
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec
	Charges       *prometheus.CounterVec
	Refunds       *prometheus.CounterVec
	LedgerRetries prometheus.Counter
	RefundQueue   prometheus.Gauge
}

// New registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rembg_requests_total",
			Help: "Background removal requests by outcome code",
		}, []string{"code"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rembg_stage_duration_seconds",
			Help:    "Time spent in each request stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),
		Charges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rembg_credit_charges_total",
			Help: "Credit charge attempts by result",
		}, []string{"result"}),
		Refunds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rembg_credit_refunds_total",
			Help: "Credit refund attempts by result",
		}, []string{"result"}),
		LedgerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "rembg_ledger_cas_retries_total",
			Help: "Compare-and-set conflicts that caused a retry",
		}),
		RefundQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rembg_refund_queue_depth",
			Help: "Refund tasks waiting after the last worker pass",
		}),
	}
}

// NewNop returns collectors registered nowhere
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveStage(stage string, started time.Time) {
	m.StageLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
