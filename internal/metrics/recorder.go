package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the fire-and-forget metrics sink for the decision core.
type Recorder struct {
	decisionsTotal *prometheus.CounterVec
	confidence     *prometheus.HistogramVec
	cycleDuration  prometheus.Histogram
	agentErrors    *prometheus.CounterVec
	openShadow     prometheus.Gauge
}

// New registers the collectors with reg, or with the default registry
// when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maveretta_decisions_total",
				Help: "Consensus decisions by symbol and final action",
			},
			[]string{"symbol", "action"},
		),
		confidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maveretta_decision_confidence",
				Help:    "Calibrated confidence of consensus decisions",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"symbol"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "maveretta_decision_cycle_seconds",
				Help:    "Wall time of one full decision cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		agentErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maveretta_agent_errors_total",
				Help: "Agent failures and timeouts dropped from consensus",
			},
			[]string{"agent_id"},
		),
		openShadow: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maveretta_shadow_trades_open",
				Help: "Currently open shadow trades",
			},
		),
	}
}

func (r *Recorder) RecordDecision(symbol, action string, confidence float64) {
	r.decisionsTotal.WithLabelValues(symbol, action).Inc()
	r.confidence.WithLabelValues(symbol).Observe(confidence)
}

func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

func (r *Recorder) RecordAgentError(agentID string) {
	r.agentErrors.WithLabelValues(agentID).Inc()
}

func (r *Recorder) SetOpenShadowTrades(n int) {
	r.openShadow.Set(float64(n))
}
