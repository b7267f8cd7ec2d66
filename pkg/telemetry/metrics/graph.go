package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"weftlabs/weft/pkg/config"
)

// GraphMetrics tracks command graph activity.
//
// Metrics:
//   - weft_graph_appends_total: commands appended, by resulting state
//   - weft_graph_heads: current number of graph heads
//   - weft_graph_pending: commands buffered awaiting ancestors
type GraphMetrics struct {
	appendsTotal *prometheus.CounterVec
	heads        prometheus.Gauge
	pending      prometheus.Gauge
}

// NewGraphMetrics creates and registers graph metrics with the registry.
func NewGraphMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *GraphMetrics {
	gm := &GraphMetrics{
		appendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "graph",
				Name:      "appends_total",
				Help:      "Total number of commands appended to the graph",
			},
			[]string{"state"},
		),
		heads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "graph",
				Name:      "heads",
				Help:      "Current number of graph heads",
			},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "graph",
				Name:      "pending",
				Help:      "Commands buffered awaiting their ancestor chain",
			},
		),
	}

	registry.MustRegister(gm.appendsTotal, gm.heads, gm.pending)
	return gm
}

// EvaluationMetrics tracks policy evaluation.
//
// Metrics:
//   - weft_policy_evaluations_total: evaluations by command kind and outcome
//   - weft_policy_evaluation_duration_seconds: evaluation duration
//   - weft_policy_effects_total: effects emitted by accepted evaluations
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	effectsTotal       prometheus.Counter
}

// NewEvaluationMetrics creates and registers evaluation metrics.
func NewEvaluationMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"kind", "outcome"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				// Evaluations are pure in-memory rule runs, expected < 1ms.
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 12),
			},
			[]string{"kind"},
		),
		effectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "effects_total",
				Help:      "Total number of effects emitted by accepted evaluations",
			},
		),
	}

	registry.MustRegister(em.evaluationsTotal, em.evaluationDuration, em.effectsTotal)
	return em
}

// SyncMetrics tracks the reconciliation protocol.
//
// Metrics:
//   - weft_sync_rounds_total: sync rounds by outcome
//   - weft_sync_envelopes_sent_total: envelopes transmitted to peers
//   - weft_sync_envelopes_received_total: envelopes received from peers
type SyncMetrics struct {
	roundsTotal       *prometheus.CounterVec
	envelopesSent     prometheus.Counter
	envelopesReceived prometheus.Counter
}

// NewSyncMetrics creates and registers sync metrics.
func NewSyncMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *SyncMetrics {
	sm := &SyncMetrics{
		roundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "sync",
				Name:      "rounds_total",
				Help:      "Total number of sync rounds",
			},
			[]string{"outcome"},
		),
		envelopesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "sync",
				Name:      "envelopes_sent_total",
				Help:      "Envelopes transmitted to peers",
			},
		),
		envelopesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "sync",
				Name:      "envelopes_received_total",
				Help:      "Envelopes received from the transport",
			},
		),
	}

	registry.MustRegister(sm.roundsTotal, sm.envelopesSent, sm.envelopesReceived)
	return sm
}
