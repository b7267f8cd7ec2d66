package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weftlabs/weft/pkg/config"
)

// Collector manages all Prometheus metrics for a Weft node. It covers the
// command graph (appends, state transitions), policy evaluation, and the
// reconciliation protocol.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	graph *GraphMetrics
	eval  *EvaluationMetrics
	sync  *SyncMetrics
}

// NewCollector creates a metrics collector with the given configuration and
// registry. If registry is nil a fresh one is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "weft"
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		graph:    NewGraphMetrics(cfg, registry),
		eval:     NewEvaluationMetrics(cfg, registry),
		sync:     NewSyncMetrics(cfg, registry),
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAppend records a command appended to the graph with its resulting
// state ("accepted", "rejected", "pending").
func (c *Collector) RecordAppend(state string) {
	if !c.config.Enabled {
		return
	}
	c.graph.appendsTotal.WithLabelValues(state).Inc()
}

// SetHeads records the current number of graph heads.
func (c *Collector) SetHeads(n int) {
	if !c.config.Enabled {
		return
	}
	c.graph.heads.Set(float64(n))
}

// SetPending records the current number of pending commands.
func (c *Collector) SetPending(n int) {
	if !c.config.Enabled {
		return
	}
	c.graph.pending.Set(float64(n))
}

// RecordEvaluation records a policy evaluation outcome for a command kind.
func (c *Collector) RecordEvaluation(kind string, accepted bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	c.eval.evaluationsTotal.WithLabelValues(kind, outcome).Inc()
	c.eval.evaluationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEffects records the number of effects emitted by one evaluation.
func (c *Collector) RecordEffects(n int) {
	if !c.config.Enabled || n == 0 {
		return
	}
	c.eval.effectsTotal.Add(float64(n))
}

// RecordSyncRound records a completed sync round with a peer.
func (c *Collector) RecordSyncRound(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.sync.roundsTotal.WithLabelValues(outcome).Inc()
}

// RecordEnvelopeSent records envelopes transmitted to peers.
func (c *Collector) RecordEnvelopeSent(n int) {
	if !c.config.Enabled {
		return
	}
	c.sync.envelopesSent.Add(float64(n))
}

// RecordEnvelopeReceived records an envelope received from the transport.
func (c *Collector) RecordEnvelopeReceived() {
	if !c.config.Enabled {
		return
	}
	c.sync.envelopesReceived.Inc()
}
