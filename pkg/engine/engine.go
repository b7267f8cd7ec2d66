package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdsync "sync"
	"time"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/config"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/facts"
	"weftlabs/weft/pkg/graph"
	"weftlabs/weft/pkg/identity"
	"weftlabs/weft/pkg/policy"
	"weftlabs/weft/pkg/telemetry/metrics"
)

// Options configures an Engine.
type Options struct {
	Provider identity.Provider
	Graph    *graph.Graph
	Facts    facts.Store
	Logger   *slog.Logger
	Metrics  *metrics.Collector

	// UnknownAuthorBuffer caps buffered envelopes from unknown authors.
	// Zero means config.DefaultUnknownAuthorBuffer.
	UnknownAuthorBuffer int

	// PendingTimeout bounds how long a command may wait on a missing
	// ancestor before SweepPending reports it.
	PendingTimeout time.Duration

	// OnEffect, if set, receives every newly delivered effect. It is
	// called from the evaluation path, so it must not block.
	OnEffect func(policy.Effect)
}

// Engine is the device runtime: it seals and evaluates local actions,
// verifies and merges remote envelopes, and keeps derived fact state equal
// to what every other device computes from the same commands.
//
// All evaluation is serialized behind one lock, which is the concurrency
// model the policy layer assumes: a single transaction at a time, commands
// applied one by one in canonical order.
type Engine struct {
	codec   *envelope.Codec
	graph   *graph.Graph
	facts   facts.Store
	eval    *policy.Evaluator
	log     *slog.Logger
	metrics *metrics.Collector

	bufferCap      int
	pendingTimeout time.Duration
	onEffect       func(policy.Effect)

	mu        stdsync.Mutex
	closed    bool
	buffered  []heldEnvelope
	delivered map[string]bool
}

// heldEnvelope is a verified-not-yet envelope waiting for its author's key.
type heldEnvelope struct {
	author identity.AuthorID
	sealed []byte
	from   string
}

// New creates an engine. Start must be called before use so durable state is
// replayed into the fact store.
func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("engine: identity provider is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("engine: graph is required")
	}
	if opts.Facts == nil {
		return nil, errors.New("engine: fact store is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector(config.MetricsConfig{}, nil)
	}
	bufferCap := opts.UnknownAuthorBuffer
	if bufferCap <= 0 {
		bufferCap = config.DefaultUnknownAuthorBuffer
	}
	pendingTimeout := opts.PendingTimeout
	if pendingTimeout <= 0 {
		pendingTimeout = config.DefaultPendingTimeout
	}

	return &Engine{
		codec:          envelope.NewCodec(opts.Provider),
		graph:          opts.Graph,
		facts:          opts.Facts,
		eval:           policy.NewEvaluator(log),
		log:            log.With("component", "engine"),
		metrics:        collector,
		bufferCap:      bufferCap,
		pendingTimeout: pendingTimeout,
		onEffect:       opts.OnEffect,
		delivered:      make(map[string]bool),
	}, nil
}

// Start rebuilds fact state by replaying the durable graph in canonical
// order. Effects produced during this replay were delivered in a previous
// run and are suppressed.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.graph.Store().All(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if _, _, err := e.replay(ctx, canonicalOrder(records), nil, true); err != nil {
		return err
	}

	heads, err := e.graph.Heads(ctx)
	if err != nil {
		return err
	}
	e.metrics.SetHeads(len(heads))
	e.log.Info("graph replayed", "commands", len(records), "heads", len(heads))
	return nil
}

// Close stops the engine. Underlying stores are closed by their owner.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.buffered = nil
	return nil
}

// Heads returns the local head frontier.
func (e *Engine) Heads(ctx context.Context) ([]command.ID, error) {
	return e.graph.Heads(ctx)
}

// Known reports whether the command is present locally in any state.
func (e *Engine) Known(ctx context.Context, id command.ID) (bool, error) {
	_, known, err := e.graph.Status(ctx, id)
	return known, err
}

// SealedEnvelope returns the stored sealed bytes for a durable command.
func (e *Engine) SealedEnvelope(ctx context.Context, id command.ID) ([]byte, bool, error) {
	rec, ok, err := e.graph.Store().Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.Envelope, true, nil
}

// MissingAncestors returns the identifiers blocking pending commands.
func (e *Engine) MissingAncestors() []command.ID {
	return e.graph.MissingAncestors()
}

// SweepPending expires commands stuck on missing ancestors past the
// configured timeout and logs a report for each. Expired commands can be
// received again later; nothing about them was visible in fact state.
func (e *Engine) SweepPending(now time.Time) {
	reports := e.graph.ExpirePending(now, e.pendingTimeout)
	for _, report := range reports {
		e.log.Warn("pending command expired",
			"id", report.ID,
			"missing", report.Missing,
			"waited", now.Sub(report.Since))
	}
	e.metrics.SetPending(e.graph.PendingCount())
}
