// Package metrics provides Prometheus instrumentation for Weft.
//
// The Collector owns a registry and exposes typed recording methods used by
// the graph store, the policy evaluator, and the sync protocol. Metric names
// follow the pattern <namespace>_<subsystem>_<name>, e.g.
// weft_graph_appends_total or weft_sync_rounds_total.
//
// When metrics are disabled in configuration the recording methods are
// no-ops, so callers never need to guard instrumentation sites.
package metrics
