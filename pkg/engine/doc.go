// Package engine is the device runtime binding the layers together: sealing
// and dispatching local actions, verifying and merging remote envelopes, and
// maintaining derived fact state.
//
// Convergence rests on a canonical total order over the command graph, a
// topological sort with identifier tie-breaks. Commands arriving in order
// are evaluated incrementally; a command merging into the middle of the
// order triggers a full replay that recomputes every verdict from scratch.
// Devices that hold the same commands therefore hold the same facts,
// regardless of arrival order.
//
// Effects cross the boundary to the application exactly once, tracked by
// digest across replays and restarts.
package engine
